package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/promptlog/internal/clock"
	"github.com/goodtune/promptlog/internal/events"
	"github.com/goodtune/promptlog/internal/policy"
	"github.com/goodtune/promptlog/internal/recorder"
	"github.com/goodtune/promptlog/internal/report"
	"github.com/goodtune/promptlog/internal/scheduler"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/goodtune/promptlog/internal/storage/bolt"
	"github.com/rs/zerolog"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type testServer struct {
	handler  http.Handler
	sched    *scheduler.Scheduler
	clock    *clock.FakeClock
	store    storage.Store
	settings *settings.Manager
}

func newTestServer(t *testing.T, engine *policy.Engine) *testServer {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "promptlog.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	sm := settings.Load(ctx, store.Settings(), zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	sched, err := scheduler.New(store.Session(), sm, bus, nil, scheduler.Config{PollInterval: time.Hour}, zerolog.Nop())
	if err != nil {
		t.Fatalf("scheduler.New() error = %v", err)
	}
	t.Cleanup(sched.Close)

	fake := clock.NewFake(t0)
	sched.SetClock(fake)
	rec := recorder.New(store.Activities(), sched, bus, zerolog.Nop())
	rec.SetClock(fake)

	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", Location: time.UTC}, Deps{
		Scheduler:  sched,
		Recorder:   rec,
		Activities: store.Activities(),
		Settings:   sm,
		Policy:     engine,
	}, zerolog.Nop())

	return &testServer{handler: srv.Handler(), sched: sched, clock: fake, store: store, settings: sm}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestStatusCodes(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"entry while idle", "POST", "/api/activities", `{"description":"x"}`, http.StatusConflict},
		{"skip while idle", "POST", "/api/session/skip", "", http.StatusConflict},
		{"stop while idle", "POST", "/api/session/stop", "", http.StatusConflict},
		{"pending while idle", "GET", "/api/session/pending", "", http.StatusConflict},
		{"bad body", "POST", "/api/activities", `{"description":`, http.StatusBadRequest},
		{"unknown field", "POST", "/api/activities", `{"title":"x"}`, http.StatusBadRequest},
		{"missing activity", "GET", "/api/activities/nope", "", http.StatusNotFound},
		{"delete missing", "DELETE", "/api/activities/nope", "", http.StatusNotFound},
		{"interval too small", "PATCH", "/api/settings", `{"notificationIntervalMs":500}`, http.StatusBadRequest},
		{"bad permission", "PATCH", "/api/settings", `{"notificationPermission":"maybe"}`, http.StatusBadRequest},
		{"cross-midnight quiet time", "POST", "/api/settings/quiet-times", `{"startTime":"22:00","endTime":"06:00","days":[1],"enabled":true}`, http.StatusBadRequest},
		{"missing quiet time", "DELETE", "/api/settings/quiet-times/nope", "", http.StatusNotFound},
		{"quiet without flag", "PUT", "/api/session/quiet", `{}`, http.StatusBadRequest},
		{"bad range", "GET", "/api/activities?from=yesterday", "", http.StatusBadRequest},
		{"bad backup", "POST", "/api/import", `{"version":9}`, http.StatusBadRequest},
		{"no policy", "POST", "/api/system/reload-policy", "", http.StatusNotFound},
		{"health", "GET", "/health", "", http.StatusOK},
		{"wrong method", "DELETE", "/api/session", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d: %s", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
			if tt.want >= 400 && tt.want != http.StatusMethodNotAllowed {
				var resp ErrorResponse
				decode(t, rec, &resp)
				if resp.Code != tt.want || resp.Error != http.StatusText(tt.want) {
					t.Errorf("error body = %+v", resp)
				}
			}
		})
	}
}

func TestSessionFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	if rec := ts.do(t, "POST", "/api/session/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", rec.Code, rec.Body.String())
	}
	// Starting again is a no-op.
	if rec := ts.do(t, "POST", "/api/session/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("second start = %d", rec.Code)
	}

	ts.clock.Set(t0.Add(15 * time.Second))
	ts.sched.Poll(context.Background())
	ts.clock.Set(t0.Add(20 * time.Second))

	rec := ts.do(t, "POST", "/api/activities", `{"description":"wrote code","tags":["work","coding","work"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}
	var created storage.Activity
	decode(t, rec, &created)
	if created.DurationMS != 15000 || !created.StartTime.Equal(t0) || len(created.Tags) != 2 {
		t.Errorf("created = %+v", created)
	}

	rec = ts.do(t, "GET", "/api/session", "")
	var info map[string]interface{}
	decode(t, rec, &info)
	if info["state"] != "tracking" || info["isActive"] != true {
		t.Errorf("info = %v", info)
	}

	rec = ts.do(t, "PUT", "/api/session/quiet", `{"enabled":true}`)
	decode(t, rec, &info)
	if info["quietMode"] != true {
		t.Errorf("quiet mode not reported: %v", info)
	}

	rec = ts.do(t, "POST", "/api/session/snooze", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("snooze = %d", rec.Code)
	}

	ts.clock.Set(t0.Add(25 * time.Second))
	rec = ts.do(t, "GET", "/api/session/pending", "")
	var pending pendingResponse
	decode(t, rec, &pending)
	if pending.DurationMS != 5000 || pending.Final {
		t.Errorf("pending = %+v", pending)
	}

	if rec := ts.do(t, "POST", "/api/session/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop = %d", rec.Code)
	}
	rec = ts.do(t, "POST", "/api/session/skip", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("final skip = %d: %s", rec.Code, rec.Body.String())
	}
	if ts.sched.State() != scheduler.Idle {
		t.Errorf("state = %v, want idle", ts.sched.State())
	}

	rec = ts.do(t, "GET", "/api/activities", "")
	var list struct {
		Activities []storage.Activity `json:"activities"`
		Count      int                `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 2 || !list.Activities[1].Skipped {
		t.Errorf("activities = %+v", list)
	}

	rec = ts.do(t, "GET", "/api/activities?tag=coding", "")
	decode(t, rec, &list)
	if list.Count != 1 {
		t.Errorf("tag filter returned %d", list.Count)
	}
}

func TestActivityUpdateAndDelete(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, "POST", "/api/session/start", "")
	ts.clock.Set(t0.Add(15 * time.Second))
	ts.sched.Poll(context.Background())

	rec := ts.do(t, "POST", "/api/session/skip", "")
	var skipped storage.Activity
	decode(t, rec, &skipped)

	rec = ts.do(t, "PUT", "/api/activities/"+skipped.ID, `{"description":"reading","tags":["learning"],"mood":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body.String())
	}
	var updated storage.Activity
	decode(t, rec, &updated)
	if updated.Skipped || updated.Description != "reading" || !updated.StartTime.Equal(skipped.StartTime) {
		t.Errorf("updated = %+v", updated)
	}

	rec = ts.do(t, "PUT", "/api/activities/"+skipped.ID, `{"description":"reading","mood":7}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad mood = %d", rec.Code)
	}

	if rec := ts.do(t, "DELETE", "/api/activities/"+skipped.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := ts.do(t, "GET", "/api/activities/"+skipped.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "PATCH", "/api/settings", `{"notificationIntervalMs":60000,"soundEnabled":false,"notificationPermission":"granted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch = %d: %s", rec.Code, rec.Body.String())
	}
	got := ts.settings.Get()
	if got.Interval() != time.Minute || got.SoundEnabled || got.NotificationPermission != storage.PermissionGranted {
		t.Errorf("settings = %+v", got)
	}

	rec = ts.do(t, "POST", "/api/settings/quiet-times", `{"name":"lunch","startTime":"12:00","endTime":"13:00","days":[5,1,1],"enabled":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create quiet time = %d: %s", rec.Code, rec.Body.String())
	}
	var q storage.QuietTime
	decode(t, rec, &q)
	if q.ID == "" || len(q.Days) != 2 || q.Days[0] != time.Monday {
		t.Errorf("created quiet time = %+v", q)
	}

	rec = ts.do(t, "PUT", "/api/settings/quiet-times/"+q.ID, `{"name":"long lunch","startTime":"12:00","endTime":"14:00","days":[1],"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update quiet time = %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &q)
	if q.EndTime != "14:00" || q.Enabled {
		t.Errorf("updated quiet time = %+v", q)
	}

	if rec := ts.do(t, "DELETE", "/api/settings/quiet-times/"+q.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete quiet time = %d", rec.Code)
	}
	if n := len(ts.settings.Get().QuietTimes); n != 0 {
		t.Errorf("quiet times left = %d", n)
	}
}

func TestReportsAndBackup(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	ts.do(t, "POST", "/api/session/start", "")
	for i := 1; i <= 2; i++ {
		ts.clock.Set(t0.Add(time.Duration(i) * 15 * time.Second))
		ts.sched.Poll(ctx)
		ts.do(t, "POST", "/api/activities", `{"description":"say \"hi\"","tags":["work"]}`)
	}

	rec := ts.do(t, "GET", "/api/reports/csv", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 || lines[0] != report.CSVHeader {
		t.Fatalf("csv =\n%s", rec.Body.String())
	}
	if lines[1] != `2024-03-04,10:00:00,10:00:15,0.25,"say ""hi""","work"` {
		t.Errorf("csv row = %s", lines[1])
	}

	rec = ts.do(t, "GET", "/api/reports/tags", "")
	var tags struct {
		Tags []report.TagTotal `json:"tags"`
	}
	decode(t, rec, &tags)
	if len(tags.Tags) != 1 || tags.Tags[0].Tag != "work" || tags.Tags[0].Count != 2 || tags.Tags[0].Minutes != 0.5 {
		t.Errorf("tags = %+v", tags)
	}

	rec = ts.do(t, "GET", "/api/reports/timeline", "")
	var timeline struct {
		Days []report.Day `json:"days"`
	}
	decode(t, rec, &timeline)
	if len(timeline.Days) != 1 || timeline.Days[0].Date != "2024-03-04" || len(timeline.Days[0].Activities) != 2 {
		t.Errorf("timeline = %+v", timeline)
	}

	rec = ts.do(t, "GET", "/api/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d", rec.Code)
	}
	backup := rec.Body.Bytes()

	if err := ts.store.Activities().ReplaceAll(ctx, nil); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	rec = ts.do(t, "POST", "/api/import", string(backup))
	if rec.Code != http.StatusOK {
		t.Fatalf("import = %d: %s", rec.Code, rec.Body.String())
	}
	list, err := ts.store.Activities().List(ctx)
	if err != nil || len(list) != 2 {
		t.Errorf("after import: %d activities, err %v", len(list), err)
	}
	if !bytes.Contains(backup, []byte(`"version": 1`)) && !bytes.Contains(backup, []byte(`"version":1`)) {
		t.Errorf("backup missing version: %s", backup)
	}
}

func TestReloadPolicy(t *testing.T) {
	engine, err := policy.NewEngineFromModules(map[string]string{
		"p.rego": "package promptlog\n\nimport rego.v1\n\nprompt := {\"suppress\": false}\n",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngineFromModules() error = %v", err)
	}
	ts := newTestServer(t, engine)

	if rec := ts.do(t, "POST", "/api/system/reload-policy", ""); rec.Code != http.StatusOK {
		t.Errorf("reload = %d: %s", rec.Code, rec.Body.String())
	}
}
