// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/promptlog/internal/storage"
)

// Run exercises a backend. open must return a fresh, empty store.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("ActivityLifecycle", func(t *testing.T) { testActivityLifecycle(t, open(t)) })
	t.Run("ActivityListOrder", func(t *testing.T) { testActivityListOrder(t, open(t)) })
	t.Run("ActivityDeleteBefore", func(t *testing.T) { testActivityDeleteBefore(t, open(t)) })
	t.Run("ActivityReplaceAll", func(t *testing.T) { testActivityReplaceAll(t, open(t)) })
	t.Run("ActivityRejectsBrokenInterval", func(t *testing.T) { testActivityRejectsBrokenInterval(t, open(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, open(t)) })
	t.Run("Session", func(t *testing.T) { testSession(t, open(t)) })
}

var base = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

// NewActivity builds a valid activity starting offset after a fixed base time.
func NewActivity(id string, offset, length time.Duration, tags ...string) storage.Activity {
	a := storage.Activity{
		ID:          id,
		Description: "activity " + id,
		Tags:        tags,
		CreatedAt:   base.Add(offset + length),
	}
	a.SetInterval(base.Add(offset), base.Add(offset+length))
	return a
}

func testActivityLifecycle(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()
	activities := store.Activities()

	mood := 4
	activity := NewActivity("a-1", 0, 15*time.Minute, "work", "coding")
	activity.Mood = &mood
	activity.PlannedNext = "review"

	if err := activities.Add(ctx, activity); err != nil {
		t.Fatalf("add activity: %v", err)
	}

	got, err := activities.Get(ctx, "a-1")
	if err != nil {
		t.Fatalf("get activity: %v", err)
	}
	if got.Description != activity.Description {
		t.Fatalf("expected description %q, got %q", activity.Description, got.Description)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "work" || got.Tags[1] != "coding" {
		t.Fatalf("unexpected tags: %v", got.Tags)
	}
	if got.Mood == nil || *got.Mood != 4 {
		t.Fatalf("expected mood 4, got %v", got.Mood)
	}
	if !got.StartTime.Equal(activity.StartTime) || !got.EndTime.Equal(activity.EndTime) {
		t.Fatalf("interval mismatch: got %s-%s", got.StartTime, got.EndTime)
	}
	if got.DurationMS != (15 * time.Minute).Milliseconds() {
		t.Fatalf("expected duration %d, got %d", (15 * time.Minute).Milliseconds(), got.DurationMS)
	}

	got.Description = "edited"
	if err := activities.Update(ctx, *got); err != nil {
		t.Fatalf("update activity: %v", err)
	}
	got, err = activities.Get(ctx, "a-1")
	if err != nil {
		t.Fatalf("get updated activity: %v", err)
	}
	if got.Description != "edited" {
		t.Fatalf("expected edited description, got %q", got.Description)
	}

	missing := NewActivity("missing", 0, time.Minute)
	if err := activities.Update(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing activity, got %v", err)
	}

	if err := activities.Delete(ctx, "a-1"); err != nil {
		t.Fatalf("delete activity: %v", err)
	}
	if _, err := activities.Get(ctx, "a-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := activities.Delete(ctx, "a-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func testActivityListOrder(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	for _, a := range []storage.Activity{
		NewActivity("c", 30*time.Minute, 15*time.Minute),
		NewActivity("a", 0, 15*time.Minute),
		NewActivity("b", 15*time.Minute, 15*time.Minute),
	} {
		if err := store.Activities().Add(ctx, a); err != nil {
			t.Fatalf("add %s: %v", a.ID, err)
		}
	}

	list, err := store.Activities().List(ctx)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 activities, got %d", len(list))
	}
	for i, id := range []string{"a", "b", "c"} {
		if list[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}
}

func testActivityDeleteBefore(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	_ = store.Activities().Add(ctx, NewActivity("old", 0, time.Minute))
	_ = store.Activities().Add(ctx, NewActivity("new", 48*time.Hour, time.Minute))

	deleted, err := store.Activities().DeleteBefore(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted activity, got %d", deleted)
	}
	list, err := store.Activities().List(ctx)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(list) != 1 || list[0].ID != "new" {
		t.Fatalf("expected only the new activity to remain, got %v", list)
	}
}

func testActivityReplaceAll(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	_ = store.Activities().Add(ctx, NewActivity("gone", 0, time.Minute))

	replacement := []storage.Activity{
		NewActivity("x", time.Hour, time.Minute, "imported"),
		NewActivity("y", 2*time.Hour, time.Minute),
	}
	if err := store.Activities().ReplaceAll(ctx, replacement); err != nil {
		t.Fatalf("replace all: %v", err)
	}

	list, err := store.Activities().List(ctx)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(list) != 2 || list[0].ID != "x" || list[1].ID != "y" {
		t.Fatalf("unexpected activities after replace: %v", list)
	}

	if err := store.Activities().ReplaceAll(ctx, nil); err != nil {
		t.Fatalf("replace with empty list: %v", err)
	}
	list, err = store.Activities().List(ctx)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty log, got %d entries", len(list))
	}
}

func testActivityRejectsBrokenInterval(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()

	broken := NewActivity("broken", 0, time.Minute)
	broken.DurationMS = 1
	if err := store.Activities().Add(context.Background(), broken); err == nil {
		t.Fatal("expected an error for a duration that does not match the interval")
	}
}

func testSettings(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if _, err := store.Settings().Load(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	settings := storage.DefaultSettings()
	settings.NotificationIntervalMS = 60000
	settings.NotificationPermission = storage.PermissionGranted
	settings.QuietTimes = []storage.QuietTime{{
		ID:        "lunch",
		Name:      "Lunch",
		StartTime: "12:00",
		EndTime:   "13:00",
		Days:      []time.Weekday{time.Monday, time.Friday},
		Enabled:   true,
	}}

	if err := store.Settings().Save(ctx, settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	got, err := store.Settings().Load(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if got.NotificationIntervalMS != 60000 {
		t.Fatalf("expected interval 60000, got %d", got.NotificationIntervalMS)
	}
	if got.NotificationPermission != storage.PermissionGranted {
		t.Fatalf("expected granted permission, got %s", got.NotificationPermission)
	}
	if len(got.QuietTimes) != 1 || !got.QuietTimes[0].OnDay(time.Friday) || got.QuietTimes[0].OnDay(time.Sunday) {
		t.Fatalf("unexpected quiet times: %+v", got.QuietTimes)
	}
}

func testSession(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if _, err := store.Session().Load(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a session, got %v", err)
	}

	session := storage.Session{
		Start:            base,
		LastNotification: base.Add(15 * time.Second),
		IntervalMS:       15000,
	}
	if err := store.Session().Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}
	got, err := store.Session().Load(ctx)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if !got.Start.Equal(session.Start) || !got.LastNotification.Equal(session.LastNotification) {
		t.Fatalf("session mismatch: %+v", got)
	}
	if got.IntervalMS != 15000 {
		t.Fatalf("expected interval 15000, got %d", got.IntervalMS)
	}

	if err := store.Session().Clear(ctx); err != nil {
		t.Fatalf("clear session: %v", err)
	}
	if _, err := store.Session().Load(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
	if err := store.Session().Clear(ctx); err != nil {
		t.Fatalf("clearing an absent session should succeed, got %v", err)
	}
}
