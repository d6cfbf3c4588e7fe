package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/clock"
	"github.com/goodtune/promptlog/internal/events"
	"github.com/goodtune/promptlog/internal/scheduler"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/goodtune/promptlog/internal/storage/bolt"
	"github.com/rs/zerolog"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	rec   *Recorder
	sched *scheduler.Scheduler
	clock *clock.FakeClock
	store storage.Store
	added []events.Event
	order []events.Kind
}

func newFixture(t *testing.T) *fixture {
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

	f := &fixture{sched: sched, clock: clock.NewFake(t0), store: store}
	sched.SetClock(f.clock)
	f.rec = New(store.Activities(), sched, bus, zerolog.Nop())
	f.rec.SetClock(f.clock)

	bus.SubscribeAll(func(e events.Event) error {
		f.order = append(f.order, e.Kind)
		if e.Kind == events.ActivityAdded {
			f.added = append(f.added, e)
		}
		return nil
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.sched.StartTracking(context.Background()); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
}

func (f *fixture) promptAt(offset time.Duration) {
	f.clock.Set(t0.Add(offset))
	f.sched.Poll(context.Background())
}

func TestRecordRequiresSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.rec.RecordActivity(ctx, Entry{Description: "x"}); !errors.Is(err, apperrors.ErrNoActiveSession) {
		t.Errorf("RecordActivity() error = %v, want ErrNoActiveSession", err)
	}
	if _, err := f.rec.RecordSkippedInterval(ctx); !errors.Is(err, apperrors.ErrNoActiveSession) {
		t.Errorf("RecordSkippedInterval() error = %v, want ErrNoActiveSession", err)
	}
}

func TestRecordValidatesEntry(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	zero, six := 0, 6
	for _, entry := range []Entry{
		{Description: "   "},
		{Description: "x", Mood: &zero},
		{Description: "x", Mood: &six},
	} {
		if _, err := f.rec.RecordActivity(ctx, entry); !errors.Is(err, apperrors.ErrInvalidArgument) {
			t.Errorf("RecordActivity(%+v) error = %v, want ErrInvalidArgument", entry, err)
		}
	}
}

// A prompt at t0+15s answered five seconds late covers t0..t0+15s and the
// next prompt is due at t0+30s.
func TestLateEntryIsBackDated(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	f.promptAt(15 * time.Second)
	f.clock.Set(t0.Add(20 * time.Second))

	activity, err := f.rec.RecordActivity(ctx, Entry{Description: "wrote code", Tags: []string{"work", "coding"}})
	if err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}

	if !activity.StartTime.Equal(t0) || !activity.EndTime.Equal(t0.Add(15*time.Second)) {
		t.Errorf("interval = %v..%v, want t0..t0+15s", activity.StartTime, activity.EndTime)
	}
	if activity.DurationMS != 15000 || activity.EndTime.Sub(activity.StartTime) != 15*time.Second {
		t.Errorf("duration = %dms, want 15000", activity.DurationMS)
	}
	if !activity.CreatedAt.Equal(t0.Add(20 * time.Second)) {
		t.Errorf("createdAt = %v, want t0+20s", activity.CreatedAt)
	}
	if err := activity.Validate(); err != nil {
		t.Errorf("recorded activity invalid: %v", err)
	}

	info := f.sched.SessionInfo()
	if !info.NextPromptAt.Equal(t0.Add(30 * time.Second)) {
		t.Errorf("next prompt at %v, want t0+30s", info.NextPromptAt)
	}

	stored, err := f.store.Activities().Get(ctx, activity.ID)
	if err != nil {
		t.Fatalf("recorded activity not persisted: %v", err)
	}
	if !reflect.DeepEqual(stored.Tags, []string{"work", "coding"}) {
		t.Errorf("stored tags = %v", stored.Tags)
	}
	if len(f.added) != 1 || f.added[0].Activity.ID != activity.ID {
		t.Errorf("activity-added events = %+v", f.added)
	}
}

func TestConsecutiveEntriesTileTheSession(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		f.promptAt(time.Duration(i) * 15 * time.Second)
		f.clock.Advance(3 * time.Second)
		if _, err := f.rec.RecordActivity(ctx, Entry{Description: "step"}); err != nil {
			t.Fatalf("RecordActivity() #%d error = %v", i, err)
		}
	}

	list, err := f.store.Activities().List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("activities = %d, want 3", len(list))
	}
	for i, a := range list {
		wantStart := t0.Add(time.Duration(i) * 15 * time.Second)
		if !a.StartTime.Equal(wantStart) || a.Duration() != 15*time.Second {
			t.Errorf("activity %d = %v +%v, want %v +15s", i, a.StartTime, a.Duration(), wantStart)
		}
		if i > 0 && !a.StartTime.Equal(list[i-1].EndTime) {
			t.Errorf("gap between activity %d and %d", i-1, i)
		}
	}
}

func TestEarlyEntryEndsNow(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.clock.Set(t0.Add(6 * time.Second))
	activity, err := f.rec.RecordActivity(context.Background(), Entry{Description: "quick note"})
	if err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}
	if !activity.EndTime.Equal(t0.Add(6*time.Second)) || activity.DurationMS != 6000 {
		t.Errorf("early entry = %v..%v", activity.StartTime, activity.EndTime)
	}
}

func TestRecordSkippedInterval(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.promptAt(15 * time.Second)
	activity, err := f.rec.RecordSkippedInterval(context.Background())
	if err != nil {
		t.Fatalf("RecordSkippedInterval() error = %v", err)
	}
	if !activity.Skipped || activity.Description != SkippedDescription || !activity.HasTag(SkippedTag) {
		t.Errorf("sentinel = %+v", activity)
	}
	if activity.DurationMS != 15000 {
		t.Errorf("skipped duration = %d, want 15000", activity.DurationMS)
	}
	if f.sched.State() != scheduler.Tracking {
		t.Errorf("state = %v, want tracking", f.sched.State())
	}
}

func TestFinalEntryEndsSession(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	f.clock.Set(t0.Add(9 * time.Second))
	if err := f.sched.StopTracking(ctx); err != nil {
		t.Fatalf("StopTracking() error = %v", err)
	}
	f.clock.Set(t0.Add(12 * time.Second))

	activity, err := f.rec.RecordActivity(ctx, Entry{Description: "wrap up", Tags: []string{"admin"}})
	if err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}
	if !activity.EndTime.Equal(t0.Add(9 * time.Second)) {
		t.Errorf("final entry ends %v, want stop time t0+9s", activity.EndTime)
	}
	if f.sched.State() != scheduler.Idle {
		t.Errorf("state = %v, want idle", f.sched.State())
	}

	want := []events.Kind{events.SessionStarted, events.NotificationDue, events.SessionStopped, events.ActivityAdded}
	if !reflect.DeepEqual(f.order, want) {
		t.Errorf("event order = %v, want %v", f.order, want)
	}
}

func TestFinalEntryAfterPromptKeepsInterval(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	f.promptAt(15 * time.Second)
	f.clock.Set(t0.Add(40 * time.Second))
	if err := f.sched.StopTracking(ctx); err != nil {
		t.Fatalf("StopTracking() error = %v", err)
	}

	activity, err := f.rec.RecordActivity(ctx, Entry{Description: "reviewing"})
	if err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}
	if !activity.StartTime.Equal(t0) || !activity.EndTime.Equal(t0.Add(15*time.Second)) {
		t.Errorf("final entry = %v..%v, want t0..t0+15s", activity.StartTime, activity.EndTime)
	}
	if activity.DurationMS != 15000 {
		t.Errorf("DurationMS = %d, want 15000", activity.DurationMS)
	}
	if f.sched.State() != scheduler.Idle {
		t.Errorf("state = %v, want idle", f.sched.State())
	}
}

func TestTagsAreDeduplicated(t *testing.T) {
	got := DedupeTags([]string{"work", " #work", "Work", "", "#", "coding", "work"})
	want := []string{"work", "Work", "coding"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DedupeTags() = %v, want %v", got, want)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	f.promptAt(15 * time.Second)
	skipped, err := f.rec.RecordSkippedInterval(ctx)
	if err != nil {
		t.Fatalf("RecordSkippedInterval() error = %v", err)
	}

	mood := 3
	updated, err := f.rec.UpdateActivity(ctx, skipped.ID, Entry{Description: "actually reading", Tags: []string{"learning"}, Mood: &mood})
	if err != nil {
		t.Fatalf("UpdateActivity() error = %v", err)
	}
	if updated.ID != skipped.ID || !updated.StartTime.Equal(skipped.StartTime) || !updated.EndTime.Equal(skipped.EndTime) {
		t.Errorf("update changed identity or interval: %+v", updated)
	}
	if updated.Skipped || updated.HasTag(SkippedTag) {
		t.Errorf("updated sentinel still marked skipped")
	}

	if err := f.rec.DeleteActivity(ctx, skipped.ID); err != nil {
		t.Fatalf("DeleteActivity() error = %v", err)
	}
	if err := f.rec.DeleteActivity(ctx, skipped.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second DeleteActivity() error = %v, want ErrNotFound", err)
	}
	if _, err := f.rec.UpdateActivity(ctx, "missing", Entry{Description: "x"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateActivity(missing) error = %v, want ErrNotFound", err)
	}
}
