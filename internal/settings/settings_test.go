package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/goodtune/promptlog/internal/storage/bolt"
	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "promptlog.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// failingStore refuses every read and write.
type failingStore struct{}

func (failingStore) Load(context.Context) (*storage.Settings, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) Save(context.Context, storage.Settings) error {
	return errors.New("disk on fire")
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()

	m := Load(ctx, openTestStore(t).Settings(), zerolog.Nop())
	got := m.Get()
	want := storage.DefaultSettings()
	if got.NotificationIntervalMS != 15000 || !got.SoundEnabled || got.NotificationPermission != storage.PermissionDefault {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if got.QuietTimes == nil || len(got.QuietTimes) != 0 {
		t.Errorf("QuietTimes = %#v, want empty slice", got.QuietTimes)
	}

	m = Load(ctx, failingStore{}, zerolog.Nop())
	if m.Get().NotificationIntervalMS != 15000 {
		t.Errorf("unreadable store should yield defaults")
	}
}

func TestSetIntervalValidation(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	m := Load(ctx, store.Settings(), zerolog.Nop())

	tests := []struct {
		name    string
		d       time.Duration
		wantErr bool
	}{
		{"minimum", time.Second, false},
		{"minutes", 20 * time.Minute, false},
		{"below minimum", 999 * time.Millisecond, true},
		{"zero", 0, true},
		{"negative", -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := m.Get().NotificationIntervalMS
			err := m.SetInterval(ctx, tt.d)
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidArgument) {
					t.Fatalf("SetInterval(%v) error = %v, want ErrInvalidArgument", tt.d, err)
				}
				if got := m.Get().NotificationIntervalMS; got != before {
					t.Errorf("interval changed to %d after rejected update", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetInterval(%v) error = %v", tt.d, err)
			}
			if got := m.Get().Interval(); got != tt.d {
				t.Errorf("interval = %v, want %v", got, tt.d)
			}
		})
	}

	reloaded := Load(ctx, store.Settings(), zerolog.Nop())
	if got := reloaded.Get().Interval(); got != 20*time.Minute {
		t.Errorf("persisted interval = %v, want 20m", got)
	}
}

func TestQuietTimeLifecycle(t *testing.T) {
	ctx := context.Background()
	m := Load(ctx, openTestStore(t).Settings(), zerolog.Nop())

	var changes int
	m.OnChange(func(storage.Settings) { changes++ })

	q, err := m.AddQuietTime(ctx, storage.QuietTime{
		Name:      "lunch",
		StartTime: "12:00",
		EndTime:   "13:00",
		Days:      []time.Weekday{time.Friday, time.Monday, time.Monday},
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("AddQuietTime() error = %v", err)
	}
	if q.ID == "" {
		t.Fatalf("AddQuietTime() did not assign an id")
	}
	if len(q.Days) != 2 || q.Days[0] != time.Monday || q.Days[1] != time.Friday {
		t.Errorf("days = %v, want [Monday Friday]", q.Days)
	}

	if err := m.SetQuietTimeEnabled(ctx, q.ID, false); err != nil {
		t.Fatalf("SetQuietTimeEnabled() error = %v", err)
	}
	if m.Get().QuietTimes[0].Enabled {
		t.Errorf("quiet time still enabled")
	}

	q.EndTime = "14:00"
	if err := m.UpdateQuietTime(ctx, q); err != nil {
		t.Fatalf("UpdateQuietTime() error = %v", err)
	}
	if got := m.Get().QuietTimes[0].EndTime; got != "14:00" {
		t.Errorf("end time = %q, want 14:00", got)
	}

	if err := m.RemoveQuietTime(ctx, q.ID); err != nil {
		t.Fatalf("RemoveQuietTime() error = %v", err)
	}
	if len(m.Get().QuietTimes) != 0 {
		t.Errorf("quiet time not removed")
	}
	if err := m.RemoveQuietTime(ctx, q.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second RemoveQuietTime() error = %v, want ErrNotFound", err)
	}

	if changes != 4 {
		t.Errorf("OnChange fired %d times, want 4", changes)
	}
}

func TestAddQuietTimeRejectsBadWindows(t *testing.T) {
	ctx := context.Background()
	m := Load(ctx, openTestStore(t).Settings(), zerolog.Nop())

	tests := []struct {
		name       string
		start, end string
		days       []time.Weekday
	}{
		{"cross midnight", "22:00", "06:00", []time.Weekday{time.Monday}},
		{"unpadded", "9:00", "10:00", []time.Weekday{time.Monday}},
		{"not a time", "lunch", "13:00", []time.Weekday{time.Monday}},
		{"hour out of range", "24:00", "24:30", []time.Weekday{time.Monday}},
		{"bad weekday", "09:00", "10:00", []time.Weekday{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddQuietTime(ctx, storage.QuietTime{StartTime: tt.start, EndTime: tt.end, Days: tt.days, Enabled: true})
			if !errors.Is(err, apperrors.ErrInvalidArgument) {
				t.Errorf("AddQuietTime() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
	if len(m.Get().QuietTimes) != 0 {
		t.Errorf("rejected quiet times were stored")
	}
}

func TestSaveFailureKeepsInMemoryValue(t *testing.T) {
	ctx := context.Background()
	m := Load(ctx, failingStore{}, zerolog.Nop())

	err := m.SetSoundEnabled(ctx, false)
	if !errors.Is(err, apperrors.ErrPersistence) {
		t.Fatalf("SetSoundEnabled() error = %v, want ErrPersistence", err)
	}
	if m.Get().SoundEnabled {
		t.Errorf("in-memory value should reflect the change")
	}
}

func TestReplaceKeepsLegacyWindows(t *testing.T) {
	ctx := context.Background()
	m := Load(ctx, openTestStore(t).Settings(), zerolog.Nop())

	next := storage.Settings{
		NotificationIntervalMS: 60000,
		NotificationPermission: storage.PermissionGranted,
		QuietTimes: []storage.QuietTime{
			{ID: "night", Name: "night", StartTime: "22:00", EndTime: "06:00", Days: []time.Weekday{time.Sunday}, Enabled: true},
		},
	}
	if err := m.Replace(ctx, next); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	got := m.Get()
	if got.NotificationIntervalMS != 60000 || got.SoundEnabled || got.NotificationPermission != storage.PermissionGranted {
		t.Errorf("Get() = %+v", got)
	}
	if len(got.QuietTimes) != 1 || got.QuietTimes[0].StartTime != "22:00" {
		t.Errorf("legacy quiet time not restored: %+v", got.QuietTimes)
	}

	if err := m.Replace(ctx, storage.Settings{NotificationIntervalMS: 10}); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("Replace() with tiny interval error = %v, want ErrInvalidArgument", err)
	}
}

func TestSetPermissionRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	m := Load(ctx, openTestStore(t).Settings(), zerolog.Nop())

	if err := m.SetPermission(ctx, storage.PermissionGranted); err != nil {
		t.Fatalf("SetPermission(granted) error = %v", err)
	}
	if err := m.SetPermission(ctx, "maybe"); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("SetPermission(maybe) error = %v, want ErrInvalidArgument", err)
	}
	if got := m.Get().NotificationPermission; got != storage.PermissionGranted {
		t.Errorf("permission = %q, want granted", got)
	}
}
