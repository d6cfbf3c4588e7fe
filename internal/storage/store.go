package storage

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// SchemaVersion is embedded in every backend's key layout so a future
// incompatible format can live next to the current one.
const SchemaVersion = "v1"

// Names of the three persisted blobs.
const (
	KeyActivities = "activities"
	KeySettings   = "settings"
	KeySession    = "session"
)

// Store represents the root storage interface.
type Store interface {
	Close() error
	Activities() ActivityStore
	Settings() SettingsStore
	Session() SessionStore
}

// ActivityStore manages the activity log.
type ActivityStore interface {
	Add(ctx context.Context, activity Activity) error
	Get(ctx context.Context, id string) (*Activity, error)
	// List returns every activity ordered by start time.
	List(ctx context.Context) ([]Activity, error)
	Update(ctx context.Context, activity Activity) error
	Delete(ctx context.Context, id string) error
	// DeleteBefore removes activities that ended before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
	// ReplaceAll swaps the whole log, used by import.
	ReplaceAll(ctx context.Context, activities []Activity) error
}

// SettingsStore persists the settings singleton.
type SettingsStore interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, settings Settings) error
}

// SessionStore persists the in-progress session marker.
type SessionStore interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, session Session) error
	Clear(ctx context.Context) error
}

// SortActivities orders activities by start time, then id.
func SortActivities(activities []Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		a, b := activities[i], activities[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID < b.ID
	})
}
