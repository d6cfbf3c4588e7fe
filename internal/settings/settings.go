// Package settings owns the persisted settings singleton.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/metrics"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager holds the in-memory settings and mirrors every change to the store.
// When a save fails the new value stays in memory and the error wraps
// apperrors.ErrPersistence.
type Manager struct {
	store  storage.SettingsStore
	logger zerolog.Logger

	mu        sync.RWMutex
	current   storage.Settings
	listeners []func(storage.Settings)
}

// Load reads the saved settings, falling back to defaults when nothing is
// stored or the store cannot be read.
func Load(ctx context.Context, store storage.SettingsStore, logger zerolog.Logger) *Manager {
	m := &Manager{
		store:   store,
		logger:  logger.With().Str("component", "settings").Logger(),
		current: storage.DefaultSettings(),
	}

	saved, err := store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		m.logger.Debug().Msg("No saved settings, using defaults")
		return m
	case err != nil:
		metrics.PersistenceErrors.WithLabelValues("load_settings").Inc()
		m.logger.Warn().Err(err).Msg("Failed to load settings, using defaults")
		return m
	}

	m.current = normalize(*saved, m.logger)
	return m
}

// normalize repairs values a hand-edited or older store may carry.
func normalize(s storage.Settings, logger zerolog.Logger) storage.Settings {
	if s.Interval() < storage.MinNotificationInterval {
		logger.Warn().
			Int64("interval_ms", s.NotificationIntervalMS).
			Msg("Saved notification interval below minimum, using default")
		s.NotificationIntervalMS = storage.DefaultNotificationInterval.Milliseconds()
	}
	if s.NotificationPermission == "" {
		s.NotificationPermission = storage.PermissionDefault
	}
	if s.QuietTimes == nil {
		s.QuietTimes = []storage.QuietTime{}
	}
	for _, q := range s.QuietTimes {
		if q.StartTime > q.EndTime {
			logger.Warn().
				Str("quiet_time", q.ID).
				Str("start", q.StartTime).
				Str("end", q.EndTime).
				Msg("Quiet time crosses midnight and will never match; split it into two windows")
		}
	}
	return s
}

// Get returns a copy of the current settings.
func (m *Manager) Get() storage.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// OnChange registers fn to be called with the new settings after every
// successful in-memory change.
func (m *Manager) OnChange(fn func(storage.Settings)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// SetInterval changes the prompt interval.
func (m *Manager) SetInterval(ctx context.Context, d time.Duration) error {
	if d < storage.MinNotificationInterval {
		return fmt.Errorf("%w: notification interval %v is below %v", apperrors.ErrInvalidArgument, d, storage.MinNotificationInterval)
	}
	return m.update(ctx, func(s *storage.Settings) error {
		s.NotificationIntervalMS = d.Milliseconds()
		return nil
	})
}

// SetSoundEnabled toggles the audible prompt.
func (m *Manager) SetSoundEnabled(ctx context.Context, enabled bool) error {
	return m.update(ctx, func(s *storage.Settings) error {
		s.SoundEnabled = enabled
		return nil
	})
}

// SetPermission records the notification permission state.
func (m *Manager) SetPermission(ctx context.Context, p storage.Permission) error {
	if _, err := storage.ParsePermission(string(p)); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err)
	}
	return m.update(ctx, func(s *storage.Settings) error {
		s.NotificationPermission = p
		return nil
	})
}

// AddQuietTime validates q, assigns an id when it has none and appends it.
func (m *Manager) AddQuietTime(ctx context.Context, q storage.QuietTime) (storage.QuietTime, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	normalized, err := ValidateQuietTime(q)
	if err != nil {
		return storage.QuietTime{}, err
	}
	err = m.update(ctx, func(s *storage.Settings) error {
		if _, i := findQuietTime(s.QuietTimes, normalized.ID); i >= 0 {
			return fmt.Errorf("%w: quiet time %s already exists", apperrors.ErrInvalidArgument, normalized.ID)
		}
		s.QuietTimes = append(s.QuietTimes, normalized)
		return nil
	})
	return normalized, err
}

// UpdateQuietTime replaces the quiet time with the same id.
func (m *Manager) UpdateQuietTime(ctx context.Context, q storage.QuietTime) error {
	normalized, err := ValidateQuietTime(q)
	if err != nil {
		return err
	}
	return m.update(ctx, func(s *storage.Settings) error {
		_, i := findQuietTime(s.QuietTimes, normalized.ID)
		if i < 0 {
			return fmt.Errorf("quiet time %s: %w", normalized.ID, storage.ErrNotFound)
		}
		s.QuietTimes[i] = normalized
		return nil
	})
}

// SetQuietTimeEnabled toggles a quiet time without touching its window.
func (m *Manager) SetQuietTimeEnabled(ctx context.Context, id string, enabled bool) error {
	return m.update(ctx, func(s *storage.Settings) error {
		_, i := findQuietTime(s.QuietTimes, id)
		if i < 0 {
			return fmt.Errorf("quiet time %s: %w", id, storage.ErrNotFound)
		}
		s.QuietTimes[i].Enabled = enabled
		return nil
	})
}

// RemoveQuietTime deletes a quiet time by id.
func (m *Manager) RemoveQuietTime(ctx context.Context, id string) error {
	return m.update(ctx, func(s *storage.Settings) error {
		_, i := findQuietTime(s.QuietTimes, id)
		if i < 0 {
			return fmt.Errorf("quiet time %s: %w", id, storage.ErrNotFound)
		}
		s.QuietTimes = append(s.QuietTimes[:i], s.QuietTimes[i+1:]...)
		return nil
	})
}

// Replace swaps the whole settings object, as done by import. Legacy
// cross-midnight quiet times are accepted here so a backup restores verbatim.
func (m *Manager) Replace(ctx context.Context, next storage.Settings) error {
	if next.Interval() < storage.MinNotificationInterval {
		return fmt.Errorf("%w: notification interval %dms is below %v", apperrors.ErrInvalidArgument, next.NotificationIntervalMS, storage.MinNotificationInterval)
	}
	next = normalize(next.Clone(), m.logger)
	return m.update(ctx, func(s *storage.Settings) error {
		*s = next
		return nil
	})
}

// update applies fn to a copy of the current settings, publishes the result
// in memory and then saves it.
func (m *Manager) update(ctx context.Context, fn func(*storage.Settings) error) error {
	m.mu.Lock()
	next := m.current.Clone()
	if err := fn(&next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.current = next
	listeners := append([]func(storage.Settings){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(next.Clone())
	}

	if err := m.store.Save(ctx, next); err != nil {
		metrics.PersistenceErrors.WithLabelValues("save_settings").Inc()
		m.logger.Error().Err(err).Msg("Failed to save settings")
		return fmt.Errorf("%w: save settings: %v", apperrors.ErrPersistence, err)
	}

	m.logger.Debug().
		Int64("interval_ms", next.NotificationIntervalMS).
		Bool("sound", next.SoundEnabled).
		Str("permission", string(next.NotificationPermission)).
		Int("quiet_times", len(next.QuietTimes)).
		Msg("Settings saved")

	return nil
}

func findQuietTime(list []storage.QuietTime, id string) (storage.QuietTime, int) {
	for i, q := range list {
		if q.ID == id {
			return q, i
		}
	}
	return storage.QuietTime{}, -1
}
