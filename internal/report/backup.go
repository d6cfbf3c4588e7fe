package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
)

// BackupVersion is written to every JSON backup.
const BackupVersion = 1

// Backup is the JSON export document.
type Backup struct {
	Version    int                `json:"version"`
	ExportedAt time.Time          `json:"exportedAt"`
	Activities []storage.Activity `json:"activities"`
	Settings   storage.Settings   `json:"settings"`
}

// Export snapshots the activity log and the current settings.
func Export(ctx context.Context, store storage.ActivityStore, sm *settings.Manager, now time.Time) (*Backup, error) {
	activities, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	if activities == nil {
		activities = []storage.Activity{}
	}
	return &Backup{
		Version:    BackupVersion,
		ExportedAt: now,
		Activities: activities,
		Settings:   sm.Get(),
	}, nil
}

// WriteJSON writes b as indented JSON.
func (b *Backup) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// Validate checks the version and every activity.
func (b *Backup) Validate() error {
	if b.Version != BackupVersion {
		return fmt.Errorf("%w: unsupported backup version %d", apperrors.ErrInvalidArgument, b.Version)
	}
	seen := make(map[string]bool, len(b.Activities))
	for _, a := range b.Activities {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate activity id %s", apperrors.ErrInvalidArgument, a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// ReadBackup decodes and validates a JSON backup.
func ReadBackup(r io.Reader) (*Backup, error) {
	var b Backup
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: decode backup: %v", apperrors.ErrInvalidArgument, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Import replaces the activity log and settings with the backup contents.
func Import(ctx context.Context, b *Backup, store storage.ActivityStore, sm *settings.Manager) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := store.ReplaceAll(ctx, b.Activities); err != nil {
		return fmt.Errorf("%w: replace activities: %v", apperrors.ErrPersistence, err)
	}
	if err := sm.Replace(ctx, b.Settings); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
