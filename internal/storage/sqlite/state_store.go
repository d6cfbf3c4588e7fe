package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goodtune/promptlog/internal/storage"
)

var (
	keySettings = storage.KeySettings + "." + storage.SchemaVersion
	keySession  = storage.KeySession + "." + storage.SchemaVersion
)

func loadValue[T any](ctx context.Context, db *sql.DB, key string) (*T, error) {
	var payload string
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	var value T
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &value, nil
}

func saveValue(ctx context.Context, db *sql.DB, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(payload))
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

type settingsStore struct {
	db *sql.DB
}

func (s *settingsStore) Load(ctx context.Context) (*storage.Settings, error) {
	return loadValue[storage.Settings](ctx, s.db, keySettings)
}

func (s *settingsStore) Save(ctx context.Context, settings storage.Settings) error {
	return saveValue(ctx, s.db, keySettings, settings)
}

type sessionStore struct {
	db *sql.DB
}

func (s *sessionStore) Load(ctx context.Context) (*storage.Session, error) {
	return loadValue[storage.Session](ctx, s.db, keySession)
}

func (s *sessionStore) Save(ctx context.Context, session storage.Session) error {
	return saveValue(ctx, s.db, keySession, session)
}

func (s *sessionStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, keySession); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
