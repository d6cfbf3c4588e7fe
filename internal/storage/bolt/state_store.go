package bolt

import (
	"context"
	"errors"

	"github.com/goodtune/promptlog/internal/storage"
	"go.etcd.io/bbolt"
)

// loadState decodes one key of the state bucket.
func loadState[T any](ctx context.Context, db *bbolt.DB, key string) (*T, error) {
	var out *T
	err := withBucket(ctx, db, bucketState, false, func(b *bbolt.Bucket) error {
		var err error
		out, err = decodeKey[T](b, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func saveState(ctx context.Context, db *bbolt.DB, key string, value any) error {
	return withBucket(ctx, db, bucketState, true, func(b *bbolt.Bucket) error {
		return encodeKey(b, key, value)
	})
}

type settingsStore struct {
	db *bbolt.DB
}

func (s *settingsStore) Load(ctx context.Context) (*storage.Settings, error) {
	return loadState[storage.Settings](ctx, s.db, storage.KeySettings)
}

func (s *settingsStore) Save(ctx context.Context, settings storage.Settings) error {
	return saveState(ctx, s.db, storage.KeySettings, settings)
}

type sessionStore struct {
	db *bbolt.DB
}

func (s *sessionStore) Load(ctx context.Context) (*storage.Session, error) {
	return loadState[storage.Session](ctx, s.db, storage.KeySession)
}

func (s *sessionStore) Save(ctx context.Context, session storage.Session) error {
	return saveState(ctx, s.db, storage.KeySession, session)
}

// Clear removes the session marker; clearing an absent one is not an error.
func (s *sessionStore) Clear(ctx context.Context) error {
	err := withBucket(ctx, s.db, bucketState, true, func(b *bbolt.Bucket) error {
		return b.Delete([]byte(storage.KeySession))
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
