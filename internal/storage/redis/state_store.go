package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goodtune/promptlog/internal/storage"
	"github.com/redis/go-redis/v9"
)

type settingsStore struct {
	client *redis.Client
	keys   keySpace
}

// Load reads the settings blob
func (s *settingsStore) Load(ctx context.Context) (*storage.Settings, error) {
	payload, err := s.client.Get(ctx, s.keys.settings()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var settings storage.Settings
	if err := json.Unmarshal(payload, &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &settings, nil
}

// Save writes the settings blob
func (s *settingsStore) Save(ctx context.Context, settings storage.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return s.client.Set(ctx, s.keys.settings(), payload, 0).Err()
}

type sessionStore struct {
	client *redis.Client
	keys   keySpace
}

// Load reads the session hash
func (s *sessionStore) Load(ctx context.Context) (*storage.Session, error) {
	data, err := s.client.HGetAll(ctx, s.keys.session()).Result()
	if err != nil {
		return nil, err
	}
	return parseSession(data)
}

// Save replaces the session hash
func (s *sessionStore) Save(ctx context.Context, session storage.Session) error {
	script := redis.NewScript(saveSessionScript)
	return script.Run(ctx, s.client, []string{s.keys.session()}, sessionFields(session)...).Err()
}

// Clear removes the session marker
func (s *sessionStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.keys.session()).Err()
}
