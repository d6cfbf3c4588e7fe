package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/promptlog/internal/storage"
	"github.com/redis/go-redis/v9"
)

type activityStore struct {
	client *redis.Client
	keys   keySpace
}

// Add stores a new activity
func (s *activityStore) Add(ctx context.Context, activity storage.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	return s.client.HSet(ctx, s.keys.activities(), activity.ID, payload).Err()
}

// Get retrieves an activity by ID
func (s *activityStore) Get(ctx context.Context, id string) (*storage.Activity, error) {
	payload, err := s.client.HGet(ctx, s.keys.activities(), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var activity storage.Activity
	if err := json.Unmarshal(payload, &activity); err != nil {
		return nil, fmt.Errorf("unmarshal activity: %w", err)
	}
	return &activity, nil
}

// List returns all activities ordered by start time
func (s *activityStore) List(ctx context.Context) ([]storage.Activity, error) {
	data, err := s.client.HGetAll(ctx, s.keys.activities()).Result()
	if err != nil {
		return nil, err
	}
	activities := make([]storage.Activity, 0, len(data))
	for id, payload := range data {
		var activity storage.Activity
		if err := json.Unmarshal([]byte(payload), &activity); err != nil {
			return nil, fmt.Errorf("unmarshal activity %s: %w", id, err)
		}
		activities = append(activities, activity)
	}
	storage.SortActivities(activities)
	return activities, nil
}

// Update overwrites an existing activity
func (s *activityStore) Update(ctx context.Context, activity storage.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	script := redis.NewScript(updateActivityScript)
	updated, err := script.Run(ctx, s.client, []string{s.keys.activities()}, activity.ID, payload).Int()
	if err != nil {
		return err
	}
	if updated == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes an activity by ID
func (s *activityStore) Delete(ctx context.Context, id string) error {
	removed, err := s.client.HDel(ctx, s.keys.activities(), id).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteBefore removes activities that ended before cutoff
func (s *activityStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	activities, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0)
	for _, activity := range activities {
		if activity.EndTime.Before(cutoff) {
			ids = append(ids, activity.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	removed, err := s.client.HDel(ctx, s.keys.activities(), ids...).Result()
	return int(removed), err
}

// ReplaceAll swaps the whole activity log in one transaction
func (s *activityStore) ReplaceAll(ctx context.Context, activities []storage.Activity) error {
	values := make(map[string]interface{}, len(activities))
	for _, activity := range activities {
		if err := activity.Validate(); err != nil {
			return err
		}
		payload, err := json.Marshal(activity)
		if err != nil {
			return fmt.Errorf("marshal activity: %w", err)
		}
		values[activity.ID] = payload
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keys.activities())
		if len(values) > 0 {
			pipe.HSet(ctx, s.keys.activities(), values)
		}
		return nil
	})
	return err
}
