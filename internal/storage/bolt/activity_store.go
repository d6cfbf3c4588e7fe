package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/promptlog/internal/storage"
	"go.etcd.io/bbolt"
)

type activityStore struct {
	db *bbolt.DB
}

func (s *activityStore) Add(ctx context.Context, activity storage.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}
	return withBucket(ctx, s.db, bucketActivities, true, func(b *bbolt.Bucket) error {
		return encodeKey(b, activity.ID, activity)
	})
}

func (s *activityStore) Get(ctx context.Context, id string) (*storage.Activity, error) {
	var activity *storage.Activity
	err := withBucket(ctx, s.db, bucketActivities, false, func(b *bbolt.Bucket) error {
		var err error
		activity, err = decodeKey[storage.Activity](b, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return activity, nil
}

func (s *activityStore) List(ctx context.Context) ([]storage.Activity, error) {
	activities := make([]storage.Activity, 0)
	err := withBucket(ctx, s.db, bucketActivities, false, func(b *bbolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var activity storage.Activity
			if err := json.Unmarshal(v, &activity); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			activities = append(activities, activity)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	storage.SortActivities(activities)
	return activities, nil
}

func (s *activityStore) Update(ctx context.Context, activity storage.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}
	return withBucket(ctx, s.db, bucketActivities, true, func(b *bbolt.Bucket) error {
		if b.Get([]byte(activity.ID)) == nil {
			return storage.ErrNotFound
		}
		return encodeKey(b, activity.ID, activity)
	})
}

func (s *activityStore) Delete(ctx context.Context, id string) error {
	return withBucket(ctx, s.db, bucketActivities, true, func(b *bbolt.Bucket) error {
		if b.Get([]byte(id)) == nil {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (s *activityStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := withBucket(ctx, s.db, bucketActivities, true, func(b *bbolt.Bucket) error {
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var activity storage.Activity
			if err := json.Unmarshal(v, &activity); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if !activity.EndTime.Before(cutoff) {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ReplaceAll drops and recreates the activities bucket in one transaction.
func (s *activityStore) ReplaceAll(ctx context.Context, activities []storage.Activity) error {
	for _, activity := range activities {
		if err := activity.Validate(); err != nil {
			return err
		}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := tx.DeleteBucket([]byte(bucketActivities)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("drop activities bucket: %w", err)
		}
		b, err := tx.CreateBucket([]byte(bucketActivities))
		if err != nil {
			return fmt.Errorf("create activities bucket: %w", err)
		}
		for _, activity := range activities {
			if err := encodeKey(b, activity.ID, activity); err != nil {
				return err
			}
		}
		return nil
	})
}
