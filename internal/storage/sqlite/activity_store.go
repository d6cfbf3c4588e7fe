package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/promptlog/internal/storage"
)

const activityColumns = `id, description, tags, planned_next, mood, excuse, skipped, start_time, end_time, duration_ms, created_at`

type activityStore struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *activityStore) Add(ctx context.Context, activity storage.Activity) error {
	return insertActivity(ctx, s.db, activity)
}

func (s *activityStore) Get(ctx context.Context, id string) (*storage.Activity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	activity, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return activity, nil
}

func (s *activityStore) List(ctx context.Context) ([]storage.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+activityColumns+` FROM activities ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	activities := make([]storage.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *activity)
	}
	return activities, rows.Err()
}

func (s *activityStore) Update(ctx context.Context, activity storage.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}
	tags, err := json.Marshal(nonNilTags(activity.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE activities SET
			description = ?, tags = ?, planned_next = ?, mood = ?, excuse = ?, skipped = ?,
			start_time = ?, end_time = ?, duration_ms = ?, created_at = ?
		WHERE id = ?`,
		activity.Description, string(tags), activity.PlannedNext, nullableMood(activity.Mood), activity.Excuse, activity.Skipped,
		activity.StartTime.UnixNano(), activity.EndTime.UnixNano(), activity.DurationMS, activity.CreatedAt.UnixNano(),
		activity.ID,
	)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return requireAffected(result)
}

func (s *activityStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return requireAffected(result)
}

func (s *activityStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE end_time < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete activities before cutoff: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (s *activityStore) ReplaceAll(ctx context.Context, activities []storage.Activity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM activities`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear activities: %w", err)
	}
	for _, activity := range activities {
		if err := insertActivity(ctx, tx, activity); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func insertActivity(ctx context.Context, db execer, activity storage.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}
	tags, err := json.Marshal(nonNilTags(activity.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO activities (`+activityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		activity.ID, activity.Description, string(tags), activity.PlannedNext, nullableMood(activity.Mood), activity.Excuse, activity.Skipped,
		activity.StartTime.UnixNano(), activity.EndTime.UnixNano(), activity.DurationMS, activity.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert activity %s: %w", activity.ID, err)
	}
	return nil
}

func scanActivity(row rowScanner) (*storage.Activity, error) {
	var (
		activity            storage.Activity
		tags                string
		mood                sql.NullInt64
		start, end, created int64
	)
	if err := row.Scan(&activity.ID, &activity.Description, &tags, &activity.PlannedNext, &mood, &activity.Excuse,
		&activity.Skipped, &start, &end, &activity.DurationMS, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &activity.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags for %s: %w", activity.ID, err)
	}
	if mood.Valid {
		m := int(mood.Int64)
		activity.Mood = &m
	}
	activity.StartTime = time.Unix(0, start)
	activity.EndTime = time.Unix(0, end)
	activity.CreatedAt = time.Unix(0, created)
	return &activity, nil
}

func nullableMood(mood *int) any {
	if mood == nil {
		return nil
	}
	return *mood
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}
