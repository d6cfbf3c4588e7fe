// Package recorder turns closed intervals into persisted activities.
package recorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/clock"
	"github.com/goodtune/promptlog/internal/events"
	"github.com/goodtune/promptlog/internal/metrics"
	"github.com/goodtune/promptlog/internal/scheduler"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sentinel values written for a skipped interval.
const (
	SkippedDescription = "Skipped"
	SkippedTag         = "skipped"
)

// Entry is the user-supplied part of an activity.
type Entry struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	PlannedNext string   `json:"plannedNext,omitempty"`
	Mood        *int     `json:"mood,omitempty"`
	Excuse      string   `json:"excuse,omitempty"`
}

// Normalize trims fields, de-duplicates tags and validates the entry.
func (e Entry) Normalize() (Entry, error) {
	e.Description = strings.TrimSpace(e.Description)
	if e.Description == "" {
		return e, fmt.Errorf("%w: description is required", apperrors.ErrInvalidArgument)
	}
	if e.Mood != nil && (*e.Mood < 1 || *e.Mood > 5) {
		return e, fmt.Errorf("%w: mood %d is outside 1..5", apperrors.ErrInvalidArgument, *e.Mood)
	}
	e.PlannedNext = strings.TrimSpace(e.PlannedNext)
	e.Excuse = strings.TrimSpace(e.Excuse)
	e.Tags = DedupeTags(e.Tags)
	return e, nil
}

// DedupeTags trims tags, drops a leading '#' and empties, and removes
// repeats while keeping first-seen order and case.
func DedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// Recorder writes activities for the scheduler's open interval.
type Recorder struct {
	store  storage.ActivityStore
	sched  *scheduler.Scheduler
	bus    *events.Bus
	clock  clock.Clock
	logger zerolog.Logger
}

// New creates a recorder.
func New(store storage.ActivityStore, sched *scheduler.Scheduler, bus *events.Bus, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		sched:  sched,
		bus:    bus,
		clock:  clock.RealClock{},
		logger: logger.With().Str("component", "recorder").Logger(),
	}
}

// SetClock replaces the time source used for createdAt.
func (r *Recorder) SetClock(c clock.Clock) {
	r.clock = c
}

// RecordActivity logs entry for the open interval and advances the session.
func (r *Recorder) RecordActivity(ctx context.Context, entry Entry) (*storage.Activity, error) {
	entry, err := entry.Normalize()
	if err != nil {
		return nil, err
	}
	return r.record(ctx, scheduler.CloseEntry, storage.Activity{
		Description: entry.Description,
		Tags:        entry.Tags,
		PlannedNext: entry.PlannedNext,
		Mood:        entry.Mood,
		Excuse:      entry.Excuse,
	})
}

// RecordSkippedInterval logs a sentinel activity so totals stay contiguous.
func (r *Recorder) RecordSkippedInterval(ctx context.Context) (*storage.Activity, error) {
	return r.record(ctx, scheduler.CloseSkipped, storage.Activity{
		Description: SkippedDescription,
		Tags:        []string{SkippedTag},
		Skipped:     true,
	})
}

func (r *Recorder) record(ctx context.Context, kind string, activity storage.Activity) (*storage.Activity, error) {
	var final bool
	err := r.sched.CloseInterval(ctx, kind, func(iv scheduler.Interval) error {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate activity id: %w", err)
		}
		activity.ID = id.String()
		activity.CreatedAt = r.clock.Now()
		activity.SetInterval(iv.Start, iv.End)
		final = iv.Final

		if err := r.store.Add(ctx, activity); err != nil {
			metrics.PersistenceErrors.WithLabelValues("add_activity").Inc()
			return fmt.Errorf("%w: add activity: %v", apperrors.ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ActivitiesRecorded.WithLabelValues(kind).Inc()
	metrics.TrackedMinutes.WithLabelValues(kind).Add(activity.Duration().Minutes())

	r.logger.Info().
		Str("id", activity.ID).
		Str("kind", kind).
		Strs("tags", activity.Tags).
		Time("start", activity.StartTime).
		Time("end", activity.EndTime).
		Bool("final", final).
		Msg("Activity recorded")

	published := activity
	r.bus.Publish(events.Event{Kind: events.ActivityAdded, At: activity.CreatedAt, Activity: &published})
	return &activity, nil
}

// UpdateActivity replaces the user fields of an activity, keeping its id
// and interval. An updated sentinel becomes a regular entry.
func (r *Recorder) UpdateActivity(ctx context.Context, id string, entry Entry) (*storage.Activity, error) {
	entry, err := entry.Normalize()
	if err != nil {
		return nil, err
	}

	activity, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("activity %s: %w", id, err)
	}

	activity.Description = entry.Description
	activity.Tags = entry.Tags
	activity.PlannedNext = entry.PlannedNext
	activity.Mood = entry.Mood
	activity.Excuse = entry.Excuse
	activity.Skipped = false

	if err := r.store.Update(ctx, *activity); err != nil {
		return nil, fmt.Errorf("update activity %s: %w", id, err)
	}

	r.logger.Info().Str("id", id).Msg("Activity updated")
	return activity, nil
}

// DeleteActivity removes an activity.
func (r *Recorder) DeleteActivity(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete activity %s: %w", id, err)
	}
	r.logger.Info().Str("id", id).Msg("Activity deleted")
	return nil
}
