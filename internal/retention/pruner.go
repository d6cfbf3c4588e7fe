// Package retention prunes old activities once a day.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/promptlog/internal/clock"
	"github.com/goodtune/promptlog/internal/metrics"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/rs/zerolog"
)

// Pruner deletes activities that ended more than a number of days ago.
type Pruner struct {
	store   storage.ActivityStore
	keep    time.Duration
	runAt   time.Time // only hour and minute are used
	clock   clock.Clock
	logger  zerolog.Logger
	stopCh  chan struct{}
	stopped sync.Once
}

// NewPruner creates a pruner that keeps days of history and runs daily at
// dailyTime (HH:MM, local time).
func NewPruner(store storage.ActivityStore, days int, dailyTime string, logger zerolog.Logger) (*Pruner, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive: %d", days)
	}
	runAt, err := time.Parse("15:04", dailyTime)
	if err != nil {
		return nil, fmt.Errorf("invalid daily time %q: %w", dailyTime, err)
	}

	return &Pruner{
		store:  store,
		keep:   time.Duration(days) * 24 * time.Hour,
		runAt:  runAt,
		clock:  clock.RealClock{},
		logger: logger.With().Str("component", "retention").Logger(),
		stopCh: make(chan struct{}),
	}, nil
}

// SetClock replaces the time source.
func (p *Pruner) SetClock(c clock.Clock) {
	p.clock = c
}

// Start runs the daily loop in the background.
func (p *Pruner) Start() {
	go p.run()
	p.logger.Info().
		Str("daily_time", p.runAt.Format("15:04")).
		Dur("keep", p.keep).
		Msg("Retention pruner started")
}

// Stop ends the loop. It is safe to call more than once.
func (p *Pruner) Stop() {
	p.stopped.Do(func() {
		close(p.stopCh)
		p.logger.Info().Msg("Retention pruner stopped")
	})
}

func (p *Pruner) run() {
	for {
		next := p.NextRun()
		wait := next.Sub(p.clock.Now())

		p.logger.Debug().
			Time("next_run", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next prune")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			if _, err := p.RunOnce(context.Background()); err != nil {
				p.logger.Error().Err(err).Msg("Failed to prune activities")
			}
		case <-p.stopCh:
			timer.Stop()
			return
		}
	}
}

// NextRun returns the next daily run time after now.
func (p *Pruner) NextRun() time.Time {
	now := p.clock.Now()
	today := time.Date(
		now.Year(), now.Month(), now.Day(),
		p.runAt.Hour(), p.runAt.Minute(), 0, 0,
		now.Location(),
	)
	if now.Before(today) {
		return today
	}
	return today.AddDate(0, 0, 1)
}

// Cutoff returns the end time before which activities are pruned.
func (p *Pruner) Cutoff() time.Time {
	return p.clock.Now().Add(-p.keep)
}

// RunOnce prunes immediately and reports how many activities were removed.
func (p *Pruner) RunOnce(ctx context.Context) (int, error) {
	cutoff := p.Cutoff()
	n, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("prune").Inc()
		return 0, fmt.Errorf("delete activities before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	metrics.ActivitiesPruned.Add(float64(n))
	p.logger.Info().
		Int("deleted", n).
		Time("cutoff", cutoff).
		Msg("Old activities pruned")
	return n, nil
}
