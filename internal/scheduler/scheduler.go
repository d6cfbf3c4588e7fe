// Package scheduler owns the tracking session: it polls the clock, decides
// when a prompt is due, honors quiet periods and mirrors the session to the
// store so it survives a restart.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/clock"
	"github.com/goodtune/promptlog/internal/events"
	"github.com/goodtune/promptlog/internal/metrics"
	"github.com/goodtune/promptlog/internal/notify"
	"github.com/goodtune/promptlog/internal/policy"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultPollInterval is how often the loop checks for a due prompt.
	DefaultPollInterval = time.Second

	// DefaultRecoveryWindow is the age after which a persisted session is
	// considered abandoned.
	DefaultRecoveryWindow = time.Hour

	// DefaultNotificationTitle is shown on every prompt.
	DefaultNotificationTitle = "What are you working on?"
)

// Interval close kinds, used for metrics and logs.
const (
	CloseEntry   = "entry"
	CloseSkipped = "skipped"
	CloseSnooze  = "snooze"
)

// State is the session state machine position.
type State int

const (
	Idle State = iota
	Tracking
	AwaitingEntry
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	case AwaitingEntry:
		return "awaiting-entry"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Policy can hold back a prompt that is otherwise due.
type Policy interface {
	Evaluate(ctx context.Context, in policy.Input) (policy.Decision, error)
}

// Config holds scheduler configuration
type Config struct {
	PollInterval      time.Duration
	RecoveryWindow    time.Duration
	QuietCacheSize    int
	NotificationTitle string
}

// Interval is the span a pending entry will cover.
type Interval struct {
	Start time.Time
	End   time.Time
	// Length is the interval snapshot the span was opened with.
	Length time.Duration
	// Final is set when the entry will end the session.
	Final bool
}

// Info is a read-only snapshot of the session.
type Info struct {
	IsActive        bool
	State           State
	StartTime       time.Time
	LastPromptTime  time.Time
	Elapsed         time.Duration
	SinceLastPrompt time.Duration
	Interval        time.Duration
	NextPromptAt    time.Time
	QuietMode       bool
}

// MarshalJSON renders durations as milliseconds and omits unset times.
func (i Info) MarshalJSON() ([]byte, error) {
	type wire struct {
		IsActive          bool       `json:"isActive"`
		State             State      `json:"state"`
		StartTime         *time.Time `json:"startTime,omitempty"`
		LastPromptTime    *time.Time `json:"lastPromptTime,omitempty"`
		ElapsedMS         int64      `json:"elapsedMs"`
		SinceLastPromptMS int64      `json:"sinceLastPromptMs"`
		IntervalMS        int64      `json:"intervalMs"`
		NextPromptAt      *time.Time `json:"nextPromptAt,omitempty"`
		QuietMode         bool       `json:"quietMode"`
	}
	w := wire{
		IsActive:          i.IsActive,
		State:             i.State,
		ElapsedMS:         i.Elapsed.Milliseconds(),
		SinceLastPromptMS: i.SinceLastPrompt.Milliseconds(),
		IntervalMS:        i.Interval.Milliseconds(),
		QuietMode:         i.QuietMode,
	}
	if !i.StartTime.IsZero() {
		w.StartTime = &i.StartTime
	}
	if !i.LastPromptTime.IsZero() {
		w.LastPromptTime = &i.LastPromptTime
	}
	if !i.NextPromptAt.IsZero() {
		w.NextPromptAt = &i.NextPromptAt
	}
	return json.Marshal(w)
}

// Scheduler manages the single tracking session.
type Scheduler struct {
	store    storage.SessionStore
	settings *settings.Manager
	bus      *events.Bus
	notifier notify.Notifier
	clock    clock.Clock
	policy   Policy
	quiet    *quietCache
	config   Config
	logger   zerolog.Logger

	mu         sync.Mutex
	state      State
	session    *storage.Session
	stopAt     time.Time
	quietMode  bool
	suppressed string
	stopLoop   chan struct{}
	loopDone   chan struct{}
	closed     bool
}

// New creates an idle scheduler. Call Recover to pick up a persisted session.
func New(store storage.SessionStore, sm *settings.Manager, bus *events.Bus, notifier notify.Notifier, config Config, logger zerolog.Logger) (*Scheduler, error) {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.RecoveryWindow <= 0 {
		config.RecoveryWindow = DefaultRecoveryWindow
	}
	if config.NotificationTitle == "" {
		config.NotificationTitle = DefaultNotificationTitle
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}

	quiet, err := newQuietCache(config.QuietCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create quiet-time cache: %w", err)
	}

	s := &Scheduler{
		store:    store,
		settings: sm,
		bus:      bus,
		notifier: notifier,
		clock:    clock.RealClock{},
		quiet:    quiet,
		config:   config,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}

	sm.OnChange(func(storage.Settings) { s.quiet.purge() })

	return s, nil
}

// SetClock replaces the time source. Call before starting a session.
func (s *Scheduler) SetClock(c clock.Clock) {
	s.mu.Lock()
	s.clock = c
	s.mu.Unlock()
}

// SetPolicy installs an optional prompt policy.
func (s *Scheduler) SetPolicy(p Policy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

// StartTracking opens a session. Calling it while a session is open only
// logs a warning.
func (s *Scheduler) StartTracking(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is closed")
	}
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		s.logger.Warn().Str("state", state.String()).Msg("Tracking already active, ignoring start")
		return nil
	}

	now := s.clock.Now()
	s.session = &storage.Session{
		Start:            now,
		LastNotification: now,
		IntervalMS:       s.settings.Get().NotificationIntervalMS,
	}
	s.state = Tracking
	s.stopAt = time.Time{}
	s.suppressed = ""
	s.saveSessionLocked(ctx)
	s.startLoopLocked()
	session := *s.session
	s.mu.Unlock()

	metrics.SessionActive.Set(1)
	metrics.SessionsTotal.WithLabelValues("started").Inc()

	s.logger.Info().
		Time("start", session.Start).
		Int64("interval_ms", session.IntervalMS).
		Msg("Tracking started")

	s.bus.Publish(events.Event{Kind: events.SessionStarted, At: now, Session: &session})
	return nil
}

// StopTracking asks for one final entry. The session ends when that entry
// is recorded, skipped or snoozed.
func (s *Scheduler) StopTracking(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.mu.Unlock()
		return apperrors.ErrNoActiveSession
	case Stopping:
		s.mu.Unlock()
		return nil
	}

	now := s.clock.Now()
	s.state = Stopping
	s.stopAt = now
	start := s.session.LastNotification
	end := s.pendingLocked(now).End
	s.mu.Unlock()

	s.logger.Info().Time("stop_requested", now).Msg("Stop requested, waiting for final entry")

	s.prompt(ctx, events.ReasonStop, now, start, end)
	return nil
}

// SetNotificationInterval changes the interval for future intervals. The
// open interval keeps the length it was started with.
func (s *Scheduler) SetNotificationInterval(ctx context.Context, d time.Duration) error {
	err := s.settings.SetInterval(ctx, d)
	if errors.Is(err, apperrors.ErrPersistence) {
		s.logger.Warn().Err(err).Msg("Interval changed in memory only")
		return nil
	}
	return err
}

// SetQuietMode toggles the manual prompt override. Elapsed time keeps
// accruing while quiet.
func (s *Scheduler) SetQuietMode(enabled bool) {
	s.mu.Lock()
	changed := s.quietMode != enabled
	s.quietMode = enabled
	s.mu.Unlock()

	if changed {
		s.logger.Info().Bool("quiet_mode", enabled).Msg("Quiet mode changed")
	}
}

// SkipNotification snoozes: the open interval is closed at now without an
// activity, leaving a gap in the log.
func (s *Scheduler) SkipNotification(ctx context.Context) error {
	return s.closeInterval(ctx, CloseSnooze, nil)
}

// Pending returns the span the next entry would cover.
func (s *Scheduler) Pending() (Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return Interval{}, apperrors.ErrNoActiveSession
	}
	return s.pendingLocked(s.clock.Now()), nil
}

// CloseInterval computes the pending span, hands it to record and, if record
// succeeds, advances the session to the span's end. record runs with the
// scheduler locked, so it must not call back into the scheduler.
func (s *Scheduler) CloseInterval(ctx context.Context, kind string, record func(Interval) error) error {
	return s.closeInterval(ctx, kind, record)
}

func (s *Scheduler) closeInterval(ctx context.Context, kind string, record func(Interval) error) error {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return apperrors.ErrNoActiveSession
	}

	now := s.clock.Now()
	iv := s.pendingLocked(now)
	if record != nil {
		if err := record(iv); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	metrics.IntervalsClosed.WithLabelValues(kind).Inc()

	if s.state == Stopping {
		session := *s.session
		s.teardownLocked(ctx)
		s.mu.Unlock()

		metrics.SessionActive.Set(0)
		metrics.SessionsTotal.WithLabelValues("stopped").Inc()
		s.logger.Info().
			Time("start", session.Start).
			Dur("elapsed", now.Sub(session.Start)).
			Str("closed_by", kind).
			Msg("Tracking stopped")

		s.bus.Publish(events.Event{Kind: events.SessionStopped, At: now, Session: &session})
		return nil
	}

	next := iv.End
	if kind == CloseSnooze {
		next = now
	}
	if next.Before(s.session.LastNotification) {
		next = s.session.LastNotification
	}
	s.session.LastNotification = next
	s.session.IntervalMS = s.settings.Get().NotificationIntervalMS
	s.state = Tracking
	s.suppressed = ""
	s.saveSessionLocked(ctx)
	s.mu.Unlock()

	s.logger.Debug().
		Str("closed_by", kind).
		Time("start", iv.Start).
		Time("end", iv.End).
		Time("last_prompt", next).
		Msg("Interval closed")
	return nil
}

// pendingLocked returns the span from the previous boundary to the boundary
// that triggered the prompt, or to now when that boundary is still ahead.
// The final entry of a stopping session runs to the moment stop was asked,
// but never past the boundary; time after it is left unlogged.
func (s *Scheduler) pendingLocked(now time.Time) Interval {
	length := time.Duration(s.session.IntervalMS) * time.Millisecond
	iv := Interval{
		Start:  s.session.LastNotification,
		Length: length,
		Final:  s.state == Stopping,
	}

	boundary := iv.Start.Add(length)
	switch {
	case iv.Final:
		iv.End = s.stopAt
		if iv.End.After(boundary) {
			iv.End = boundary
		}
	case !now.Before(boundary):
		iv.End = boundary
	default:
		iv.End = now
	}
	if iv.End.Before(iv.Start) {
		iv.End = iv.Start
	}
	return iv
}

// SessionInfo returns a snapshot of the session.
func (s *Scheduler) SessionInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		State:     s.state,
		QuietMode: s.quietMode,
		Interval:  s.settings.Get().Interval(),
	}
	if s.state == Idle {
		return info
	}

	now := s.clock.Now()
	length := time.Duration(s.session.IntervalMS) * time.Millisecond
	info.IsActive = true
	info.StartTime = s.session.Start
	info.LastPromptTime = s.session.LastNotification
	info.Elapsed = now.Sub(s.session.Start)
	info.SinceLastPrompt = now.Sub(s.session.LastNotification)
	info.Interval = length
	if s.state == Tracking {
		info.NextPromptAt = s.session.LastNotification.Add(length)
	}
	return info
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Poll runs one tick: if the open interval has elapsed and nothing
// suppresses it, the prompt fires.
func (s *Scheduler) Poll(ctx context.Context) {
	s.mu.Lock()
	if s.state != Tracking {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	length := time.Duration(s.session.IntervalMS) * time.Millisecond
	elapsed := now.Sub(s.session.LastNotification)
	if elapsed < length {
		s.mu.Unlock()
		return
	}

	if reason := s.suppressLocked(ctx, now, elapsed, length); reason != "" {
		if s.suppressed != reason {
			s.suppressed = reason
			metrics.PromptsSuppressed.WithLabelValues(reason).Inc()
			s.logger.Debug().
				Str("reason", reason).
				Dur("overdue", elapsed-length).
				Msg("Prompt due but suppressed")
		}
		s.mu.Unlock()
		return
	}

	s.state = AwaitingEntry
	s.suppressed = ""
	start := s.session.LastNotification
	boundary := start.Add(length)
	s.mu.Unlock()

	s.prompt(ctx, events.ReasonInterval, now, start, boundary)
}

// suppressLocked returns why a due prompt should be held, or "".
func (s *Scheduler) suppressLocked(ctx context.Context, now time.Time, elapsed, length time.Duration) string {
	if s.quietMode {
		return "quiet_mode"
	}
	if q, ok := s.quiet.check(now, s.settings.Get().QuietTimes); ok {
		s.logger.Trace().Str("quiet_time", q.Name).Msg("Inside quiet time")
		return "quiet_time"
	}
	if s.policy != nil {
		decision, err := s.policy.Evaluate(ctx, policy.Input{
			Now:       now,
			Elapsed:   elapsed,
			Interval:  length,
			QuietMode: s.quietMode,
			Reason:    events.ReasonInterval,
		})
		if err != nil {
			// A broken policy must not silence prompts.
			s.logger.Error().Err(err).Msg("Prompt policy failed, prompting anyway")
			return ""
		}
		if decision.Suppress {
			return "policy"
		}
	}
	return ""
}

// prompt calls the notifier and publishes notification-due. It runs without
// the lock so listeners can call back into the scheduler.
func (s *Scheduler) prompt(ctx context.Context, reason string, now, start, boundary time.Time) {
	metrics.PromptsTotal.WithLabelValues(reason).Inc()

	body := fmt.Sprintf("Since %s (%s)", start.Format("15:04:05"), boundary.Sub(start).Round(time.Second))
	if reason == events.ReasonStop {
		body = "Final entry before tracking stops. " + body
	}

	err := s.notifier.Show(ctx, notify.Notification{
		Title:              s.config.NotificationTitle,
		Body:               body,
		RequireInteraction: true,
		Sound:              s.settings.Get().SoundEnabled,
	})
	switch {
	case err == nil:
		metrics.NotificationsTotal.WithLabelValues("shown").Inc()
	case errors.Is(err, apperrors.ErrPermissionDenied):
		metrics.NotificationsTotal.WithLabelValues("not_permitted").Inc()
		s.logger.Debug().Err(err).Msg("Notification not shown")
	default:
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Msg("Notification failed")
	}

	s.logger.Info().
		Str("reason", reason).
		Time("since", start).
		Time("boundary", boundary).
		Msg("Prompt due")

	s.bus.Publish(events.Event{Kind: events.NotificationDue, At: now, Reason: reason, Boundary: boundary})
}

// Recover restores a persisted session younger than the recovery window and
// discards older ones. It reports whether a session was restored.
func (s *Scheduler) Recover(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != Idle || s.closed {
		s.mu.Unlock()
		return false
	}

	saved, err := s.store.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		if !errors.Is(err, storage.ErrNotFound) {
			metrics.PersistenceErrors.WithLabelValues("load_session").Inc()
			s.logger.Warn().Err(err).Msg("Failed to load persisted session, starting idle")
		}
		return false
	}

	now := s.clock.Now()
	age := now.Sub(saved.Start)
	if age > s.config.RecoveryWindow {
		if err := s.store.Clear(ctx); err != nil {
			metrics.PersistenceErrors.WithLabelValues("clear_session").Inc()
			s.logger.Error().Err(err).Msg("Failed to clear stale session")
		}
		s.mu.Unlock()

		metrics.SessionsTotal.WithLabelValues("discarded").Inc()
		s.logger.Info().
			Time("start", saved.Start).
			Dur("age", age).
			Dur("recovery_window", s.config.RecoveryWindow).
			Msg("Discarded stale session")
		return false
	}

	if saved.LastNotification.Before(saved.Start) {
		saved.LastNotification = saved.Start
	}
	if saved.IntervalMS < storage.MinNotificationInterval.Milliseconds() {
		saved.IntervalMS = s.settings.Get().NotificationIntervalMS
	}
	s.session = saved
	s.state = Tracking
	s.suppressed = ""
	s.startLoopLocked()
	session := *s.session
	s.mu.Unlock()

	metrics.SessionActive.Set(1)
	metrics.SessionsTotal.WithLabelValues("recovered").Inc()
	s.logger.Info().
		Time("start", session.Start).
		Time("last_prompt", session.LastNotification).
		Dur("age", age).
		Msg("Recovered session")

	s.bus.Publish(events.Event{Kind: events.SessionStarted, At: now, Session: &session})
	return true
}

// Close stops the poll loop without ending the session, which stays
// persisted for the next Recover.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	done := s.loopDone
	s.stopLoopLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.logger.Debug().Msg("Scheduler closed")
}

func (s *Scheduler) teardownLocked(ctx context.Context) {
	s.stopLoopLocked()
	s.state = Idle
	s.session = nil
	s.stopAt = time.Time{}
	s.suppressed = ""
	if err := s.store.Clear(ctx); err != nil {
		metrics.PersistenceErrors.WithLabelValues("clear_session").Inc()
		s.logger.Error().Err(err).Msg("Failed to clear persisted session")
	}
}

func (s *Scheduler) saveSessionLocked(ctx context.Context) {
	if err := s.store.Save(ctx, *s.session); err != nil {
		metrics.PersistenceErrors.WithLabelValues("save_session").Inc()
		s.logger.Error().Err(err).Msg("Failed to persist session, continuing in memory")
	}
}

func (s *Scheduler) startLoopLocked() {
	if s.stopLoop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stopLoop = stop
	s.loopDone = done
	go s.run(stop, done)
}

// stopLoopLocked signals the loop without waiting, since a tick in flight
// needs the lock to finish.
func (s *Scheduler) stopLoopLocked() {
	if s.stopLoop == nil {
		return
	}
	close(s.stopLoop)
	s.stopLoop = nil
	s.loopDone = nil
}

func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Poll(context.Background())
		}
	}
}
