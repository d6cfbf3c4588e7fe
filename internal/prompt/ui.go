package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/events"
	"github.com/goodtune/promptlog/internal/recorder"
	"github.com/goodtune/promptlog/internal/report"
	"github.com/goodtune/promptlog/internal/scheduler"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/rs/zerolog"
)

const helpText = `Type what you worked on and press enter:
  wrote the parser #work #go | next: tests | mood: 4 | excuse: none
An empty line skips the interval. Commands:
  /start  /stop  /snooze  /skip  /quiet on|off  /info  /quit`

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

// UI drives a session from a line-oriented terminal.
type UI struct {
	in     io.Reader
	sched  *scheduler.Scheduler
	rec    *recorder.Recorder
	logger zerolog.Logger

	mu     sync.Mutex
	out    io.Writer
	unsubs []func()
}

// New creates a UI reading from in and writing to out. It subscribes to the
// bus so prompts and stored activities are echoed.
func New(in io.Reader, out io.Writer, sched *scheduler.Scheduler, rec *recorder.Recorder, bus *events.Bus, logger zerolog.Logger) *UI {
	u := &UI{
		in:     in,
		out:    out,
		sched:  sched,
		rec:    rec,
		logger: logger.With().Str("component", "prompt").Logger(),
	}
	u.unsubs = append(u.unsubs,
		bus.Subscribe(events.NotificationDue, u.onPrompt),
		bus.Subscribe(events.ActivityAdded, u.onActivity),
		bus.Subscribe(events.SessionStopped, u.onStopped),
	)
	return u
}

// Close removes the bus subscriptions.
func (u *UI) Close() {
	for _, unsub := range u.unsubs {
		unsub()
	}
	u.unsubs = nil
}

// Run reads lines until ctx is done, input ends or the user quits.
func (u *UI) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(u.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	u.printf(dimColor, "%s\n", helpText)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if u.Handle(ctx, line) {
				return nil
			}
		}
	}
}

// Handle processes one line and reports whether the user asked to quit.
func (u *UI) Handle(ctx context.Context, line string) bool {
	cmd, err := Parse(line)
	if err != nil {
		u.printf(errColor, "%v\n", err)
		return false
	}

	switch cmd.Action {
	case ActionEntry:
		if _, err := u.rec.RecordActivity(ctx, cmd.Entry); err != nil {
			u.fail(err)
		}
	case ActionSkip:
		// A bare enter only skips an interval that has been prompted for.
		if strings.TrimSpace(line) == "" && !u.awaiting() {
			return false
		}
		if _, err := u.rec.RecordSkippedInterval(ctx); err != nil {
			u.fail(err)
		}
	case ActionSnooze:
		if err := u.sched.SkipNotification(ctx); err != nil {
			u.fail(err)
			return false
		}
		u.printf(dimColor, "Snoozed, the next prompt is one interval from now.\n")
	case ActionStart:
		if err := u.sched.StartTracking(ctx); err != nil {
			u.fail(err)
			return false
		}
		info := u.sched.SessionInfo()
		u.printf(okColor, "Tracking started, first prompt at %s.\n", info.NextPromptAt.Format("15:04:05"))
	case ActionStop:
		if err := u.sched.StopTracking(ctx); err != nil {
			u.fail(err)
		}
	case ActionQuiet:
		u.sched.SetQuietMode(cmd.Quiet)
		if cmd.Quiet {
			u.printf(dimColor, "Quiet mode on, prompts are held until it is turned off.\n")
		} else {
			u.printf(dimColor, "Quiet mode off.\n")
		}
	case ActionInfo:
		u.printInfo(u.sched.SessionInfo())
	case ActionHelp:
		u.printf(dimColor, "%s\n", helpText)
	case ActionQuit:
		return true
	}
	return false
}

func (u *UI) awaiting() bool {
	state := u.sched.State()
	return state == scheduler.AwaitingEntry || state == scheduler.Stopping
}

func (u *UI) printInfo(info scheduler.Info) {
	if !info.IsActive {
		u.printf(dimColor, "Not tracking (interval %s). Type /start to begin.\n", info.Interval)
		return
	}
	u.printf(okColor, "State:        %s\n", info.State)
	u.printf(nil, "Started:      %s (%s ago)\n", info.StartTime.Format("15:04:05"), report.HumanDuration(info.Elapsed))
	u.printf(nil, "Last prompt:  %s\n", info.LastPromptTime.Format("15:04:05"))
	u.printf(nil, "Interval:     %s\n", info.Interval)
	if !info.NextPromptAt.IsZero() {
		u.printf(nil, "Next prompt:  %s\n", info.NextPromptAt.Format("15:04:05"))
	}
	if info.QuietMode {
		u.printf(warnColor, "Quiet mode is on\n")
	}
}

func (u *UI) onPrompt(e events.Event) error {
	if e.Reason == events.ReasonStop {
		u.printf(warnColor, "Final entry: what did you do until %s? (empty line to skip)\n", e.Boundary.Format("15:04:05"))
		return nil
	}
	u.printf(nil, "What did you do until %s? (empty line to skip)\n", e.Boundary.Format("15:04:05"))
	return nil
}

func (u *UI) onActivity(e events.Event) error {
	a := e.Activity
	if a == nil {
		return nil
	}
	if a.Skipped {
		u.printf(dimColor, "Skipped %s-%s\n", a.StartTime.Format("15:04:05"), a.EndTime.Format("15:04:05"))
		return nil
	}
	u.printf(okColor, "Logged %s-%s %s%s\n",
		a.StartTime.Format("15:04:05"), a.EndTime.Format("15:04:05"), a.Description, formatTags(*a))
	return nil
}

func (u *UI) onStopped(e events.Event) error {
	if e.Session == nil {
		return nil
	}
	u.printf(okColor, "Tracking stopped after %s.\n", report.HumanDuration(e.At.Sub(e.Session.Start)))
	return nil
}

func (u *UI) fail(err error) {
	switch {
	case errors.Is(err, apperrors.ErrNoActiveSession):
		u.printf(warnColor, "Not tracking. Type /start to begin.\n")
	case errors.Is(err, apperrors.ErrInvalidArgument):
		u.printf(errColor, "%v\n", err)
	default:
		u.logger.Error().Err(err).Msg("Command failed")
		u.printf(errColor, "Could not save: %v\n", err)
	}
}

func (u *UI) printf(c *color.Color, format string, args ...any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if c == nil {
		fmt.Fprintf(u.out, format, args...)
		return
	}
	c.Fprintf(u.out, format, args...)
}

func formatTags(a storage.Activity) string {
	if len(a.Tags) == 0 {
		return ""
	}
	return " #" + strings.Join(a.Tags, " #")
}
