// Package notify renders prompts to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/storage"
)

// Notification is a single prompt.
type Notification struct {
	Title              string
	Body               string
	RequireInteraction bool
	Sound              bool
}

// Notifier shows notifications. Delivery is best effort.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
}

// Terminal writes a colored banner, ringing the bell when the notification
// asks for sound and bells are enabled.
type Terminal struct {
	mu   sync.Mutex
	out  io.Writer
	bell bool
	now  func() time.Time
}

// NewTerminal creates a terminal notifier writing to out.
func NewTerminal(out io.Writer, bell bool) *Terminal {
	return &Terminal{out: out, bell: bell, now: time.Now}
}

// Show implements Notifier.
func (t *Terminal) Show(_ context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	title := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)

	if n.Sound && t.bell {
		if _, err := io.WriteString(t.out, "\a"); err != nil {
			return fmt.Errorf("ring bell: %w", err)
		}
	}
	if _, err := title.Fprintf(t.out, "\n[%s] %s\n", t.now().Format("15:04:05"), n.Title); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	if n.Body != "" {
		if _, err := dim.Fprintln(t.out, n.Body); err != nil {
			return fmt.Errorf("write notification: %w", err)
		}
	}
	return nil
}

// Gate forwards notifications only while permission is granted. Other
// states return an error wrapping apperrors.ErrPermissionDenied.
type Gate struct {
	next       Notifier
	permission func() storage.Permission
}

// NewGate wraps next with a permission check.
func NewGate(next Notifier, permission func() storage.Permission) *Gate {
	return &Gate{next: next, permission: permission}
}

// Show implements Notifier.
func (g *Gate) Show(ctx context.Context, n Notification) error {
	if p := g.permission(); p != storage.PermissionGranted {
		return fmt.Errorf("%w (permission %s)", apperrors.ErrPermissionDenied, p)
	}
	return g.next.Show(ctx, n)
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

// Show implements Notifier.
func (m Multi) Show(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Show(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every notification.
type Discard struct{}

// Show implements Notifier.
func (Discard) Show(context.Context, Notification) error { return nil }
