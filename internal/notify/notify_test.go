package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/storage"
)

type recorder struct {
	shown []Notification
	err   error
}

func (r *recorder) Show(_ context.Context, n Notification) error {
	r.shown = append(r.shown, n)
	return r.err
}

func TestTerminalBanner(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name     string
		bell     bool
		sound    bool
		wantBell bool
	}{
		{"bell and sound", true, true, true},
		{"sound disabled in settings", true, false, false},
		{"bell disabled in config", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			term := NewTerminal(&buf, tt.bell)
			term.now = func() time.Time { return time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC) }

			err := term.Show(context.Background(), Notification{Title: "What are you working on?", Body: "15s since last entry", Sound: tt.sound})
			if err != nil {
				t.Fatalf("Show() error = %v", err)
			}
			out := buf.String()
			if got := strings.Contains(out, "\a"); got != tt.wantBell {
				t.Errorf("bell = %v, want %v", got, tt.wantBell)
			}
			if !strings.Contains(out, "[09:15:00] What are you working on?") {
				t.Errorf("banner missing title: %q", out)
			}
			if !strings.Contains(out, "15s since last entry") {
				t.Errorf("banner missing body: %q", out)
			}
		})
	}
}

func TestGateOnlyForwardsWhenGranted(t *testing.T) {
	perms := []struct {
		permission storage.Permission
		visible    bool
	}{
		{storage.PermissionGranted, true},
		{storage.PermissionDefault, false},
		{storage.PermissionDenied, false},
	}

	for _, p := range perms {
		t.Run(string(p.permission), func(t *testing.T) {
			next := &recorder{}
			gate := NewGate(next, func() storage.Permission { return p.permission })

			err := gate.Show(context.Background(), Notification{Title: "x"})
			if p.visible {
				if err != nil || len(next.shown) != 1 {
					t.Fatalf("granted Show() err=%v shown=%d", err, len(next.shown))
				}
				return
			}
			if !errors.Is(err, apperrors.ErrPermissionDenied) {
				t.Errorf("Show() error = %v, want ErrPermissionDenied", err)
			}
			if len(next.shown) != 0 {
				t.Errorf("notification leaked past gate")
			}
		})
	}
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &recorder{err: errors.New("offline")}
	ok := &recorder{}

	err := Multi{failing, ok}.Show(context.Background(), Notification{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "offline") {
		t.Fatalf("Show() error = %v, want offline", err)
	}
	if len(ok.shown) != 1 {
		t.Errorf("second notifier skipped after first failed")
	}
}
