package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultNotificationInterval is used when no settings have been saved yet.
const DefaultNotificationInterval = 15 * time.Second

// MinNotificationInterval is the smallest accepted prompt interval.
const MinNotificationInterval = time.Second

// Permission is the notification permission state.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission validates a permission name.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return p, nil
	default:
		return "", fmt.Errorf("invalid permission: %s (must be default, granted, or denied)", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler to normalize permission names.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*p = PermissionDefault
		return nil
	}
	parsed, err := ParsePermission(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Activity is one logged interval.
type Activity struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	PlannedNext string    `json:"plannedNext,omitempty"`
	Mood        *int      `json:"mood,omitempty"`
	Excuse      string    `json:"excuse,omitempty"`
	Skipped     bool      `json:"skipped,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	DurationMS  int64     `json:"duration"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Duration returns the interval length.
func (a Activity) Duration() time.Duration {
	return time.Duration(a.DurationMS) * time.Millisecond
}

// SetInterval sets start, end and the derived duration together.
func (a *Activity) SetInterval(start, end time.Time) {
	a.StartTime = start
	a.EndTime = end
	a.DurationMS = end.Sub(start).Milliseconds()
}

// Validate checks the interval invariants.
func (a Activity) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("activity id is required")
	}
	if a.EndTime.Before(a.StartTime) {
		return fmt.Errorf("activity %s ends before it starts", a.ID)
	}
	if a.DurationMS != a.EndTime.Sub(a.StartTime).Milliseconds() {
		return fmt.Errorf("activity %s duration %dms does not match its interval", a.ID, a.DurationMS)
	}
	return nil
}

// HasTag reports whether the activity carries tag.
func (a Activity) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// QuietTime is a recurring window during which prompts are suppressed.
type QuietTime struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	StartTime string         `json:"startTime"` // "22:00"
	EndTime   string         `json:"endTime"`   // "23:30"
	Days      []time.Weekday `json:"days"`      // 0=Sunday, 6=Saturday
	Enabled   bool           `json:"enabled"`
}

// OnDay reports whether the window applies on day.
func (q QuietTime) OnDay(day time.Weekday) bool {
	for _, d := range q.Days {
		if d == day {
			return true
		}
	}
	return false
}

// Settings is the persisted settings singleton.
type Settings struct {
	NotificationIntervalMS int64       `json:"notificationIntervalMs"`
	SoundEnabled           bool        `json:"soundEnabled"`
	NotificationPermission Permission  `json:"notificationPermission"`
	QuietTimes             []QuietTime `json:"quietTimes"`
}

// DefaultSettings returns the settings used before anything is saved.
func DefaultSettings() Settings {
	return Settings{
		NotificationIntervalMS: DefaultNotificationInterval.Milliseconds(),
		SoundEnabled:           true,
		NotificationPermission: PermissionDefault,
		QuietTimes:             []QuietTime{},
	}
}

// Interval returns the prompt interval as a duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.NotificationIntervalMS) * time.Millisecond
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.QuietTimes = make([]QuietTime, len(s.QuietTimes))
	for i, q := range s.QuietTimes {
		q.Days = append([]time.Weekday(nil), q.Days...)
		out.QuietTimes[i] = q
	}
	return out
}

// Session is the persisted mirror of an active tracking session.
type Session struct {
	Start            time.Time `json:"start"`
	LastNotification time.Time `json:"lastNotification"`
	IntervalMS       int64     `json:"intervalMs,omitempty"`
}
