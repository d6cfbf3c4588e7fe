package settings

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/storage"
)

// ParseClock checks s is a zero-padded 24h "HH:MM" and returns it unchanged.
// Quiet-period matching compares these strings lexicographically, so "9:00"
// must be rejected rather than accepted and mis-ordered.
func ParseClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 5 {
		return "", fmt.Errorf("%w: time %q must be HH:MM", apperrors.ErrInvalidArgument, s)
	}
	if _, err := time.Parse("15:04", s); err != nil {
		return "", fmt.Errorf("%w: time %q must be HH:MM", apperrors.ErrInvalidArgument, s)
	}
	return s, nil
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("%w: invalid day: %s", apperrors.ErrInvalidArgument, s)
}

// ValidateQuietTime normalizes q for storage. Windows that cross midnight
// are rejected; callers should add one window before and one after.
func ValidateQuietTime(q storage.QuietTime) (storage.QuietTime, error) {
	if q.ID == "" {
		return q, fmt.Errorf("%w: quiet time id is required", apperrors.ErrInvalidArgument)
	}
	start, err := ParseClock(q.StartTime)
	if err != nil {
		return q, err
	}
	end, err := ParseClock(q.EndTime)
	if err != nil {
		return q, err
	}
	if start > end {
		return q, fmt.Errorf("%w: quiet time %s-%s crosses midnight; split it into two windows", apperrors.ErrInvalidArgument, start, end)
	}
	q.StartTime, q.EndTime = start, end

	seen := make(map[time.Weekday]bool, len(q.Days))
	days := make([]time.Weekday, 0, len(q.Days))
	for _, d := range q.Days {
		if d < time.Sunday || d > time.Saturday {
			return q, fmt.Errorf("%w: invalid weekday %d", apperrors.ErrInvalidArgument, d)
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	q.Days = days

	if q.Name == "" {
		q.Name = start + "-" + end
	}
	return q, nil
}
