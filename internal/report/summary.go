package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/promptlog/internal/storage"
)

// Untagged is the bucket for activities without tags.
const Untagged = "(untagged)"

// TagTotal is the time spent under one tag.
type TagTotal struct {
	Tag      string        `json:"tag"`
	Count    int           `json:"count"`
	Duration time.Duration `json:"-"`
	Minutes  float64       `json:"minutes"`
}

// TagTotals sums durations per tag, largest first. An activity with several
// tags counts toward each of them. Skipped intervals are left out unless
// includeSkipped is set.
func TagTotals(activities []storage.Activity, includeSkipped bool) []TagTotal {
	byTag := make(map[string]*TagTotal)
	add := func(tag string, d time.Duration) {
		t, ok := byTag[tag]
		if !ok {
			t = &TagTotal{Tag: tag}
			byTag[tag] = t
		}
		t.Count++
		t.Duration += d
	}

	for _, a := range activities {
		if a.Skipped && !includeSkipped {
			continue
		}
		if len(a.Tags) == 0 {
			add(Untagged, a.Duration())
			continue
		}
		for _, tag := range a.Tags {
			add(tag, a.Duration())
		}
	}

	out := make([]TagTotal, 0, len(byTag))
	for _, t := range byTag {
		t.Minutes = roundMinutes(t.Duration)
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Duration != out[j].Duration {
			return out[i].Duration > out[j].Duration
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// Day groups the activities that start on one calendar day.
type Day struct {
	Date       string             `json:"date"`
	Activities []storage.Activity `json:"activities"`
	Tracked    time.Duration      `json:"-"`
	Skipped    time.Duration      `json:"-"`
	Minutes    float64            `json:"trackedMinutes"`
}

// Timeline groups activities by the day they start in loc, oldest first.
func Timeline(activities []storage.Activity, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}

	sorted := append([]storage.Activity(nil), activities...)
	storage.SortActivities(sorted)

	var days []Day
	for _, a := range sorted {
		date := a.StartTime.In(loc).Format("2006-01-02")
		if len(days) == 0 || days[len(days)-1].Date != date {
			days = append(days, Day{Date: date})
		}
		d := &days[len(days)-1]
		d.Activities = append(d.Activities, a)
		if a.Skipped {
			d.Skipped += a.Duration()
		} else {
			d.Tracked += a.Duration()
		}
	}
	for i := range days {
		days[i].Minutes = roundMinutes(days[i].Tracked)
	}
	return days
}

// Between returns the activities that start in [from, to). A zero bound is
// open.
func Between(activities []storage.Activity, from, to time.Time) []storage.Activity {
	out := make([]storage.Activity, 0, len(activities))
	for _, a := range activities {
		if !from.IsZero() && a.StartTime.Before(from) {
			continue
		}
		if !to.IsZero() && !a.StartTime.Before(to) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// HumanDuration renders d as hours and minutes, e.g. "1 hr 5 mins".
func HumanDuration(d time.Duration) string {
	mins := int(d.Round(time.Minute) / time.Minute)
	h := mins / 60
	m := mins % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%d hr %d mins", h, m)
	case h == 1:
		return "1 hr"
	case h > 0:
		return fmt.Sprintf("%d hrs", h)
	case m == 1:
		return "1 min"
	default:
		return fmt.Sprintf("%d mins", m)
	}
}

func roundMinutes(d time.Duration) float64 {
	return float64(d.Round(600*time.Millisecond).Milliseconds()) / 60000
}
