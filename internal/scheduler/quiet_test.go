package scheduler

import (
	"testing"
	"time"

	"github.com/goodtune/promptlog/internal/storage"
)

func TestInQuietPeriod(t *testing.T) {
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	quiet := []storage.QuietTime{
		{ID: "lunch", StartTime: "12:00", EndTime: "13:00", Days: weekdays, Enabled: true},
		{ID: "off", StartTime: "08:00", EndTime: "09:00", Days: weekdays, Enabled: false},
		{ID: "night", StartTime: "22:00", EndTime: "06:00", Days: weekdays, Enabled: true},
	}

	monday := func(hh, mm int) time.Time { return time.Date(2024, 3, 4, hh, mm, 30, 0, time.UTC) }

	tests := []struct {
		name  string
		now   time.Time
		want  bool
		match string
	}{
		{"inside", monday(12, 30), true, "lunch"},
		{"start inclusive", monday(12, 0), true, "lunch"},
		{"end inclusive", monday(13, 0), true, "lunch"},
		{"after end", monday(13, 1), false, ""},
		{"disabled window", monday(8, 30), false, ""},
		{"wrong day", time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC), false, ""},
		{"cross midnight late", monday(23, 0), false, ""},
		{"cross midnight early", monday(5, 0), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, got := InQuietPeriod(tt.now, quiet)
			if got != tt.want {
				t.Fatalf("InQuietPeriod(%s) = %v, want %v", tt.now.Format("Mon 15:04"), got, tt.want)
			}
			if q.ID != tt.match {
				t.Errorf("matched %q, want %q", q.ID, tt.match)
			}
		})
	}
}

func TestQuietCacheServesRepeatLookups(t *testing.T) {
	cache, err := newQuietCache(4)
	if err != nil {
		t.Fatalf("newQuietCache() error = %v", err)
	}
	quiet := []storage.QuietTime{{ID: "q", StartTime: "10:00", EndTime: "10:30", Days: []time.Weekday{time.Monday}, Enabled: true}}

	now := time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC)
	if _, ok := cache.check(now, quiet); !ok {
		t.Fatalf("expected quiet")
	}
	// Same minute, different answer from the source: the cached one wins.
	if _, ok := cache.check(now.Add(20*time.Second), nil); !ok {
		t.Errorf("second lookup in the same minute was not cached")
	}
	cache.purge()
	if _, ok := cache.check(now, nil); ok {
		t.Errorf("purge did not drop the cached decision")
	}
}
