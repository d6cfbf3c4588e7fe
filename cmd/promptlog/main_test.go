package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/promptlog/internal/config"
)

func TestParseCheckTime(t *testing.T) {
	// Monday
	now := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)

	tests := []struct {
		name    string
		day     string
		clock   string
		want    time.Time
		wantErr bool
	}{
		{"defaults to now", "", "", time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC), false},
		{"time today", "", "17:30", time.Date(2024, 3, 4, 17, 30, 0, 0, time.UTC), false},
		{"same day", "monday", "08:00", time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), false},
		{"later this week", "sat", "12:00", time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC), false},
		{"sunday wraps", "Sunday", "", time.Date(2024, 3, 10, 9, 15, 0, 0, time.UTC), false},
		{"bad day", "someday", "", time.Time{}, true},
		{"bad format", "", "1730", time.Time{}, true},
		{"out of range", "", "24:00", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCheckTimeFrom(now, tt.day, tt.clock)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseCheckTimeFrom(%q, %q) expected error, got %v", tt.day, tt.clock, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCheckTimeFrom(%q, %q) error = %v", tt.day, tt.clock, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseCheckTimeFrom(%q, %q) = %v, want %v", tt.day, tt.clock, got, tt.want)
			}
		})
	}
}

func TestParseRange(t *testing.T) {
	from, to, err := parseRange("2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("parseRange() error = %v", err)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local); !from.Equal(want) {
		t.Errorf("from = %v, want %v", from, want)
	}
	if want := time.Date(2024, 4, 1, 0, 0, 0, 0, time.Local); !to.Equal(want) {
		t.Errorf("to = %v, want %v", to, want)
	}

	from, to, err = parseRange("", "")
	if err != nil || !from.IsZero() || !to.IsZero() {
		t.Errorf("parseRange(\"\", \"\") = %v, %v, %v; want open range", from, to, err)
	}

	for _, bad := range [][2]string{{"03/01/2024", ""}, {"", "tomorrow"}, {"2024-03-05", "2024-03-01"}} {
		if _, _, err := parseRange(bad[0], bad[1]); err == nil {
			t.Errorf("parseRange(%q, %q) expected error", bad[0], bad[1])
		}
	}
}

func TestParseDays(t *testing.T) {
	days, err := parseDays("mon, wed,fri,")
	if err != nil {
		t.Fatalf("parseDays() error = %v", err)
	}
	want := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	if len(days) != len(want) {
		t.Fatalf("parseDays() = %v, want %v", days, want)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("parseDays()[%d] = %v, want %v", i, days[i], want[i])
		}
	}

	if _, err := parseDays(" , "); err == nil {
		t.Error("parseDays() with no days expected error")
	}
	if _, err := parseDays("mon,funday"); err == nil {
		t.Error("parseDays() with a bad day expected error")
	}
	if got := formatDays(want); got != "Mon,Wed,Fri" {
		t.Errorf("formatDays() = %q, want Mon,Wed,Fri", got)
	}
}

func TestOpenStorage(t *testing.T) {
	dir := t.TempDir()

	for _, typ := range []string{"bolt", "sqlite"} {
		t.Run(typ, func(t *testing.T) {
			store, err := openStorage(config.StorageConfig{Type: typ, Path: filepath.Join(dir, typ, "log.db")})
			if err != nil {
				t.Fatalf("openStorage(%s) error = %v", typ, err)
			}
			defer store.Close()

			activities, err := store.Activities().List(context.Background())
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(activities) != 0 {
				t.Errorf("new store has %d activities", len(activities))
			}
		})
	}

	if _, err := openStorage(config.StorageConfig{Type: "etcd"}); err == nil {
		t.Error("openStorage(etcd) expected error")
	}
}
