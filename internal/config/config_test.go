package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "promptlog.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Type != "bolt" {
		t.Errorf("storage type = %q, want bolt", cfg.Storage.Type)
	}
	if cfg.Scheduler.RecoveryWindow != "1h" {
		t.Errorf("recovery window = %q, want 1h", cfg.Scheduler.RecoveryWindow)
	}
	if got := ParseDuration(cfg.Scheduler.PollInterval, 0); got != time.Second {
		t.Errorf("poll interval = %v, want 1s", got)
	}
	if got := ParseDuration(cfg.Scheduler.RecoveryWindow, 0); got != time.Hour {
		t.Errorf("recovery window = %v, want 1h", got)
	}
	if cfg.API.Enabled || cfg.Metrics.Enabled {
		t.Errorf("listeners should be disabled by default")
	}
	if cfg.API.Addr() != "127.0.0.1:7474" {
		t.Errorf("api addr = %q", cfg.API.Addr())
	}
	if !cfg.Notifications.Bell {
		t.Errorf("bell should default to on")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  type: redis
  redis:
    host: cache.local
    port: 6380
    key_prefix: me
logging:
  level: debug
  format: json
scheduler:
  poll_interval: 250ms
  recovery_window: 30m
api:
  enabled: true
  port: 8080
retention:
  days: 30
  daily_time: "04:15"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Type != "redis" || cfg.Storage.Redis.Host != "cache.local" || cfg.Storage.Redis.Port != 6380 {
		t.Errorf("redis config not loaded: %+v", cfg.Storage.Redis)
	}
	if cfg.Storage.Redis.KeyPrefix != "me" {
		t.Errorf("key prefix = %q, want me", cfg.Storage.Redis.KeyPrefix)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if got := ParseDuration(cfg.Scheduler.PollInterval, 0); got != 250*time.Millisecond {
		t.Errorf("poll interval = %v", got)
	}
	if !cfg.API.Enabled || cfg.API.Port != 8080 || cfg.API.BindAddress != "127.0.0.1" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Retention.Days != 30 || cfg.Retention.DailyTime != "04:15" {
		t.Errorf("retention = %+v", cfg.Retention)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "storage:\n  type: bolt\n")
	t.Setenv("PROMPTLOG_STORAGE_TYPE", "sqlite")
	t.Setenv("PROMPTLOG_STORAGE_PATH", filepath.Join(t.TempDir(), "log.db"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("storage type = %q, want sqlite", cfg.Storage.Type)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown storage", "storage:\n  type: etcd\n", "unknown storage type"},
		{"bad poll interval", "scheduler:\n  poll_interval: soon\n", "poll_interval"},
		{"zero recovery window", "scheduler:\n  recovery_window: 0s\n", "recovery_window"},
		{"bad api port", "api:\n  enabled: true\n  port: 70000\n", "api port"},
		{"negative retention", "retention:\n  days: -1\n", "retention days"},
		{"bad retention time", "retention:\n  daily_time: \"3am\"\n", "daily_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("Load() expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
storage:
  type: redis
  redis:
    password: secret
    pool_size: 10
api:
  enabled: true
  prot: 8080
`)

	unknown, err := UnknownKeys(path)
	if err != nil {
		t.Fatalf("UnknownKeys() error = %v", err)
	}

	want := []string{"api.prot", "storage.redis.pool_size"}
	if len(unknown) != len(want) {
		t.Fatalf("UnknownKeys() = %v, want %v", unknown, want)
	}
	for i := range want {
		if unknown[i] != want[i] {
			t.Errorf("UnknownKeys()[%d] = %q, want %q", i, unknown[i], want[i])
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Type != "bolt" {
		t.Errorf("storage type = %q, want bolt", cfg.Storage.Type)
	}
	if cfg.Scheduler.RecoveryWindow != "1h" {
		t.Errorf("recovery window = %q, want 1h", cfg.Scheduler.RecoveryWindow)
	}
	if cfg.API.Port != 7474 {
		t.Errorf("api port = %d, want 7474", cfg.API.Port)
	}
}
