package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/goodtune/promptlog/internal/storage"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	API           ListenConfig        `mapstructure:"api"`
	Metrics       ListenConfig        `mapstructure:"metrics"`
	Policy        PolicyConfig        `mapstructure:"policy"`
	Retention     RetentionConfig     `mapstructure:"retention"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // bolt, sqlite, redis
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	KeyPrefix    string `mapstructure:"key_prefix"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig defines poll loop and recovery behaviour
type SchedulerConfig struct {
	PollInterval   string `mapstructure:"poll_interval"`
	RecoveryWindow string `mapstructure:"recovery_window"`
	QuietCacheSize int    `mapstructure:"quiet_cache_size"`
}

// NotificationsConfig defines how prompts are presented
type NotificationsConfig struct {
	Title string `mapstructure:"title"`
	Bell  bool   `mapstructure:"bell"`
}

// ListenConfig defines an optional loopback HTTP listener
type ListenConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// Addr returns host:port.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.BindAddress, l.Port)
}

// PolicyConfig defines the optional Rego prompt policy
type PolicyConfig struct {
	Dir string `mapstructure:"dir"`
}

// RetentionConfig defines activity pruning
type RetentionConfig struct {
	Days      int    `mapstructure:"days"` // 0 keeps everything
	DailyTime string `mapstructure:"daily_time"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("PROMPTLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if !isNotFound(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	// SetConfigFile bypasses the search path, so a missing file surfaces
	// as a plain *fs.PathError.
	return errors.Is(err, fs.ErrNotExist)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "~/.local/share/promptlog/promptlog.bolt")
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "promptlog")
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Scheduler defaults
	v.SetDefault("scheduler.poll_interval", "1s")
	v.SetDefault("scheduler.recovery_window", "1h")
	v.SetDefault("scheduler.quiet_cache_size", 128)

	// Notification defaults
	v.SetDefault("notifications.title", "What are you working on?")
	v.SetDefault("notifications.bell", true)

	// Control API defaults
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.bind_address", "127.0.0.1")
	v.SetDefault("api.port", 7474)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
	v.SetDefault("metrics.port", 9474)

	v.SetDefault("policy.dir", "")

	v.SetDefault("retention.days", 0)
	v.SetDefault("retention.daily_time", "03:00")
}

// validate validates the configuration
func validate(cfg *Config) error {
	switch cfg.Storage.Type {
	case "bolt", "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
		}
		cfg.Storage.Path = storage.ExpandPath(cfg.Storage.Path)
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	case "":
		return fmt.Errorf("storage type is required")
	default:
		return fmt.Errorf("unknown storage type: %s (must be bolt, sqlite, or redis)", cfg.Storage.Type)
	}

	poll, err := time.ParseDuration(cfg.Scheduler.PollInterval)
	if err != nil || poll <= 0 {
		return fmt.Errorf("invalid scheduler poll_interval: %q", cfg.Scheduler.PollInterval)
	}
	window, err := time.ParseDuration(cfg.Scheduler.RecoveryWindow)
	if err != nil || window <= 0 {
		return fmt.Errorf("invalid scheduler recovery_window: %q", cfg.Scheduler.RecoveryWindow)
	}

	for name, l := range map[string]ListenConfig{"api": cfg.API, "metrics": cfg.Metrics} {
		if l.Enabled && (l.Port <= 0 || l.Port > 65535) {
			return fmt.Errorf("invalid %s port: %d", name, l.Port)
		}
	}

	if cfg.Retention.Days < 0 {
		return fmt.Errorf("retention days must not be negative: %d", cfg.Retention.Days)
	}
	if _, err := time.Parse("15:04", cfg.Retention.DailyTime); err != nil {
		return fmt.Errorf("invalid retention daily_time %q (expected HH:MM)", cfg.Retention.DailyTime)
	}

	return nil
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	_ = validate(&cfg)
	return &cfg
}

// UnknownKeys returns the keys in the config file that no setting reads.
func UnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	known := viper.New()
	setDefaults(known)
	valid := map[string]bool{"storage.redis.password": true}
	for _, key := range known.AllKeys() {
		valid[key] = true
	}

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}
