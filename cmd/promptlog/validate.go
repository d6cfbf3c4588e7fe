package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/promptlog/internal/config"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/spf13/cobra"
)

var validateDump bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the promptlog configuration file for syntax and semantic errors.`,
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := storage.ExpandPath(configPath)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	var unknownKeys []string
	if _, statErr := os.Stat(path); statErr == nil {
		unknownKeys, err = config.UnknownKeys(path)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
		}
		_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", path)
	} else {
		_, _ = fmt.Fprintf(os.Stdout, "✅ No configuration file at %s, defaults are valid\n", path)
	}

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))
		dumpConfig(cfg, config.Default())
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
	}

	return nil
}

// dumpConfig prints the configuration section by section
func dumpConfig(cfg, defaultCfg *config.Config) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)

	_, _ = cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	_, _ = cyan.Println("  [storage.redis]")
	dumpField("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host, yellow, green)
	dumpField("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port, yellow, green)
	dumpField("    password", redactPassword(cfg.Storage.Redis.Password), redactPassword(defaultCfg.Storage.Redis.Password), yellow, green)
	dumpField("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB, yellow, green)
	dumpField("    key_prefix", cfg.Storage.Redis.KeyPrefix, defaultCfg.Storage.Redis.KeyPrefix, yellow, green)
	dumpField("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout, yellow, green)

	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	_, _ = cyan.Println("\n[scheduler]")
	dumpField("  poll_interval", cfg.Scheduler.PollInterval, defaultCfg.Scheduler.PollInterval, yellow, green)
	dumpField("  recovery_window", cfg.Scheduler.RecoveryWindow, defaultCfg.Scheduler.RecoveryWindow, yellow, green)
	dumpField("  quiet_cache_size", cfg.Scheduler.QuietCacheSize, defaultCfg.Scheduler.QuietCacheSize, yellow, green)

	_, _ = cyan.Println("\n[notifications]")
	dumpField("  title", cfg.Notifications.Title, defaultCfg.Notifications.Title, yellow, green)
	dumpField("  bell", cfg.Notifications.Bell, defaultCfg.Notifications.Bell, yellow, green)

	for _, l := range []struct {
		name       string
		value, def config.ListenConfig
	}{
		{"api", cfg.API, defaultCfg.API},
		{"metrics", cfg.Metrics, defaultCfg.Metrics},
	} {
		_, _ = cyan.Printf("\n[%s]\n", l.name)
		dumpField("  enabled", l.value.Enabled, l.def.Enabled, yellow, green)
		dumpField("  bind_address", l.value.BindAddress, l.def.BindAddress, yellow, green)
		dumpField("  port", l.value.Port, l.def.Port, yellow, green)
	}

	_, _ = cyan.Println("\n[policy]")
	dumpField("  dir", cfg.Policy.Dir, defaultCfg.Policy.Dir, yellow, green)

	_, _ = cyan.Println("\n[retention]")
	dumpField("  days", cfg.Retention.Days, defaultCfg.Retention.Days, yellow, green)
	dumpField("  daily_time", cfg.Retention.DailyTime, defaultCfg.Retention.DailyTime, yellow, green)
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	valueStr := fmt.Sprintf("%v", value)

	if reflect.DeepEqual(value, defaultValue) {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
