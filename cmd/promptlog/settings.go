package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/spf13/cobra"
)

var (
	quietName    string
	quietStart   string
	quietEnd     string
	quietDays    string
	quietEnabled bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change settings",
	Long: `Show or change the persisted settings. Changes made here while the
tracker is running are picked up on its next start; use the control API to
change a running tracker.`,
	Args: cobra.NoArgs,
	RunE: runSettingsShow,
}

var settingsIntervalCmd = &cobra.Command{
	Use:     "interval DURATION",
	Short:   "Set the prompt interval",
	Example: "  promptlog settings interval 15m",
	Args:    cobra.ExactArgs(1),
	RunE:    runSettingsInterval,
}

var settingsSoundCmd = &cobra.Command{
	Use:   "sound on|off",
	Short: "Enable or disable the prompt sound",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsSound,
}

var settingsPermissionCmd = &cobra.Command{
	Use:   "permission default|granted|denied",
	Short: "Set the notification permission",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsPermission,
}

var quietCmd = &cobra.Command{
	Use:   "quiet",
	Short: "Manage quiet times",
	Args:  cobra.NoArgs,
	RunE:  runQuietList,
}

var quietAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a quiet time",
	Example: `  promptlog settings quiet add --name Lunch --start 12:00 --end 13:00 --days mon,tue,wed,thu,fri
  promptlog settings quiet add --name Evening --start 18:00 --end 23:59`,
	Args: cobra.NoArgs,
	RunE: runQuietAdd,
}

var quietRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a quiet time",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuietRemove,
}

var quietEnableCmd = &cobra.Command{
	Use:   "enable ID",
	Short: "Enable a quiet time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setQuietEnabled(args[0], true)
	},
}

var quietDisableCmd = &cobra.Command{
	Use:   "disable ID",
	Short: "Disable a quiet time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setQuietEnabled(args[0], false)
	},
}

func init() {
	quietAddCmd.Flags().StringVar(&quietName, "name", "", "Quiet time name (required)")
	quietAddCmd.Flags().StringVar(&quietStart, "start", "", "Start time (HH:MM, required)")
	quietAddCmd.Flags().StringVar(&quietEnd, "end", "", "End time (HH:MM, required)")
	quietAddCmd.Flags().StringVar(&quietDays, "days", "mon,tue,wed,thu,fri,sat,sun", "Comma separated days")
	quietAddCmd.Flags().BoolVar(&quietEnabled, "enabled", true, "Enable the quiet time")
	quietAddCmd.MarkFlagRequired("name")
	quietAddCmd.MarkFlagRequired("start")
	quietAddCmd.MarkFlagRequired("end")

	quietCmd.AddCommand(quietAddCmd, quietRemoveCmd, quietEnableCmd, quietDisableCmd)
	settingsCmd.AddCommand(settingsIntervalCmd, settingsSoundCmd, settingsPermissionCmd, quietCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(context.Background())
	if err != nil {
		return err
	}
	defer env.Close()

	current := env.settings.Get()
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Println("[settings]")
	fmt.Printf("  interval   = %s\n", current.Interval())
	fmt.Printf("  sound      = %s\n", onOff(current.SoundEnabled))
	fmt.Printf("  permission = %s\n", current.NotificationPermission)
	fmt.Println()
	printQuietTimes(current.QuietTimes)
	return nil
}

func runSettingsInterval(cmd *cobra.Command, args []string) error {
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("invalid interval: %s", args[0])
	}

	return withSettings(func(ctx context.Context, sm *settings.Manager) error {
		if err := sm.SetInterval(ctx, d); err != nil {
			return err
		}
		fmt.Printf("Prompt interval set to %s\n", sm.Get().Interval())
		return nil
	})
}

func runSettingsSound(cmd *cobra.Command, args []string) error {
	var enabled bool
	switch strings.ToLower(args[0]) {
	case "on", "true", "yes":
		enabled = true
	case "off", "false", "no":
	default:
		return fmt.Errorf("expected on or off, got %q", args[0])
	}

	return withSettings(func(ctx context.Context, sm *settings.Manager) error {
		if err := sm.SetSoundEnabled(ctx, enabled); err != nil {
			return err
		}
		fmt.Printf("Sound %s\n", onOff(enabled))
		return nil
	})
}

func runSettingsPermission(cmd *cobra.Command, args []string) error {
	p, err := storage.ParsePermission(args[0])
	if err != nil {
		return err
	}

	return withSettings(func(ctx context.Context, sm *settings.Manager) error {
		if err := sm.SetPermission(ctx, p); err != nil {
			return err
		}
		fmt.Printf("Notification permission set to %s\n", p)
		return nil
	})
}

func runQuietList(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(context.Background())
	if err != nil {
		return err
	}
	defer env.Close()

	printQuietTimes(env.settings.Get().QuietTimes)
	return nil
}

func runQuietAdd(cmd *cobra.Command, args []string) error {
	days, err := parseDays(quietDays)
	if err != nil {
		return err
	}

	q := storage.QuietTime{
		Name:      quietName,
		StartTime: quietStart,
		EndTime:   quietEnd,
		Days:      days,
		Enabled:   quietEnabled,
	}

	return withSettings(func(ctx context.Context, sm *settings.Manager) error {
		created, err := sm.AddQuietTime(ctx, q)
		if err != nil {
			return err
		}
		fmt.Printf("Added quiet time %s (%s)\n", created.ID, created.Name)
		return nil
	})
}

func runQuietRemove(cmd *cobra.Command, args []string) error {
	return withSettings(func(ctx context.Context, sm *settings.Manager) error {
		if err := sm.RemoveQuietTime(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed quiet time %s\n", args[0])
		return nil
	})
}

func setQuietEnabled(id string, enabled bool) error {
	return withSettings(func(ctx context.Context, sm *settings.Manager) error {
		if err := sm.SetQuietTimeEnabled(ctx, id, enabled); err != nil {
			return err
		}
		fmt.Printf("Quiet time %s %s\n", id, onOff(enabled))
		return nil
	})
}

// withSettings runs fn against the persisted settings.
func withSettings(fn func(ctx context.Context, sm *settings.Manager) error) error {
	ctx := context.Background()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	return fn(ctx, env.settings)
}

func printQuietTimes(quiet []storage.QuietTime) {
	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)

	cyan.Println("[quiet times]")
	if len(quiet) == 0 {
		dim.Println("  (none)")
		return
	}
	for _, q := range quiet {
		line := fmt.Sprintf("  %s  %s-%s  %-20s %s", q.ID, q.StartTime, q.EndTime, q.Name, formatDays(q.Days))
		if q.Enabled {
			fmt.Println(line)
		} else {
			dim.Println(line + "  (disabled)")
		}
	}
}

// parseDays parses a comma separated day list such as "mon,wed,fri".
func parseDays(s string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		d, err := settings.ParseWeekday(part)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one day is required")
	}
	return days, nil
}

func formatDays(days []time.Weekday) string {
	if len(days) == 7 {
		return "every day"
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, d.String()[:3])
	}
	return strings.Join(names, ",")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
