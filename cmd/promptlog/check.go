package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/promptlog/internal/policy"
	"github.com/goodtune/promptlog/internal/scheduler"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/spf13/cobra"
)

var (
	checkDay     string
	checkTime    string
	checkElapsed string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a prompt would be shown",
	Long:  `Check whether quiet times or the prompt policy would hold back a prompt at a given moment.`,
	Example: `  promptlog check
  promptlog -c config.yaml check --day saturday --time 12:30
  promptlog check --time 17:45 --elapsed 2h`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkDay, "day", "", "Day of week (monday, tuesday, etc.) - defaults to current day")
	checkCmd.Flags().StringVar(&checkTime, "time", "", "Time of day (HH:MM) - defaults to current time")
	checkCmd.Flags().StringVar(&checkElapsed, "elapsed", "0s", "Session length passed to the policy")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	// Parse time (if provided)
	checkDateTime := time.Now()
	if checkDay != "" || checkTime != "" {
		var err error
		checkDateTime, err = parseCheckTime(checkDay, checkTime)
		if err != nil {
			return fmt.Errorf("invalid --day or --time: %w", err)
		}
	}

	elapsed, err := time.ParseDuration(checkElapsed)
	if err != nil || elapsed < 0 {
		return fmt.Errorf("invalid elapsed duration: %s", checkElapsed)
	}

	ctx := context.Background()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	current := env.settings.Get()
	quiet, inQuiet := scheduler.InQuietPeriod(checkDateTime, current.QuietTimes)

	var decision *policy.Decision
	if env.cfg.Policy.Dir != "" {
		engine, err := policy.NewEngine(storage.ExpandPath(env.cfg.Policy.Dir), env.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize prompt policy: %w", err)
		}

		d, err := engine.Evaluate(ctx, policy.Input{
			Now:      checkDateTime,
			Elapsed:  elapsed,
			Interval: current.Interval(),
		})
		if err != nil {
			return fmt.Errorf("failed to evaluate prompt policy: %w", err)
		}
		decision = &d
	}

	printCheckResult(checkDateTime, current, quiet, inQuiet, decision)
	return nil
}

// printCheckResult prints the check result with colors
func printCheckResult(at time.Time, current storage.Settings, quiet storage.QuietTime, inQuiet bool, decision *policy.Decision) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("PROMPT CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Check Time: %s (%s)\n", at.Format("2006-01-02 15:04"), at.Weekday())
	fmt.Printf("Interval:   %s\n", current.Interval())
	fmt.Printf("Permission: %s\n", current.NotificationPermission)
	fmt.Printf("Quiet:      %d configured\n", len(current.QuietTimes))
	fmt.Println()

	cyan.Print("Decision:   ")
	switch {
	case inQuiet:
		yellow.Println("QUIET")
		fmt.Printf("            → Inside %q (%s-%s)\n", quiet.Name, quiet.StartTime, quiet.EndTime)
		fmt.Println("            → The prompt will wait until the quiet time ends")
	case decision != nil && decision.Suppress:
		yellow.Println("SUPPRESSED")
		fmt.Println("            → The prompt policy holds the prompt back")
	default:
		green.Println("PROMPT")
		fmt.Println("            → A due prompt will be shown")
	}

	if decision != nil && decision.Reason != "" {
		fmt.Printf("Reason:     %s\n", decision.Reason)
	}
	if current.NotificationPermission == storage.PermissionDenied {
		fmt.Println("Note:       notifications are denied, only the terminal prompt is shown")
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// parseCheckTime parses day and time flags into a time.Time
func parseCheckTime(dayStr, timeStr string) (time.Time, error) {
	return parseCheckTimeFrom(time.Now(), dayStr, timeStr)
}

func parseCheckTimeFrom(now time.Time, dayStr, timeStr string) (time.Time, error) {
	hour := now.Hour()
	minute := now.Minute()

	if timeStr != "" {
		if len(strings.Split(timeStr, ":")) != 2 {
			return time.Time{}, fmt.Errorf("time must be in HH:MM format")
		}
		if _, err := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute); err != nil {
			return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return time.Time{}, fmt.Errorf("invalid time: hour must be 0-23, minute must be 0-59")
		}
	}

	targetDay := now.Weekday()
	if dayStr != "" {
		var err error
		targetDay, err = settings.ParseWeekday(dayStr)
		if err != nil {
			return time.Time{}, err
		}
	}

	// The next occurrence of the target day, today included
	daysUntilTarget := int(targetDay - now.Weekday())
	if daysUntilTarget < 0 {
		daysUntilTarget += 7
	}

	targetDate := now.AddDate(0, 0, daysUntilTarget)
	return time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), hour, minute, 0, 0, now.Location()), nil
}
