package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/promptlog/internal/report"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/spf13/cobra"
)

var reportSkipped bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the activity log",
}

var reportTagsCmd = &cobra.Command{
	Use:     "tags",
	Short:   "Show time spent per tag",
	Example: "  promptlog report tags --from 2024-03-04 --to 2024-03-08",
	Args:    cobra.NoArgs,
	RunE:    runReportTags,
}

var reportTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show activities grouped by day",
	Args:  cobra.NoArgs,
	RunE:  runReportTimeline,
}

func init() {
	reportTagsCmd.Flags().BoolVar(&reportSkipped, "skipped", false, "Include skipped intervals")
	addRangeFlags(reportTagsCmd)
	addRangeFlags(reportTimelineCmd)

	reportCmd.AddCommand(reportTagsCmd, reportTimelineCmd)
	rootCmd.AddCommand(reportCmd)
}

// loadRange lists the activities selected by the date flags.
func loadRange(ctx context.Context, env *environment) ([]storage.Activity, error) {
	from, to, err := parseRange(rangeFrom, rangeTo)
	if err != nil {
		return nil, err
	}
	activities, err := env.store.Activities().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return report.Between(activities, from, to), nil
}

func runReportTags(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	activities, err := loadRange(ctx, env)
	if err != nil {
		return err
	}

	totals := report.TagTotals(activities, reportSkipped)
	if len(totals) == 0 {
		fmt.Println("No activities in range")
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Printf("%-24s %8s  %s\n", "TAG", "ENTRIES", "TIME")
	for _, t := range totals {
		fmt.Printf("%-24s %8d  %s\n", t.Tag, t.Count, report.HumanDuration(t.Duration))
	}
	return nil
}

func runReportTimeline(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	activities, err := loadRange(ctx, env)
	if err != nil {
		return err
	}

	days := report.Timeline(activities, time.Local)
	if len(days) == 0 {
		fmt.Println("No activities in range")
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)
	for i, day := range days {
		if i > 0 {
			fmt.Println()
		}
		cyan.Printf("%s  %s tracked", day.Date, report.HumanDuration(day.Tracked))
		if day.Skipped > 0 {
			cyan.Printf(", %s skipped", report.HumanDuration(day.Skipped))
		}
		fmt.Println()

		for _, a := range day.Activities {
			line := fmt.Sprintf("  %s-%s  %s", a.StartTime.In(time.Local).Format("15:04"), a.EndTime.In(time.Local).Format("15:04"), a.Description)
			if len(a.Tags) > 0 {
				line += "  #" + strings.Join(a.Tags, " #")
			}
			if a.Skipped {
				dim.Println(line)
			} else {
				fmt.Println(line)
			}
		}
	}
	return nil
}
