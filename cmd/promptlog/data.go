package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goodtune/promptlog/internal/report"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
	rangeFrom    string
	rangeTo      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the activity log",
	Long: `Export the activity log. The json format is a full backup that import
accepts; the csv format is for spreadsheets.`,
	Example: `  promptlog export > backup.json
  promptlog export --format csv --from 2024-03-01 --to 2024-03-31 -o march.csv`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the activity log and settings with a backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format (json or csv)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	addRangeFlags(exportCmd)

	rootCmd.AddCommand(exportCmd, importCmd)
}

// addRangeFlags adds the --from and --to date flags.
func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&rangeFrom, "from", "", "First day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&rangeTo, "to", "", "Last day to include (YYYY-MM-DD)")
}

// parseRange turns the date flags into a half-open local time range. Unset
// bounds stay zero.
func parseRange(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	if from != "" {
		t, err := time.ParseInLocation("2006-01-02", from, time.Local)
		if err != nil {
			return start, end, fmt.Errorf("invalid --from date: %s", from)
		}
		start = t
	}
	if to != "" {
		t, err := time.ParseInLocation("2006-01-02", to, time.Local)
		if err != nil {
			return start, end, fmt.Errorf("invalid --to date: %s", to)
		}
		end = t.AddDate(0, 0, 1)
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return start, end, fmt.Errorf("--to must not be before --from")
	}
	return start, end, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	from, to, err := parseRange(rangeFrom, rangeTo)
	if err != nil {
		return err
	}
	if exportFormat != "json" && exportFormat != "csv" {
		return fmt.Errorf("unsupported format: %s (must be json or csv)", exportFormat)
	}

	ctx := context.Background()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	var out io.Writer = os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		defer f.Close()
		out = f
	}

	if exportFormat == "csv" {
		activities, err := env.store.Activities().List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list activities: %w", err)
		}
		return report.WriteCSV(out, report.Between(activities, from, to), time.Local)
	}

	backup, err := report.Export(ctx, env.store.Activities(), env.settings, time.Now())
	if err != nil {
		return err
	}
	backup.Activities = report.Between(backup.Activities, from, to)
	return backup.WriteJSON(out)
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	backup, err := report.ReadBackup(f)
	if err != nil {
		return err
	}

	ctx := context.Background()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := report.Import(ctx, backup, env.store.Activities(), env.settings); err != nil {
		return err
	}

	fmt.Printf("Imported %d activities from %s\n", len(backup.Activities), args[0])
	return nil
}
