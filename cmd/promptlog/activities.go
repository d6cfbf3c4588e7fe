package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goodtune/promptlog/internal/storage"
	"github.com/spf13/cobra"
)

var activitiesTag string

var activitiesCmd = &cobra.Command{
	Use:     "activities",
	Aliases: []string{"log"},
	Short:   "List logged activities",
	Args:    cobra.NoArgs,
	RunE:    runActivitiesList,
}

var activitiesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an activity",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivitiesDelete,
}

func init() {
	activitiesCmd.Flags().StringVar(&activitiesTag, "tag", "", "Only show activities with this tag")
	addRangeFlags(activitiesCmd)

	activitiesCmd.AddCommand(activitiesDeleteCmd)
	rootCmd.AddCommand(activitiesCmd)
}

func runActivitiesList(cmd *cobra.Command, args []string) error {
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

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tEND\tDESCRIPTION\tTAGS")
	for _, a := range activities {
		if activitiesTag != "" && !a.HasTag(activitiesTag) {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.StartTime.In(time.Local).Format("2006-01-02 15:04:05"),
			a.EndTime.In(time.Local).Format("15:04:05"),
			a.Description,
			strings.Join(a.Tags, ", "),
		)
	}
	return w.Flush()
}

func runActivitiesDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.store.Activities().Delete(ctx, args[0]); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("activity %s not found", args[0])
		}
		return fmt.Errorf("failed to delete activity: %w", err)
	}

	fmt.Printf("Deleted activity %s\n", args[0])
	return nil
}
