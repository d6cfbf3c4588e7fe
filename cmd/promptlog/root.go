package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "promptlog",
	Short: "promptlog - interval prompting activity logger",
	Long: `promptlog asks what you have been doing at a fixed interval and keeps
a tiled log of the answers. Quiet times and an optional Rego policy hold
prompts back, and a loopback HTTP API exposes the session and the log.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to the track command when no subcommand is provided
		return runTrack(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "~/.config/promptlog/config.yaml", "Path to configuration file")
	rootCmd.Flags().BoolVar(&trackStart, "start", false, "Start tracking immediately")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
