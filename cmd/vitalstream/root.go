package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:          "vitalstream",
	Short:        "Vital-sign telemetry simulator and observers",
	Long:         "vitalstream simulates patient telemetry, broadcasts live snapshots to observers and renders them in a terminal.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// level parses the --log-level flag.
func level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(logLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", logLevel, err)
	}
	return l, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}
