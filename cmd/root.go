// Package cmd wires configuration, storage, the LLM provider, and the HTTP
// server into the orderdesk command-line interface.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	flagLogLevel string
	flagLogJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "orderdesk",
	Short: "AI order management assistant",
	Long: `Orderdesk is a chat-driven order management service for logistics teams.

It exposes a single stateless chat endpoint backed by an LLM with function
calling: staff describe what they want in plain language and the model drives
the order and file tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON")
}

// parseLogLevel maps the flag value to a slog level.
func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
