package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/persona-router/internal/observability"
)

var (
	// Global flags
	logLevel  string
	logFormat string

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "persona-router",
	Short: "Persona-based AI provider router",
	Long: `persona-router answers chat turns through a named persona.

Each persona binds a primary AI vendor with a deadline and an optional
backup. When the primary fails or runs out of time the backup is tried once.

Available subcommands:
  serve    - Run the HTTP API
  personas - Validate and print a persona table
  ask      - Route a single prompt from the command line`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = observability.NewLogger(logLevel, logFormat)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envOr("LOG_FORMAT", "json"), "Log format (json, console)")

	rootCmd.AddCommand(serveCmd, personasCmd, askCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
