// Package cli implements the toolflow command line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/me/toolflow/internal/config"
	"github.com/me/toolflow/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagDBPath    string

	logger *slog.Logger
)

// defaultCLIConfig applies environment overrides on top of the package
// defaults.
func defaultCLIConfig() config.CLIConfig {
	cfg := config.DefaultCLIConfig()
	if p := os.Getenv("TOOLFLOW_DB"); p != "" {
		cfg.DBPath = p
	}
	return cfg
}

// NewRootCmd creates the root cobra command for the toolflow CLI.
func NewRootCmd() *cobra.Command {
	defaults := defaultCLIConfig()
	root := &cobra.Command{
		Use:   "toolflow",
		Short: "toolflow runs dependency-aware tool call plans",
		Long: "toolflow executes batches of tool calls with dependency ordering,\n" +
			"bounded concurrency, retries with exponential backoff, and per-call timeouts.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", defaults.LogFormat, "Log format (text, json)")
	root.PersistentFlags().StringVar(&flagDBPath, "db", defaults.DBPath, "Run-history database path (or TOOLFLOW_DB env)")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newHistoryCmd(),
	)

	return root
}
