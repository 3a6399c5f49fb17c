package config

import (
	"os"
	"path/filepath"
)

// CLIConfig holds configuration for the toolflow CLI.
type CLIConfig struct {
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: text, json
	Listen    string // Monitor listen address; empty disables the monitor
	DBPath    string // Run-history SQLite path (":memory:" for testing)
}

// DefaultCLIConfig returns sensible defaults.
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		LogLevel:  "info",
		LogFormat: "text",
		DBPath:    DefaultDBPath(),
	}
}

// DefaultDBPath returns ~/.toolflow/history.db, falling back to the
// current directory when the home directory cannot be determined.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "history.db"
	}
	return filepath.Join(home, ".toolflow", "history.db")
}
