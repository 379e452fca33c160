package app

import (
	"io"

	"nanoclaw/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the file setting.
	Debug bool

	// ConfigPath is an explicit nanoclaw.yaml. Empty searches the default
	// locations and falls back to built-in defaults.
	ConfigPath string

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer

	// Settings, when set, is used instead of loading ConfigPath.
	Settings *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
