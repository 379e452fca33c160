package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"nanoclaw/pkg/logging"
)

const (
	// ConfigFileName is the file searched for when no path is given.
	ConfigFileName = "nanoclaw.yaml"

	// EnvPrefix prefixes every environment override, e.g.
	// NANOCLAW_ORCHESTRATOR_DEFAULTTIMEOUT=5s.
	EnvPrefix = "NANOCLAW"

	userConfigDir = "nanoclaw"

	// Route keys contain dots ("memory.store"), so viper must not treat the
	// dot as a path separator.
	keyDelimiter = "::"
)

func key(parts ...string) string {
	return strings.Join(parts, keyDelimiter)
}

// DefaultSearchPaths returns the locations probed when no path is given:
// the working directory, then the user config directory.
func DefaultSearchPaths() []string {
	paths := []string{ConfigFileName}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, userConfigDir, ConfigFileName))
	}
	return paths
}

// Load reads configuration from path, or from the first existing default
// search path when path is empty, applies NANOCLAW_ environment overrides
// and validates the result. It returns the file actually used, which is
// empty when running on defaults.
func Load(path string) (Config, string, error) {
	if path == "" {
		for _, candidate := range DefaultSearchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			msg := err.Error()
			if errors.Is(err, os.ErrNotExist) {
				msg = "file not found"
			}
			return Config{}, path, &ConfigurationError{FilePath: path, ErrorType: ErrorTypeIO, Message: msg}
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, path, &ConfigurationError{FilePath: path, ErrorType: ErrorTypeParse, Message: err.Error()}
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	} else {
		logging.Info("ConfigLoader", "No %s found, using defaults", ConfigFileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, path, &ConfigurationError{FilePath: path, ErrorType: ErrorTypeParse, Message: err.Error()}
	}

	if path != "" {
		// viper lower-cases map keys; route keys are operation names and
		// must keep their case.
		routes, err := readRoutes(path)
		if err != nil {
			return Config{}, path, &ConfigurationError{FilePath: path, ErrorType: ErrorTypeParse, Message: err.Error()}
		}
		cfg.Orchestrator.Routes = routes
	}

	if errs := cfg.Validate(); errs.HasErrors() {
		return cfg, path, &ConfigurationError{
			FilePath:  path,
			ErrorType: ErrorTypeValidation,
			Message:   errs.Error(),
			Problems:  errs,
		}
	}
	return cfg, path, nil
}

// readRoutes decodes orchestrator.routes from the raw file.
func readRoutes(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Orchestrator struct {
			Routes map[string][]string `yaml:"routes"`
		} `yaml:"orchestrator"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding routes: %w", err)
	}
	return raw.Orchestrator.Routes, nil
}
