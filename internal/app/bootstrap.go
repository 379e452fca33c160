package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"nanoclaw/internal/config"
	"nanoclaw/pkg/logging"
)

// Application bootstraps and runs the nanoclaw host process.
//
// Initialization happens in two phases:
//  1. NewApplication loads configuration, initializes logging and builds the
//     orchestrator with its store, sinks and components.
//  2. Run starts the components and blocks until the context is cancelled or
//     a termination signal arrives, then shuts everything down.
//
// Example usage:
//
//	application, err := app.NewApplication(app.NewConfig(false, "nanoclaw.yaml"))
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config     *Config
	settings   config.Config
	configFile string
	services   *Services
}

// NewApplication loads configuration and initializes all services. Nothing
// is started until Run.
func NewApplication(cfg *Config) (*Application, error) {
	var output io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		output = cfg.LogOutput
	}
	// Early logging so configuration problems are visible.
	logging.InitForCLI(logging.LevelInfo, output)

	var settings config.Config
	var configFile string
	if cfg.Settings != nil {
		settings = *cfg.Settings
		configFile = cfg.ConfigPath
	} else {
		loaded, used, err := config.Load(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load nanoclaw configuration")
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		settings, configFile = loaded, used
	}

	level, err := logging.ParseLevel(settings.Logging.Level)
	if err != nil {
		logging.Warn("Bootstrap", "%v, using info", err)
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.Format(settings.Logging.Format), output)

	services, err := InitializeServices(settings)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:     cfg,
		settings:   settings,
		configFile: configFile,
		services:   services,
	}, nil
}

// Services exposes the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Settings returns the configuration in effect.
func (a *Application) Settings() config.Config {
	return a.settings
}

// Run starts the configured components and serves until ctx is cancelled or
// SIGINT/SIGTERM is received.
func (a *Application) Run(ctx context.Context) error {
	return runServe(ctx, a)
}
