package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"nanoclaw/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator and the configured components",
		Long: `Starts the orchestrator, registers the configured components and starts
those marked autoStart. While running, nanoclaw:

  - serves Prometheus metrics and a /healthz summary on metrics.listen
  - reloads the route table when the configuration file changes
  - records component heartbeats in the state database
  - notifies systemd when ready (Type=notify units)

SIGINT or SIGTERM shuts every component down and saves the final metrics
snapshot before exiting.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.NewConfig(debug, configPath))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}
