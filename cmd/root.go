package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"nanoclaw/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeInvalidConfig indicates the configuration failed validation.
	ExitCodeInvalidConfig = 2
)

var (
	configPath string
	debug      bool
)

// rootCmd represents the base command for the nanoclaw application.
var rootCmd = &cobra.Command{
	Use:   "nanoclaw",
	Short: "Run the nanoclaw in-process component orchestrator",
	Long: `nanoclaw hosts a set of components in one process, drives their
lifecycle, enforces per-component resource quotas and routes operations to
them through a configurable route table.

Configuration is read from nanoclaw.yaml in the working directory or the
user config directory, or from the file given with --config. Settings can
be overridden with NANOCLAW_ environment variables.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "nanoclaw version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if config.IsValidationError(err) {
		return ExitCodeInvalidConfig
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default is ./nanoclaw.yaml, then $XDG_CONFIG_HOME/nanoclaw/nanoclaw.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newConfigCmd())
}
