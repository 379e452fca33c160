package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"nanoclaw/internal/orchestrator"
)

// newVersionCmd creates the Cobra command for displaying the application version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of nanoclaw",
		Long:  `Print the build version of the binary and the orchestrator protocol version.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nanoclaw version %s (orchestrator %s)\n", rootCmd.Version, orchestrator.Version)
		},
	}
}
