package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"nanoclaw/internal/config"
)

var configInitForce bool

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the nanoclaw configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Long: `Writes a starter nanoclaw.yaml with an echo and a kv component, a small
route table and local state and event journal paths. The file is written to
the given path, the --config path, or ./nanoclaw.yaml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigFileName
			switch {
			case len(args) == 1:
				path = args[0]
			case configPath != "":
				path = configPath
			}
			if err := config.WriteDefault(path, configInitForce); err != nil {
				if !configInitForce {
					return fmt.Errorf("%w (use --force to overwrite)", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}
