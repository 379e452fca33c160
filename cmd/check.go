package cmd

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"nanoclaw/internal/config"
	"nanoclaw/internal/formatting"
	"nanoclaw/internal/router"
)

var (
	checkOutputFormat string
	checkQuiet        bool
	checkNoColor      bool
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and show routes and quotas",
		Long: `Loads the configuration the same way 'nanoclaw serve' does, validates it
and prints the effective route table and the declared components with
their quotas. Routes that target no configured component are flagged.

The command exits with status 2 when the configuration is invalid.

Examples:
  nanoclaw check
  nanoclaw check --config /etc/nanoclaw/nanoclaw.yaml -o json`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
	cmd.Flags().StringVarP(&checkOutputFormat, "output", "o", "table", fmt.Sprintf("Output format (%s)", strings.Join(formatting.Formats(), ", ")))
	cmd.Flags().BoolVarP(&checkQuiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.Flags().BoolVar(&checkNoColor, "no-color", false, "Disable colored output")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	if !slices.Contains(formatting.Formats(), checkOutputFormat) {
		return fmt.Errorf("unsupported output format %q (available: %s)", checkOutputFormat, strings.Join(formatting.Formats(), ", "))
	}

	cfg, used, loadErr := config.Load(configPath)
	var problems config.ValidationErrors
	if loadErr != nil {
		var ce *config.ConfigurationError
		if !errors.As(loadErr, &ce) || ce.ErrorType != config.ErrorTypeValidation {
			return loadErr
		}
		problems = ce.Problems
	}

	formatter := formatting.NewFactory().CreateFormatter(formatting.Options{
		Format: formatting.OutputFormat(checkOutputFormat),
		Quiet:  checkQuiet,
		Color:  !checkNoColor,
	})
	if err := formatter.FormatReport(cmd.OutOrStdout(), buildReport(cfg, used, problems)); err != nil {
		return err
	}
	return loadErr
}

// buildReport describes cfg. Route rows come from the built table when it is
// valid, otherwise from the raw configured routes.
func buildReport(cfg config.Config, file string, problems config.ValidationErrors) formatting.Report {
	report := formatting.Report{
		ConfigFile:       file,
		Valid:            len(problems) == 0,
		DefaultComponent: cfg.Orchestrator.DefaultComponent,
	}
	for _, p := range problems {
		report.Problems = append(report.Problems, p.Error())
	}

	known := make(map[string]bool, len(cfg.Components))
	for _, c := range cfg.Components {
		known[c.ID] = true
		report.Components = append(report.Components, formatting.ComponentRow{
			ID:        c.ID,
			Kind:      c.Kind,
			AutoStart: c.AutoStart,
			Quota:     c.Quota,
		})
	}
	missing := func(targets []string) []string {
		if len(known) == 0 {
			return nil
		}
		var out []string
		for _, id := range targets {
			if !known[id] {
				out = append(out, id)
			}
		}
		return out
	}

	if table, err := cfg.RouteTable(); err == nil {
		for _, e := range table.Entries() {
			report.Routes = append(report.Routes, formatting.RouteRow{
				Key:     e.Key,
				Prefix:  e.Prefix,
				Targets: e.Targets,
				Missing: missing(e.Targets),
			})
		}
		return report
	}

	keys := make([]string, 0, len(cfg.Orchestrator.Routes))
	for k := range cfg.Orchestrator.Routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		targets := cfg.Orchestrator.Routes[k]
		report.Routes = append(report.Routes, formatting.RouteRow{
			Key:     k,
			Prefix:  strings.HasSuffix(k, router.PrefixWildcard),
			Targets: targets,
			Missing: missing(targets),
		})
	}
	return report
}
