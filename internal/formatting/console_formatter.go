package formatting

import (
	"fmt"
	"io"
	"strings"
)

// ConsoleFormatter provides simple console output formatting
type ConsoleFormatter struct {
	options Options
}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter(options Options) Formatter {
	return &ConsoleFormatter{
		options: options,
	}
}

// FormatReport prints one line per route and component.
func (f *ConsoleFormatter) FormatReport(w io.Writer, report Report) error {
	fmt.Fprintf(w, "Routes (%d, default %s):\n", len(report.Routes), report.DefaultComponent)
	for _, r := range report.Routes {
		fmt.Fprintf(w, "  %-30s -> %s\n", r.Key, strings.Join(r.Targets, ", "))
	}
	fmt.Fprintf(w, "Components (%d):\n", len(report.Components))
	for _, c := range report.Components {
		fmt.Fprintf(w, "  %-20s %-6s autoStart=%t\n", c.ID, c.Kind, c.AutoStart)
	}
	for _, p := range report.Problems {
		fmt.Fprintf(w, "problem: %s\n", p)
	}
	return nil
}

// FormatData prints strings as-is and anything else as indented JSON.
func (f *ConsoleFormatter) FormatData(w io.Writer, data interface{}) error {
	if s, ok := data.(string); ok {
		fmt.Fprintln(w, s)
		return nil
	}
	fmt.Fprintln(w, PrettyJSON(data))
	return nil
}

// SetOptions updates the formatter options
func (f *ConsoleFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *ConsoleFormatter) GetOptions() Options {
	return f.options
}
