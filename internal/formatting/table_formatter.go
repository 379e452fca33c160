package formatting

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// maxValueLen bounds cell values in key/value tables.
const maxValueLen = 100

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatReport renders the route and component tables followed by any problems.
func (f *TableFormatter) FormatReport(w io.Writer, report Report) error {
	if !f.options.Quiet {
		source := report.ConfigFile
		if source == "" {
			source = "built-in defaults"
		}
		fmt.Fprintf(w, "%s %s\n\n", f.color(text.FgHiBlue, "Configuration:"), source)
	}

	routes := f.createTable(w)
	routes.SetTitle("Routes")
	routes.AppendHeader(f.header("ROUTE", "MATCH", "TARGETS"))
	for _, r := range report.Routes {
		match := "exact"
		if r.Prefix {
			match = "prefix"
		}
		targets := strings.Join(r.Targets, ", ")
		if len(r.Missing) > 0 {
			targets += f.color(text.FgYellow, fmt.Sprintf(" (missing: %s)", strings.Join(r.Missing, ", ")))
		}
		routes.AppendRow(table.Row{r.Key, match, targets})
	}
	routes.AppendFooter(table.Row{"default", "", report.DefaultComponent})
	routes.Render()
	fmt.Fprintln(w)

	if len(report.Components) == 0 {
		fmt.Fprintln(w, f.formatEmptyMessage("No components configured"))
	} else {
		comps := f.createTable(w)
		comps.SetTitle("Components")
		comps.AppendHeader(f.header("ID", "KIND", "AUTOSTART", "MEMORY MB", "CPU %", "PER MINUTE", "CONCURRENT"))
		for _, c := range report.Components {
			comps.AppendRow(table.Row{
				c.ID, c.Kind, c.AutoStart,
				limit(c.Quota.MaxMemoryMB),
				limit(c.Quota.MaxCPUPercent),
				limit(c.Quota.MaxThroughputPerMinute),
				limit(c.Quota.MaxConcurrentOperations),
			})
		}
		comps.Render()
	}

	if len(report.Problems) > 0 {
		fmt.Fprintf(w, "\n%s\n", f.color(text.FgRed, fmt.Sprintf("%d problems:", len(report.Problems))))
		for _, p := range report.Problems {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	} else if !f.options.Quiet {
		fmt.Fprintf(w, "\n%s\n", f.color(text.FgGreen, "Configuration is valid"))
	}
	return nil
}

// FormatData formats generic data using table logic
func (f *TableFormatter) FormatData(w io.Writer, data interface{}) error {
	switch d := data.(type) {
	case map[string]interface{}:
		return f.formatObjectData(w, d)
	case []interface{}:
		return f.formatArrayData(w, d)
	case string:
		fmt.Fprintln(w, d)
	default:
		fmt.Fprintln(w, PrettyJSON(d))
	}
	return nil
}

// SetOptions updates the formatter options
func (f *TableFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *TableFormatter) GetOptions() Options {
	return f.options
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) header(names ...string) table.Row {
	row := make(table.Row, len(names))
	for i, n := range names {
		row[i] = f.color(text.FgHiCyan, n)
	}
	return row
}

func (f *TableFormatter) color(c text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return c.Sprint(s)
}

// formatEmptyMessage formats empty result messages
func (f *TableFormatter) formatEmptyMessage(message string) string {
	return f.color(text.FgYellow, message)
}

// formatObjectData formats object data as key-value pairs
func (f *TableFormatter) formatObjectData(w io.Writer, data map[string]interface{}) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := f.createTable(w)
	t.AppendHeader(f.header("KEY", "VALUE"))
	for _, key := range keys {
		t.AppendRow(table.Row{key, truncate(fmt.Sprintf("%v", data[key]), maxValueLen)})
	}
	t.Render()
	return nil
}

// formatArrayData formats array data as a simple list
func (f *TableFormatter) formatArrayData(w io.Writer, data []interface{}) error {
	if len(data) == 0 {
		fmt.Fprintln(w, f.formatEmptyMessage("No items found"))
		return nil
	}
	for i, item := range data {
		fmt.Fprintf(w, "  %d. %v\n", i+1, item)
	}
	fmt.Fprintf(w, "\n%s %d items\n", f.color(text.FgHiBlue, "Total:"), len(data))
	return nil
}

func limit(v int) string {
	if v == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", v)
}
