// Package formatting renders nanoclaw reports for the command line.
//
// One report type, Report, describes a loaded configuration: the route
// table, the declared components with their quotas and any validation
// problems. Formatters render it as console text, a go-pretty table, JSON
// or YAML.
package formatting

import (
	"io"

	"nanoclaw/internal/api"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatConsole OutputFormat = "console" // Simple console output
	FormatJSON    OutputFormat = "json"    // JSON output
	FormatYAML    OutputFormat = "yaml"    // YAML output
	FormatTable   OutputFormat = "table"   // Rich table output
)

// Formats lists the accepted --output values.
func Formats() []string {
	return []string{string(FormatTable), string(FormatConsole), string(FormatJSON), string(FormatYAML)}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool // Suppress decorative elements
	Color  bool // Enable colored output
}

// RouteRow is one entry of the route table.
type RouteRow struct {
	Key     string   `json:"key" yaml:"key"`
	Prefix  bool     `json:"prefix" yaml:"prefix"`
	Targets []string `json:"targets" yaml:"targets"`

	// Missing lists targets that no configured component provides.
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// ComponentRow is one declared component.
type ComponentRow struct {
	ID        string            `json:"id" yaml:"id"`
	Kind      string            `json:"kind" yaml:"kind"`
	AutoStart bool              `json:"autoStart" yaml:"autoStart"`
	Quota     api.ResourceQuota `json:"quota" yaml:"quota"`
}

// Report describes a configuration as checked by the CLI.
type Report struct {
	ConfigFile       string         `json:"configFile" yaml:"configFile"`
	Valid            bool           `json:"valid" yaml:"valid"`
	DefaultComponent string         `json:"defaultComponent" yaml:"defaultComponent"`
	Routes           []RouteRow     `json:"routes" yaml:"routes"`
	Components       []ComponentRow `json:"components" yaml:"components"`
	Problems         []string       `json:"problems,omitempty" yaml:"problems,omitempty"`
}

// Formatter renders reports and arbitrary data to a writer.
type Formatter interface {
	FormatReport(w io.Writer, report Report) error

	// FormatData renders generic data such as a health summary.
	FormatData(w io.Writer, data interface{}) error

	SetOptions(options Options)
	GetOptions() Options
}

// Factory creates formatters for different output formats
type Factory interface {
	CreateFormatter(options Options) Formatter
}

// NewFactory creates a new formatter factory
func NewFactory() Factory {
	return &factory{}
}

// factory implements the Factory interface
type factory struct{}

// CreateFormatter creates the appropriate formatter based on options
func (f *factory) CreateFormatter(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return &encodingFormatter{options: options, marshal: marshalJSON}
	case FormatYAML:
		return &encodingFormatter{options: options, marshal: marshalYAML}
	case FormatConsole:
		return &ConsoleFormatter{options: options}
	case FormatTable:
		fallthrough
	default:
		return &TableFormatter{options: options}
	}
}
