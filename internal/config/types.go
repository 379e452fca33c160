package config

import (
	"time"

	"nanoclaw/internal/api"
)

// Config is the top-level configuration structure for nanoclaw.
type Config struct {
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Allocator    AllocatorConfig    `yaml:"allocator" mapstructure:"allocator"`
	Components   []ComponentConfig  `yaml:"components" mapstructure:"components"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
	Storage      StorageConfig      `yaml:"storage" mapstructure:"storage"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// OrchestratorConfig holds timeouts and routing.
type OrchestratorConfig struct {
	// DefaultTimeout applies to requests without their own timeout.
	DefaultTimeout time.Duration `yaml:"defaultTimeout" mapstructure:"defaultTimeout"`

	// HookTimeout bounds every lifecycle hook.
	HookTimeout time.Duration `yaml:"hookTimeout" mapstructure:"hookTimeout"`

	// DefaultComponent receives operations that match no route.
	DefaultComponent string `yaml:"defaultComponent" mapstructure:"defaultComponent"`

	// Routes maps operation names, or prefixes ending in "*", to component ids.
	// When empty the built-in route set is used.
	Routes map[string][]string `yaml:"routes,omitempty" mapstructure:"routes"`
}

// AllocatorConfig describes process capacity.
type AllocatorConfig struct {
	MemoryMB            int     `yaml:"memoryMB" mapstructure:"memoryMB"`
	CPUPercent          int     `yaml:"cpuPercent" mapstructure:"cpuPercent"`
	ThroughputPerMinute int     `yaml:"throughputPerMinute" mapstructure:"throughputPerMinute"`
	NearCapacityRatio   float64 `yaml:"nearCapacityRatio" mapstructure:"nearCapacityRatio"`

	// HostSampling adds a gopsutil host reading to the resource summary.
	HostSampling bool `yaml:"hostSampling" mapstructure:"hostSampling"`
}

// ComponentConfig declares one built-in component to register at startup.
type ComponentConfig struct {
	ID        string            `yaml:"id" mapstructure:"id"`
	Kind      string            `yaml:"kind" mapstructure:"kind"`
	Quota     api.ResourceQuota `yaml:"quota" mapstructure:"quota"`
	AutoStart bool              `yaml:"autoStart" mapstructure:"autoStart"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// StorageConfig locates persisted state. Empty paths disable the feature.
type StorageConfig struct {
	StateDB   string `yaml:"stateDB" mapstructure:"stateDB"`
	EventsDir string `yaml:"eventsDir" mapstructure:"eventsDir"`
}
