package config

import (
	"time"

	"github.com/spf13/viper"

	"nanoclaw/internal/allocator"
	"nanoclaw/internal/api"
	"nanoclaw/internal/router"
)

const (
	// DefaultMetricsListen is the address the Prometheus endpoint binds to.
	DefaultMetricsListen = "127.0.0.1:9464"

	// DefaultMetricsPath is the HTTP path metrics are served on.
	DefaultMetricsPath = "/metrics"

	// DefaultHookTimeout bounds lifecycle hooks.
	DefaultHookTimeout = 30 * time.Second
)

// Default returns the configuration used when no file is present.
func Default() Config {
	totals := allocator.DefaultTotals()
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Orchestrator: OrchestratorConfig{
			DefaultTimeout:   api.DefaultTimeout,
			HookTimeout:      DefaultHookTimeout,
			DefaultComponent: router.DefaultComponent,
		},
		Allocator: AllocatorConfig{
			MemoryMB:            totals.MemoryMB,
			CPUPercent:          totals.CPUPercent,
			ThroughputPerMinute: totals.ThroughputPerMinute,
			NearCapacityRatio:   allocator.DefaultNearCapacityRatio,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  DefaultMetricsListen,
			Path:    DefaultMetricsPath,
		},
	}
}

// Starter returns the configuration written by WriteDefault: the defaults
// plus two built-in components so that a fresh install serves requests.
func Starter() Config {
	cfg := Default()
	cfg.Orchestrator.DefaultComponent = "echo"
	cfg.Orchestrator.Routes = map[string][]string{
		"echo*":   {"echo"},
		"memory*": {"kv"},
	}
	cfg.Components = []ComponentConfig{
		{ID: "echo", Kind: "echo", Quota: api.DefaultQuota(), AutoStart: true},
		{ID: "kv", Kind: "kv", Quota: api.DefaultQuota(), AutoStart: true},
	}
	cfg.Storage = StorageConfig{StateDB: "data/nanoclaw.db", EventsDir: "data/events"}
	return cfg
}

// setDefaults registers every scalar default with viper so that environment
// overrides work for keys that are absent from the file.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault(key("logging", "level"), d.Logging.Level)
	v.SetDefault(key("logging", "format"), d.Logging.Format)

	v.SetDefault(key("orchestrator", "defaultTimeout"), d.Orchestrator.DefaultTimeout)
	v.SetDefault(key("orchestrator", "hookTimeout"), d.Orchestrator.HookTimeout)
	v.SetDefault(key("orchestrator", "defaultComponent"), d.Orchestrator.DefaultComponent)

	v.SetDefault(key("allocator", "memoryMB"), d.Allocator.MemoryMB)
	v.SetDefault(key("allocator", "cpuPercent"), d.Allocator.CPUPercent)
	v.SetDefault(key("allocator", "throughputPerMinute"), d.Allocator.ThroughputPerMinute)
	v.SetDefault(key("allocator", "nearCapacityRatio"), d.Allocator.NearCapacityRatio)
	v.SetDefault(key("allocator", "hostSampling"), d.Allocator.HostSampling)

	v.SetDefault(key("metrics", "enabled"), d.Metrics.Enabled)
	v.SetDefault(key("metrics", "listen"), d.Metrics.Listen)
	v.SetDefault(key("metrics", "path"), d.Metrics.Path)

	v.SetDefault(key("storage", "stateDB"), d.Storage.StateDB)
	v.SetDefault(key("storage", "eventsDir"), d.Storage.EventsDir)
}
