package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanoclaw/internal/router"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	assert.Empty(t, Default().Validate())
	assert.Empty(t, Starter().Validate())
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
logging:
  level: debug
orchestrator:
  defaultTimeout: 5s
  defaultComponent: echo
  routes:
    Memory.Store: [kv]
    "comm*": [echo, kv]
components:
  - id: echo
    kind: echo
    autoStart: true
  - id: kv
    kind: kv
    quota:
      maxConcurrentOperations: 1
      maxThroughputPerMinute: 60
metrics:
  enabled: false
`)

	cfg, used, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 5*time.Second, cfg.Orchestrator.DefaultTimeout)
	assert.Equal(t, DefaultHookTimeout, cfg.Orchestrator.HookTimeout)
	assert.Equal(t, []string{"kv"}, cfg.Orchestrator.Routes["Memory.Store"])
	assert.Equal(t, []string{"echo", "kv"}, cfg.Orchestrator.Routes["comm*"])

	require.Len(t, cfg.Components, 2)
	assert.True(t, cfg.Components[0].AutoStart)
	assert.Equal(t, 1, cfg.Components[1].Quota.MaxConcurrentOperations)
	assert.Equal(t, 60, cfg.Components[1].Quota.MaxThroughputPerMinute)
	assert.False(t, cfg.Metrics.Enabled)

	table, err := cfg.RouteTable()
	require.NoError(t, err)
	targets, fallback := table.Resolve("Memory.Store")
	assert.False(t, fallback)
	assert.Equal(t, []string{"kv"}, targets)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "logging:\n  level: info\n")
	t.Setenv("NANOCLAW_LOGGING_LEVEL", "warn")
	t.Setenv("NANOCLAW_ORCHESTRATOR_HOOKTIMEOUT", "2s")
	t.Setenv("NANOCLAW_METRICS_LISTEN", "0.0.0.0:9999")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2*time.Second, cfg.Orchestrator.HookTimeout)
	assert.Equal(t, "0.0.0.0:9999", cfg.Metrics.Listen)
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrorTypeIO, ce.ErrorType)
}

func TestLoad_Malformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "orchestrator: [unclosed\n")
	_, _, err := Load(path)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrorTypeParse, ce.ErrorType)
}

func TestLoad_CollectsAllValidationProblems(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
logging:
  level: loud
  format: xml
allocator:
  nearCapacityRatio: 2
components:
  - id: a
    kind: teleporter
  - id: a
    kind: echo
    quota:
      maxCpuPercent: 150
`)

	_, _, err := Load(path)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	fields := make([]string, 0, len(ce.Problems))
	for _, p := range ce.Problems {
		fields = append(fields, p.Field)
	}
	assert.ElementsMatch(t, []string{
		"logging.level",
		"logging.format",
		"allocator.nearCapacityRatio",
		"components[0].kind",
		"components[1].id",
		"components[1].quota",
	}, fields)
	assert.Contains(t, ce.DetailedError(), "6 problems")
}

func TestValidate_Routes(t *testing.T) {
	cfg := Default()
	cfg.Orchestrator.Routes = map[string][]string{"*": {"a"}}
	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "orchestrator.routes", errs[0].Field)
}

func TestRouteTable_DefaultsWhenEmpty(t *testing.T) {
	table, err := Default().RouteTable()
	require.NoError(t, err)
	assert.Equal(t, router.DefaultComponent, table.Default())
	targets, _ := table.Resolve("comm.send")
	assert.Equal(t, []string{"slice_communication", "slice_session"}, targets)
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ConfigFileName)
	require.NoError(t, WriteDefault(path, false))
	assert.Error(t, WriteDefault(path, false))
	require.NoError(t, WriteDefault(path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "defaultTimeout: 30s")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	starter := Starter()
	assert.Equal(t, starter.Orchestrator, cfg.Orchestrator)
	assert.Equal(t, starter.Components, cfg.Components)
	assert.Equal(t, starter.Storage, cfg.Storage)
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "orchestrator:\n  defaultComponent: a\n")

	var mu sync.Mutex
	var got []Config
	var errs []error
	w, err := Watch(path, WatcherOptions{
		Debounce:     20 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
		OnChange: func(c Config) {
			mu.Lock()
			got = append(got, c)
			mu.Unlock()
		},
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer w.Stop()

	// let the poller record the initial mtime on coarse filesystems
	time.Sleep(50 * time.Millisecond)
	writeFile(t, dir, "orchestrator:\n  defaultComponent: b\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].Orchestrator.DefaultComponent == "b"
	}, 3*time.Second, 20*time.Millisecond)

	writeFile(t, dir, "logging:\n  level: loud\n")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) > 0
	}, 3*time.Second, 20*time.Millisecond)

	w.Stop()
	w.Stop()
}
