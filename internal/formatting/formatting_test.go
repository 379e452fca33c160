package formatting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"nanoclaw/internal/api"
)

func sampleReport() Report {
	return Report{
		ConfigFile:       "nanoclaw.yaml",
		Valid:            false,
		DefaultComponent: "echo",
		Routes: []RouteRow{
			{Key: "echo.upper", Targets: []string{"echo"}},
			{Key: "memory*", Prefix: true, Targets: []string{"kv", "ghost"}, Missing: []string{"ghost"}},
		},
		Components: []ComponentRow{
			{ID: "echo", Kind: "echo", AutoStart: true, Quota: api.ResourceQuota{MaxConcurrentOperations: 4}},
		},
		Problems: []string{"field 'logging.level': must be one of: debug, info, warn, error"},
	}
}

func TestFactory_CreateFormatter(t *testing.T) {
	f := NewFactory()
	assert.IsType(t, &TableFormatter{}, f.CreateFormatter(Options{Format: FormatTable}))
	assert.IsType(t, &TableFormatter{}, f.CreateFormatter(Options{}))
	assert.IsType(t, &ConsoleFormatter{}, f.CreateFormatter(Options{Format: FormatConsole}))
	assert.IsType(t, &encodingFormatter{}, f.CreateFormatter(Options{Format: FormatJSON}))

	yf := f.CreateFormatter(Options{Format: FormatYAML, Quiet: true})
	assert.True(t, yf.GetOptions().Quiet)
	yf.SetOptions(Options{Format: FormatYAML})
	assert.False(t, yf.GetOptions().Quiet)
}

func TestTableFormatter_FormatReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(Options{}).FormatReport(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "Configuration: nanoclaw.yaml")
	assert.Contains(t, out, "echo.upper")
	assert.Contains(t, out, "prefix")
	assert.Contains(t, out, "(missing: ghost)")
	assert.Contains(t, out, "unlimited")
	assert.Contains(t, out, "1 problems:")
	assert.NotContains(t, out, "\x1b[", "colors are off unless requested")
}

func TestTableFormatter_QuietValid(t *testing.T) {
	report := sampleReport()
	report.Problems = nil
	report.Components = nil

	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(Options{Quiet: true}).FormatReport(&buf, report))
	assert.NotContains(t, buf.String(), "Configuration:")
	assert.NotContains(t, buf.String(), "Configuration is valid")
	assert.Contains(t, buf.String(), "No components configured")
}

func TestEncodingFormatters(t *testing.T) {
	f := NewFactory()

	var jsonBuf bytes.Buffer
	require.NoError(t, f.CreateFormatter(Options{Format: FormatJSON}).FormatReport(&jsonBuf, sampleReport()))
	var fromJSON Report
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &fromJSON))
	assert.Equal(t, sampleReport(), fromJSON)

	var yamlBuf bytes.Buffer
	require.NoError(t, f.CreateFormatter(Options{Format: FormatYAML}).FormatReport(&yamlBuf, sampleReport()))
	var fromYAML Report
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &fromYAML))
	assert.Equal(t, sampleReport(), fromYAML)

	err := f.CreateFormatter(Options{Format: FormatJSON}).FormatData(&jsonBuf, make(chan int))
	assert.Error(t, err)
}

func TestConsoleFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(Options{})
	require.NoError(t, f.FormatReport(&buf, sampleReport()))
	assert.Contains(t, buf.String(), "Routes (2, default echo):")
	assert.Contains(t, buf.String(), "problem: ")

	buf.Reset()
	require.NoError(t, f.FormatData(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestPrettyJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"object", map[string]interface{}{"name": "test", "value": 42}, "{\n  \"name\": \"test\",\n  \"value\": 42\n}"},
		{"array", []string{"a", "b"}, "[\n  \"a\",\n  \"b\"\n]"},
		{"nil", nil, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PrettyJSON(tt.input))
		})
	}

	assert.NotEmpty(t, PrettyJSON(make(chan int)))
}

func TestTableFormatter_FormatData(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter(Options{})

	long := strings.Repeat("é", 150)
	require.NoError(t, f.FormatData(&buf, map[string]interface{}{"b": long, "a": "line\nbreak"}))
	out := buf.String()
	assert.Less(t, strings.Index(out, " a "), strings.Index(out, " b "))
	assert.Contains(t, out, "line break")
	assert.Contains(t, out, strings.Repeat("é", 97)+"...")
	assert.NotContains(t, out, strings.Repeat("é", 98))

	buf.Reset()
	require.NoError(t, f.FormatData(&buf, []interface{}{}))
	assert.Contains(t, buf.String(), "No items found")

	buf.Reset()
	require.NoError(t, f.FormatData(&buf, []interface{}{"x", "y"}))
	assert.Contains(t, buf.String(), "Total: 2 items")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hello world", truncate("hello\n  world", 20))
	assert.Equal(t, "hello w...", truncate("hello world again", 10))
	assert.Equal(t, "a...", truncate("abcdef", 1))
}
