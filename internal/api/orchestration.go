package api

import (
	"maps"
	"time"
)

// DefaultTimeout is applied to a dispatch when the request does not carry one.
const DefaultTimeout = 30 * time.Second

// Per-component error messages recorded in OrchestrationResponse.Errors.
const (
	ErrMsgNotRunning    = "component not running"
	ErrMsgQuotaExceeded = "quota exceeded"
	ErrMsgTimeout       = "timeout"
)

// OrchestrationRequest is an operation submitted to the orchestrator.
type OrchestrationRequest struct {
	// RequestID is generated when empty.
	RequestID string                 `json:"requestId,omitempty"`
	Operation string                 `json:"operation"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`

	// Timeout bounds each individual dispatch. Zero means DefaultTimeout.
	Timeout time.Duration `json:"timeout,omitempty"`

	// RequiredComponents, when set, replaces route resolution.
	RequiredComponents []string `json:"requiredComponents,omitempty"`
}

// ExecutionRequest is what a single component receives for one dispatch.
// Payload and Context are private copies; the component may modify them.
type ExecutionRequest struct {
	RequestID string
	Operation string
	Payload   map[string]interface{}
	Context   map[string]interface{}
}

// NewExecutionRequest builds the per-component request, copying the maps so
// concurrent targets never share them.
func NewExecutionRequest(req OrchestrationRequest) ExecutionRequest {
	return ExecutionRequest{
		RequestID: req.RequestID,
		Operation: req.Operation,
		Payload:   cloneMap(req.Payload),
		Context:   cloneMap(req.Context),
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return make(map[string]interface{})
	}
	return maps.Clone(m)
}

// ExecutionResult is a component's answer to one dispatch.
type ExecutionResult struct {
	RequestID    string                 `json:"requestId"`
	Success      bool                   `json:"success"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
}

// OrchestrationResponse aggregates the outcome of one request across its targets.
// The keys of Results and Errors together are exactly Targets.
type OrchestrationResponse struct {
	RequestID string                     `json:"requestId"`
	Operation string                     `json:"operation"`
	Success   bool                       `json:"success"`
	Targets   []string                   `json:"targets"`
	Results   map[string]ExecutionResult `json:"results"`
	Errors    map[string]string          `json:"errors"`
	Latency   time.Duration              `json:"latency"`

	// Fallback is set when no route matched and the default component was used.
	Fallback bool     `json:"fallback,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// LatencyMs returns the request latency in milliseconds.
func (r OrchestrationResponse) LatencyMs() float64 {
	return float64(r.Latency) / float64(time.Millisecond)
}

// ComponentCounters holds per-component dispatch outcomes.
type ComponentCounters struct {
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// ExecutionMetrics is a snapshot of the process-wide execution counters.
type ExecutionMetrics struct {
	TotalRequests     int64                        `json:"totalRequests"`
	TotalErrors       int64                        `json:"totalErrors"`
	CumulativeLatency time.Duration                `json:"cumulativeLatency"`
	Components        map[string]ComponentCounters `json:"components"`
}

// AverageLatency returns zero when no request has completed.
func (m ExecutionMetrics) AverageLatency() time.Duration {
	if m.TotalRequests == 0 {
		return 0
	}
	return m.CumulativeLatency / time.Duration(m.TotalRequests)
}

// ErrorRate returns the fraction of requests that did not fully succeed.
func (m ExecutionMetrics) ErrorRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.TotalErrors) / float64(m.TotalRequests)
}
