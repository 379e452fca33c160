package slice

import (
	"context"

	"nanoclaw/internal/api"
)

// Use API package types instead of duplicating them
type Request = api.ExecutionRequest
type Result = api.ExecutionResult
type HealthStatus = api.HealthStatus

const (
	HealthUnknown   = api.HealthUnknown
	HealthHealthy   = api.HealthHealthy
	HealthDegraded  = api.HealthDegraded
	HealthUnhealthy = api.HealthUnhealthy
)

// Component is the protocol every slice implements. The orchestrator drives
// the lifecycle hooks and dispatches operations through Execute; any hook may
// fail and the caller converts failures into typed results.
type Component interface {
	// Component metadata
	ID() string
	Name() string
	Version() string
	Capabilities() []string

	// Lifecycle hooks
	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Shutdown(ctx context.Context) error

	// HealthCheck reports the component's own view of its health.
	// It never reflects quota usage.
	HealthCheck(ctx context.Context) HealthReport

	// Execute handles one operation. A returned error is treated like a
	// hook failure; a Result with Success=false is a component-reported failure.
	Execute(ctx context.Context, req Request) (Result, error)
}

// Factory builds a component instance. The registry invokes it exactly once
// per registration.
type Factory func() (Component, error)

// HealthReport is what a component returns from HealthCheck.
type HealthReport struct {
	ComponentID    string                 `json:"componentId"`
	Status         HealthStatus           `json:"status"`
	Version        string                 `json:"version"`
	Initialized    bool                   `json:"initialized"`
	StoreConnected bool                   `json:"storeConnected"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// Feedback is passed verbatim to SelfImprove.
type Feedback map[string]interface{}

// Improvements is returned verbatim from SelfImprove. The orchestrator
// never interprets its contents.
type Improvements struct {
	Items []map[string]interface{} `json:"improvements"`
}

// SelfImprover is an optional interface for components that accept
// feedback and adjust themselves.
type SelfImprover interface {
	SelfImprove(ctx context.Context, feedback Feedback) (Improvements, error)
}
