package api

import (
	"fmt"
	"time"
)

// ComponentState represents a component's position in the lifecycle graph.
type ComponentState string

const (
	StateRegistered   ComponentState = "Registered"
	StateInitializing ComponentState = "Initializing"
	StateInitialized  ComponentState = "Initialized"
	StateStarting     ComponentState = "Starting"
	StateRunning      ComponentState = "Running"
	StateStopping     ComponentState = "Stopping"
	StateStopped      ComponentState = "Stopped"
	StateShuttingDown ComponentState = "ShuttingDown"
	StateShutdown     ComponentState = "Shutdown"
	StateFailed       ComponentState = "Failed"
)

// IsTransient reports whether a hook is currently running for a component in this state.
func (s ComponentState) IsTransient() bool {
	switch s {
	case StateInitializing, StateStarting, StateStopping, StateShuttingDown:
		return true
	default:
		return false
	}
}

// HealthStatus represents the health status reported by a component's own health check.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// ResourceQuota is the resource ceiling attached to a component at registration time.
// A zero value in any dimension means the dimension is not limited.
type ResourceQuota struct {
	MaxMemoryMB             int `json:"maxMemoryMB" yaml:"maxMemoryMB" mapstructure:"maxMemoryMB"`
	MaxCPUPercent           int `json:"maxCpuPercent" yaml:"maxCpuPercent" mapstructure:"maxCpuPercent"`
	MaxThroughputPerMinute  int `json:"maxThroughputPerMinute" yaml:"maxThroughputPerMinute" mapstructure:"maxThroughputPerMinute"`
	MaxConcurrentOperations int `json:"maxConcurrentOperations" yaml:"maxConcurrentOperations" mapstructure:"maxConcurrentOperations"`
}

// DefaultQuota returns the quota applied to components registered without one.
func DefaultQuota() ResourceQuota {
	return ResourceQuota{
		MaxMemoryMB:             512,
		MaxCPUPercent:           80,
		MaxThroughputPerMinute:  10000,
		MaxConcurrentOperations: 10,
	}
}

// IsZero reports whether no dimension is set.
func (q ResourceQuota) IsZero() bool {
	return q == ResourceQuota{}
}

// Validate rejects negative limits and CPU percentages above 100.
func (q ResourceQuota) Validate() error {
	switch {
	case q.MaxMemoryMB < 0:
		return fmt.Errorf("maxMemoryMB must not be negative, got %d", q.MaxMemoryMB)
	case q.MaxCPUPercent < 0 || q.MaxCPUPercent > 100:
		return fmt.Errorf("maxCpuPercent must be between 0 and 100, got %d", q.MaxCPUPercent)
	case q.MaxThroughputPerMinute < 0:
		return fmt.Errorf("maxThroughputPerMinute must not be negative, got %d", q.MaxThroughputPerMinute)
	case q.MaxConcurrentOperations < 0:
		return fmt.Errorf("maxConcurrentOperations must not be negative, got %d", q.MaxConcurrentOperations)
	}
	return nil
}

// ResourceUsage holds the live counters for one component.
type ResourceUsage struct {
	MemoryMB           int `json:"memoryMB"`
	CPUPercent         int `json:"cpuPercent"`
	InFlight           int `json:"inFlight"`
	ThroughputInWindow int `json:"throughputInWindow"`
}

// ComponentDescriptor is the registry's record of a component.
type ComponentDescriptor struct {
	ID             string         `json:"id"`
	DisplayName    string         `json:"displayName"`
	Version        string         `json:"version"`
	Quota          ResourceQuota  `json:"quota"`
	Status         ComponentState `json:"status"`
	Capabilities   []string       `json:"capabilities,omitempty"`
	RegisteredAt   time.Time      `json:"registeredAt"`
	LastTransition time.Time      `json:"lastTransition"`
	LastError      string         `json:"lastError,omitempty"`
}

// ComponentStatus is one row of the orchestrator status table.
type ComponentStatus struct {
	ComponentDescriptor
	Usage        ResourceUsage `json:"usage"`
	NearCapacity bool          `json:"nearCapacity"`
}
