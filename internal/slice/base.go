package slice

import (
	"context"
	"sync"
)

// BaseComponent provides a base implementation of the Component interface
// that slices can embed to avoid reimplementing metadata, no-op lifecycle
// hooks and health bookkeeping. Embedders supply Execute.
type BaseComponent struct {
	mu           sync.RWMutex
	id           string
	name         string
	version      string
	capabilities []string
	initialized  bool
	running      bool
	health       HealthStatus
	details      map[string]interface{}
}

// NewBaseComponent creates a new base component
func NewBaseComponent(id, name, version string, capabilities []string) *BaseComponent {
	return &BaseComponent{
		id:           id,
		name:         name,
		version:      version,
		capabilities: capabilities,
		health:       HealthUnknown,
	}
}

// ID returns the component id
func (b *BaseComponent) ID() string {
	return b.id
}

// Name returns the display name
func (b *BaseComponent) Name() string {
	return b.name
}

// Version returns the component version
func (b *BaseComponent) Version() string {
	return b.version
}

// Capabilities returns a copy of the supported operation names
func (b *BaseComponent) Capabilities() []string {
	out := make([]string, len(b.capabilities))
	copy(out, b.capabilities)
	return out
}

func (b *BaseComponent) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	b.health = HealthHealthy
	return nil
}

func (b *BaseComponent) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	return nil
}

func (b *BaseComponent) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	return nil
}

func (b *BaseComponent) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	b.initialized = false
	b.health = HealthUnknown
	return nil
}

// IsRunning reports whether Start has been called without a later Stop.
func (b *BaseComponent) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// SetHealth updates the health status and optional detail attributes
// reported by HealthCheck.
func (b *BaseComponent) SetHealth(health HealthStatus, details map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health = health
	b.details = details
}

// HealthCheck returns the current health report
func (b *BaseComponent) HealthCheck(ctx context.Context) HealthReport {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var details map[string]interface{}
	if len(b.details) > 0 {
		details = make(map[string]interface{}, len(b.details))
		for k, v := range b.details {
			details[k] = v
		}
	}

	return HealthReport{
		ComponentID: b.id,
		Status:      b.health,
		Version:     b.version,
		Initialized: b.initialized,
		Details:     details,
	}
}
