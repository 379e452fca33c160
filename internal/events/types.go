package events

import (
	"time"
)

// EventType represents the severity of an event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason is the event type string handed to the sink.
type EventReason string

// Component registry events
const (
	// ReasonComponentRegistered indicates a component was added to the registry.
	ReasonComponentRegistered EventReason = "component_registered"

	// ReasonComponentUnregistered indicates a component was removed from the registry.
	ReasonComponentUnregistered EventReason = "component_unregistered"
)

// Lifecycle events
const (
	// ReasonStateChanged indicates a lifecycle transition completed.
	ReasonStateChanged EventReason = "state_changed"

	// ReasonHookFailed indicates a lifecycle hook returned an error, panicked or timed out.
	ReasonHookFailed EventReason = "hook_failed"
)

// Routing events
const (
	// ReasonRouteFallback indicates no route matched and the default component was used.
	ReasonRouteFallback EventReason = "route_fallback"

	// ReasonRequestCompleted indicates every target of a request succeeded.
	ReasonRequestCompleted EventReason = "request_completed"

	// ReasonRequestFailed indicates at least one target of a request failed.
	ReasonRequestFailed EventReason = "request_failed"

	// ReasonRoutesUpdated indicates the route table was replaced.
	ReasonRoutesUpdated EventReason = "routes_updated"
)

// Resource and orchestrator events
const (
	ReasonQuotaUpdated         EventReason = "quota_updated"
	ReasonNearCapacity         EventReason = "near_capacity"
	ReasonSelfImproved         EventReason = "self_improved"
	ReasonOrchestratorStarted  EventReason = "orchestrator_started"
	ReasonOrchestratorShutdown EventReason = "orchestrator_shutdown"
)

// Alert types passed to Sink.PublishAlert.
const (
	AlertError   = "error"
	AlertWarning = "warning"
	AlertInfo    = "info"
)

// EventData holds contextual information for event message templating.
type EventData struct {
	// ComponentID is the component involved in the event. Orchestrator-wide
	// events use OrchestratorID.
	ComponentID string

	// Operation is the request operation or lifecycle verb.
	Operation string

	// From and To describe a lifecycle transition.
	From string
	To   string

	// RequestID identifies the request for routing events.
	RequestID string

	// Targets lists the components a request was dispatched to.
	Targets []string

	// Failed counts targets that did not succeed.
	Failed int

	// Error contains error information for failure events.
	Error string

	// Duration is the duration of an operation.
	Duration time.Duration
}

// OrchestratorID is the component id used for events that concern the
// orchestrator as a whole.
const OrchestratorID = "orchestrator"

// getEventType returns the appropriate EventType for a given EventReason.
func getEventType(reason EventReason) EventType {
	switch reason {
	case ReasonHookFailed,
		ReasonRouteFallback,
		ReasonRequestFailed,
		ReasonNearCapacity:
		return EventTypeWarning
	default:
		return EventTypeNormal
	}
}
