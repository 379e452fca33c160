package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DuplicateComponentError is returned when a component id is registered twice.
// The registry is unchanged after this error.
type DuplicateComponentError struct {
	// ComponentID is the id that is already present
	ComponentID string
}

// Error implements the error interface for DuplicateComponentError.
func (e *DuplicateComponentError) Error() string {
	return fmt.Sprintf("component %s already registered", e.ComponentID)
}

// UnknownComponentError is returned for operations naming an id the registry
// does not hold.
type UnknownComponentError struct {
	ComponentID string
}

// Error implements the error interface for UnknownComponentError.
func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("component %s not found", e.ComponentID)
}

// InvalidStateError represents an illegal lifecycle transition or an operation
// attempted while the component is in the wrong state.
//
// The error includes the operation, the state the component was found in and
// the states from which the operation would have been legal.
type InvalidStateError struct {
	// ComponentID identifies the component
	ComponentID string

	// Operation is the lifecycle verb that was attempted (e.g. "start", "unregister")
	Operation string

	// Current is the state the component was in when the operation was refused
	Current ComponentState

	// Allowed lists the states from which Operation is legal
	Allowed []ComponentState
}

// Error implements the error interface for InvalidStateError.
func (e *InvalidStateError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("cannot %s component %s in state %s (allowed from: %s)",
		e.Operation, e.ComponentID, e.Current, strings.Join(allowed, ", "))
}

// QuotaExceededError is returned when admission is refused for a dispatch.
type QuotaExceededError struct {
	ComponentID string

	// Dimension names the exhausted quota ("concurrency", "throughput", "quota")
	Dimension string

	Limit   int
	Current int
}

// Error implements the error interface for QuotaExceededError.
func (e *QuotaExceededError) Error() string {
	if e.Limit == 0 {
		return fmt.Sprintf("quota exceeded for component %s: %s", e.ComponentID, e.Dimension)
	}
	return fmt.Sprintf("quota exceeded for component %s: %s %d/%d", e.ComponentID, e.Dimension, e.Current, e.Limit)
}

// TimeoutError is returned when a component call does not finish in time.
type TimeoutError struct {
	ComponentID string
	Operation   string
	Timeout     time.Duration
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("component %s timed out after %s during %s", e.ComponentID, e.Timeout, e.Operation)
}

// ComponentHookError wraps any failure raised inside a component's own code:
// a returned error, a panic, or a timeout of one of its hooks.
type ComponentHookError struct {
	ComponentID string

	// Hook names the protocol method (e.g. "initialize", "execute")
	Hook string

	Err error
}

// Error implements the error interface for ComponentHookError.
func (e *ComponentHookError) Error() string {
	return fmt.Sprintf("component %s %s hook failed: %v", e.ComponentID, e.Hook, e.Err)
}

// Unwrap returns the underlying hook failure.
func (e *ComponentHookError) Unwrap() error {
	return e.Err
}

// ErrSelfImproveUnsupported is returned when a component does not implement
// the optional self-improvement hook.
var ErrSelfImproveUnsupported = errors.New("component does not support self-improvement")

// IsDuplicateComponent checks if an error is or wraps a DuplicateComponentError.
func IsDuplicateComponent(err error) bool {
	var target *DuplicateComponentError
	return errors.As(err, &target)
}

// IsUnknownComponent checks if an error is or wraps an UnknownComponentError.
func IsUnknownComponent(err error) bool {
	var target *UnknownComponentError
	return errors.As(err, &target)
}

// IsInvalidState checks if an error is or wraps an InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

// IsQuotaExceeded checks if an error is or wraps a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var target *QuotaExceededError
	return errors.As(err, &target)
}

// IsTimeout checks if an error is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsComponentHookError checks if an error is or wraps a ComponentHookError.
func IsComponentHookError(err error) bool {
	var target *ComponentHookError
	return errors.As(err, &target)
}
