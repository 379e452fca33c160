// Package slice defines the protocol implemented by every component the
// orchestrator manages.
//
// A slice is an independently implemented unit (agent logic, tools, memory,
// messaging) exposing the same surface: metadata accessors, four lifecycle
// hooks, a health check and Execute. Components that accept feedback also
// implement SelfImprover.
//
// BaseComponent can be embedded to get metadata and no-op lifecycle hooks:
//
//	type echo struct {
//	    *slice.BaseComponent
//	}
//
//	func (e *echo) Execute(ctx context.Context, req slice.Request) (slice.Result, error) {
//	    return slice.Result{RequestID: req.RequestID, Success: true, Payload: req.Payload}, nil
//	}
//
// Call and Invoke run component code on a separate goroutine so a caller's
// deadline holds even when the component ignores its context.
package slice
