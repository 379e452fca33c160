// Package api defines the shared vocabulary of nanoclaw's orchestrator.
//
// Every other internal package imports api and nothing else from the tree
// for its data types, which keeps the registry, lifecycle manager, allocator
// and router free of dependencies on one another's internals.
//
// # Types
//
//   - ComponentState, HealthStatus: the lifecycle graph and self-reported health
//   - ResourceQuota, ResourceUsage: admission limits and live counters
//   - ComponentDescriptor, ComponentStatus: registry records and status rows
//   - OrchestrationRequest, OrchestrationResponse: the routing entry point
//   - ExecutionRequest, ExecutionResult: what one component sees per dispatch
//   - ExecutionMetrics: cumulative request counters
//
// # Errors
//
// Failures are reported with typed errors so callers can branch without
// matching message text:
//
//	if api.IsInvalidState(err) {
//	    // the component is in the wrong state for this operation
//	}
//
// ComponentHookError wraps anything raised by component code itself and
// supports errors.Unwrap.
package api
