// Package orchestrator is the public face of nanoclaw. It wires the
// component registry, lifecycle manager, resource allocator and request
// router together and reports everything they do to the metrics collector
// and an optional external sink.
//
// # Architecture
//
// Components are built leaf first:
//
//	allocator -> registry -> lifecycle -> router -> Orchestrator
//
// The allocator owns quotas and live usage, the registry owns descriptors
// and component instances, the lifecycle manager is the only writer of
// component status, and the router resolves operations to components and
// fans requests out to them.
//
// # Lifecycle
//
// RegisterComponent adds a component in the Registered state. StartAll
// initializes and starts every registered component in registration order;
// the per-component methods (InitializeComponent, StartComponent,
// StopComponent, ShutdownComponent) drive one component at a time. Shutdown
// drives every component to Shutdown and never stops early.
//
// Hook failures are never returned as Go errors. They are reported in the
// lifecycle.Result, logged, and published as an alert. Go errors are kept
// for usage mistakes such as unknown ids or illegal transitions.
//
// # Dispatch
//
// Dispatch and Execute resolve the targets of an operation, run it on each
// target concurrently with an independent timeout, and aggregate the
// outcome. Each request updates the execution metrics and produces a
// request_completed or request_failed event.
//
// # State change notifications
//
// SubscribeToStateChanges returns a buffered channel that receives every
// status transition. Slow subscribers miss events rather than block the
// lifecycle manager.
//
// # Persistence
//
// When a StateStore is configured, every settled transition is written to
// it and the execution metrics are saved under MetricsSnapshotKey on
// Shutdown.
package orchestrator
