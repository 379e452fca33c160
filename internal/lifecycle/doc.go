// Package lifecycle implements the component state machine.
//
// States advance Registered → Initializing → Initialized → Starting →
// Running → Stopping → Stopped → ShuttingDown → Shutdown. A failing
// initialize or start hook moves the component to Failed; a failing stop or
// shutdown hook still completes the transition.
//
// Each operation claims its transient state atomically through the registry,
// so two concurrent calls for the same component cannot both run a hook.
// ShutdownAll waits for such a hook to finish rather than skipping the
// component.
package lifecycle
