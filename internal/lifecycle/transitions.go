package lifecycle

import (
	"slices"

	"nanoclaw/internal/api"
)

// Operation is a lifecycle verb.
type Operation string

const (
	OpInitialize Operation = "initialize"
	OpStart      Operation = "start"
	OpStop       Operation = "stop"
	OpShutdown   Operation = "shutdown"
)

// allowedTransitions is the lifecycle graph. Every edge not listed here is illegal.
var allowedTransitions = map[api.ComponentState][]api.ComponentState{
	api.StateRegistered:   {api.StateInitializing, api.StateShuttingDown},
	api.StateInitializing: {api.StateInitialized, api.StateFailed},
	api.StateInitialized:  {api.StateStarting, api.StateShuttingDown},
	api.StateStarting:     {api.StateRunning, api.StateFailed},
	api.StateRunning:      {api.StateStopping},
	api.StateStopping:     {api.StateStopped},
	api.StateStopped:      {api.StateShuttingDown},
	api.StateShuttingDown: {api.StateShutdown},
	api.StateFailed:       {api.StateShuttingDown},
	api.StateShutdown:     {},
}

// CanTransition reports whether the lifecycle graph has an edge from -> to.
func CanTransition(from, to api.ComponentState) bool {
	return slices.Contains(allowedTransitions[from], to)
}

// step describes how one operation moves a component through the graph.
type step struct {
	from      []api.ComponentState
	transient api.ComponentState
	success   api.ComponentState

	// onFailure is where a failed hook leaves the component.
	onFailure api.ComponentState
}

var steps = map[Operation]step{
	OpInitialize: {
		from:      []api.ComponentState{api.StateRegistered},
		transient: api.StateInitializing,
		success:   api.StateInitialized,
		onFailure: api.StateFailed,
	},
	OpStart: {
		from:      []api.ComponentState{api.StateInitialized},
		transient: api.StateStarting,
		success:   api.StateRunning,
		onFailure: api.StateFailed,
	},
	OpStop: {
		from:      []api.ComponentState{api.StateRunning},
		transient: api.StateStopping,
		success:   api.StateStopped,
		onFailure: api.StateStopped,
	},
	OpShutdown: {
		from: []api.ComponentState{
			api.StateRegistered,
			api.StateInitialized,
			api.StateStopped,
			api.StateFailed,
		},
		transient: api.StateShuttingDown,
		success:   api.StateShutdown,
		onFailure: api.StateShutdown,
	},
}

// AllowedFrom returns the states an operation may start from. Shutdown also
// accepts Running, which it handles by stopping first.
func AllowedFrom(op Operation) []api.ComponentState {
	from := slices.Clone(steps[op].from)
	if op == OpShutdown {
		from = append(from, api.StateRunning)
	}
	return from
}
