package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nanoclaw/internal/api"
	"nanoclaw/internal/events"
	"nanoclaw/internal/registry"
	"nanoclaw/internal/slice"
	"nanoclaw/pkg/logging"
)

// DefaultHookTimeout bounds each lifecycle hook when no timeout is configured.
const DefaultHookTimeout = 30 * time.Second

// Result is the outcome of one lifecycle operation on one component.
// Err is set when the component's own hook failed; it is always a
// *api.ComponentHookError (or, from ShutdownAll, a usage error).
type Result struct {
	ComponentID string             `json:"componentId"`
	Operation   Operation          `json:"operation"`
	From        api.ComponentState `json:"from"`
	To          api.ComponentState `json:"to"`
	Duration    time.Duration      `json:"duration"`
	Err         error              `json:"-"`
}

// OK reports whether the hook succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Options configures a Manager.
type Options struct {
	HookTimeout time.Duration
}

// Manager drives components through the lifecycle graph. Usage errors
// (unknown id, illegal transition) are returned as Go errors; failures
// raised by a component's hook are reported in Result.Err.
type Manager struct {
	registry    *registry.Registry
	emitter     *events.Emitter
	hookTimeout time.Duration
}

// NewManager creates a lifecycle manager. emitter may be nil.
func NewManager(reg *registry.Registry, emitter *events.Emitter, opts Options) *Manager {
	if opts.HookTimeout <= 0 {
		opts.HookTimeout = DefaultHookTimeout
	}
	return &Manager{
		registry:    reg,
		emitter:     emitter,
		hookTimeout: opts.HookTimeout,
	}
}

// Initialize runs the component's initialize hook. Legal only from Registered.
func (m *Manager) Initialize(ctx context.Context, id string) (Result, error) {
	return m.run(ctx, id, OpInitialize)
}

// Start runs the component's start hook. Legal only from Initialized.
func (m *Manager) Start(ctx context.Context, id string) (Result, error) {
	return m.run(ctx, id, OpStart)
}

// Stop runs the component's stop hook. Legal only from Running. The
// component ends in Stopped even when the hook fails.
func (m *Manager) Stop(ctx context.Context, id string) (Result, error) {
	return m.run(ctx, id, OpStop)
}

// Shutdown drives a component to Shutdown from any stable state other than
// Shutdown itself. A Running component is stopped first. The component ends
// in Shutdown even when a hook fails.
func (m *Manager) Shutdown(ctx context.Context, id string) (Result, error) {
	status, err := m.registry.Status(id)
	if err != nil {
		return Result{}, err
	}

	if status != api.StateRunning {
		return m.run(ctx, id, OpShutdown)
	}

	stopResult, err := m.Stop(ctx, id)
	if err != nil {
		return stopResult, err
	}
	res, err := m.run(ctx, id, OpShutdown)
	if err != nil {
		return res, err
	}
	res.From = api.StateRunning
	res.Duration += stopResult.Duration
	res.Err = errors.Join(stopResult.Err, res.Err)
	return res, nil
}

// ShutdownAll shuts down every registered component in registration order.
// It never stops early: usage errors for individual components are folded
// into that component's Result.Err. Components already in Shutdown are
// reported as successful no-ops. A component mid-hook from a concurrent
// call is shut down once that hook returns.
func (m *Manager) ShutdownAll(ctx context.Context) []Result {
	ids := m.registry.IDs()
	results := make([]Result, 0, len(ids))

	for _, id := range ids {
		status, err := m.registry.Status(id)
		if err != nil {
			// unregistered concurrently
			continue
		}
		results = append(results, m.shutdownSettled(ctx, id, status))
	}

	logging.Info("Lifecycle", "Shut down %d components", len(results))
	return results
}

// settlePoll is how often ShutdownAll rechecks a component whose hook is
// still running.
const settlePoll = 5 * time.Millisecond

// shutdownSettled shuts id down, first waiting out any hook another caller
// is running. A hook returns within the hook timeout, and a concurrent
// Shutdown of a Running component runs two hooks, so the wait is bounded
// by twice the hook timeout or ctx, whichever ends first.
func (m *Manager) shutdownSettled(ctx context.Context, id string, status api.ComponentState) Result {
	deadline := time.Now().Add(2 * m.hookTimeout)
	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()

	for {
		if status == api.StateShutdown {
			return Result{ComponentID: id, Operation: OpShutdown, From: status, To: status}
		}

		var (
			res Result
			err error
		)
		if !status.IsTransient() {
			res, err = m.Shutdown(ctx, id)
			if err == nil {
				return res
			}
			if !api.IsInvalidState(err) {
				return Result{ComponentID: id, Operation: OpShutdown, From: status, To: status, Err: err}
			}
		} else {
			err = &api.InvalidStateError{ComponentID: id, Operation: string(OpShutdown), Current: status, Allowed: AllowedFrom(OpShutdown)}
		}

		// Lost a race with a concurrent hook; wait for it to finish.
		if time.Now().After(deadline) {
			return Result{ComponentID: id, Operation: OpShutdown, From: status, To: status, Err: err}
		}
		select {
		case <-ctx.Done():
			return Result{ComponentID: id, Operation: OpShutdown, From: status, To: status, Err: errors.Join(err, ctx.Err())}
		case <-ticker.C:
		}

		next, serr := m.registry.Status(id)
		if serr != nil {
			return Result{ComponentID: id, Operation: OpShutdown, From: status, To: status, Err: serr}
		}
		status = next
	}
}

// IsRunning reports whether id is in Running. Unknown ids are not running.
func (m *Manager) IsRunning(id string) bool {
	status, err := m.registry.Status(id)
	return err == nil && status == api.StateRunning
}

// HookTimeout returns the per-hook timeout.
func (m *Manager) HookTimeout() time.Duration {
	return m.hookTimeout
}

func (m *Manager) run(ctx context.Context, id string, op Operation) (Result, error) {
	st := steps[op]

	prev, ok, err := m.registry.CompareAndSetStatus(id, st.from, st.transient)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, &api.InvalidStateError{
			ComponentID: id,
			Operation:   string(op),
			Current:     prev,
			Allowed:     AllowedFrom(op),
		}
	}

	component, err := m.registry.Component(id)
	if err != nil {
		return Result{}, err
	}

	logging.Debug("Lifecycle", "Running %s hook for %s", op, id)
	start := time.Now()
	hookErr := m.invokeHook(ctx, id, op, component)
	elapsed := time.Since(start)

	target := st.success
	if hookErr != nil {
		target = st.onFailure
	}
	if _, ok, err := m.registry.CompareAndSetStatus(id, []api.ComponentState{st.transient}, target); err != nil || !ok {
		// Unreachable while the transient state blocks unregister; log it if it happens.
		logging.Error("Lifecycle", err, "Component %s left %s unexpectedly during %s", id, st.transient, op)
	}

	res := Result{
		ComponentID: id,
		Operation:   op,
		From:        prev,
		To:          target,
		Duration:    elapsed,
		Err:         hookErr,
	}

	data := events.EventData{
		ComponentID: id,
		Operation:   string(op),
		From:        string(prev),
		To:          string(target),
		Duration:    elapsed,
	}

	if hookErr != nil {
		m.registry.SetLastError(id, hookErr)
		logging.Error("Lifecycle", hookErr, "%s failed for component %s, now %s", op, id, target)
		data.Error = hookErr.Error()
		m.emitter.Alert(events.AlertError, events.ReasonHookFailed, fmt.Sprintf("Component %s %s failed", id, op), data)
	} else {
		logging.Info("Lifecycle", "Component %s %s -> %s", id, prev, target)
	}
	m.emitter.Emit(events.ReasonStateChanged, data)

	return res, nil
}

func (m *Manager) invokeHook(ctx context.Context, id string, op Operation, c slice.Component) error {
	hookCtx, cancel := context.WithTimeout(ctx, m.hookTimeout)
	defer cancel()

	var hook func(context.Context) error
	switch op {
	case OpInitialize:
		hook = c.Initialize
	case OpStart:
		hook = c.Start
	case OpStop:
		hook = c.Stop
	case OpShutdown:
		hook = c.Shutdown
	}

	err := slice.Invoke(hookCtx, hook)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = &api.TimeoutError{ComponentID: id, Operation: string(op), Timeout: m.hookTimeout}
	}
	return &api.ComponentHookError{ComponentID: id, Hook: string(op), Err: err}
}
