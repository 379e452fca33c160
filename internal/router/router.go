package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nanoclaw/internal/api"
	"nanoclaw/internal/events"
	"nanoclaw/internal/slice"
	"nanoclaw/pkg/logging"
)

// ComponentSource looks up live component instances.
type ComponentSource interface {
	Component(id string) (slice.Component, error)
}

// RunningChecker reports whether a component may receive traffic.
type RunningChecker interface {
	IsRunning(id string) bool
}

// Admitter performs admission control. Every successful Admit is followed by
// exactly one Release.
type Admitter interface {
	Admit(id string) error
	Release(id string)
}

// Options configures a Router.
type Options struct {
	// DefaultTimeout applies to requests without a timeout.
	DefaultTimeout time.Duration
}

// Router resolves operations to components and dispatches requests to them
// concurrently.
type Router struct {
	table atomic.Pointer[RouteTable]

	components ComponentSource
	lifecycle  RunningChecker
	admitter   Admitter
	emitter    *events.Emitter

	defaultTimeout time.Duration
	newRequestID   func() string
}

// New creates a router. emitter may be nil.
func New(table *RouteTable, components ComponentSource, lifecycle RunningChecker, admitter Admitter, emitter *events.Emitter, opts Options) *Router {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = api.DefaultTimeout
	}
	if table == nil {
		table, _ = NewRouteTable("", nil)
	}
	r := &Router{
		components:     components,
		lifecycle:      lifecycle,
		admitter:       admitter,
		emitter:        emitter,
		defaultTimeout: opts.DefaultTimeout,
		newRequestID:   uuid.NewString,
	}
	r.table.Store(table)
	return r
}

// SetRoutes atomically replaces the route table. In-flight dispatches keep
// the table they resolved against.
func (r *Router) SetRoutes(table *RouteTable) {
	if table == nil {
		return
	}
	r.table.Store(table)
	logging.Info("Router", "Route table replaced (%d routes, default %q)", len(table.Entries()), table.Default())
}

// Routes returns the current route table.
func (r *Router) Routes() *RouteTable {
	return r.table.Load()
}

// Resolve returns the targets for operation and whether the default was used.
func (r *Router) Resolve(operation string) ([]string, bool) {
	return r.table.Load().Resolve(operation)
}

// Dispatch executes req on every target and aggregates the outcome. It never
// returns an error: every per-component failure is recorded in
// response.Errors and response.Success is true only if every target
// succeeded.
func (r *Router) Dispatch(ctx context.Context, req api.OrchestrationRequest) api.OrchestrationResponse {
	start := time.Now()

	if req.RequestID == "" {
		req.RequestID = r.newRequestID()
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	resp := api.OrchestrationResponse{
		RequestID: req.RequestID,
		Operation: req.Operation,
		Results:   make(map[string]api.ExecutionResult),
		Errors:    make(map[string]string),
	}

	var targets []string
	if len(req.RequiredComponents) > 0 {
		targets = dedupe(req.RequiredComponents)
	} else {
		var fallback bool
		targets, fallback = r.Resolve(req.Operation)
		if fallback {
			resp.Fallback = true
			var warning string
			if len(targets) == 0 {
				warning = fmt.Sprintf("no route for operation %q and no default component configured", req.Operation)
			} else {
				warning = fmt.Sprintf("no route for operation %q, using default component %s", req.Operation, targets[0])
				r.emitter.Emit(events.ReasonRouteFallback, events.EventData{
					ComponentID: targets[0],
					Operation:   req.Operation,
					RequestID:   req.RequestID,
				})
			}
			resp.Warnings = append(resp.Warnings, warning)
			logging.Warn("Router", "Request %s: %s", req.RequestID, warning)
		}
	}
	resp.Targets = targets

	var mu sync.Mutex
	var g errgroup.Group
	for _, id := range targets {
		g.Go(func() error {
			result, errMsg := r.dispatchOne(ctx, req, id, timeout)

			mu.Lock()
			defer mu.Unlock()
			if errMsg != "" {
				resp.Errors[id] = errMsg
			} else {
				resp.Results[id] = result
			}
			return nil
		})
	}
	_ = g.Wait()

	resp.Success = len(targets) > 0 && len(resp.Errors) == 0
	resp.Latency = time.Since(start)

	logging.Debug("Router", "Request %s (%s) dispatched to %d components: success=%t, latency=%s",
		req.RequestID, req.Operation, len(targets), resp.Success, resp.Latency)
	return resp
}

// dispatchOne runs one target. It returns either a result or a non-empty
// error message.
func (r *Router) dispatchOne(ctx context.Context, req api.OrchestrationRequest, id string, timeout time.Duration) (result api.ExecutionResult, errMsg string) {
	start := time.Now()
	defer func() {
		r.emitter.TrackExecution(id, time.Since(start), errMsg == "")
	}()

	if !r.lifecycle.IsRunning(id) {
		return result, api.ErrMsgNotRunning
	}

	if err := r.admitter.Admit(id); err != nil {
		logging.Debug("Router", "Admission refused for %s on request %s: %v", id, req.RequestID, err)
		if api.IsQuotaExceeded(err) {
			return result, api.ErrMsgQuotaExceeded
		}
		return result, err.Error()
	}
	defer r.admitter.Release(id)

	component, err := r.components.Component(id)
	if err != nil {
		return result, err.Error()
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execReq := api.NewExecutionRequest(req)
	result, err = slice.Call(dctx, func(c context.Context) (api.ExecutionResult, error) {
		return component.Execute(c, execReq)
	})

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && dctx.Err() != nil:
		logging.Warn("Router", "Component %s timed out after %s on request %s", id, timeout, req.RequestID)
		return api.ExecutionResult{}, api.ErrMsgTimeout
	default:
		hookErr := &api.ComponentHookError{ComponentID: id, Hook: "execute", Err: err}
		logging.Error("Router", hookErr, "Request %s failed on %s", req.RequestID, id)
		return api.ExecutionResult{}, err.Error()
	}

	if !result.Success {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "component reported failure"
		}
		return api.ExecutionResult{}, msg
	}
	if result.RequestID == "" {
		result.RequestID = req.RequestID
	}
	return result, ""
}
