package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"nanoclaw/internal/allocator"
	"nanoclaw/internal/api"
	"nanoclaw/internal/events"
	"nanoclaw/internal/slice"
	"nanoclaw/pkg/logging"
)

// Identity describes the orchestrator itself.
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Health is the orchestrator's own health summary.
type Health struct {
	Identity

	Status             api.HealthStatus `json:"status"`
	Running            bool             `json:"running"`
	StartTime          time.Time        `json:"startTime,omitempty"`
	Components         []string         `json:"components"`
	ComponentsRunning  int              `json:"componentsRunning"`
	TotalRequests      int64            `json:"totalRequests"`
	TotalErrors        int64            `json:"totalErrors"`
	ErrorRate          float64          `json:"errorRate"`
	AverageLatencyMs   float64          `json:"averageLatencyMs"`
	ResourceStatus     string           `json:"resourceStatus"`
	NearCapacityAlerts []string         `json:"nearCapacity,omitempty"`
}

// Identity returns the orchestrator's id, name and version.
func (o *Orchestrator) Identity() Identity {
	return Identity{ID: ID, Name: Name, Version: Version}
}

// Health summarizes the orchestrator: component counts, request totals and
// the aggregate resource status. It does not call component health checks.
func (o *Orchestrator) Health(ctx context.Context) Health {
	m := o.collector.Snapshot()
	summary := o.allocator.UsageSummary()

	h := Health{
		Identity:           o.Identity(),
		Components:         o.registry.IDs(),
		TotalRequests:      m.TotalRequests,
		TotalErrors:        m.TotalErrors,
		ErrorRate:          m.ErrorRate(),
		AverageLatencyMs:   float64(m.AverageLatency()) / float64(time.Millisecond),
		ResourceStatus:     summary.Status,
		NearCapacityAlerts: summary.NearCapacity,
	}
	for _, d := range o.registry.List() {
		if d.Status == api.StateRunning {
			h.ComponentsRunning++
		}
	}

	o.mu.RLock()
	h.Running = o.running
	h.StartTime = o.startTime
	o.mu.RUnlock()

	switch summary.Status {
	case allocator.StatusCritical:
		h.Status = api.HealthUnhealthy
	case allocator.StatusWarning:
		h.Status = api.HealthDegraded
	default:
		h.Status = api.HealthHealthy
	}
	return h
}

// GetStatus returns every component's descriptor with its live usage, in
// registration order.
func (o *Orchestrator) GetStatus() []api.ComponentStatus {
	snapshot := o.allocator.HealthSnapshot()
	descriptors := o.registry.List()

	out := make([]api.ComponentStatus, 0, len(descriptors))
	for _, d := range descriptors {
		status := api.ComponentStatus{ComponentDescriptor: d}
		if h, ok := snapshot[d.ID]; ok {
			status.Usage = h.Usage
			status.NearCapacity = h.NearCapacity
		}
		out = append(out, status)
	}
	return out
}

// GetComponent returns the status of one component.
func (o *Orchestrator) GetComponent(id string) (api.ComponentStatus, error) {
	d, err := o.registry.Get(id)
	if err != nil {
		return api.ComponentStatus{}, err
	}
	status := api.ComponentStatus{ComponentDescriptor: d}
	if h, ok := o.allocator.HealthSnapshot()[id]; ok {
		status.Usage = h.Usage
		status.NearCapacity = h.NearCapacity
	}
	return status, nil
}

// GetMetrics returns a copy of the process-wide execution counters.
func (o *Orchestrator) GetMetrics() api.ExecutionMetrics {
	return o.collector.Snapshot()
}

// ResourceHealth returns quota usage per component.
func (o *Orchestrator) ResourceHealth() map[string]allocator.ComponentHealth {
	return o.allocator.HealthSnapshot()
}

// ResourceSummary returns the aggregate resource view.
func (o *Orchestrator) ResourceSummary(ctx context.Context) allocator.Summary {
	return o.allocator.Summary(ctx)
}

// HealthCheck calls every component's own health check concurrently, each
// bounded by the hook timeout. A check that panics or times out is reported
// as unhealthy.
func (o *Orchestrator) HealthCheck(ctx context.Context) map[string]slice.HealthReport {
	ids := o.registry.IDs()
	reports := make([]slice.HealthReport, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			reports[i] = o.checkOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]slice.HealthReport, len(ids))
	for i, id := range ids {
		out[id] = reports[i]
	}
	return out
}

func (o *Orchestrator) checkOne(ctx context.Context, id string) slice.HealthReport {
	component, err := o.registry.Component(id)
	if err != nil {
		return slice.HealthReport{ComponentID: id, Status: api.HealthUnknown}
	}

	hctx, cancel := context.WithTimeout(ctx, o.hookTimeout)
	defer cancel()

	report, err := slice.Call(hctx, func(c context.Context) (slice.HealthReport, error) {
		return component.HealthCheck(c), nil
	})
	if err != nil {
		logging.Warn("Orchestrator", "Health check for %s failed: %v", id, err)
		return slice.HealthReport{
			ComponentID: id,
			Status:      api.HealthUnhealthy,
			Version:     component.Version(),
			Details:     map[string]interface{}{"error": err.Error()},
		}
	}
	if report.ComponentID == "" {
		report.ComponentID = id
	}
	return report
}

// SelfImprove passes feedback to the component's optional self-improvement
// hook and returns its answer unchanged.
//
// Returns:
//   - *api.UnknownComponentError if id is not registered
//   - an error wrapping api.ErrSelfImproveUnsupported if the component has no hook
//   - *api.ComponentHookError if the hook fails, panics or times out
func (o *Orchestrator) SelfImprove(ctx context.Context, id string, feedback slice.Feedback) (slice.Improvements, error) {
	component, err := o.registry.Component(id)
	if err != nil {
		return slice.Improvements{}, err
	}
	improver, ok := component.(slice.SelfImprover)
	if !ok {
		return slice.Improvements{}, fmt.Errorf("component %s: %w", id, api.ErrSelfImproveUnsupported)
	}

	hctx, cancel := context.WithTimeout(ctx, o.hookTimeout)
	defer cancel()

	improvements, err := slice.Call(hctx, func(c context.Context) (slice.Improvements, error) {
		return improver.SelfImprove(c, feedback)
	})
	if err != nil {
		if hctx.Err() != nil && ctx.Err() == nil {
			err = &api.TimeoutError{ComponentID: id, Operation: "selfImprove", Timeout: o.hookTimeout}
		}
		hookErr := &api.ComponentHookError{ComponentID: id, Hook: "selfImprove", Err: err}
		logging.Error("Orchestrator", hookErr, "Self-improvement failed for %s", id)
		o.emitter.Emit(events.ReasonHookFailed, events.EventData{
			ComponentID: id,
			Operation:   "selfImprove",
			Error:       err.Error(),
		})
		return slice.Improvements{}, hookErr
	}

	o.emitter.Emit(events.ReasonSelfImproved, events.EventData{
		ComponentID: id,
		Error:       fmt.Sprintf("%d improvements", len(improvements.Items)),
	})
	return improvements, nil
}
