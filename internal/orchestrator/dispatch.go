package orchestrator

import (
	"context"
	"sort"
	"strings"

	"nanoclaw/internal/api"
	"nanoclaw/internal/events"
)

// Execute builds a request from its arguments and dispatches it with the
// default timeout.
func (o *Orchestrator) Execute(ctx context.Context, operation string, payload, reqContext map[string]interface{}) api.OrchestrationResponse {
	return o.Dispatch(ctx, api.OrchestrationRequest{
		Operation: operation,
		Payload:   payload,
		Context:   reqContext,
	})
}

// Dispatch routes req, runs it on every target and records the outcome in
// the execution metrics and the event stream. Per-component failures are
// reported in the response, never as an error.
func (o *Orchestrator) Dispatch(ctx context.Context, req api.OrchestrationRequest) api.OrchestrationResponse {
	resp := o.router.Dispatch(ctx, req)

	o.collector.RecordRequest(resp.Success, resp.Latency)

	data := events.EventData{
		ComponentID: events.OrchestratorID,
		Operation:   resp.Operation,
		RequestID:   resp.RequestID,
		Targets:     resp.Targets,
		Failed:      len(resp.Errors),
		Duration:    resp.Latency,
	}
	if resp.Success {
		o.emitter.Emit(events.ReasonRequestCompleted, data)
	} else {
		data.Error = summarizeErrors(resp.Errors)
		if data.Error == "" && len(resp.Warnings) > 0 {
			data.Error = resp.Warnings[0]
		}
		o.emitter.Emit(events.ReasonRequestFailed, data)
	}

	o.checkNearCapacity(resp.Targets)
	return resp
}

// summarizeErrors renders per-component errors as "id: msg; id: msg" in id order.
func summarizeErrors(errs map[string]string) string {
	if len(errs) == 0 {
		return ""
	}
	ids := make([]string, 0, len(errs))
	for id := range errs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+": "+errs[id])
	}
	return strings.Join(parts, "; ")
}

// checkNearCapacity emits near_capacity once when a component crosses the
// threshold and re-arms when it drops below again.
func (o *Orchestrator) checkNearCapacity(ids []string) {
	if len(ids) == 0 {
		return
	}
	snapshot := o.allocator.HealthSnapshot()

	var crossed []string
	dims := make(map[string][]string)
	o.mu.Lock()
	for _, id := range ids {
		h, ok := snapshot[id]
		if !ok {
			continue
		}
		if h.NearCapacity && !o.nearCapacity[id] {
			crossed = append(crossed, id)
			dims[id] = h.Dimensions
		}
		if h.NearCapacity {
			o.nearCapacity[id] = true
		} else {
			delete(o.nearCapacity, id)
		}
	}
	o.mu.Unlock()

	for _, id := range crossed {
		o.emitter.Emit(events.ReasonNearCapacity, events.EventData{
			ComponentID: id,
			Error:       strings.Join(dims[id], ", "),
		})
	}
}
