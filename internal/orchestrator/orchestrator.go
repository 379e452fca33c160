package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nanoclaw/internal/allocator"
	"nanoclaw/internal/api"
	"nanoclaw/internal/events"
	"nanoclaw/internal/lifecycle"
	"nanoclaw/internal/metrics"
	"nanoclaw/internal/registry"
	"nanoclaw/internal/router"
	"nanoclaw/internal/slice"
	"nanoclaw/internal/store"
	"nanoclaw/pkg/logging"
)

// Orchestrator identity.
const (
	ID      = "nanoclaw"
	Name    = "nanoclaw orchestrator"
	Version = "1.0.0"
)

// MetricsSnapshotKey is the store key the execution metrics are saved under
// on shutdown.
const MetricsSnapshotKey = "execution_metrics"

const subscriberBuffer = 100

// StateStore persists component state. *store.SQLiteStore implements it.
type StateStore interface {
	SaveComponentState(ctx context.Context, rec store.ComponentRecord) error
	DeleteComponentState(ctx context.Context, id string) error
	Set(ctx context.Context, key string, value interface{}) error
}

// Config holds the configuration for the orchestrator.
type Config struct {
	// Allocator configures process totals, near-capacity ratio and host sampling.
	Allocator allocator.Options

	// HookTimeout bounds each lifecycle, health and self-improve hook.
	HookTimeout time.Duration

	// DefaultTimeout applies to requests that carry no timeout.
	DefaultTimeout time.Duration

	// Routes is the initial route table. Nil uses router.DefaultRoutes.
	Routes *router.RouteTable

	// Sink receives events, alerts and execution records in addition to the
	// metrics collector. Optional.
	Sink events.Sink

	// Collector is created when nil.
	Collector *metrics.Collector

	// Store persists component transitions and the final metrics snapshot. Optional.
	Store StateStore
}

// StateChangeEvent is delivered to SubscribeToStateChanges channels.
type StateChangeEvent struct {
	ComponentID string
	OldState    api.ComponentState
	NewState    api.ComponentState
	Timestamp   time.Time
}

// Orchestrator wires the registry, lifecycle manager, allocator and router
// and reports every transition and dispatch to the configured sinks.
type Orchestrator struct {
	allocator *allocator.Allocator
	registry  *registry.Registry
	lifecycle *lifecycle.Manager
	router    *router.Router
	collector *metrics.Collector
	emitter   *events.Emitter
	store     StateStore

	hookTimeout time.Duration

	mu                     sync.RWMutex
	stateChangeSubscribers []chan<- StateChangeEvent
	nearCapacity           map[string]bool
	running                bool
	startTime              time.Time
}

// New creates a new orchestrator.
func New(cfg Config) *Orchestrator {
	collector := cfg.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}

	sink := events.MultiSink{collector}
	if cfg.Sink != nil {
		sink = append(sink, cfg.Sink)
	}
	emitter := events.NewEmitter(sink)

	routes := cfg.Routes
	if routes == nil {
		routes, _ = router.NewRouteTable(router.DefaultComponent, router.DefaultRoutes())
	}

	alloc := allocator.New(cfg.Allocator)
	reg := registry.New(alloc, emitter)
	lc := lifecycle.NewManager(reg, emitter, lifecycle.Options{HookTimeout: cfg.HookTimeout})
	rt := router.New(routes, reg, lc, alloc, emitter, router.Options{DefaultTimeout: cfg.DefaultTimeout})

	o := &Orchestrator{
		allocator:    alloc,
		registry:     reg,
		lifecycle:    lc,
		router:       rt,
		collector:    collector,
		emitter:      emitter,
		store:        cfg.Store,
		hookTimeout:  lc.HookTimeout(),
		nearCapacity: make(map[string]bool),
	}
	reg.SetStateChangeCallback(o.onStateChange)
	o.registerGauges()
	return o
}

func (o *Orchestrator) registerGauges() {
	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"components", "Registered components.", func() float64 { return float64(o.registry.Len()) }},
		{"components_running", "Components in the Running state.", func() float64 {
			n := 0
			for _, d := range o.registry.List() {
				if d.Status == api.StateRunning {
					n++
				}
			}
			return float64(n)
		}},
		{"in_flight_operations", "Admitted operations not yet released.", func() float64 {
			return float64(o.allocator.InFlight())
		}},
	}
	for _, g := range gauges {
		if err := o.collector.RegisterGauge(g.name, g.help, g.fn); err != nil {
			logging.Debug("Orchestrator", "Gauge %s not registered: %v", g.name, err)
		}
	}
}

// RegisterComponent builds a component with factory and adds it in the
// Registered state with the given quota.
func (o *Orchestrator) RegisterComponent(id string, factory slice.Factory, quota api.ResourceQuota) error {
	if err := o.registry.Register(id, factory, quota); err != nil {
		return err
	}
	o.persist(id)
	return nil
}

// UnregisterComponent removes a Stopped or Shutdown component.
func (o *Orchestrator) UnregisterComponent(id string) error {
	if err := o.registry.Unregister(id); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.nearCapacity, id)
	o.mu.Unlock()

	if o.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.hookTimeout)
		defer cancel()
		if err := o.store.DeleteComponentState(ctx, id); err != nil {
			logging.Warn("Orchestrator", "Failed to delete persisted state for %s: %v", id, err)
		}
	}
	return nil
}

// InitializeComponent runs the initialize hook of id.
func (o *Orchestrator) InitializeComponent(ctx context.Context, id string) (lifecycle.Result, error) {
	return o.lifecycle.Initialize(ctx, id)
}

// StartComponent runs the start hook of id.
func (o *Orchestrator) StartComponent(ctx context.Context, id string) (lifecycle.Result, error) {
	return o.lifecycle.Start(ctx, id)
}

// StopComponent runs the stop hook of id.
func (o *Orchestrator) StopComponent(ctx context.Context, id string) (lifecycle.Result, error) {
	return o.lifecycle.Stop(ctx, id)
}

// ShutdownComponent drives id to Shutdown, stopping it first if running.
func (o *Orchestrator) ShutdownComponent(ctx context.Context, id string) (lifecycle.Result, error) {
	return o.lifecycle.Shutdown(ctx, id)
}

// StartAll initializes and starts every registered component in
// registration order. Components already past a step skip it; a failed
// initialize skips the start. The returned results cover every hook that ran.
func (o *Orchestrator) StartAll(ctx context.Context) []lifecycle.Result {
	var results []lifecycle.Result
	var running []string

	for _, id := range o.registry.IDs() {
		status, err := o.registry.Status(id)
		if err != nil {
			continue
		}

		if status == api.StateRegistered {
			res, err := o.lifecycle.Initialize(ctx, id)
			if err != nil {
				results = append(results, lifecycle.Result{ComponentID: id, Operation: lifecycle.OpInitialize, From: status, To: status, Err: err})
				continue
			}
			results = append(results, res)
			if !res.OK() {
				continue
			}
			status = res.To
		}

		if status == api.StateInitialized {
			res, err := o.lifecycle.Start(ctx, id)
			if err != nil {
				res = lifecycle.Result{ComponentID: id, Operation: lifecycle.OpStart, From: status, To: status, Err: err}
			}
			results = append(results, res)
		}

		if o.lifecycle.IsRunning(id) {
			running = append(running, id)
		}
	}

	o.mu.Lock()
	o.running = true
	o.startTime = time.Now()
	o.mu.Unlock()

	o.emitter.Emit(events.ReasonOrchestratorStarted, events.EventData{
		ComponentID: events.OrchestratorID,
		Targets:     running,
	})
	logging.Info("Orchestrator", "Started %d of %d components", len(running), o.registry.Len())
	return results
}

// Shutdown drives every component to Shutdown in registration order and
// saves the final metrics snapshot. It never stops early.
func (o *Orchestrator) Shutdown(ctx context.Context) []lifecycle.Result {
	results := o.lifecycle.ShutdownAll(ctx)

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}

	if o.store != nil {
		if err := o.store.Set(ctx, MetricsSnapshotKey, o.collector.Snapshot()); err != nil {
			logging.Error("Orchestrator", err, "Failed to save metrics snapshot")
		}
	}

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()

	o.emitter.Emit(events.ReasonOrchestratorShutdown, events.EventData{
		ComponentID: events.OrchestratorID,
		Failed:      failed,
	})
	return results
}

// IsRunning reports whether StartAll has run without a later Shutdown.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// UpdateQuota replaces the quota of id. The new limits apply to the next
// admission; in-flight operations are unaffected.
func (o *Orchestrator) UpdateQuota(id string, quota api.ResourceQuota) error {
	if err := quota.Validate(); err != nil {
		return fmt.Errorf("component %s: invalid quota: %w", id, err)
	}
	if err := o.allocator.UpdateQuota(id, quota); err != nil {
		return err
	}
	if err := o.registry.SetQuota(id, quota); err != nil {
		return err
	}
	o.emitter.Emit(events.ReasonQuotaUpdated, events.EventData{ComponentID: id})
	return nil
}

// ReportUsage records memory and cpu estimates for id.
func (o *Orchestrator) ReportUsage(id string, memoryMB, cpuPercent int) {
	o.allocator.ReportUsage(id, memoryMB, cpuPercent)
	o.checkNearCapacity([]string{id})
}

// SetRoutes atomically replaces the route table.
func (o *Orchestrator) SetRoutes(table *router.RouteTable) {
	if table == nil {
		return
	}
	o.router.SetRoutes(table)

	keys := make([]string, 0)
	for _, e := range table.Entries() {
		keys = append(keys, e.Key)
	}
	o.emitter.Emit(events.ReasonRoutesUpdated, events.EventData{
		ComponentID: events.OrchestratorID,
		Targets:     keys,
	})
}

// Routes returns the active route table.
func (o *Orchestrator) Routes() *router.RouteTable {
	return o.router.Routes()
}

// Templates exposes the event message templates for customization.
func (o *Orchestrator) Templates() *events.MessageTemplateEngine {
	return o.emitter.Templates()
}

// Collector returns the metrics collector backing GetMetrics.
func (o *Orchestrator) Collector() *metrics.Collector {
	return o.collector
}

// SubscribeToStateChanges returns a channel for state change events.
// Delivery is non-blocking: a subscriber that falls behind misses events.
func (o *Orchestrator) SubscribeToStateChanges() <-chan StateChangeEvent {
	eventChan := make(chan StateChangeEvent, subscriberBuffer)
	o.mu.Lock()
	o.stateChangeSubscribers = append(o.stateChangeSubscribers, eventChan)
	o.mu.Unlock()
	return eventChan
}

// onStateChange is the registry callback. It runs outside the registry lock.
func (o *Orchestrator) onStateChange(id string, from, to api.ComponentState) {
	event := StateChangeEvent{
		ComponentID: id,
		OldState:    from,
		NewState:    to,
		Timestamp:   time.Now(),
	}

	o.mu.RLock()
	subscribers := make([]chan<- StateChangeEvent, len(o.stateChangeSubscribers))
	copy(subscribers, o.stateChangeSubscribers)
	o.mu.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			logging.Debug("Orchestrator", "Subscriber blocked, skipping event for component %s", id)
		}
	}

	if !to.IsTransient() {
		o.persist(id)
	}
}

// persist writes the current state of id to the store, if configured.
func (o *Orchestrator) persist(id string) {
	if o.store == nil {
		return
	}
	desc, err := o.registry.Get(id)
	if err != nil {
		return
	}

	rec := store.ComponentRecord{
		ComponentID: id,
		Status:      desc.Status,
		Health:      api.HealthUnknown,
		Metrics:     o.collector.Snapshot().Components[id],
	}
	if usage, err := o.allocator.Usage(id); err == nil {
		rec.Usage = usage
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.hookTimeout)
	defer cancel()
	if err := o.store.SaveComponentState(ctx, rec); err != nil {
		logging.Warn("Orchestrator", "Failed to persist state for %s: %v", id, err)
	}
}
