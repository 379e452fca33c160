package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanoclaw/internal/allocator"
	"nanoclaw/internal/api"
	"nanoclaw/internal/events"
	"nanoclaw/internal/metrics"
	"nanoclaw/internal/router"
	"nanoclaw/internal/slice"
	"nanoclaw/internal/slice/slicetest"
	"nanoclaw/internal/store"
)

func newTestOrchestrator(t *testing.T, routes map[string][]string, def string) (*Orchestrator, *events.Recorder) {
	t.Helper()
	table, err := router.NewRouteTable(def, routes)
	require.NoError(t, err)
	rec := &events.Recorder{}
	o := New(Config{
		Routes:      table,
		Sink:        rec,
		HookTimeout: time.Second,
	})
	return o, rec
}

func startAll(t *testing.T, o *Orchestrator) {
	t.Helper()
	for _, r := range o.StartAll(context.Background()) {
		require.NoError(t, r.Err, r.ComponentID)
	}
}

func inFlight(t *testing.T, o *Orchestrator, id string) int {
	t.Helper()
	h, ok := o.ResourceHealth()[id]
	require.True(t, ok, id)
	return h.Usage.InFlight
}

func TestRegisterComponent_Duplicate(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, "a")

	first := slicetest.New("a")
	require.NoError(t, o.RegisterComponent("a", first.Factory(), api.ResourceQuota{MaxConcurrentOperations: 3}))

	second := slicetest.New("a")
	second.Health = api.HealthDegraded
	err := o.RegisterComponent("a", second.Factory(), api.ResourceQuota{MaxConcurrentOperations: 7})
	require.Error(t, err)
	assert.True(t, api.IsDuplicateComponent(err))

	status := o.GetStatus()
	require.Len(t, status, 1)
	assert.Equal(t, api.StateRegistered, status[0].Status)
	assert.Equal(t, 3, status[0].Quota.MaxConcurrentOperations)

	q, err := o.allocator.Quota("a")
	require.NoError(t, err)
	assert.Equal(t, 3, q.MaxConcurrentOperations)
}

func TestStartBeforeInitialize(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, "a")
	fake := slicetest.New("a")
	require.NoError(t, o.RegisterComponent("a", fake.Factory(), api.ResourceQuota{}))

	_, err := o.StartComponent(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, api.IsInvalidState(err))

	got, err := o.GetComponent("a")
	require.NoError(t, err)
	assert.Equal(t, api.StateRegistered, got.Status)
	assert.Equal(t, 0, fake.Calls("start"))
}

func TestStartAll_ThenShutdown(t *testing.T) {
	o, rec := newTestOrchestrator(t, nil, "a")
	a, b, c := slicetest.New("a"), slicetest.New("b"), slicetest.New("c")
	b.InitErr = errors.New("no config")
	for _, f := range []*slicetest.Fake{a, b, c} {
		require.NoError(t, o.RegisterComponent(f.ID(), f.Factory(), api.DefaultQuota()))
	}

	results := o.StartAll(context.Background())
	// a: init+start, b: failed init, c: init+start
	require.Len(t, results, 5)
	assert.True(t, o.IsRunning())
	assert.True(t, o.lifecycle.IsRunning("a"))
	assert.True(t, o.lifecycle.IsRunning("c"))
	assert.Equal(t, 0, b.Calls("start"))

	got, err := o.GetComponent("b")
	require.NoError(t, err)
	assert.Equal(t, api.StateFailed, got.Status)
	assert.Contains(t, got.LastError, "no config")

	started := rec.Events(string(events.ReasonOrchestratorStarted))
	require.Len(t, started, 1)
	assert.Contains(t, started[0].Message, "2 components")

	results = o.Shutdown(context.Background())
	require.Len(t, results, 3)
	for _, s := range o.GetStatus() {
		assert.Equal(t, api.StateShutdown, s.Status, s.ID)
	}
	assert.False(t, o.IsRunning())
	assert.Len(t, rec.Events(string(events.ReasonOrchestratorShutdown)), 1)

	// second call is a no-op
	for _, r := range o.Shutdown(context.Background()) {
		assert.NoError(t, r.Err)
	}
}

func TestShutdown_ReportsHookFailures(t *testing.T) {
	o, rec := newTestOrchestrator(t, nil, "a")
	a := slicetest.New("a")
	a.StopErr = errors.New("stuck")
	require.NoError(t, o.RegisterComponent("a", a.Factory(), api.ResourceQuota{}))
	startAll(t, o)

	results := o.Shutdown(context.Background())
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, api.StateShutdown, o.GetStatus()[0].Status)

	shutdown := rec.Events(string(events.ReasonOrchestratorShutdown))
	require.Len(t, shutdown, 1)
	assert.Contains(t, shutdown[0].Message, "1 components reported errors")
}

func TestExecute_QuotaScenario(t *testing.T) {
	o, _ := newTestOrchestrator(t, map[string][]string{"store": {"mem"}}, "mem")
	mem := slicetest.New("mem")
	mem.Delay = 100 * time.Millisecond
	require.NoError(t, o.RegisterComponent("mem", mem.Factory(), api.ResourceQuota{MaxConcurrentOperations: 1}))
	startAll(t, o)

	start := make(chan struct{})
	var wg sync.WaitGroup
	responses := make([]api.OrchestrationResponse, 2)
	for i := range responses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			responses[i] = o.Execute(context.Background(), "store", map[string]interface{}{"key": i}, nil)
		}(i)
	}
	close(start)
	wg.Wait()

	var succeeded, refused int
	for _, resp := range responses {
		if resp.Success {
			succeeded++
			continue
		}
		if resp.Errors["mem"] == api.ErrMsgQuotaExceeded {
			refused++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, refused)
	assert.Equal(t, 0, inFlight(t, o, "mem"))

	got, err := o.GetComponent("mem")
	require.NoError(t, err)
	assert.Equal(t, api.StateRunning, got.Status)

	m := o.GetMetrics()
	assert.Equal(t, int64(2), m.TotalRequests)
	assert.Equal(t, int64(1), m.TotalErrors)
}

func TestDispatch_MetricsUnderConcurrency(t *testing.T) {
	o, rec := newTestOrchestrator(t, map[string][]string{
		"good": {"ok"},
		"bad":  {"broken"},
	}, "ok")
	ok := slicetest.New("ok")
	broken := slicetest.New("broken")
	broken.ExecuteFn = func(ctx context.Context, req slice.Request) (slice.Result, error) {
		return slice.Result{}, errors.New("boom")
	}
	require.NoError(t, o.RegisterComponent("ok", ok.Factory(), api.ResourceQuota{}))
	require.NoError(t, o.RegisterComponent("broken", broken.Factory(), api.ResourceQuota{}))
	startAll(t, o)

	const n, k = 40, 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		op := "good"
		if i < k {
			op = "bad"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Dispatch(context.Background(), api.OrchestrationRequest{Operation: op})
		}()
	}
	wg.Wait()

	m := o.GetMetrics()
	assert.Equal(t, int64(n), m.TotalRequests)
	assert.Equal(t, int64(k), m.TotalErrors)
	assert.Equal(t, int64(n-k), m.Components["ok"].Successes)
	assert.Equal(t, int64(k), m.Components["broken"].Failures)
	assert.InDelta(t, float64(k)/float64(n), m.ErrorRate(), 1e-9)

	assert.Len(t, rec.Events(string(events.ReasonRequestCompleted)), n-k)
	failed := rec.Events(string(events.ReasonRequestFailed))
	require.Len(t, failed, k)
	assert.Contains(t, failed[0].Message, "broken: boom")

	assert.Equal(t, 0, inFlight(t, o, "ok"))
	assert.Equal(t, 0, inFlight(t, o, "broken"))
}

func TestDispatch_PartialFailure(t *testing.T) {
	o, _ := newTestOrchestrator(t, map[string][]string{"comm*": {"fast", "slow"}}, "fast")
	fast, slow := slicetest.New("fast"), slicetest.New("slow")
	slow.Delay = time.Second
	require.NoError(t, o.RegisterComponent("fast", fast.Factory(), api.DefaultQuota()))
	require.NoError(t, o.RegisterComponent("slow", slow.Factory(), api.DefaultQuota()))
	startAll(t, o)

	resp := o.Dispatch(context.Background(), api.OrchestrationRequest{
		Operation: "comm.send",
		Timeout:   50 * time.Millisecond,
	})

	assert.False(t, resp.Success)
	assert.Len(t, resp.Results, 1)
	assert.Len(t, resp.Errors, 1)
	assert.Equal(t, api.ErrMsgTimeout, resp.Errors["slow"])
	assert.Equal(t, 0, inFlight(t, o, "fast"))
	assert.Equal(t, 0, inFlight(t, o, "slow"))
}

func TestExecute_FallbackIsRecorded(t *testing.T) {
	o, rec := newTestOrchestrator(t, map[string][]string{"memory*": {"mem"}}, "agent")
	require.NoError(t, o.RegisterComponent("agent", slicetest.New("agent").Factory(), api.ResourceQuota{}))
	startAll(t, o)

	resp := o.Execute(context.Background(), "plan.trip", nil, nil)

	assert.True(t, resp.Success)
	assert.Equal(t, []string{"agent"}, resp.Targets)
	assert.Contains(t, resp.Results, "agent")
	require.NotEmpty(t, resp.Warnings)

	fallbacks := rec.Events(string(events.ReasonRouteFallback))
	require.Len(t, fallbacks, 1)
	assert.Contains(t, fallbacks[0].Message, `"plan.trip"`)
}

func TestExecute_FreshPayloadPerCall(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, "a")
	a := slicetest.New("a")
	a.ExecuteFn = func(ctx context.Context, req slice.Request) (slice.Result, error) {
		n := len(req.Payload) + len(req.Context)
		req.Payload["leak"] = true
		req.Context["leak"] = true
		return slice.Result{Success: true, Payload: map[string]interface{}{"seen": n}}, nil
	}
	require.NoError(t, o.RegisterComponent("a", a.Factory(), api.ResourceQuota{}))
	startAll(t, o)

	for i := 0; i < 3; i++ {
		resp := o.Execute(context.Background(), "x", nil, nil)
		require.True(t, resp.Success)
		assert.Equal(t, 0, resp.Results["a"].Payload["seen"])
	}
}

func TestSubscribeToStateChanges(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, "a")
	ch := o.SubscribeToStateChanges()
	require.NoError(t, o.RegisterComponent("a", slicetest.New("a").Factory(), api.ResourceQuota{}))

	_, err := o.InitializeComponent(context.Background(), "a")
	require.NoError(t, err)

	var got []api.ComponentState
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case ev := <-ch:
			assert.Equal(t, "a", ev.ComponentID)
			got = append(got, ev.NewState)
		case <-timeout:
			t.Fatalf("timed out waiting for state changes, got %v", got)
		}
	}
	assert.Equal(t, []api.ComponentState{api.StateInitializing, api.StateInitialized}, got)
}

func TestSubscribeToStateChanges_SlowSubscriberDoesNotBlock(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, "a")
	_ = o.SubscribeToStateChanges()

	ctx := context.Background()
	for i := 0; i < subscriberBuffer; i++ {
		id := fmt.Sprintf("c%d", i)
		require.NoError(t, o.RegisterComponent(id, slicetest.New(id).Factory(), api.ResourceQuota{}))
		_, err := o.InitializeComponent(ctx, id)
		require.NoError(t, err)
	}
	// the buffer is full; further transitions must still complete
	for _, r := range o.Shutdown(ctx) {
		assert.NoError(t, r.Err)
	}
}

func TestSelfImprove(t *testing.T) {
	o, rec := newTestOrchestrator(t, nil, "plain")
	improver := slicetest.NewImprover("smart")
	require.NoError(t, o.RegisterComponent("plain", slicetest.New("plain").Factory(), api.ResourceQuota{}))
	require.NoError(t, o.RegisterComponent("smart", improver.Factory(), api.ResourceQuota{}))
	ctx := context.Background()

	_, err := o.SelfImprove(ctx, "plain", slice.Feedback{"score": 1})
	assert.ErrorIs(t, err, api.ErrSelfImproveUnsupported)

	_, err = o.SelfImprove(ctx, "ghost", nil)
	assert.True(t, api.IsUnknownComponent(err))

	got, err := o.SelfImprove(ctx, "smart", slice.Feedback{"score": 0.4})
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 1, got.Items[0]["applied"])
	require.Len(t, improver.Feedback, 1)
	assert.Equal(t, 0.4, improver.Feedback[0]["score"])
	assert.Len(t, rec.Events(string(events.ReasonSelfImproved)), 1)
}

// hangingHealth blocks in HealthCheck until its context is done and then
// keeps blocking, to simulate an uncooperative component.
type hangingHealth struct {
	*slicetest.Fake
	release chan struct{}
}

func (h *hangingHealth) HealthCheck(ctx context.Context) slice.HealthReport {
	<-h.release
	return slice.HealthReport{}
}

func TestHealthCheck(t *testing.T) {
	table, err := router.NewRouteTable("good", nil)
	require.NoError(t, err)
	o := New(Config{Routes: table, HookTimeout: 50 * time.Millisecond})

	good := slicetest.New("good")
	good.Health = api.HealthDegraded
	hang := &hangingHealth{Fake: slicetest.New("hang"), release: make(chan struct{})}
	defer close(hang.release)

	require.NoError(t, o.RegisterComponent("good", good.Factory(), api.ResourceQuota{}))
	require.NoError(t, o.RegisterComponent("hang", func() (slice.Component, error) { return hang, nil }, api.ResourceQuota{}))

	start := time.Now()
	reports := o.HealthCheck(context.Background())
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, reports, 2)
	assert.Equal(t, api.HealthDegraded, reports["good"].Status)
	assert.Equal(t, "good", reports["good"].ComponentID)
	assert.Equal(t, api.HealthUnhealthy, reports["hang"].Status)
	assert.Contains(t, reports["hang"].Details, "error")
}

func TestUpdateQuota(t *testing.T) {
	o, rec := newTestOrchestrator(t, nil, "a")
	require.NoError(t, o.RegisterComponent("a", slicetest.New("a").Factory(), api.DefaultQuota()))

	q := api.ResourceQuota{MaxConcurrentOperations: 2, MaxThroughputPerMinute: 60}
	require.NoError(t, o.UpdateQuota("a", q))

	got, err := o.GetComponent("a")
	require.NoError(t, err)
	assert.Equal(t, q, got.Quota)
	assert.Len(t, rec.Events(string(events.ReasonQuotaUpdated)), 1)

	err = o.UpdateQuota("ghost", q)
	assert.True(t, api.IsUnknownComponent(err))

	err = o.UpdateQuota("a", api.ResourceQuota{MaxCPUPercent: 150})
	assert.Error(t, err)
}

func TestReportUsage_NearCapacityOnce(t *testing.T) {
	o, rec := newTestOrchestrator(t, nil, "a")
	require.NoError(t, o.RegisterComponent("a", slicetest.New("a").Factory(), api.ResourceQuota{MaxMemoryMB: 100}))

	o.ReportUsage("a", 95, 0)
	o.ReportUsage("a", 97, 0)
	near := rec.Events(string(events.ReasonNearCapacity))
	require.Len(t, near, 1)
	assert.Contains(t, near[0].Message, "memory")

	o.ReportUsage("a", 10, 0)
	o.ReportUsage("a", 99, 0)
	assert.Len(t, rec.Events(string(events.ReasonNearCapacity)), 2)

	assert.True(t, o.GetStatus()[0].NearCapacity)
}

func TestUnregisterComponent(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, "a")
	require.NoError(t, o.RegisterComponent("a", slicetest.New("a").Factory(), api.ResourceQuota{}))
	startAll(t, o)

	err := o.UnregisterComponent("a")
	assert.True(t, api.IsInvalidState(err))

	_, err = o.StopComponent(context.Background(), "a")
	require.NoError(t, err)
	require.NoError(t, o.UnregisterComponent("a"))
	assert.Empty(t, o.GetStatus())
	assert.Empty(t, o.ResourceHealth())
}

func TestSetRoutes(t *testing.T) {
	o, rec := newTestOrchestrator(t, nil, "a")
	table, err := router.NewRouteTable("a", map[string][]string{"kv*": {"b"}})
	require.NoError(t, err)

	o.SetRoutes(table)
	assert.Same(t, table, o.Routes())
	updated := rec.Events(string(events.ReasonRoutesUpdated))
	require.Len(t, updated, 1)
	assert.Contains(t, updated[0].Message, "1 routes")
}

func TestIdentityAndHealth(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, "a")
	require.NoError(t, o.RegisterComponent("a", slicetest.New("a").Factory(), api.ResourceQuota{}))
	require.NoError(t, o.RegisterComponent("b", slicetest.New("b").Factory(), api.ResourceQuota{}))
	startAll(t, o)
	o.Execute(context.Background(), "x", nil, nil)

	id := o.Identity()
	assert.Equal(t, ID, id.ID)
	assert.Equal(t, Version, id.Version)

	h := o.Health(context.Background())
	assert.Equal(t, api.HealthHealthy, h.Status)
	assert.True(t, h.Running)
	assert.Equal(t, []string{"a", "b"}, h.Components)
	assert.Equal(t, 2, h.ComponentsRunning)
	assert.Equal(t, int64(1), h.TotalRequests)
	assert.Zero(t, h.ErrorRate)
}

func TestPersistence(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	table, err := router.NewRouteTable("a", nil)
	require.NoError(t, err)
	o := New(Config{Routes: table, Store: db})
	ctx := context.Background()

	require.NoError(t, o.RegisterComponent("a", slicetest.New("a").Factory(), api.ResourceQuota{}))
	rec, err := db.ComponentState(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, api.StateRegistered, rec.Status)

	startAll(t, o)
	o.Execute(ctx, "x", nil, nil)

	rec, err = db.ComponentState(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, api.StateRunning, rec.Status)

	o.Shutdown(ctx)
	rec, err = db.ComponentState(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, api.StateShutdown, rec.Status)
	assert.Equal(t, int64(1), rec.Metrics.Successes)

	var snapshot api.ExecutionMetrics
	require.NoError(t, db.Get(ctx, MetricsSnapshotKey, &snapshot))
	assert.Equal(t, int64(1), snapshot.TotalRequests)

	require.NoError(t, o.UnregisterComponent("a"))
	_, err = db.ComponentState(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type countingSampler struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSampler) Sample(ctx context.Context) (allocator.HostReading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return allocator.HostReading{}, nil
}

func TestGaugesAndHealth_DoNotSampleHost(t *testing.T) {
	sampler := &countingSampler{}
	collector := metrics.NewCollector()
	o := New(Config{
		Allocator:   allocator.Options{Sampler: sampler},
		Collector:   collector,
		HookTimeout: time.Second,
	})
	require.NoError(t, o.RegisterComponent("a", slicetest.New("a").Factory(), api.ResourceQuota{}))

	for i := 0; i < 3; i++ {
		_, err := collector.Registry().Gather()
		require.NoError(t, err)
	}
	count, err := testutil.GatherAndCount(collector.Registry(), "nanoclaw_in_flight_operations")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	o.Health(context.Background())

	sampler.mu.Lock()
	defer sampler.mu.Unlock()
	assert.Equal(t, 0, sampler.calls)
}
