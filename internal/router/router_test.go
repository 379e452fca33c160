package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanoclaw/internal/allocator"
	"nanoclaw/internal/api"
	"nanoclaw/internal/events"
	"nanoclaw/internal/lifecycle"
	"nanoclaw/internal/registry"
	"nanoclaw/internal/slice"
	"nanoclaw/internal/slice/slicetest"
)

type harness struct {
	reg    *registry.Registry
	alloc  *allocator.Allocator
	lc     *lifecycle.Manager
	router *Router
	rec    *events.Recorder
}

func newHarness(t *testing.T, table *RouteTable, opts Options) *harness {
	t.Helper()
	rec := &events.Recorder{}
	emitter := events.NewEmitter(rec)
	alloc := allocator.New(allocator.Options{})
	reg := registry.New(alloc, emitter)
	lc := lifecycle.NewManager(reg, emitter, lifecycle.Options{})
	return &harness{
		reg:    reg,
		alloc:  alloc,
		lc:     lc,
		router: New(table, reg, lc, alloc, emitter, opts),
		rec:    rec,
	}
}

// add registers c with quota and optionally drives it to Running.
func (h *harness) add(t *testing.T, c slice.Component, quota api.ResourceQuota, run bool) {
	t.Helper()
	require.NoError(t, h.reg.Register(c.ID(), func() (slice.Component, error) { return c, nil }, quota))
	if !run {
		return
	}
	ctx := context.Background()
	res, err := h.lc.Initialize(ctx, c.ID())
	require.NoError(t, err)
	require.True(t, res.OK())
	res, err = h.lc.Start(ctx, c.ID())
	require.NoError(t, err)
	require.True(t, res.OK())
}

func (h *harness) inFlight(t *testing.T, id string) int {
	t.Helper()
	u, err := h.alloc.Usage(id)
	require.NoError(t, err)
	return u.InFlight
}

func mustTable(t *testing.T, def string, routes map[string][]string) *RouteTable {
	t.Helper()
	table, err := NewRouteTable(def, routes)
	require.NoError(t, err)
	return table
}

func TestDispatch_Success(t *testing.T) {
	h := newHarness(t, mustTable(t, "a", map[string][]string{"memory.store": {"mem"}}), Options{})
	mem := slicetest.New("mem")
	h.add(t, mem, api.DefaultQuota(), true)

	payload := map[string]interface{}{"key": "k"}
	resp := h.router.Dispatch(context.Background(), api.OrchestrationRequest{
		Operation: "memory.store",
		Payload:   payload,
	})

	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, []string{"mem"}, resp.Targets)
	require.Contains(t, resp.Results, "mem")
	assert.Equal(t, resp.RequestID, resp.Results["mem"].RequestID)
	assert.Empty(t, resp.Errors)
	assert.False(t, resp.Fallback)
	assert.Positive(t, resp.Latency)

	got := mem.LastRequest()
	assert.Equal(t, "k", got.Payload["key"])
	assert.NotNil(t, got.Context)
	assert.Equal(t, 0, h.inFlight(t, "mem"))

	execs := h.rec.Executions()
	require.Len(t, execs, 1)
	assert.True(t, execs[0].Success)
}

func TestDispatch_KeepsRequestID(t *testing.T) {
	h := newHarness(t, mustTable(t, "a", nil), Options{})
	h.add(t, slicetest.New("a"), api.ResourceQuota{}, true)

	resp := h.router.Dispatch(context.Background(), api.OrchestrationRequest{RequestID: "req-1", Operation: "x"})
	assert.Equal(t, "req-1", resp.RequestID)
}

func TestDispatch_FallbackIsObservable(t *testing.T) {
	h := newHarness(t, mustTable(t, "slice_agent", map[string][]string{"memory*": {"mem"}}), Options{})
	h.add(t, slicetest.New("slice_agent"), api.ResourceQuota{}, true)

	resp := h.router.Dispatch(context.Background(), api.OrchestrationRequest{Operation: "unmapped.op"})

	assert.True(t, resp.Success)
	assert.True(t, resp.Fallback)
	assert.Equal(t, []string{"slice_agent"}, resp.Targets)
	assert.Contains(t, resp.Results, "slice_agent")
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "unmapped.op")

	fallbacks := h.rec.Events(string(events.ReasonRouteFallback))
	require.Len(t, fallbacks, 1)
	assert.Contains(t, fallbacks[0].Message, "unmapped.op")
	assert.Equal(t, "slice_agent", fallbacks[0].ComponentID)
}

func TestDispatch_NoDefault(t *testing.T) {
	h := newHarness(t, mustTable(t, "", nil), Options{})

	resp := h.router.Dispatch(context.Background(), api.OrchestrationRequest{Operation: "x"})
	assert.False(t, resp.Success)
	assert.True(t, resp.Fallback)
	assert.Empty(t, resp.Targets)
	assert.NotEmpty(t, resp.Warnings)
}

func TestDispatch_NotRunning(t *testing.T) {
	h := newHarness(t, mustTable(t, "idle", nil), Options{})
	idle := slicetest.New("idle")
	h.add(t, idle, api.ResourceQuota{}, false)

	resp := h.router.Dispatch(context.Background(), api.OrchestrationRequest{Operation: "x", RequiredComponents: []string{"idle", "ghost"}})

	assert.False(t, resp.Success)
	assert.Equal(t, api.ErrMsgNotRunning, resp.Errors["idle"])
	assert.Equal(t, api.ErrMsgNotRunning, resp.Errors["ghost"])
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, idle.Calls("execute"))
	assert.Equal(t, 0, h.inFlight(t, "idle"))
}

func TestDispatch_PartialFailureTimeout(t *testing.T) {
	h := newHarness(t, mustTable(t, "fast", map[string][]string{"comm.send": {"fast", "slow"}}), Options{})
	fast := slicetest.New("fast")
	slow := slicetest.New("slow")
	slow.Delay = time.Second
	h.add(t, fast, api.DefaultQuota(), true)
	h.add(t, slow, api.DefaultQuota(), true)

	start := time.Now()
	resp := h.router.Dispatch(context.Background(), api.OrchestrationRequest{
		Operation: "comm.send",
		Timeout:   50 * time.Millisecond,
	})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, resp.Success)
	assert.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Results, "fast")
	assert.Len(t, resp.Errors, 1)
	assert.Equal(t, api.ErrMsgTimeout, resp.Errors["slow"])
	assert.ElementsMatch(t, []string{"fast", "slow"}, resp.Targets)

	assert.Equal(t, 0, h.inFlight(t, "fast"))
	assert.Equal(t, 0, h.inFlight(t, "slow"))
}

func TestDispatch_TimeoutWithUncooperativeComponent(t *testing.T) {
	h := newHarness(t, mustTable(t, "stubborn", nil), Options{DefaultTimeout: 30 * time.Millisecond})
	stubborn := slicetest.New("stubborn")
	stubborn.Delay = 300 * time.Millisecond
	stubborn.IgnoreContext = true
	h.add(t, stubborn, api.DefaultQuota(), true)

	start := time.Now()
	resp := h.router.Dispatch(context.Background(), api.OrchestrationRequest{Operation: "x"})

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, api.ErrMsgTimeout, resp.Errors["stubborn"])
	assert.Equal(t, 0, h.inFlight(t, "stubborn"))
}

func TestDispatch_QuotaExceeded(t *testing.T) {
	h := newHarness(t, mustTable(t, "mem", nil), Options{})
	mem := slicetest.New("mem")
	mem.Delay = 100 * time.Millisecond
	h.add(t, mem, api.ResourceQuota{MaxConcurrentOperations: 1}, true)

	var wg sync.WaitGroup
	responses := make([]api.OrchestrationResponse, 2)
	for i := range responses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = h.router.Dispatch(context.Background(), api.OrchestrationRequest{
				Operation: "store",
				Payload:   map[string]interface{}{"n": i},
			})
		}(i)
	}
	wg.Wait()

	var ok, refused int
	for _, resp := range responses {
		switch {
		case resp.Success:
			ok++
		case resp.Errors["mem"] == api.ErrMsgQuotaExceeded:
			refused++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, refused)
	assert.Equal(t, 1, mem.MaxConcurrent())
	assert.Equal(t, 0, h.inFlight(t, "mem"))

	status, _ := h.reg.Status("mem")
	assert.Equal(t, api.StateRunning, status)
}

func TestDispatch_ComponentErrors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*slicetest.Fake)
		expected string
	}{
		{
			name: "returned error",
			setup: func(f *slicetest.Fake) {
				f.ExecuteFn = func(ctx context.Context, req slice.Request) (slice.Result, error) {
					return slice.Result{}, errors.New("disk full")
				}
			},
			expected: "disk full",
		},
		{
			name:     "panic",
			setup:    func(f *slicetest.Fake) { f.PanicOn = "execute" },
			expected: "panic: execute exploded",
		},
		{
			name: "reported failure",
			setup: func(f *slicetest.Fake) {
				f.ExecuteFn = func(ctx context.Context, req slice.Request) (slice.Result, error) {
					return slice.Result{RequestID: req.RequestID, ErrorMessage: "key not found"}, nil
				}
			},
			expected: "key not found",
		},
		{
			name: "reported failure without message",
			setup: func(f *slicetest.Fake) {
				f.ExecuteFn = func(ctx context.Context, req slice.Request) (slice.Result, error) {
					return slice.Result{}, nil
				}
			},
			expected: "component reported failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, mustTable(t, "c", nil), Options{})
			c := slicetest.New("c")
			tt.setup(c)
			h.add(t, c, api.DefaultQuota(), true)

			resp := h.router.Dispatch(context.Background(), api.OrchestrationRequest{Operation: "x"})
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expected, resp.Errors["c"])
			assert.Empty(t, resp.Results)
			assert.Equal(t, 0, h.inFlight(t, "c"))

			execs := h.rec.Executions()
			require.Len(t, execs, 1)
			assert.False(t, execs[0].Success)
		})
	}
}

func TestDispatch_PayloadIsolation(t *testing.T) {
	h := newHarness(t, mustTable(t, "a", map[string][]string{"op": {"a", "b"}}), Options{})
	mutate := func(f *slicetest.Fake) {
		f.ExecuteFn = func(ctx context.Context, req slice.Request) (slice.Result, error) {
			req.Payload["touched"] = f.ID()
			req.Context["seen"] = true
			return slice.Result{Success: true, Payload: req.Payload}, nil
		}
	}
	a, b := slicetest.New("a"), slicetest.New("b")
	mutate(a)
	mutate(b)
	h.add(t, a, api.ResourceQuota{}, true)
	h.add(t, b, api.ResourceQuota{}, true)

	payload := map[string]interface{}{"v": 1}
	resp := h.router.Dispatch(context.Background(), api.OrchestrationRequest{Operation: "op", Payload: payload})
	require.True(t, resp.Success)

	assert.Equal(t, map[string]interface{}{"v": 1}, payload)
	assert.Equal(t, "a", resp.Results["a"].Payload["touched"])
	assert.Equal(t, "b", resp.Results["b"].Payload["touched"])

	// nil payload and context still arrive as fresh maps
	resp = h.router.Dispatch(context.Background(), api.OrchestrationRequest{Operation: "op"})
	assert.True(t, resp.Success)
}

func TestDispatch_ResultKeysMatchTargets(t *testing.T) {
	h := newHarness(t, mustTable(t, "a", map[string][]string{"op": {"a", "b", "c", "a"}}), Options{})
	h.add(t, slicetest.New("a"), api.ResourceQuota{}, true)
	h.add(t, slicetest.New("b"), api.ResourceQuota{}, false)

	resp := h.router.Dispatch(context.Background(), api.OrchestrationRequest{Operation: "op"})

	keys := make([]string, 0)
	for k := range resp.Results {
		keys = append(keys, k)
	}
	for k := range resp.Errors {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, resp.Targets, keys)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, resp.Targets)
}

func TestDispatch_ParentCancellation(t *testing.T) {
	h := newHarness(t, mustTable(t, "c", nil), Options{})
	c := slicetest.New("c")
	c.Delay = time.Second
	h.add(t, c, api.ResourceQuota{}, true)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	resp := h.router.Dispatch(ctx, api.OrchestrationRequest{Operation: "x"})
	assert.False(t, resp.Success)
	assert.Equal(t, context.Canceled.Error(), resp.Errors["c"])
	assert.Equal(t, 0, h.inFlight(t, "c"))
}

func TestSetRoutes(t *testing.T) {
	h := newHarness(t, mustTable(t, "a", nil), Options{})

	targets, fallback := h.router.Resolve("memory.get")
	assert.True(t, fallback)
	assert.Equal(t, []string{"a"}, targets)

	h.router.SetRoutes(mustTable(t, "a", map[string][]string{"memory*": {"mem"}}))
	targets, fallback = h.router.Resolve("memory.get")
	assert.False(t, fallback)
	assert.Equal(t, []string{"mem"}, targets)

	h.router.SetRoutes(nil)
	assert.NotNil(t, h.router.Routes())
}
