package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanoclaw/internal/allocator"
	"nanoclaw/internal/api"
	"nanoclaw/internal/events"
	"nanoclaw/internal/slice"
	"nanoclaw/internal/slice/slicetest"
)

func newTestRegistry() (*Registry, *allocator.Allocator, *events.Recorder) {
	rec := &events.Recorder{}
	alloc := allocator.New(allocator.Options{})
	return New(alloc, events.NewEmitter(rec)), alloc, rec
}

func TestRegister(t *testing.T) {
	r, alloc, rec := newTestRegistry()

	require.NoError(t, r.Register("mem", slicetest.New("mem").Factory(), api.DefaultQuota()))

	desc, err := r.Get("mem")
	require.NoError(t, err)
	assert.Equal(t, "mem", desc.ID)
	assert.Equal(t, "Fake mem", desc.DisplayName)
	assert.Equal(t, "0.0.1-test", desc.Version)
	assert.Equal(t, api.StateRegistered, desc.Status)
	assert.Equal(t, api.DefaultQuota(), desc.Quota)
	assert.Equal(t, []string{"test"}, desc.Capabilities)
	assert.False(t, desc.RegisteredAt.IsZero())

	q, err := alloc.Quota("mem")
	require.NoError(t, err)
	assert.Equal(t, api.DefaultQuota(), q)

	assert.Len(t, rec.Events(string(events.ReasonComponentRegistered)), 1)
}

func TestRegister_Duplicate(t *testing.T) {
	r, _, rec := newTestRegistry()

	require.NoError(t, r.Register("mem", slicetest.New("mem").Factory(), api.DefaultQuota()))

	var calls int
	factory := func() (slice.Component, error) {
		calls++
		return slicetest.New("mem"), nil
	}
	err := r.Register("mem", factory, api.ResourceQuota{MaxConcurrentOperations: 1})
	assert.True(t, api.IsDuplicateComponent(err))
	assert.Equal(t, 0, calls, "factory must not run for a duplicate id")

	// registry unchanged
	assert.Equal(t, 1, r.Len())
	desc, _ := r.Get("mem")
	assert.Equal(t, api.DefaultQuota(), desc.Quota)
	assert.Len(t, rec.Events(string(events.ReasonComponentRegistered)), 1)
}

func TestRegister_ConcurrentDuplicate(t *testing.T) {
	r, _, _ := newTestRegistry()

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Register("same", slicetest.New("same").Factory(), api.ResourceQuota{})
			switch {
			case err == nil:
				ok.Add(1)
			case api.IsDuplicateComponent(err):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(19), dup.Load())
}

func TestRegister_FactoryFailures(t *testing.T) {
	tests := []struct {
		name    string
		factory slice.Factory
	}{
		{"error", func() (slice.Component, error) { return nil, errors.New("no config") }},
		{"nil component", func() (slice.Component, error) { return nil, nil }},
		{"panic", func() (slice.Component, error) { panic("boom") }},
		{"accessor panic", func() (slice.Component, error) { return unnamed{slicetest.New("bad")}, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, alloc, rec := newTestRegistry()

			err := r.Register("bad", tt.factory, api.DefaultQuota())
			var hookErr *api.ComponentHookError
			require.True(t, errors.As(err, &hookErr))
			assert.Equal(t, "factory", hookErr.Hook)
			assert.Equal(t, "bad", hookErr.ComponentID)

			assert.Equal(t, 0, r.Len())
			assert.Empty(t, alloc.Components())
			assert.Empty(t, rec.All())
		})
	}
}

type unnamed struct{ *slicetest.Fake }

func (unnamed) Name() string { panic("no name") }

func TestRegister_InvalidInput(t *testing.T) {
	r, _, _ := newTestRegistry()

	assert.Error(t, r.Register("", slicetest.New("x").Factory(), api.ResourceQuota{}))
	assert.Error(t, r.Register("x", nil, api.ResourceQuota{}))
	assert.Error(t, r.Register("x", slicetest.New("x").Factory(), api.ResourceQuota{MaxMemoryMB: -1}))
	assert.Equal(t, 0, r.Len())
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	r, _, _ := newTestRegistry()
	ids := []string{"slice_tools", "slice_agent", "slice_memory", "slice_event_bus"}
	for _, id := range ids {
		require.NoError(t, r.Register(id, slicetest.New(id).Factory(), api.ResourceQuota{}))
	}

	var got []string
	for _, d := range r.List() {
		got = append(got, d.ID)
	}
	assert.Equal(t, ids, got)
	assert.Equal(t, ids, r.IDs())
}

func TestGetReturnsCopy(t *testing.T) {
	r, _, _ := newTestRegistry()
	require.NoError(t, r.Register("a", slicetest.New("a").Factory(), api.ResourceQuota{}))

	d, _ := r.Get("a")
	d.Status = api.StateRunning
	d.Capabilities[0] = "mutated"

	again, _ := r.Get("a")
	assert.Equal(t, api.StateRegistered, again.Status)
	assert.Equal(t, "test", again.Capabilities[0])
}

func TestUnknownComponent(t *testing.T) {
	r, _, _ := newTestRegistry()

	_, err := r.Get("ghost")
	assert.True(t, api.IsUnknownComponent(err))
	_, err = r.Component("ghost")
	assert.True(t, api.IsUnknownComponent(err))
	_, err = r.Status("ghost")
	assert.True(t, api.IsUnknownComponent(err))
	_, _, err = r.CompareAndSetStatus("ghost", []api.ComponentState{api.StateRegistered}, api.StateInitializing)
	assert.True(t, api.IsUnknownComponent(err))
	assert.True(t, api.IsUnknownComponent(r.Unregister("ghost")))
	assert.True(t, api.IsUnknownComponent(r.SetQuota("ghost", api.ResourceQuota{})))
}

func TestCompareAndSetStatus(t *testing.T) {
	r, _, _ := newTestRegistry()
	require.NoError(t, r.Register("a", slicetest.New("a").Factory(), api.ResourceQuota{}))

	var changes []string
	r.SetStateChangeCallback(func(id string, from, to api.ComponentState) {
		changes = append(changes, id+":"+string(from)+"->"+string(to))
	})

	prev, ok, err := r.CompareAndSetStatus("a", []api.ComponentState{api.StateRegistered}, api.StateInitializing)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, api.StateRegistered, prev)

	prev, ok, err = r.CompareAndSetStatus("a", []api.ComponentState{api.StateRegistered}, api.StateInitializing)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, api.StateInitializing, prev)

	status, _ := r.Status("a")
	assert.Equal(t, api.StateInitializing, status)
	assert.Equal(t, []string{"a:Registered->Initializing"}, changes)
}

func TestUnregister(t *testing.T) {
	r, alloc, rec := newTestRegistry()
	require.NoError(t, r.Register("a", slicetest.New("a").Factory(), api.ResourceQuota{}))

	err := r.Unregister("a")
	var stateErr *api.InvalidStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, api.StateRegistered, stateErr.Current)
	assert.Equal(t, "unregister", stateErr.Operation)
	assert.Equal(t, 1, r.Len())

	_, ok, _ := r.CompareAndSetStatus("a", []api.ComponentState{api.StateRegistered}, api.StateShutdown)
	require.True(t, ok)

	require.NoError(t, r.Unregister("a"))
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.IDs())
	assert.Empty(t, alloc.Components())
	assert.Len(t, rec.Events(string(events.ReasonComponentUnregistered)), 1)

	// the id can be reused
	require.NoError(t, r.Register("a", slicetest.New("a").Factory(), api.ResourceQuota{}))
}

func TestSetLastErrorAndQuota(t *testing.T) {
	r, _, _ := newTestRegistry()
	require.NoError(t, r.Register("a", slicetest.New("a").Factory(), api.ResourceQuota{}))

	r.SetLastError("a", errors.New("start failed"))
	d, _ := r.Get("a")
	assert.Equal(t, "start failed", d.LastError)

	r.SetLastError("a", nil)
	d, _ = r.Get("a")
	assert.Empty(t, d.LastError)

	q := api.ResourceQuota{MaxConcurrentOperations: 3}
	require.NoError(t, r.SetQuota("a", q))
	d, _ = r.Get("a")
	assert.Equal(t, q, d.Quota)

	r.SetLastError("ghost", errors.New("ignored"))
}
