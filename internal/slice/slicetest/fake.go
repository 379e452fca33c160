// Package slicetest provides a scriptable slice.Component for tests.
package slicetest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"nanoclaw/internal/slice"
)

// Fake is a slice.Component whose hooks can be made to fail, panic or block.
// The zero value is not usable; create one with New.
type Fake struct {
	id      string
	version string

	mu sync.Mutex

	// Per-hook errors returned instead of nil
	InitErr     error
	StartErr    error
	StopErr     error
	ShutdownErr error

	// PanicOn names a hook ("initialize", "start", "stop", "shutdown", "execute") that panics
	PanicOn string

	// Delay is slept inside Execute; when IgnoreContext is set the sleep does
	// not observe ctx
	Delay         time.Duration
	IgnoreContext bool

	// ExecuteFn replaces the default echo behaviour when set
	ExecuteFn func(ctx context.Context, req slice.Request) (slice.Result, error)

	Health slice.HealthStatus

	calls    map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	lastReq  slice.Request
}

// New returns a healthy fake with the given id.
func New(id string) *Fake {
	return &Fake{
		id:      id,
		version: "0.0.1-test",
		Health:  slice.HealthHealthy,
		calls:   make(map[string]int),
	}
}

// Factory returns a slice.Factory producing f.
func (f *Fake) Factory() slice.Factory {
	return func() (slice.Component, error) { return f, nil }
}

func (f *Fake) ID() string             { return f.id }
func (f *Fake) Name() string           { return "Fake " + f.id }
func (f *Fake) Version() string        { return f.version }
func (f *Fake) Capabilities() []string { return []string{"test"} }

func (f *Fake) hook(name string, err error) error {
	f.mu.Lock()
	f.calls[name]++
	panicOn := f.PanicOn
	f.mu.Unlock()

	if panicOn == name {
		panic(name + " exploded")
	}
	return err
}

func (f *Fake) Initialize(ctx context.Context) error {
	return f.hook("initialize", f.InitErr)
}

func (f *Fake) Start(ctx context.Context) error {
	return f.hook("start", f.StartErr)
}

func (f *Fake) Stop(ctx context.Context) error {
	return f.hook("stop", f.StopErr)
}

func (f *Fake) Shutdown(ctx context.Context) error {
	return f.hook("shutdown", f.ShutdownErr)
}

func (f *Fake) HealthCheck(ctx context.Context) slice.HealthReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["health"]++
	return slice.HealthReport{
		ComponentID: f.id,
		Status:      f.Health,
		Version:     f.version,
		Initialized: f.calls["initialize"] > 0,
	}
}

func (f *Fake) Execute(ctx context.Context, req slice.Request) (slice.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls["execute"]++
	f.lastReq = req
	panicOn := f.PanicOn
	delay := f.Delay
	ignore := f.IgnoreContext
	fn := f.ExecuteFn
	f.mu.Unlock()

	if panicOn == "execute" {
		panic("execute exploded")
	}

	if delay > 0 {
		if ignore {
			time.Sleep(delay)
		} else {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return slice.Result{}, ctx.Err()
			}
		}
	}

	if fn != nil {
		return fn(ctx, req)
	}

	return slice.Result{
		RequestID: req.RequestID,
		Success:   true,
		Payload:   map[string]interface{}{"component": f.id, "operation": req.Operation},
	}, nil
}

// Calls returns how many times the named hook ran.
func (f *Fake) Calls(hook string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[hook]
}

// LastRequest returns the most recent request passed to Execute.
func (f *Fake) LastRequest() slice.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// MaxConcurrent returns the highest number of simultaneous Execute calls observed.
func (f *Fake) MaxConcurrent() int {
	return int(f.maxSeen.Load())
}

// Improver is a Fake that also implements slice.SelfImprover.
type Improver struct {
	*Fake
	Feedback []slice.Feedback
}

// NewImprover returns a self-improving fake.
func NewImprover(id string) *Improver {
	return &Improver{Fake: New(id)}
}

func (i *Improver) SelfImprove(ctx context.Context, feedback slice.Feedback) (slice.Improvements, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Feedback = append(i.Feedback, feedback)
	return slice.Improvements{Items: []map[string]interface{}{{"applied": len(i.Feedback)}}}, nil
}

// Factory returns a slice.Factory producing i.
func (i *Improver) Factory() slice.Factory {
	return func() (slice.Component, error) { return i, nil }
}
