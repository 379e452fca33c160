package registry

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"nanoclaw/internal/api"
	"nanoclaw/internal/events"
	"nanoclaw/internal/slice"
	"nanoclaw/pkg/logging"
)

// QuotaKeeper is the part of the allocator the registry needs.
type QuotaKeeper interface {
	AttachQuota(id string, quota api.ResourceQuota) error
	ReleaseQuota(id string)
}

// StateChangeCallback is called after every successful status change,
// outside the registry lock.
type StateChangeCallback func(id string, from, to api.ComponentState)

type record struct {
	desc      api.ComponentDescriptor
	component slice.Component
}

// Registry is the table of registered components. A single RWMutex guards
// both the descriptors and the registration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*record
	order   []string

	quotas   QuotaKeeper
	emitter  *events.Emitter
	onChange StateChangeCallback
	now      func() time.Time
}

// New creates an empty registry. emitter may be nil.
func New(quotas QuotaKeeper, emitter *events.Emitter) *Registry {
	return &Registry{
		entries: make(map[string]*record),
		quotas:  quotas,
		emitter: emitter,
		now:     time.Now,
	}
}

// SetStateChangeCallback sets the status change callback
func (r *Registry) SetStateChangeCallback(callback StateChangeCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = callback
}

// Register builds the component with factory and adds it in Registered state.
//
// Args:
//   - id: unique component id
//   - factory: invoked exactly once, outside the registry lock
//   - quota: attached to the allocator; a zero dimension is unlimited
//
// Returns:
//   - *api.DuplicateComponentError if id is already present
//   - *api.ComponentHookError if the factory fails or panics
//
// The registry is unchanged on any error.
func (r *Registry) Register(id string, factory slice.Factory, quota api.ResourceQuota) error {
	if id == "" {
		return fmt.Errorf("component id must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("component %s: factory must not be nil", id)
	}
	if err := quota.Validate(); err != nil {
		return fmt.Errorf("component %s: invalid quota: %w", id, err)
	}

	if r.exists(id) {
		return &api.DuplicateComponentError{ComponentID: id}
	}

	b, err := build(id, factory)
	if err != nil {
		logging.Error("Registry", err, "Factory failed for component %s", id)
		return err
	}

	if b.id != id {
		logging.Debug("Registry", "Component reports id %q, registered as %q", b.id, id)
	}

	r.mu.Lock()
	// Another caller may have won the race while the factory ran.
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return &api.DuplicateComponentError{ComponentID: id}
	}
	if r.quotas != nil {
		if err := r.quotas.AttachQuota(id, quota); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("attaching quota for %s: %w", id, err)
		}
	}
	now := r.now()
	r.entries[id] = &record{
		desc: api.ComponentDescriptor{
			ID:             id,
			DisplayName:    b.name,
			Version:        b.version,
			Quota:          quota,
			Status:         api.StateRegistered,
			Capabilities:   b.capabilities,
			RegisteredAt:   now,
			LastTransition: now,
		},
		component: b.component,
	}
	r.order = append(r.order, id)
	r.mu.Unlock()

	logging.Info("Registry", "Registered component %s (%s %s)", id, b.name, b.version)
	r.emitter.Emit(events.ReasonComponentRegistered, events.EventData{ComponentID: id})
	return nil
}

// built is a factory result with its identity read once, so a panicking
// accessor fails registration instead of escaping Register.
type built struct {
	component    slice.Component
	id           string
	name         string
	version      string
	capabilities []string
}

func build(id string, factory slice.Factory) (b built, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			b = built{}
			err = &api.ComponentHookError{ComponentID: id, Hook: "factory", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	c, err := factory()
	if err != nil {
		return built{}, &api.ComponentHookError{ComponentID: id, Hook: "factory", Err: err}
	}
	if c == nil {
		return built{}, &api.ComponentHookError{ComponentID: id, Hook: "factory", Err: fmt.Errorf("factory returned nil component")}
	}
	return built{
		component:    c,
		id:           c.ID(),
		name:         c.Name(),
		version:      c.Version(),
		capabilities: slices.Clone(c.Capabilities()),
	}, nil
}

func (r *Registry) exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// UnregisterableStates are the states from which a component may be removed.
var UnregisterableStates = []api.ComponentState{api.StateStopped, api.StateShutdown}

// Unregister removes a component and releases its quota. Only components in
// Stopped or Shutdown can be removed.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	rec, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return &api.UnknownComponentError{ComponentID: id}
	}
	if !slices.Contains(UnregisterableStates, rec.desc.Status) {
		current := rec.desc.Status
		r.mu.Unlock()
		return &api.InvalidStateError{
			ComponentID: id,
			Operation:   "unregister",
			Current:     current,
			Allowed:     UnregisterableStates,
		}
	}
	delete(r.entries, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	if r.quotas != nil {
		r.quotas.ReleaseQuota(id)
	}
	r.mu.Unlock()

	logging.Info("Registry", "Unregistered component %s", id)
	r.emitter.Emit(events.ReasonComponentUnregistered, events.EventData{ComponentID: id})
	return nil
}

// Get returns a copy of the descriptor.
func (r *Registry) Get(id string) (api.ComponentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.entries[id]
	if !ok {
		return api.ComponentDescriptor{}, &api.UnknownComponentError{ComponentID: id}
	}
	return copyDescriptor(rec.desc), nil
}

// List returns copies of all descriptors in registration order.
func (r *Registry) List() []api.ComponentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]api.ComponentDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyDescriptor(r.entries[id].desc))
	}
	return out
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func copyDescriptor(d api.ComponentDescriptor) api.ComponentDescriptor {
	d.Capabilities = slices.Clone(d.Capabilities)
	return d
}

// Component returns the live instance for id.
func (r *Registry) Component(id string) (slice.Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.entries[id]
	if !ok {
		return nil, &api.UnknownComponentError{ComponentID: id}
	}
	return rec.component, nil
}

// Status returns the current lifecycle state of id.
func (r *Registry) Status(id string) (api.ComponentState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.entries[id]
	if !ok {
		return "", &api.UnknownComponentError{ComponentID: id}
	}
	return rec.desc.Status, nil
}

// CompareAndSetStatus moves id to `to` if its current status is one of
// `from`. It returns the status observed before the call and whether the
// swap happened. The only error is *api.UnknownComponentError.
func (r *Registry) CompareAndSetStatus(id string, from []api.ComponentState, to api.ComponentState) (api.ComponentState, bool, error) {
	r.mu.Lock()
	rec, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return "", false, &api.UnknownComponentError{ComponentID: id}
	}
	current := rec.desc.Status
	if !slices.Contains(from, current) {
		r.mu.Unlock()
		return current, false, nil
	}
	rec.desc.Status = to
	rec.desc.LastTransition = r.now()
	callback := r.onChange
	r.mu.Unlock()

	// Call the callback outside of the lock to avoid deadlocks
	if callback != nil && current != to {
		callback(id, current, to)
	}
	return current, true, nil
}

// SetLastError records the most recent failure message for id.
// Passing nil clears it.
func (r *Registry) SetLastError(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.entries[id]
	if !ok {
		return
	}
	if err == nil {
		rec.desc.LastError = ""
		return
	}
	rec.desc.LastError = err.Error()
}

// SetQuota records a quota change on the descriptor. The allocator remains
// the owner of the quota used for admission.
func (r *Registry) SetQuota(id string, quota api.ResourceQuota) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.entries[id]
	if !ok {
		return &api.UnknownComponentError{ComponentID: id}
	}
	rec.desc.Quota = quota
	return nil
}
