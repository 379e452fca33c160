package allocator

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"nanoclaw/internal/api"
	"nanoclaw/pkg/logging"
)

// DefaultNearCapacityRatio flags a component once any dimension reaches 90% of its limit.
const DefaultNearCapacityRatio = 0.9

// Quota dimension names reported in api.QuotaExceededError.
const (
	DimensionConcurrency = "concurrency"
	DimensionThroughput  = "throughput"
	DimensionMemory      = "memory"
	DimensionCPU         = "cpu"
)

// Totals is the capacity of the whole process, used for the aggregate summary.
type Totals struct {
	MemoryMB            int `json:"memoryMB" yaml:"memoryMB" mapstructure:"memoryMB"`
	CPUPercent          int `json:"cpuPercent" yaml:"cpuPercent" mapstructure:"cpuPercent"`
	ThroughputPerMinute int `json:"throughputPerMinute" yaml:"throughputPerMinute" mapstructure:"throughputPerMinute"`
}

// DefaultTotals returns the process capacity used when none is configured.
func DefaultTotals() Totals {
	return Totals{MemoryMB: 2048, CPUPercent: 100, ThroughputPerMinute: 100000}
}

// Options configures an Allocator.
type Options struct {
	Totals            Totals
	NearCapacityRatio float64

	// Sampler, when set, adds a host reading to Summary.
	Sampler HostSampler
}

type entry struct {
	quota    api.ResourceQuota
	usage    api.ResourceUsage
	limiter  *rate.Limiter
	attached time.Time
}

// Allocator tracks quotas and live usage per component and performs
// admission control for dispatches. All methods are safe for concurrent use.
type Allocator struct {
	mu      sync.Mutex
	entries map[string]*entry

	totals  Totals
	ratio   float64
	sampler HostSampler
}

// New creates an Allocator.
func New(opts Options) *Allocator {
	if opts.Totals == (Totals{}) {
		opts.Totals = DefaultTotals()
	}
	if opts.NearCapacityRatio <= 0 || opts.NearCapacityRatio > 1 {
		opts.NearCapacityRatio = DefaultNearCapacityRatio
	}
	return &Allocator{
		entries: make(map[string]*entry),
		totals:  opts.Totals,
		ratio:   opts.NearCapacityRatio,
		sampler: opts.Sampler,
	}
}

// newLimiter builds a token bucket refilling maxPerMinute tokens per minute
// with a burst of maxPerMinute. Zero means unlimited and returns nil.
func newLimiter(maxPerMinute int) *rate.Limiter {
	if maxPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(maxPerMinute)/60.0), maxPerMinute)
}

// AttachQuota starts tracking a component. It fails if the component is
// already tracked or the quota is invalid.
func (a *Allocator) AttachQuota(id string, quota api.ResourceQuota) error {
	if err := quota.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.entries[id]; exists {
		return &api.DuplicateComponentError{ComponentID: id}
	}
	a.entries[id] = &entry{
		quota:    quota,
		limiter:  newLimiter(quota.MaxThroughputPerMinute),
		attached: time.Now(),
	}
	logging.Debug("Allocator", "Attached quota for %s: %+v", id, quota)
	return nil
}

// ReleaseQuota stops tracking a component. Unknown ids are ignored.
func (a *Allocator) ReleaseQuota(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.entries[id]; ok && e.usage.InFlight > 0 {
		logging.Warn("Allocator", "Releasing quota for %s with %d operations in flight", id, e.usage.InFlight)
	}
	delete(a.entries, id)
}

// UpdateQuota replaces a component's quota. In-flight counts are kept; the
// throughput window restarts.
func (a *Allocator) UpdateQuota(id string, quota api.ResourceQuota) error {
	if err := quota.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[id]
	if !ok {
		return &api.UnknownComponentError{ComponentID: id}
	}
	e.quota = quota
	e.limiter = newLimiter(quota.MaxThroughputPerMinute)
	logging.Info("Allocator", "Updated quota for %s: %+v", id, quota)
	return nil
}

// Quota returns the quota attached to a component.
func (a *Allocator) Quota(id string) (api.ResourceQuota, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[id]
	if !ok {
		return api.ResourceQuota{}, &api.UnknownComponentError{ComponentID: id}
	}
	return e.quota, nil
}

// Admit reserves one operation slot for the component. On success the
// caller must call Release exactly once. On refusal nothing changes and the
// error names the exhausted dimension.
func (a *Allocator) Admit(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[id]
	if !ok {
		return &api.UnknownComponentError{ComponentID: id}
	}

	q := e.quota
	if q.MaxConcurrentOperations > 0 && e.usage.InFlight >= q.MaxConcurrentOperations {
		return &api.QuotaExceededError{
			ComponentID: id,
			Dimension:   DimensionConcurrency,
			Limit:       q.MaxConcurrentOperations,
			Current:     e.usage.InFlight,
		}
	}
	if q.MaxMemoryMB > 0 && e.usage.MemoryMB > q.MaxMemoryMB {
		return &api.QuotaExceededError{ComponentID: id, Dimension: DimensionMemory, Limit: q.MaxMemoryMB, Current: e.usage.MemoryMB}
	}
	if q.MaxCPUPercent > 0 && e.usage.CPUPercent > q.MaxCPUPercent {
		return &api.QuotaExceededError{ComponentID: id, Dimension: DimensionCPU, Limit: q.MaxCPUPercent, Current: e.usage.CPUPercent}
	}
	// The limiter is consulted last so a refusal above never consumes a token.
	if e.limiter != nil && !e.limiter.Allow() {
		return &api.QuotaExceededError{
			ComponentID: id,
			Dimension:   DimensionThroughput,
			Limit:       q.MaxThroughputPerMinute,
			Current:     throughputInWindow(e),
		}
	}

	e.usage.InFlight++
	return nil
}

// TryAcquire is Admit reporting only whether the slot was granted.
func (a *Allocator) TryAcquire(id string) bool {
	return a.Admit(id) == nil
}

// Release returns one operation slot. It never takes in-flight below zero.
func (a *Allocator) Release(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[id]
	if !ok {
		return
	}
	if e.usage.InFlight == 0 {
		logging.Warn("Allocator", "Release for %s without a matching acquire", id)
		return
	}
	e.usage.InFlight--
}

// ReportUsage records a component's current memory and cpu estimates.
// Negative values are clamped to zero. Unknown ids are ignored.
func (a *Allocator) ReportUsage(id string, memoryMB, cpuPercent int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[id]
	if !ok {
		return
	}
	e.usage.MemoryMB = max(memoryMB, 0)
	e.usage.CPUPercent = max(cpuPercent, 0)
}

// Usage returns a component's live counters.
func (a *Allocator) Usage(id string) (api.ResourceUsage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[id]
	if !ok {
		return api.ResourceUsage{}, &api.UnknownComponentError{ComponentID: id}
	}
	return snapshotUsage(e), nil
}

func snapshotUsage(e *entry) api.ResourceUsage {
	u := e.usage
	u.ThroughputInWindow = throughputInWindow(e)
	return u
}

// throughputInWindow estimates admissions in the current window as the
// tokens missing from the bucket.
func throughputInWindow(e *entry) int {
	if e.limiter == nil {
		return 0
	}
	used := float64(e.limiter.Burst()) - e.limiter.Tokens()
	if used < 0 {
		return 0
	}
	return int(math.Round(used))
}

// ComponentHealth is one entry of HealthSnapshot.
type ComponentHealth struct {
	Quota        api.ResourceQuota `json:"quota"`
	Usage        api.ResourceUsage `json:"usage"`
	NearCapacity bool              `json:"nearCapacity"`

	// Dimensions lists the dimensions at or above the near-capacity ratio.
	Dimensions []string `json:"dimensions,omitempty"`
}

// HealthSnapshot returns quota usage per component. This is distinct from a
// component's own health check.
func (a *Allocator) HealthSnapshot() map[string]ComponentHealth {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]ComponentHealth, len(a.entries))
	for id, e := range a.entries {
		usage := snapshotUsage(e)
		dims := a.nearCapacityDimensions(e.quota, usage)
		out[id] = ComponentHealth{
			Quota:        e.quota,
			Usage:        usage,
			NearCapacity: len(dims) > 0,
			Dimensions:   dims,
		}
	}
	return out
}

func (a *Allocator) nearCapacityDimensions(q api.ResourceQuota, u api.ResourceUsage) []string {
	var dims []string
	check := func(name string, used, limit int) {
		if limit > 0 && float64(used) >= a.ratio*float64(limit) {
			dims = append(dims, name)
		}
	}
	check(DimensionConcurrency, u.InFlight, q.MaxConcurrentOperations)
	check(DimensionThroughput, u.ThroughputInWindow, q.MaxThroughputPerMinute)
	check(DimensionMemory, u.MemoryMB, q.MaxMemoryMB)
	check(DimensionCPU, u.CPUPercent, q.MaxCPUPercent)
	return dims
}

// Components returns the tracked ids in sorted order.
func (a *Allocator) Components() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.entries))
	for id := range a.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InFlight returns the admitted operations not yet released, summed over
// every component. It never consults the host sampler.
func (a *Allocator) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, e := range a.entries {
		n += e.usage.InFlight
	}
	return n
}

// Totals returns the configured process capacity.
func (a *Allocator) Totals() Totals {
	return a.totals
}

// withContext bounds host sampling so Summary cannot hang on a slow probe.
func withContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 2*time.Second)
}
