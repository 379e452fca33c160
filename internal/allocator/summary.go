package allocator

import (
	"context"
	"sort"

	"nanoclaw/pkg/logging"
)

// Summary status values.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// DimensionSummary compares configured capacity with current use.
type DimensionSummary struct {
	Total     int `json:"total"`
	Used      int `json:"used"`
	Available int `json:"available"`
}

func newDimension(total, used int) DimensionSummary {
	return DimensionSummary{Total: total, Used: used, Available: total - used}
}

// Summary is the aggregate view across every tracked component.
type Summary struct {
	Components int              `json:"components"`
	InFlight   int              `json:"inFlight"`
	Memory     DimensionSummary `json:"memory"`
	CPU        DimensionSummary `json:"cpu"`
	Throughput DimensionSummary `json:"throughput"`

	Status   string   `json:"status"`
	Warnings []string `json:"warnings,omitempty"`
	Critical []string `json:"critical,omitempty"`

	NearCapacity []string `json:"nearCapacity,omitempty"`

	Host *HostReading `json:"host,omitempty"`
}

// Summary aggregates usage over all components. With no components every
// used figure is zero and the status is healthy. Memory and throughput are
// summed; cpu is the maximum single component reading. Host is filled in
// when a sampler is configured.
func (a *Allocator) Summary(ctx context.Context) Summary {
	s := a.UsageSummary()
	if a.sampler != nil {
		sctx, cancel := withContext(ctx)
		defer cancel()
		reading, err := a.sampler.Sample(sctx)
		if err != nil {
			logging.Warn("Allocator", "Host sampling failed: %v", err)
		} else {
			s.Host = &reading
		}
	}
	return s
}

// UsageSummary is Summary without the host reading.
func (a *Allocator) UsageSummary() Summary {
	a.mu.Lock()
	var memUsed, cpuUsed, tpUsed, inFlight int
	var near []string
	for id, e := range a.entries {
		u := snapshotUsage(e)
		memUsed += u.MemoryMB
		cpuUsed = max(cpuUsed, u.CPUPercent)
		tpUsed += u.ThroughputInWindow
		inFlight += u.InFlight
		if len(a.nearCapacityDimensions(e.quota, u)) > 0 {
			near = append(near, id)
		}
	}
	count := len(a.entries)
	a.mu.Unlock()

	sort.Strings(near)
	s := Summary{
		Components:   count,
		InFlight:     inFlight,
		Memory:       newDimension(a.totals.MemoryMB, memUsed),
		CPU:          newDimension(a.totals.CPUPercent, cpuUsed),
		Throughput:   newDimension(a.totals.ThroughputPerMinute, tpUsed),
		NearCapacity: near,
	}

	if s.Memory.Total > 0 {
		free := float64(s.Memory.Available) / float64(s.Memory.Total)
		switch {
		case free < 0.1:
			s.Critical = append(s.Critical, "memory critically low")
		case free < 0.2:
			s.Warnings = append(s.Warnings, "memory running low")
		}
	}
	switch {
	case s.CPU.Used > 90:
		s.Critical = append(s.Critical, "cpu usage critically high")
	case s.CPU.Used > 80:
		s.Warnings = append(s.Warnings, "cpu usage high")
	}

	switch {
	case len(s.Critical) > 0:
		s.Status = StatusCritical
	case len(s.Warnings) > 0:
		s.Status = StatusWarning
	default:
		s.Status = StatusHealthy
	}
	return s
}
