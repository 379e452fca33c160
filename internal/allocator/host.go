package allocator

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostReading is a point-in-time view of the machine the process runs on.
type HostReading struct {
	CPUCount      int     `json:"cpuCount"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryTotalMB uint64  `json:"memoryTotalMB"`
	MemoryUsedMB  uint64  `json:"memoryUsedMB"`
	MemoryPercent float64 `json:"memoryPercent"`
}

// HostSampler reads host resource usage.
type HostSampler interface {
	Sample(ctx context.Context) (HostReading, error)
}

// GopsutilSampler reads host cpu and memory through gopsutil.
type GopsutilSampler struct{}

func (GopsutilSampler) Sample(ctx context.Context) (HostReading, error) {
	var r HostReading

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return r, fmt.Errorf("reading memory: %w", err)
	}
	r.MemoryTotalMB = vm.Total / (1024 * 1024)
	r.MemoryUsedMB = vm.Used / (1024 * 1024)
	r.MemoryPercent = vm.UsedPercent

	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return r, fmt.Errorf("counting cpus: %w", err)
	}
	r.CPUCount = counts

	// interval 0 compares against the previous call
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return r, fmt.Errorf("reading cpu: %w", err)
	}
	if len(percents) > 0 {
		r.CPUPercent = percents[0]
	}
	return r, nil
}
