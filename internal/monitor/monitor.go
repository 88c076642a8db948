package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"squeeze-worker/pkg/models"
)

const (
	busyCPUPercent = 80.0
	busyRAMPercent = 90.0
)

// Sample is one raw host reading.
type Sample struct {
	CPUPercent     float64
	RAMPercent     float64
	RAMAvailableMB uint64
}

// SampleFunc reads the host. Tests replace it.
type SampleFunc func(ctx context.Context) (Sample, error)

type SystemMonitor struct {
	sample SampleFunc
}

func NewSystemMonitor() *SystemMonitor {
	return &SystemMonitor{sample: hostSample}
}

// NewWithSampler builds a monitor over a custom sample source.
func NewWithSampler(fn SampleFunc) *SystemMonitor {
	return &SystemMonitor{sample: fn}
}

// GetStats gathers real-time CPU and RAM usage.
func (m *SystemMonitor) GetStats(ctx context.Context) (models.HardwareStats, error) {
	s, err := m.sample(ctx)
	if err != nil {
		return models.HardwareStats{}, err
	}
	return models.HardwareStats{
		CPUPercent:     s.CPUPercent,
		RAMPercent:     s.RAMPercent,
		RAMAvailableMB: s.RAMAvailableMB,
		// If CPU > 80% or RAM > 90%, mark as busy so the orchestrator skips us.
		IsBusy: s.CPUPercent > busyCPUPercent || s.RAMPercent > busyRAMPercent,
	}, nil
}

// HasHeadroom reports whether the host has room for an encode needing
// needMB of memory.
func (m *SystemMonitor) HasHeadroom(ctx context.Context, needMB uint64) (bool, error) {
	stats, err := m.GetStats(ctx)
	if err != nil {
		return false, err
	}
	return !stats.IsBusy && stats.RAMAvailableMB >= needMB, nil
}

func hostSample(ctx context.Context) (Sample, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to get mem stats: %w", err)
	}

	// a short interval is more accurate than the instantaneous value
	cpuPct, err := cpu.PercentWithContext(ctx, 500*time.Millisecond, false)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to get cpu stats: %w", err)
	}

	s := Sample{
		RAMPercent:     v.UsedPercent,
		RAMAvailableMB: v.Available / (1024 * 1024),
	}
	if len(cpuPct) > 0 {
		s.CPUPercent = cpuPct[0]
	}
	return s, nil
}
