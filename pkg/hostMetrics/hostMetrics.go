package hostMetrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sample is one reading of the host, serialised as the input of the movingavg function.
type Sample struct {
	Timestamp         time.Time `json:"timestamp"`
	CPUPercentPerCPU  []float64 `json:"cpu_percent_percpu"`
	MemoryUsedPercent float64   `json:"memory_used_percent"`
}

type Sampler struct {
	cpuWindow time.Duration
	cpuFn     func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	memFn     func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	now       func() time.Time
}

// NewSampler returns a sampler that measures CPU usage over cpuWindow.
func NewSampler(cpuWindow time.Duration) *Sampler {
	if cpuWindow <= 0 {
		cpuWindow = 10 * time.Millisecond
	}
	return &Sampler{
		cpuWindow: cpuWindow,
		cpuFn:     cpu.PercentWithContext,
		memFn:     mem.VirtualMemoryWithContext,
		now:       time.Now,
	}
}

func (s *Sampler) Collect(ctx context.Context) (Sample, error) {
	percpu, err := s.cpuFn(ctx, s.cpuWindow, true)
	if err != nil {
		return Sample{}, fmt.Errorf("reading cpu usage: %w", err)
	}
	vm, err := s.memFn(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("reading memory usage: %w", err)
	}
	return Sample{
		Timestamp:         s.now().UTC(),
		CPUPercentPerCPU:  percpu,
		MemoryUsedPercent: vm.UsedPercent,
	}, nil
}
