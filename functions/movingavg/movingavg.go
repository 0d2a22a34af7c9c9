package main

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Sample mirrors hostMetrics.Sample as it arrives on the wire.
type Sample struct {
	Timestamp         time.Time `json:"timestamp"`
	CPUPercentPerCPU  []float64 `json:"cpu_percent_percpu"`
	MemoryUsedPercent float64   `json:"memory_used_percent"`
}

// History is the state kept between invocations, oldest sample first.
type History struct {
	Samples []Sample `json:"samples"`
}

// Add appends s and drops samples older than an hour relative to s.
func (h *History) Add(s Sample) {
	h.Samples = append(h.Samples, s)
	cutoff := s.Timestamp.Add(-time.Hour)
	i := 0
	for i < len(h.Samples) && h.Samples[i].Timestamp.Before(cutoff) {
		i++
	}
	h.Samples = h.Samples[i:]
}

// Averages returns the per-cpu moving averages over the last minute and hour and the memory
// average over the last minute, keyed the way the dashboard expects.
func (h *History) Averages(now time.Time) map[string]any {
	out := map[string]any{}
	if len(h.Samples) == 0 {
		return out
	}

	minute := h.since(now.Add(-time.Minute))
	hour := h.since(now.Add(-time.Hour))

	cpus := len(h.Samples[len(h.Samples)-1].CPUPercentPerCPU)
	for cpu := 0; cpu < cpus; cpu++ {
		if xs := column(minute, cpu); len(xs) > 0 {
			out[fmt.Sprintf("avg_cpu%d_last_minute", cpu)] = stat.Mean(xs, nil)
		}
		if xs := column(hour, cpu); len(xs) > 0 {
			out[fmt.Sprintf("avg_cpu%d_last_hour", cpu)] = stat.Mean(xs, nil)
		}
	}

	if len(minute) > 0 {
		mem := make([]float64, len(minute))
		for i, s := range minute {
			mem[i] = s.MemoryUsedPercent
		}
		out["mvg_avg_memory_last_min"] = stat.Mean(mem, nil)
	}
	return out
}

func (h *History) since(t time.Time) []Sample {
	for i, s := range h.Samples {
		if !s.Timestamp.Before(t) {
			return h.Samples[i:]
		}
	}
	return nil
}

func column(samples []Sample, cpu int) []float64 {
	var xs []float64
	for _, s := range samples {
		if cpu < len(s.CPUPercentPerCPU) {
			xs = append(xs, s.CPUPercentPerCPU[cpu])
		}
	}
	return xs
}
