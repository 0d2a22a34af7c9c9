// Package monitor follows the output key of a running harness and keeps bounded windows of the
// metrics a dashboard plots. It only reads from the store.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	kv "github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

const (
	DefaultHistory  = 100
	DefaultInterval = 3 * time.Second

	MemoryKey = "mvg_avg_memory_last_min"
)

// Windows holds the retained samples, oldest first. A CPU row has one value per matching key,
// ordered by key name.
type Windows struct {
	CPUMinute [][]float64 `json:"cpu_last_minute"`
	CPUHour   [][]float64 `json:"cpu_last_hour"`
	Memory    []float64   `json:"memory_last_minute"`
}

// Summary is the mean of every window. CPU means are taken over all values of all rows.
type Summary struct {
	Samples       int     `json:"samples"`
	CPUMinuteMean float64 `json:"cpu_last_minute_mean"`
	CPUHourMean   float64 `json:"cpu_last_hour_mean"`
	MemoryMean    float64 `json:"memory_last_minute_mean"`
}

type Monitor struct {
	store   kv.Store
	key     string
	history int
	logger  *slog.Logger

	mu      sync.RWMutex
	windows Windows
	updates int
}

func New(store kv.Store, key string, history int, logger *slog.Logger) *Monitor {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Monitor{
		store:   store,
		key:     key,
		history: history,
		logger:  utils.OrDiscard(logger),
	}
}

// Extract applies the dashboard rules to one decoded output: keys containing both "cpu" and
// "last_minute" form the minute row, "cpu" and "last_hour" the hour row, and MemoryKey the memory
// value. Non-numeric values are ignored.
func Extract(data map[string]any) (minute, hour []float64, memory float64, hasMemory bool) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, ok := data[k].(float64)
		if !ok || !strings.Contains(k, "cpu") {
			continue
		}
		if strings.Contains(k, "last_minute") {
			minute = append(minute, v)
		}
		if strings.Contains(k, "last_hour") {
			hour = append(hour, v)
		}
	}
	memory, hasMemory = data[MemoryKey].(float64)
	return minute, hour, memory, hasMemory
}

// Update records one decoded output and trims every window to the history size.
// It reports whether anything was recorded.
func (m *Monitor) Update(data map[string]any) bool {
	minute, hour, memory, hasMemory := Extract(data)

	m.mu.Lock()
	defer m.mu.Unlock()

	recorded := false
	if len(minute) > 0 {
		m.windows.CPUMinute = trim(append(m.windows.CPUMinute, minute), m.history)
		recorded = true
	}
	if len(hour) > 0 {
		m.windows.CPUHour = trim(append(m.windows.CPUHour, hour), m.history)
		recorded = true
	}
	if hasMemory {
		m.windows.Memory = trim(append(m.windows.Memory, memory), m.history)
		recorded = true
	}
	if recorded {
		m.updates++
	}
	return recorded
}

func trim[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return append(s[:0:0], s[len(s)-n:]...)
}

// Poll reads the output key once. A missing key is not an error and records nothing.
func (m *Monitor) Poll(ctx context.Context) (bool, error) {
	raw, ok, err := m.store.Get(ctx, m.key)
	if err != nil {
		return false, fmt.Errorf("reading output key %q: %w", m.key, err)
	}
	if !ok {
		m.logger.Info("Waiting for data", "key", m.key)
		return false, nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		m.logger.Warn("Output is not a JSON object", "key", m.key, "raw", raw, "error", err)
		return false, nil
	}
	return m.Update(data), nil
}

// Run polls every interval until ctx is cancelled. Store errors are logged and retried on the
// next tick.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if recorded, err := m.Poll(ctx); err != nil {
			m.logger.Error("Poll failed", "error", err)
		} else if recorded {
			s := m.Summary()
			m.logger.Info("Windows updated",
				"samples", s.Samples,
				"cpu_last_minute_mean", s.CPUMinuteMean,
				"cpu_last_hour_mean", s.CPUHourMean,
				"memory_last_minute_mean", s.MemoryMean)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Windows returns a deep copy of the current windows.
func (m *Monitor) Windows() Windows {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Windows{
		CPUMinute: make([][]float64, len(m.windows.CPUMinute)),
		CPUHour:   make([][]float64, len(m.windows.CPUHour)),
		Memory:    append([]float64(nil), m.windows.Memory...),
	}
	for i, row := range m.windows.CPUMinute {
		out.CPUMinute[i] = append([]float64(nil), row...)
	}
	for i, row := range m.windows.CPUHour {
		out.CPUHour[i] = append([]float64(nil), row...)
	}
	return out
}

func (m *Monitor) Summary() Summary {
	w := m.Windows()

	m.mu.RLock()
	samples := m.updates
	m.mu.RUnlock()

	return Summary{
		Samples:       samples,
		CPUMinuteMean: mean(flatten(w.CPUMinute)),
		CPUHourMean:   mean(flatten(w.CPUHour)),
		MemoryMean:    mean(w.Memory),
	}
}

func flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}
