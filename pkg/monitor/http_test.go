//go:build unit

package monitor

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kv "github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
)

func TestApp(t *testing.T) {
	m := New(kv.NewMockStore(), "out", 10, nil)
	m.Update(map[string]any{"cpu_last_minute": 4.0, "mvg_avg_memory_last_min": 50.0})
	app := NewApp(m)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/windows", nil))
	require.NoError(t, err)
	var w Windows
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&w))
	assert.Equal(t, [][]float64{{4}}, w.CPUMinute)
	assert.Equal(t, []float64{50}, w.Memory)

	resp, err = app.Test(httptest.NewRequest("GET", "/summary", nil))
	require.NoError(t, err)
	var s Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	assert.Equal(t, 1, s.Samples)
	assert.Equal(t, 50.0, s.MemoryMean)
}
