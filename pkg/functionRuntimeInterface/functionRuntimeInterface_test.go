//go:build unit

package functionRuntimeInterface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
	kv "github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
)

const (
	inputKey  = "fn-input"
	outputKey = "fn-output"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type runtimeTest struct {
	store   *kv.MockStore
	runtime *Runtime
	calls   *atomic.Int32
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newRuntimeTest(t *testing.T, settings Settings, fn execution.HandlerFunc) runtimeTest {
	t.Helper()
	if settings.InputKey == "" {
		settings.InputKey = inputKey
	}
	settings.OutputKey = outputKey
	settings.SleepInterval = time.Millisecond

	calls := &atomic.Int32{}
	handler := execution.HandlerFunc(func(ctx context.Context, input any, snap execution.Snapshot) (any, error) {
		calls.Add(1)
		return fn(ctx, input, snap)
	})

	store := kv.NewMockStore()
	ectx := execution.NewContext("localhost", 6379, settings.InputKey, outputKey, "")
	r := New(store, handler, ectx, settings, testLogger())
	clock := &fakeClock{t: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	r.now = clock.now
	return runtimeTest{store: store, runtime: r, calls: calls}
}

func constant(v any) execution.HandlerFunc {
	return func(context.Context, any, execution.Snapshot) (any, error) {
		return v, nil
	}
}

// Scenario A / P1
func TestCycle_IdleWhenInputAbsent(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, constant(map[string]any{"y": 2}))

	for i := 0; i < 3; i++ {
		outcome, err := rt.runtime.Cycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeIdle, outcome)
	}

	assert.Nil(t, rt.runtime.Context().LastExecution)
	assert.Empty(t, rt.store.Writes(outputKey))
	assert.Zero(t, rt.calls.Load())
	assert.Equal(t, []string{inputKey, inputKey, inputKey}, rt.store.GetCalls)
}

func TestCycle_EmptyInputIsAbsent(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, constant(map[string]any{"y": 2}))
	rt.store.Put(inputKey, "")

	outcome, err := rt.runtime.Cycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, outcome)
	assert.Zero(t, rt.calls.Load())
}

func TestCycle_UnsetInputKeyNeverTriggers(t *testing.T) {
	store := kv.NewMockStore()
	ectx := execution.NewContext("localhost", 6379, "", outputKey, "")
	r := New(store, constant("x"), ectx, Settings{OutputKey: outputKey}, testLogger())

	outcome, err := r.Cycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, outcome)
	assert.Empty(t, store.SetCalls)
}

// Scenario B
func TestCycle_PublishesHandlerResult(t *testing.T) {
	var seenInput any
	var seenSnap execution.Snapshot
	rt := newRuntimeTest(t, Settings{}, func(_ context.Context, input any, snap execution.Snapshot) (any, error) {
		seenInput = input
		seenSnap = snap
		return map[string]any{"y": 2}, nil
	})
	rt.runtime.now = time.Now
	rt.store.Put(inputKey, `{"x": 1}`)

	before := time.Now()
	outcome, err := rt.runtime.Cycle(context.Background())
	after := time.Now()

	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, outcome)
	assert.Equal(t, map[string]any{"x": 1.0}, seenInput)

	value, ok := rt.store.Value(outputKey)
	require.True(t, ok)
	assert.JSONEq(t, `{"y": 2}`, value)

	last := rt.runtime.Context().LastExecution
	require.NotNil(t, last)
	assert.False(t, last.Before(before))
	assert.False(t, last.After(after))

	assert.Equal(t, outputKey, seenSnap.OutputKey)
	assert.Nil(t, seenSnap.LastExecution, "first call sees no previous execution")
	assert.NotEmpty(t, seenSnap.InvocationID)
	assert.Equal(t, execution.UnknownModifiedAt, seenSnap.HandlerModifiedAt)
}

func TestCycle_AtMostOneInvocationPerCycle(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, constant(map[string]any{"ok": true}))

	present := []bool{false, true, true, false, true, false}
	expected := 0
	for _, p := range present {
		if p {
			rt.store.Put(inputKey, `{"tick": 1}`)
			expected++
		} else {
			rt.store.Delete(inputKey)
		}
		_, err := rt.runtime.Cycle(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, expected, rt.calls.Load())
	}
	assert.Len(t, rt.store.Writes(outputKey), expected)
}

func TestCycle_EmptyResultsAreNotPublished(t *testing.T) {
	for name, result := range map[string]any{
		"nil":                nil,
		"empty map":          map[string]any{},
		"empty slice":        []any{},
		"empty string":       "",
		"typed empty map":    map[string]int{},
		"typed empty slice":  []string{},
		"empty slice of map": []map[string]any{},
		"typed nil slice":    []float64(nil),
		"nil pointer":        (*struct{ Y int })(nil),
	} {
		t.Run(name, func(t *testing.T) {
			rt := newRuntimeTest(t, Settings{}, constant(result))
			rt.store.Put(inputKey, `{"x": 1}`)

			outcome, err := rt.runtime.Cycle(context.Background())

			require.NoError(t, err)
			assert.Equal(t, OutcomeSuppressed, outcome)
			assert.Empty(t, rt.store.Writes(outputKey))
			assert.NotNil(t, rt.runtime.Context().LastExecution)
		})
	}
}

func TestCycle_FalsyScalarsArePublished(t *testing.T) {
	for name, result := range map[string]any{"zero": 0, "false": false} {
		t.Run(name, func(t *testing.T) {
			rt := newRuntimeTest(t, Settings{}, constant(result))
			rt.store.Put(inputKey, `1`)

			outcome, err := rt.runtime.Cycle(context.Background())

			require.NoError(t, err)
			assert.Equal(t, OutcomePublished, outcome)
		})
	}
}

func TestCycle_LastExecutionIsMonotonic(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, constant(map[string]any{"y": 2}))
	rt.store.Put(inputKey, `{"x": 1}`)

	var previous time.Time
	for i := 0; i < 5; i++ {
		_, err := rt.runtime.Cycle(context.Background())
		require.NoError(t, err)
		current := *rt.runtime.Context().LastExecution
		assert.True(t, current.After(previous), "cycle %d", i)
		previous = current
	}

	rt.store.Delete(inputKey)
	_, err := rt.runtime.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, previous, *rt.runtime.Context().LastExecution)
}

func TestCycle_SnapshotCarriesPreviousExecution(t *testing.T) {
	var snaps []execution.Snapshot
	rt := newRuntimeTest(t, Settings{Env: map[string]any{"stage": "test"}}, func(_ context.Context, _ any, snap execution.Snapshot) (any, error) {
		snap.Env["mutated"] = true
		snaps = append(snaps, snap)
		return nil, nil
	})
	rt.runtime.Context().SetEnv(map[string]any{"stage": "test"})
	rt.store.Put(inputKey, `{}`)

	for i := 0; i < 2; i++ {
		_, err := rt.runtime.Cycle(context.Background())
		require.NoError(t, err)
	}

	require.Len(t, snaps, 2)
	assert.Nil(t, snaps[0].LastExecution)
	require.NotNil(t, snaps[1].LastExecution)
	assert.NotEqual(t, snaps[0].InvocationID, snaps[1].InvocationID)
	assert.NotContains(t, rt.runtime.Context().Env, "mutated", "handlers cannot mutate the runtime context")
}

func TestCycle_RoundTrip(t *testing.T) {
	values := []any{
		map[string]any{"cpu_last_minute": []any{1.5, 2.5}, "nested": map[string]any{"a": nil}},
		[]any{"a", 1.0, true},
		"text",
		42.0,
		true,
	}
	for i, v := range values {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			rt := newRuntimeTest(t, Settings{}, constant(v))
			rt.store.Put(inputKey, `{"x": 1}`)

			_, err := rt.runtime.Cycle(context.Background())
			require.NoError(t, err)

			raw, ok := rt.store.Value(outputKey)
			require.True(t, ok)
			var decoded any
			require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
			assert.Equal(t, v, decoded)
		})
	}
}

// Scenario E, default policy
func TestCycle_MalformedInputFails(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, constant(map[string]any{"y": 2}))
	rt.store.Put(inputKey, "{not json")

	outcome, err := rt.runtime.Cycle(context.Background())

	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, execution.ErrDecode)
	assert.Zero(t, rt.calls.Load())
	assert.Nil(t, rt.runtime.Context().LastExecution)
}

func TestCycle_MalformedInputSkipped(t *testing.T) {
	rt := newRuntimeTest(t, Settings{ErrorPolicy: PolicySkip}, constant(map[string]any{"y": 2}))
	rt.store.Put(inputKey, "{not json")

	outcome, err := rt.runtime.Cycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Zero(t, rt.calls.Load())
}

func TestCycle_HandlerErrorPropagates(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, func(context.Context, any, execution.Snapshot) (any, error) {
		return nil, errors.New("user bug")
	})
	rt.store.Put(inputKey, `{"x": 1}`)

	_, err := rt.runtime.Cycle(context.Background())

	require.ErrorIs(t, err, execution.ErrHandler)
	assert.Contains(t, err.Error(), "user bug")
	assert.Nil(t, rt.runtime.Context().LastExecution, "a failed first invocation leaves the timestamp unset")
	assert.Empty(t, rt.store.Writes(outputKey))
}

func TestCycle_FailureAfterSuccessUpdatesTimestamp(t *testing.T) {
	fail := false
	rt := newRuntimeTest(t, Settings{ErrorPolicy: PolicySkip}, func(context.Context, any, execution.Snapshot) (any, error) {
		if fail {
			return nil, errors.New("user bug")
		}
		return map[string]any{"y": 2}, nil
	})
	rt.store.Put(inputKey, `{"x": 1}`)

	fail = true
	_, err := rt.runtime.Cycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rt.runtime.Context().LastExecution)

	fail = false
	_, err = rt.runtime.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rt.runtime.Context().LastExecution)
	first := *rt.runtime.Context().LastExecution

	fail = true
	_, err = rt.runtime.Cycle(context.Background())
	require.NoError(t, err)
	assert.True(t, rt.runtime.Context().LastExecution.After(first))
}

func TestCycle_HandlerPanicBecomesError(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, func(context.Context, any, execution.Snapshot) (any, error) {
		panic("nil map")
	})
	rt.store.Put(inputKey, `{"x": 1}`)

	_, err := rt.runtime.Cycle(context.Background())

	require.ErrorIs(t, err, execution.ErrHandler)
	assert.Contains(t, err.Error(), "nil map")
}

func TestCycle_HandlerErrorSkipped(t *testing.T) {
	rt := newRuntimeTest(t, Settings{ErrorPolicy: PolicySkip}, func(context.Context, any, execution.Snapshot) (any, error) {
		return nil, errors.New("user bug")
	})
	rt.store.Put(inputKey, `{"x": 1}`)

	outcome, err := rt.runtime.Cycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestCycle_HandlerTimeout(t *testing.T) {
	rt := newRuntimeTest(t, Settings{HandlerTimeout: 10 * time.Millisecond}, func(ctx context.Context, _ any, _ execution.Snapshot) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	rt.store.Put(inputKey, `{"x": 1}`)

	_, err := rt.runtime.Cycle(context.Background())

	require.ErrorIs(t, err, execution.ErrHandler)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCycle_StoreFailures(t *testing.T) {
	rt := newRuntimeTest(t, Settings{ErrorPolicy: PolicySkip}, constant(map[string]any{"y": 2}))
	rt.store.Put(inputKey, `{"x": 1}`)
	rt.store.SetErr = assert.AnError

	_, err := rt.runtime.Cycle(context.Background())
	require.ErrorIs(t, err, execution.ErrPublish)
	assert.ErrorIs(t, err, assert.AnError)

	rt.store.GetErr = assert.AnError
	_, err = rt.runtime.Cycle(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCycle_UnencodableOutput(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, constant(map[string]any{"ch": make(chan int)}))
	rt.store.Put(inputKey, `{"x": 1}`)

	_, err := rt.runtime.Cycle(context.Background())

	assert.ErrorIs(t, err, execution.ErrPublish)
}

func TestCycle_StateDuringInvocation(t *testing.T) {
	var rt runtimeTest
	var during State
	rt = newRuntimeTest(t, Settings{}, func(context.Context, any, execution.Snapshot) (any, error) {
		during = rt.runtime.State()
		return map[string]any{"y": 2}, nil
	})
	rt.store.Put(inputKey, `{"x": 1}`)

	_, err := rt.runtime.Cycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateProcessing, during)
	assert.Equal(t, StateIdle, rt.runtime.State())
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rt runtimeTest
	rt = newRuntimeTest(t, Settings{}, func(context.Context, any, execution.Snapshot) (any, error) {
		if rt.calls.Load() == 3 {
			cancel()
		}
		return map[string]any{"y": 2}, nil
	})
	rt.store.Put(inputKey, `{"x": 1}`)

	err := rt.runtime.Run(ctx)

	require.NoError(t, err)
	assert.EqualValues(t, 3, rt.calls.Load())
	assert.Len(t, rt.store.Writes(outputKey), 3)
}

func TestRun_StopsDuringSleep(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, constant(nil))
	rt.runtime.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.runtime.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_ReturnsDecodeError(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, constant(nil))
	rt.store.Put(inputKey, "{not json")

	err := rt.runtime.Run(context.Background())

	assert.ErrorIs(t, err, execution.ErrDecode)
}

func TestRuntime_CloseReleasesStore(t *testing.T) {
	rt := newRuntimeTest(t, Settings{}, constant(nil))

	require.NoError(t, rt.runtime.Close())
	assert.ErrorIs(t, rt.store.Ping(context.Background()), kv.ErrClosed)
}

func TestStateAndOutcomeStrings(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "processing", StateProcessing.String())
	assert.Equal(t, "publishing", StatePublishing.String())
	assert.Equal(t, "published", OutcomePublished.String())
}
