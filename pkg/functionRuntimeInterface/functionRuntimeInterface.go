package functionRuntimeInterface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
	kv "github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

// State is the position of the loop inside a poll cycle.
type State int32

const (
	StateIdle State = iota
	StateProcessing
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StatePublishing:
		return "publishing"
	}
	return "unknown"
}

// Outcome tells what a single cycle did.
type Outcome int

const (
	// OutcomeIdle means no input was available.
	OutcomeIdle Outcome = iota
	// OutcomeSuppressed means the handler ran but returned an empty result.
	OutcomeSuppressed
	// OutcomePublished means the handler ran and its result was written.
	OutcomePublished
	// OutcomeFailed means decoding or the handler failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	return [...]string{"idle", "suppressed", "published", "failed"}[o]
}

// Runtime is the poll-invoke-publish loop. It is single threaded: one message, one handler call
// at a time. Only State may be read from other goroutines.
type Runtime struct {
	store   kv.Store
	handler execution.Handler
	ectx    *execution.Context

	inputKey       string
	outputKey      string
	interval       time.Duration
	handlerTimeout time.Duration
	policy         ErrorPolicy

	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	state  atomic.Int32
}

// New builds a Runtime from already connected parts. Bootstrap is the usual entry point.
func New(store kv.Store, handler execution.Handler, ectx *execution.Context, settings Settings, logger *slog.Logger) *Runtime {
	settings.applyDefaults()
	return &Runtime{
		store:          store,
		handler:        handler,
		ectx:           ectx,
		inputKey:       settings.InputKey,
		outputKey:      settings.OutputKey,
		interval:       settings.SleepInterval,
		handlerTimeout: settings.HandlerTimeout,
		policy:         settings.ErrorPolicy,
		logger:         utils.OrDiscard(logger),
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Context returns the execution context owned by the loop.
func (r *Runtime) Context() *execution.Context {
	return r.ectx
}

// State returns the current state. Safe for concurrent use.
func (r *Runtime) State() State {
	return State(r.state.Load())
}

func (r *Runtime) setState(s State) {
	r.state.Store(int32(s))
}

// Run executes cycles until ctx is cancelled, sleeping the configured interval between them.
// It returns nil on cancellation and the cycle error otherwise.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("Starting processing loop",
		"input_key", r.inputKey,
		"output_key", r.outputKey,
		"interval", r.interval,
		"error_policy", r.policy)

	for {
		if ctx.Err() != nil {
			r.logger.Info("Processing loop stopped")
			return nil
		}

		if _, err := r.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				r.logger.Info("Processing loop stopped")
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Processing loop stopped")
			return nil
		case <-time.After(r.interval):
		}
	}
}

// Cycle runs one poll cycle without sleeping.
func (r *Runtime) Cycle(ctx context.Context) (Outcome, error) {
	defer r.setState(StateIdle)
	r.setState(StateIdle)

	raw, ok, err := r.store.Get(ctx, r.inputKey)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("reading input key %q: %w", r.inputKey, err)
	}
	if !ok {
		r.logger.Info("waiting for input", "key", r.inputKey)
		return OutcomeIdle, nil
	}

	var input any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		r.logger.Error("Input is not valid JSON", "key", r.inputKey, "raw", raw, "error", err)
		return r.recoverable(fmt.Errorf("%w: key %q: %v", execution.ErrDecode, r.inputKey, err))
	}

	r.setState(StateProcessing)
	r.logger.Info("message received, processing", "key", r.inputKey)

	output, err := r.invoke(ctx, input)
	if err == nil || r.ectx.LastExecution != nil {
		r.ectx.MarkExecuted(r.now())
	}
	if err != nil {
		r.logger.Error("Handler failed", "key", r.inputKey, "raw", raw, "error", err)
		return r.recoverable(fmt.Errorf("%w: %w", execution.ErrHandler, err))
	}

	if execution.IsEmpty(output) {
		r.logger.Debug("Handler returned no output, nothing to publish")
		return OutcomeSuppressed, nil
	}

	r.setState(StatePublishing)
	encoded, err := json.Marshal(output)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("%w: encoding output: %v", execution.ErrPublish, err)
	}
	if err := r.store.Set(ctx, r.outputKey, string(encoded)); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: writing key %q: %w", execution.ErrPublish, r.outputKey, err)
	}
	r.logger.Debug("Output sent", "key", r.outputKey, "bytes", len(encoded))
	return OutcomePublished, nil
}

// invoke calls the handler with a fresh snapshot. Panics are turned into errors.
func (r *Runtime) invoke(ctx context.Context, input any) (output any, err error) {
	snap := r.ectx.Snapshot(r.newID())

	if r.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.handlerTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			output, err = nil, fmt.Errorf("handler panicked: %v", p)
		}
	}()

	start := r.now()
	output, err = r.handler.Invoke(ctx, input, snap)
	r.logger.Debug("Function handler called", "invocation_id", snap.InvocationID, "duration", r.now().Sub(start))
	if err != nil && errors.Is(err, context.DeadlineExceeded) && r.handlerTimeout > 0 {
		err = fmt.Errorf("exceeded handler timeout %s: %w", r.handlerTimeout, err)
	}
	return output, err
}

func (r *Runtime) recoverable(err error) (Outcome, error) {
	if r.policy == PolicySkip {
		return OutcomeFailed, nil
	}
	return OutcomeFailed, err
}

// Close releases the store and the handler if it holds resources.
func (r *Runtime) Close() error {
	var errs []error
	if c, ok := r.handler.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, r.store.Close())
	return errors.Join(errs...)
}
