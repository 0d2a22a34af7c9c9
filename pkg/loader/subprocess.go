package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
)

// subprocess runs the handler executable once per invocation. The request envelope is written to
// stdin and the JSON result is read from stdout. Empty stdout means no output.
type subprocess struct {
	path   string
	logger *slog.Logger
}

func newSubprocess(path string, logger *slog.Logger) *subprocess {
	return &subprocess{path: path, logger: logger}
}

func (s *subprocess) Invoke(ctx context.Context, input any, snap execution.Snapshot) (any, error) {
	payload, err := json.Marshal(execution.Request{Input: input, Context: snap})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.path)
	cmd.Dir = filepath.Dir(s.path)
	cmd.Env = append(os.Environ(), snapshotEnv(snap)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	s.logStderr(snap.InvocationID, stderr.Bytes())
	if runErr != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) == 0 {
			return nil, fmt.Errorf("handler process %s failed: %w", s.path, runErr)
		}
		return nil, fmt.Errorf("handler process %s failed: %w: %s", s.path, runErr, msg)
	}
	s.logger.Debug("Handler process finished", "invocation_id", snap.InvocationID, "duration", time.Since(start))

	return decodeOutput(stdout.Bytes())
}

func (s *subprocess) logStderr(invocationID string, b []byte) {
	if b = bytes.TrimSpace(b); len(b) > 0 {
		s.logger.Debug("Handler stderr", "invocation_id", invocationID, "stderr", string(b))
	}
}

// decodeOutput parses a handler's stdout. Whitespace only means no output.
func decodeOutput(b []byte) (any, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("handler output is not valid JSON: %w", err)
	}
	return out, nil
}

// snapshotEnv exposes the scalar context fields as environment variables.
func snapshotEnv(snap execution.Snapshot) []string {
	env := []string{
		"FAAS_HOST=" + snap.Host,
		"FAAS_PORT=" + strconv.Itoa(snap.Port),
		"FAAS_INPUT_KEY=" + snap.InputKey,
		"FAAS_OUTPUT_KEY=" + snap.OutputKey,
		"FAAS_HANDLER_MODIFIED_AT=" + snap.HandlerModifiedAt,
		"FAAS_INVOCATION_ID=" + snap.InvocationID,
	}
	if snap.LastExecution != nil {
		env = append(env, "FAAS_LAST_EXECUTION="+snap.LastExecution.Format(time.RFC3339Nano))
	}
	return env
}
