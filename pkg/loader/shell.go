package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
)

// shell interprets a POSIX shell script in-process with the same stdin/stdout protocol as
// subprocess handlers. The script is parsed once, at load time.
type shell struct {
	path   string
	prog   *syntax.File
	logger *slog.Logger
}

func loadShell(path string, logger *slog.Logger) (*shell, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening script %s: %v", execution.ErrConfiguration, path, err)
	}
	defer f.Close()

	prog, err := syntax.NewParser().Parse(f, path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse script %s: %v", execution.ErrConfiguration, path, err)
	}
	return &shell{path: path, prog: prog, logger: logger}, nil
}

func (s *shell) Invoke(ctx context.Context, input any, snap execution.Snapshot) (any, error) {
	payload, err := json.Marshal(execution.Request{Input: input, Context: snap})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Dir(filepath.Dir(s.path)),
		interp.Env(expand.ListEnviron(append(os.Environ(), snapshotEnv(snap)...)...)),
		interp.StdIO(bytes.NewReader(payload), &stdout, &stderr),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create interpreter: %w", err)
	}

	err = runner.Run(ctx, s.prog)
	if b := bytes.TrimSpace(stderr.Bytes()); len(b) > 0 {
		s.logger.Debug("Handler stderr", "invocation_id", snap.InvocationID, "stderr", string(b))
	}
	if err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return nil, fmt.Errorf("handler script %s exited with status %d: %s", s.path, int(exitStatus), bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("handler script %s failed: %w", s.path, err)
	}

	return decodeOutput(stdout.Bytes())
}
