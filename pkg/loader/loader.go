// Package loader resolves a handler location chosen at deployment time into an execution.Handler.
//
// Supported locations:
//
//	grpc://host:port   a handler served through faasrpc by another process
//	/path/handler.so   a Go plugin exporting Handler
//	/path/handler.sh   a shell script interpreted in-process
//	/path/handler      any other executable, run once per invocation
//
// Plugins, scripts and executables exchange JSON with the runtime; see Request in package execution.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
	"github.com/3s-rg-codes/kvfaas/pkg/faasrpc"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

const (
	KindGRPC       = "grpc"
	KindPlugin     = "plugin"
	KindShell      = "shell"
	KindSubprocess = "subprocess"

	// EntryPoint is the symbol looked up in plugins.
	EntryPoint = "Handler"
)

type options struct {
	logger        *slog.Logger
	probeAttempts int
	probeBackoff  time.Duration
	probeTimeout  time.Duration
	dialOpts      []grpc.DialOption
}

// Option configures Load.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProbe configures how long Load waits for a gRPC handler server to answer its ping.
func WithProbe(attempts int, backoff, timeout time.Duration) Option {
	return func(o *options) {
		o.probeAttempts = attempts
		o.probeBackoff = backoff
		o.probeTimeout = timeout
	}
}

// WithDialOptions adds grpc dial options for grpc:// handlers.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

// Kind reports which loader handles path.
func Kind(path string) string {
	switch {
	case strings.HasPrefix(path, faasrpc.Scheme):
		return KindGRPC
	case strings.HasSuffix(path, ".so"):
		return KindPlugin
	case strings.HasSuffix(path, ".sh"):
		return KindShell
	default:
		return KindSubprocess
	}
}

// Load resolves path into a handler. It never invokes the handler. Every failure wraps
// execution.ErrConfiguration and names the path. Handlers holding resources implement io.Closer.
func Load(path string, opts ...Option) (execution.Handler, error) {
	o := options{
		probeAttempts: 5,
		probeBackoff:  time.Second,
		probeTimeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = utils.OrDiscard(o.logger)

	if path == "" {
		return nil, fmt.Errorf("%w: no handler module configured", execution.ErrConfiguration)
	}

	kind := Kind(path)
	if kind == KindGRPC {
		return loadGRPC(path, o)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving handler module %s: %v", execution.ErrConfiguration, path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: handler module %s not found", execution.ErrConfiguration, abs)
		}
		return nil, fmt.Errorf("%w: handler module %s: %v", execution.ErrConfiguration, abs, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: handler module %s is not a regular file", execution.ErrConfiguration, abs)
	}

	var h execution.Handler
	switch kind {
	case KindPlugin:
		h, err = loadPlugin(abs)
	case KindShell:
		h, err = loadShell(abs, o.logger)
	default:
		if info.Mode().Perm()&0o111 == 0 {
			return nil, fmt.Errorf("%w: handler module %s is not executable", execution.ErrConfiguration, abs)
		}
		h = newSubprocess(abs, o.logger)
	}
	if err != nil {
		return nil, err
	}

	o.logger.Info("Handler module loaded", "path", abs, "kind", kind)
	return h, nil
}

func loadGRPC(address string, o options) (execution.Handler, error) {
	client, err := faasrpc.Dial(address, o.logger, o.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", execution.ErrConfiguration, err)
	}

	ctx := context.Background()
	_, err = utils.CallWithRetry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, o.probeTimeout)
		defer cancel()
		return struct{}{}, client.Ping(pingCtx)
	}, o.probeAttempts, o.probeBackoff)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: handler server %s did not answer: %v", execution.ErrConfiguration, address, err)
	}

	o.logger.Info("Handler module loaded", "path", address, "kind", KindGRPC)
	return client, nil
}
