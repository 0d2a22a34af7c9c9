package keyValueStore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

const (
	BackendRedis = "redis"
	BackendEtcd  = "etcd"
	BackendHTTP  = "http"

	DefaultConnectTimeout   = 5 * time.Second
	DefaultOperationTimeout = 5 * time.Second
)

// Store is a synchronous string key-value store. Implementations are used from a single goroutine
// by the runtime but must tolerate concurrent use by tests and tools.
type Store interface {
	// Get returns the stored value. ok is false when the key does not exist or holds an empty value;
	// err is only set for transport failures.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set overwrites the value at key unconditionally.
	Set(ctx context.Context, key, value string) error
	// Ping is the liveness probe.
	Ping(ctx context.Context) error
	Close() error
}

// Options configures a store connection.
type Options struct {
	Backend string
	Host    string
	Port    int
	// Endpoints is only used by the etcd backend. Defaults to Host:Port.
	Endpoints []string
	// Prefix is prepended to every key by the etcd backend.
	Prefix string

	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Backend == "" {
		o.Backend = BackendRedis
	}
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Port == 0 {
		o.Port = 6379
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = DefaultOperationTimeout
	}
	if len(o.Endpoints) == 0 {
		o.Endpoints = []string{o.Address()}
	}
}

// Address returns host:port.
func (o Options) Address() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// target names what the backend actually dials.
func (o Options) target() string {
	if o.Backend == BackendEtcd {
		return strings.Join(o.Endpoints, ",")
	}
	return o.Address()
}

// Connect opens the configured backend and probes it. A failed probe closes the client and returns
// an error wrapping ErrConnection.
func Connect(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var (
		store Store
		err   error
	)
	switch opts.Backend {
	case BackendRedis:
		store = NewRedisStore(opts, logger)
	case BackendEtcd:
		store, err = NewEtcdStore(opts, logger)
	case BackendHTTP:
		store = NewHttpStore("http://"+opts.Address(), opts.OperationTimeout, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := store.Ping(probeCtx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %s %s: %v", ErrConnection, opts.Backend, opts.target(), err)
	}

	logger.Info("Connected to store", "backend", opts.Backend, "address", opts.target())
	return store, nil
}
