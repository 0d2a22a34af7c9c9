package functionRuntimeInterface

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
	kv "github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
	"github.com/3s-rg-codes/kvfaas/pkg/loader"
)

// ErrorPolicy decides what the loop does with decode and handler failures.
type ErrorPolicy string

const (
	// PolicyFail stops the loop on the first failure.
	PolicyFail ErrorPolicy = "fail"
	// PolicySkip logs the failure and continues with the next cycle. Store failures still stop the loop.
	PolicySkip ErrorPolicy = "skip"

	DefaultHandlerBaseDir = "/app"
	DefaultSleepInterval  = 5 * time.Second
)

// Settings is the process configuration. It is read once at startup and never changed afterwards.
type Settings struct {
	StoreBackend  string
	StoreHost     string
	StorePort     int
	EtcdEndpoints []string

	// InputKey may be empty, in which case every poll sees no input.
	InputKey  string
	OutputKey string

	// SleepInterval is the pause between cycles. Zero polls again immediately; the command line
	// defaults it to DefaultSleepInterval.
	SleepInterval time.Duration

	// HandlerPath wins over HandlerBaseDir/HandlerModule.
	HandlerPath    string
	HandlerModule  string
	HandlerBaseDir string

	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	// HandlerTimeout bounds a single invocation. Zero means no limit.
	HandlerTimeout time.Duration

	ErrorPolicy ErrorPolicy
	Env         map[string]any
}

func (s *Settings) applyDefaults() {
	if s.StoreBackend == "" {
		s.StoreBackend = kv.BackendRedis
	}
	if s.StoreHost == "" {
		s.StoreHost = "localhost"
	}
	if s.StorePort == 0 {
		s.StorePort = 6379
	}
	if s.HandlerBaseDir == "" {
		s.HandlerBaseDir = DefaultHandlerBaseDir
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = kv.DefaultConnectTimeout
	}
	if s.OperationTimeout <= 0 {
		s.OperationTimeout = kv.DefaultOperationTimeout
	}
	if s.ErrorPolicy == "" {
		s.ErrorPolicy = PolicyFail
	}
}

// Validate checks the settings without doing any I/O. Every error wraps execution.ErrConfiguration.
func (s Settings) Validate() error {
	s.applyDefaults()

	var errs []error
	if strings.TrimSpace(s.OutputKey) == "" {
		errs = append(errs, errors.New("output key is not configured"))
	}
	if s.HandlerPath == "" && s.HandlerModule == "" {
		errs = append(errs, errors.New("neither a handler path nor a handler module is configured"))
	}
	if s.HandlerModule != "" && strings.ContainsRune(s.HandlerModule, filepath.Separator) {
		errs = append(errs, fmt.Errorf("handler module %q must be a plain name", s.HandlerModule))
	}
	switch s.StoreBackend {
	case kv.BackendRedis, kv.BackendEtcd, kv.BackendHTTP:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", s.StoreBackend))
	}
	if s.StorePort < 0 || s.StorePort > 65535 {
		errs = append(errs, fmt.Errorf("store port %d out of range", s.StorePort))
	}
	if s.SleepInterval < 0 {
		errs = append(errs, fmt.Errorf("sleep interval %s is negative", s.SleepInterval))
	}
	if s.HandlerTimeout < 0 {
		errs = append(errs, fmt.Errorf("handler timeout %s is negative", s.HandlerTimeout))
	}
	switch s.ErrorPolicy {
	case PolicyFail, PolicySkip:
	default:
		errs = append(errs, fmt.Errorf("unknown error policy %q", s.ErrorPolicy))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", execution.ErrConfiguration, errors.Join(errs...))
}

// ResolveHandlerPath returns where the handler is loaded from: HandlerPath made absolute, or
// HandlerModule under HandlerBaseDir. grpc:// addresses are returned unchanged.
func (s Settings) ResolveHandlerPath() string {
	s.applyDefaults()
	if s.HandlerPath != "" {
		if loader.Kind(s.HandlerPath) == loader.KindGRPC {
			return s.HandlerPath
		}
		if abs, err := filepath.Abs(s.HandlerPath); err == nil {
			return abs
		}
		return s.HandlerPath
	}
	if s.HandlerModule == "" {
		return ""
	}
	return filepath.Join(s.HandlerBaseDir, s.HandlerModule)
}

// StoreOptions translates the settings into keyValueStore options.
func (s Settings) StoreOptions() kv.Options {
	s.applyDefaults()
	return kv.Options{
		Backend:          s.StoreBackend,
		Host:             s.StoreHost,
		Port:             s.StorePort,
		Endpoints:        s.EtcdEndpoints,
		ConnectTimeout:   s.ConnectTimeout,
		OperationTimeout: s.OperationTimeout,
	}
}

// ParseInterval accepts a plain number of seconds ("5", "0.5") or a Go duration ("250ms").
func ParseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid interval %q", execution.ErrConfiguration, v)
	}
	return d, nil
}

// ParseEnv turns key=value pairs into the context env mapping. Values that parse as JSON keep
// their JSON type, anything else is kept as a string.
func ParseEnv(pairs []string) (map[string]any, error) {
	env := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: env entry %q is not key=value", execution.ErrConfiguration, p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			env[k] = decoded
			continue
		}
		env[k] = v
	}
	return env, nil
}
