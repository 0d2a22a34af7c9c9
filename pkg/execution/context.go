package execution

import (
	"maps"
	"os"
	"time"
)

const (
	// UnknownModifiedAt is reported when the handler file's modification time cannot be read.
	UnknownModifiedAt = "Unknown"
	// ModifiedAtLayout is the layout used for HandlerModifiedAt.
	ModifiedAtLayout = "2006-01-02 15:04:05"
)

// Context describes the environment of the running harness. It is owned by the runtime loop and
// only mutated there; handlers receive a Snapshot instead.
type Context struct {
	Host      string
	Port      int
	InputKey  string
	OutputKey string

	// LastExecution is nil until the first successful invocation. After that it is updated when
	// any invocation returns, failed ones included.
	LastExecution *time.Time
	Env           map[string]any

	// HandlerModifiedAt is computed once in NewContext.
	HandlerModifiedAt string
}

// NewContext builds the execution context. handlerPath is stat'ed exactly once.
func NewContext(host string, port int, inputKey, outputKey, handlerPath string) *Context {
	return &Context{
		Host:              host,
		Port:              port,
		InputKey:          inputKey,
		OutputKey:         outputKey,
		Env:               map[string]any{},
		HandlerModifiedAt: modifiedAt(handlerPath),
	}
}

func modifiedAt(path string) string {
	if path == "" {
		return UnknownModifiedAt
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return UnknownModifiedAt
	}
	return info.ModTime().Local().Format(ModifiedAtLayout)
}

// SetEnv replaces the environment mapping with a copy of env.
func (c *Context) SetEnv(env map[string]any) {
	if env == nil {
		c.Env = map[string]any{}
		return
	}
	c.Env = maps.Clone(env)
}

// MarkExecuted records an invocation that returned at now. The stored timestamp never moves
// backwards, so a clock step does not break ordering between cycles.
func (c *Context) MarkExecuted(now time.Time) {
	if c.LastExecution != nil && now.Before(*c.LastExecution) {
		return
	}
	c.LastExecution = &now
}

// Snapshot returns a copy of the context that is safe to hand to user code.
func (c *Context) Snapshot(invocationID string) Snapshot {
	s := Snapshot{
		Host:              c.Host,
		Port:              c.Port,
		InputKey:          c.InputKey,
		OutputKey:         c.OutputKey,
		Env:               maps.Clone(c.Env),
		HandlerModifiedAt: c.HandlerModifiedAt,
		InvocationID:      invocationID,
	}
	if c.LastExecution != nil {
		t := *c.LastExecution
		s.LastExecution = &t
	}
	if s.Env == nil {
		s.Env = map[string]any{}
	}
	return s
}

// Snapshot is the read-only view of the execution context passed to a single handler call.
type Snapshot struct {
	Host              string         `json:"host"`
	Port              int            `json:"port"`
	InputKey          string         `json:"input_key"`
	OutputKey         string         `json:"output_key"`
	LastExecution     *time.Time     `json:"last_execution"`
	Env               map[string]any `json:"env"`
	HandlerModifiedAt string         `json:"handler_modified_at"`
	InvocationID      string         `json:"invocation_id"`
}
