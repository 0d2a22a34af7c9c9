package execution

import (
	"context"
	"reflect"
)

// Handler is the user function invoked once per processed message.
// A nil output means there is nothing to publish.
type Handler interface {
	Invoke(ctx context.Context, input any, snap Snapshot) (any, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, input any, snap Snapshot) (any, error)

func (f HandlerFunc) Invoke(ctx context.Context, input any, snap Snapshot) (any, error) {
	return f(ctx, input, snap)
}

// Request is the envelope sent to out-of-process handlers.
type Request struct {
	Input   any      `json:"input"`
	Context Snapshot `json:"context"`
}

// IsEmpty reports whether a handler result should be suppressed instead of published:
// nil, an empty object, an empty array or an empty string. Typed Go maps, slices and arrays count
// the same as their JSON counterparts, and a nil pointer counts as nil.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case string:
		return t == ""
	case []byte:
		return len(t) == 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
