package keyValueStore

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is returned when the store cannot be reached or its liveness probe fails.
	ErrConnection = errors.New("keyValueStore: store unreachable")
	// ErrUnknownBackend is returned by Connect for an unsupported backend name.
	ErrUnknownBackend = errors.New("keyValueStore: unknown backend")
	ErrClosed         = errors.New("keyValueStore: store is closed")
)

// StatusError is returned by the HTTP backend for unexpected response codes.
type StatusError struct {
	Method string
	Key    string
	Code   int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("%s %q failed with status code: %d", e.Method, e.Key, e.Code)
}
