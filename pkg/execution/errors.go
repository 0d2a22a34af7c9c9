package execution

import (
	"errors"

	"github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
)

var (
	// ErrConfiguration marks missing or invalid settings and unloadable handlers. Fatal at startup.
	ErrConfiguration = errors.New("execution: configuration error")
	// ErrConnection marks an unreachable store. Fatal at startup.
	ErrConnection = keyValueStore.ErrConnection
	// ErrDecode marks a stored input that is not well-formed JSON.
	ErrDecode = errors.New("execution: input is not valid JSON")
	// ErrHandler marks a failure raised by the user handler.
	ErrHandler = errors.New("execution: handler failed")
	// ErrPublish marks a failure while encoding or writing the output.
	ErrPublish = errors.New("execution: publish failed")
)
