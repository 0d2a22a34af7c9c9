package loader

import (
	"context"
	"fmt"
	"plugin"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
)

// loadPlugin opens a Go plugin built with -buildmode=plugin against this module and extracts Handler.
// Handler may be a function with the execution.HandlerFunc signature, or a variable holding an
// execution.Handler or execution.HandlerFunc.
func loadPlugin(path string) (execution.Handler, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: loading plugin %s: %v", execution.ErrConfiguration, path, err)
	}
	sym, err := p.Lookup(EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("%w: plugin %s has no %s entry point", execution.ErrConfiguration, path, EntryPoint)
	}
	h, ok := handlerFromSymbol(sym)
	if !ok {
		return nil, fmt.Errorf("%w: plugin %s: %s has unsupported type %T", execution.ErrConfiguration, path, EntryPoint, sym)
	}
	return h, nil
}

func handlerFromSymbol(sym any) (execution.Handler, bool) {
	switch h := sym.(type) {
	case func(context.Context, any, execution.Snapshot) (any, error):
		return execution.HandlerFunc(h), true
	case *func(context.Context, any, execution.Snapshot) (any, error):
		if h == nil || *h == nil {
			return nil, false
		}
		return execution.HandlerFunc(*h), true
	case *execution.HandlerFunc:
		if h == nil || *h == nil {
			return nil, false
		}
		return *h, true
	case *execution.Handler:
		if h == nil || *h == nil {
			return nil, false
		}
		return *h, true
	case execution.Handler:
		return h, true
	}
	return nil, false
}
