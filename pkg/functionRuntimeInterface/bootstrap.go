package functionRuntimeInterface

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
	kv "github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
	"github.com/3s-rg-codes/kvfaas/pkg/loader"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

// Dependencies lets callers replace how the store is opened and how the handler is loaded.
// Nil fields use keyValueStore.Connect and loader.Load.
type Dependencies struct {
	OpenStore   func(ctx context.Context, opts kv.Options, logger *slog.Logger) (kv.Store, error)
	LoadHandler func(path string, logger *slog.Logger) (execution.Handler, error)
}

func (d *Dependencies) applyDefaults() {
	if d.OpenStore == nil {
		d.OpenStore = kv.Connect
	}
	if d.LoadHandler == nil {
		d.LoadHandler = func(path string, logger *slog.Logger) (execution.Handler, error) {
			return loader.Load(path, loader.WithLogger(logger))
		}
	}
}

// Bootstrap performs the startup sequence: validate the settings, connect to the store, build the
// execution context and load the handler. Nothing touches the network when validation fails.
func Bootstrap(ctx context.Context, settings Settings, deps Dependencies, logger *slog.Logger) (*Runtime, error) {
	logger = utils.OrDiscard(logger)
	deps.applyDefaults()

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	settings.applyDefaults()

	store, err := deps.OpenStore(ctx, settings.StoreOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}

	handlerPath := settings.ResolveHandlerPath()
	ectx := execution.NewContext(settings.StoreHost, settings.StorePort, settings.InputKey, settings.OutputKey, handlerPath)
	ectx.SetEnv(settings.Env)

	handler, err := deps.LoadHandler(handlerPath, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info("Runtime ready",
		"handler", handlerPath,
		"handler_modified_at", ectx.HandlerModifiedAt,
		"store", settings.StoreBackend)
	return New(store, handler, ectx, settings, logger), nil
}
