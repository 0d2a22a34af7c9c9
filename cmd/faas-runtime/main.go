package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	fri "github.com/3s-rg-codes/kvfaas/pkg/functionRuntimeInterface"
	kv "github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

type runFunc func(ctx context.Context, settings fri.Settings, logger *slog.Logger) error

func newCommand(run runFunc) *cli.Command {
	return &cli.Command{
		Name:  "faas-runtime",
		Usage: "poll an input key, invoke the handler and publish its result to an output key",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store", Value: kv.BackendRedis, Usage: "store backend: redis, etcd or http", Sources: cli.EnvVars("STORE_BACKEND")},
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "store host", Sources: cli.EnvVars("REDIS_HOST")},
			&cli.IntFlag{Name: "port", Value: 6379, Usage: "store port", Sources: cli.EnvVars("REDIS_PORT")},
			&cli.StringSliceFlag{Name: "etcd-endpoint", Value: []string{"localhost:2379"}, Usage: "etcd endpoints", Sources: cli.EnvVars("ETCD_ENDPOINTS")},
			&cli.StringFlag{Name: "input-key", Usage: "key polled for input", Sources: cli.EnvVars("REDIS_INPUT_KEY")},
			&cli.StringFlag{Name: "output-key", Usage: "key the result is written to", Sources: cli.EnvVars("REDIS_OUTPUT_KEY")},
			&cli.StringFlag{Name: "sleep", Value: "5", Usage: "poll interval, seconds or a duration", Sources: cli.EnvVars("SLEEP_TIME")},
			&cli.StringFlag{Name: "handler", Usage: "handler path or grpc://address", Sources: cli.EnvVars("HANDLER_PATH")},
			&cli.StringFlag{Name: "handler-module", Usage: "handler name under the base directory", Sources: cli.EnvVars("HANDLER_MODULE")},
			&cli.StringFlag{Name: "handler-base-dir", Value: fri.DefaultHandlerBaseDir, Usage: "base directory for handler modules", Sources: cli.EnvVars("HANDLER_BASE_DIR")},
			&cli.DurationFlag{Name: "connect-timeout", Value: kv.DefaultConnectTimeout, Usage: "store connect timeout", Sources: cli.EnvVars("CONNECT_TIMEOUT")},
			&cli.DurationFlag{Name: "operation-timeout", Value: kv.DefaultOperationTimeout, Usage: "store operation timeout", Sources: cli.EnvVars("OPERATION_TIMEOUT")},
			&cli.DurationFlag{Name: "handler-timeout", Usage: "limit for a single handler call, 0 for none", Sources: cli.EnvVars("HANDLER_TIMEOUT")},
			&cli.StringFlag{Name: "on-error", Value: string(fri.PolicyFail), Usage: "fail or skip on decode and handler errors", Sources: cli.EnvVars("ON_ERROR")},
			&cli.StringSliceFlag{Name: "env", Usage: "context env entry as key=value, repeatable", Sources: cli.EnvVars("FAAS_ENV")},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "text, json or dev", Sources: cli.EnvVars("LOG_FORMAT")},
			&cli.StringFlag{Name: "log-file", Usage: "log file path, stdout when empty", Sources: cli.EnvVars("LOG_FILE")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := utils.SetupLogger(cmd.String("log-level"), cmd.String("log-format"), cmd.String("log-file"))
			slog.SetDefault(logger)

			settings, err := settingsFromCommand(cmd)
			if err != nil {
				logger.Error("Invalid configuration", "error", err)
				return err
			}
			return run(ctx, settings, logger)
		},
	}
}

func settingsFromCommand(cmd *cli.Command) (fri.Settings, error) {
	interval, err := fri.ParseInterval(cmd.String("sleep"))
	if err != nil {
		return fri.Settings{}, err
	}
	env, err := fri.ParseEnv(cmd.StringSlice("env"))
	if err != nil {
		return fri.Settings{}, err
	}
	return fri.Settings{
		StoreBackend:     cmd.String("store"),
		StoreHost:        cmd.String("host"),
		StorePort:        cmd.Int("port"),
		EtcdEndpoints:    cmd.StringSlice("etcd-endpoint"),
		InputKey:         cmd.String("input-key"),
		OutputKey:        cmd.String("output-key"),
		SleepInterval:    interval,
		HandlerPath:      cmd.String("handler"),
		HandlerModule:    cmd.String("handler-module"),
		HandlerBaseDir:   cmd.String("handler-base-dir"),
		ConnectTimeout:   cmd.Duration("connect-timeout"),
		OperationTimeout: cmd.Duration("operation-timeout"),
		HandlerTimeout:   cmd.Duration("handler-timeout"),
		ErrorPolicy:      fri.ErrorPolicy(cmd.String("on-error")),
		Env:              env,
	}, nil
}

func run(ctx context.Context, settings fri.Settings, logger *slog.Logger) error {
	logger.Info("Current configuration",
		"store", settings.StoreBackend,
		"host", settings.StoreHost,
		"port", settings.StorePort,
		"input_key", settings.InputKey,
		"output_key", settings.OutputKey,
		"sleep", settings.SleepInterval,
		"handler", settings.ResolveHandlerPath())

	bootCtx, cancel := context.WithTimeout(ctx, settings.ConnectTimeout+30*time.Second)
	r, err := fri.Bootstrap(bootCtx, settings, fri.Dependencies{}, logger)
	cancel()
	if err != nil {
		logger.Error("Startup failed", "error", err)
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Warn("Failed to release resources", "error", err)
		}
	}()

	if err := r.Run(ctx); err != nil {
		logger.Error("Processing loop failed", "error", err)
		return err
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(run).Run(ctx, os.Args); err != nil {
		stop()
		os.Exit(1)
	}
}
