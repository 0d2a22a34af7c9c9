package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/3s-rg-codes/kvfaas/pkg/hostMetrics"
	kv "github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

const defaultInterval = 5 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	cmd := &cli.Command{
		Name:  "faas-trigger",
		Usage: "sample host cpu and memory and write them to the input key",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store", Value: kv.BackendRedis, Usage: "store backend: redis, etcd or http", Sources: cli.EnvVars("STORE_BACKEND")},
			&cli.StringFlag{Name: "host", Value: "localhost", Sources: cli.EnvVars("REDIS_HOST")},
			&cli.IntFlag{Name: "port", Value: 6379, Sources: cli.EnvVars("REDIS_PORT")},
			&cli.StringSliceFlag{Name: "etcd-endpoint", Value: []string{"localhost:2379"}, Sources: cli.EnvVars("ETCD_ENDPOINTS")},
			&cli.StringFlag{Name: "input-key", Usage: "key the runtime polls", Required: true, Sources: cli.EnvVars("REDIS_INPUT_KEY")},
			&cli.DurationFlag{Name: "interval", Value: defaultInterval, Usage: "sampling interval"},
			&cli.DurationFlag{Name: "cpu-window", Value: 100 * time.Millisecond, Usage: "window cpu usage is measured over"},
			&cli.IntFlag{Name: "count", Usage: "stop after this many samples, 0 runs until interrupted"},
			&cli.StringFlag{Name: "log-level", Value: "info", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: "text", Sources: cli.EnvVars("LOG_FORMAT")},
			&cli.StringFlag{Name: "log-file", Sources: cli.EnvVars("LOG_FILE")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := utils.SetupLogger(cmd.String("log-level"), cmd.String("log-format"), cmd.String("log-file"))

			store, err := kv.Connect(ctx, kv.Options{
				Backend:   cmd.String("store"),
				Host:      cmd.String("host"),
				Port:      cmd.Int("port"),
				Endpoints: cmd.StringSlice("etcd-endpoint"),
			}, logger)
			if err != nil {
				logger.Error("Failed to connect to store", "error", err)
				return err
			}
			defer store.Close()

			sampler := hostMetrics.NewSampler(cmd.Duration("cpu-window"))
			return produce(ctx, store, sampler, cmd.String("input-key"), cmd.Duration("interval"), cmd.Int("count"), logger)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		stop()
		os.Exit(1)
	}
}

// produce writes count samples to key, one per interval. A count of 0 runs until ctx is cancelled.
func produce(ctx context.Context, store kv.Store, sampler *hostMetrics.Sampler, key string, interval time.Duration, count int, logger *slog.Logger) error {
	if interval <= 0 {
		logger.Warn("Interval must be positive, using the default", "interval", interval, "default", defaultInterval)
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; count == 0 || sent < count; {
		sample, err := sampler.Collect(ctx)
		if err != nil {
			logger.Error("Failed to sample host", "error", err)
			return err
		}
		payload, err := json.Marshal(sample)
		if err != nil {
			return err
		}
		if err := store.Set(ctx, key, string(payload)); err != nil {
			logger.Error("Failed to write sample", "key", key, "error", err)
			return err
		}
		logger.Debug("Sample written", "key", key, "cpus", len(sample.CPUPercentPerCPU), "memory", sample.MemoryUsedPercent)

		if sent++; count != 0 && sent >= count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
