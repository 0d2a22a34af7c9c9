package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goforj/godump"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	kv "github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
	"github.com/3s-rg-codes/kvfaas/pkg/monitor"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	cmd := &cli.Command{
		Name:  "faas-monitor",
		Usage: "follow the output key and keep the metric windows a dashboard plots",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store", Value: kv.BackendRedis, Usage: "store backend: redis, etcd or http", Sources: cli.EnvVars("STORE_BACKEND")},
			&cli.StringFlag{Name: "host", Value: "localhost", Sources: cli.EnvVars("REDIS_HOST")},
			&cli.IntFlag{Name: "port", Value: 6379, Sources: cli.EnvVars("REDIS_PORT")},
			&cli.StringSliceFlag{Name: "etcd-endpoint", Value: []string{"localhost:2379"}, Sources: cli.EnvVars("ETCD_ENDPOINTS")},
			&cli.StringFlag{Name: "output-key", Usage: "key written by the runtime", Required: true, Sources: cli.EnvVars("REDIS_OUTPUT_KEY")},
			&cli.DurationFlag{Name: "interval", Value: monitor.DefaultInterval, Usage: "refresh interval"},
			&cli.IntFlag{Name: "history", Value: monitor.DefaultHistory, Usage: "samples kept per window"},
			&cli.StringFlag{Name: "listen", Usage: "serve the windows over HTTP on this address, e.g. :8090"},
			&cli.BoolFlag{Name: "dump", Usage: "dump the raw windows on every refresh"},
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

			m := monitor.New(store, cmd.String("output-key"), cmd.Int("history"), logger)
			interval := cmd.Duration("interval")

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return m.Run(ctx, interval)
			})
			if cmd.Bool("dump") {
				g.Go(func() error {
					return dumpLoop(ctx, m, interval)
				})
			}
			if address := cmd.String("listen"); address != "" {
				g.Go(func() error {
					logger.Info("Serving windows", "address", address)
					return monitor.Serve(ctx, monitor.NewApp(m), address)
				})
			}
			return g.Wait()
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		stop()
		os.Exit(1)
	}
}

func dumpLoop(ctx context.Context, m *monitor.Monitor, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			godump.Dump(m.Windows())
		}
	}
}
