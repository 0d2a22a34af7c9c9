package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	kv "github.com/3s-rg-codes/kvfaas/pkg/keyValueStore"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

func main() {
	cmd := &cli.Command{
		Name:  "faas-kvserver",
		Usage: "in-memory key value store for the http store backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Value: ":8999", Sources: cli.EnvVars("KV_ADDRESS")},
			&cli.StringFlag{Name: "log-level", Value: "info", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: "text", Sources: cli.EnvVars("LOG_FORMAT")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := utils.SetupLogger(cmd.String("log-level"), cmd.String("log-format"), "")
			return kv.NewServer(logger).ListenAndServe(ctx, cmd.String("address"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		stop()
		os.Exit(1)
	}
}
