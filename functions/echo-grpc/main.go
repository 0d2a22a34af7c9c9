// echo-grpc is a gRPC handler that returns its input together with the invocation it belongs to.
// Point the runtime at it with --handler grpc://localhost:50052.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
	"github.com/3s-rg-codes/kvfaas/pkg/faasrpc"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

func handler(_ context.Context, input any, snap execution.Snapshot) (any, error) {
	if execution.IsEmpty(input) {
		return nil, nil
	}
	return map[string]any{
		"echo":          input,
		"invocation_id": snap.InvocationID,
		"input_key":     snap.InputKey,
	}, nil
}

func main() {
	cmd := &cli.Command{
		Name:  "echo-grpc",
		Usage: "echo handler served over gRPC",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Value: ":50052", Sources: cli.EnvVars("HANDLER_ADDRESS")},
			&cli.DurationFlag{Name: "idle-timeout", Usage: "stop after this long without calls, 0 disables"},
			&cli.StringFlag{Name: "log-level", Value: "info", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: "text", Sources: cli.EnvVars("LOG_FORMAT")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := utils.SetupLogger(cmd.String("log-level"), cmd.String("log-format"), "")
			return faasrpc.ListenAndServe(ctx, cmd.String("address"), execution.HandlerFunc(handler), logger,
				faasrpc.WithIdleTimeout(cmd.Duration("idle-timeout")))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		stop()
		os.Exit(1)
	}
}
