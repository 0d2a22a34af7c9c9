package faasrpc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

var _ execution.Handler = &Client{}

// Client calls a remote handler. It implements execution.Handler.
type Client struct {
	conn   *grpc.ClientConn
	logger *slog.Logger
}

// Dial creates a client for address, with or without the grpc:// prefix. No I/O happens until the
// first call; use Ping to probe the server.
func Dial(address string, logger *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	logger = utils.OrDiscard(logger)
	address = strings.TrimPrefix(address, Scheme)
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(utils.ClientInterceptorLogger(logger)),
	}, opts...)

	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler client for %s: %w", address, err)
	}
	return &Client{conn: conn, logger: logger}, nil
}

func (c *Client) Invoke(ctx context.Context, input any, snap execution.Snapshot) (any, error) {
	req, err := EncodeRequest(input, snap)
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Value)
	if err := c.conn.Invoke(ctx, InvokeMethod, req, resp); err != nil {
		return nil, err
	}
	return resp.AsInterface(), nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Invoke(ctx, PingMethod, &structpb.Struct{}, new(structpb.Struct))
}

func (c *Client) Close() error {
	return c.conn.Close()
}
