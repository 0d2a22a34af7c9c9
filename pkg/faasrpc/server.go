package faasrpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
	"github.com/3s-rg-codes/kvfaas/pkg/utils"
)

// Server hosts an execution.Handler behind the kvfaas.Handler gRPC service.
type Server struct {
	handler execution.Handler
	logger  *slog.Logger

	server       *grpc.Server
	idleTimeout  time.Duration
	lastActivity time.Time
	activityMu   sync.RWMutex
	done         chan struct{}
	stopOnce     sync.Once
	watcher      sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithIdleTimeout stops the server after d without any call. Zero disables it.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.idleTimeout = d }
}

func NewServer(handler execution.Handler, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		handler: handler,
		logger:  utils.OrDiscard(logger),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.unaryActivityInterceptor, utils.InterceptorLogger(s.logger)),
	)
	s.server.RegisterService(&serviceDesc, s)
	return s
}

// Serve blocks until the listener fails or the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	s.updateActivity()
	if s.idleTimeout > 0 {
		s.watcher.Add(1)
		go s.monitorTimeout()
	}
	s.logger.Info("Handler server starting", "address", lis.Addr().String(), "idle_timeout", s.idleTimeout)
	return s.server.Serve(lis)
}

// Stop stops the server gracefully and ends the idle watcher.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.server.GracefulStop()
}

// ListenAndServe listens on address and serves handler until ctx is cancelled.
func ListenAndServe(ctx context.Context, address string, handler execution.Handler, logger *slog.Logger, opts ...ServerOption) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s := NewServer(handler, logger, opts...)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return s.Serve(lis)
}

func (s *Server) invoke(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	input, snap, err := DecodeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	out, err := s.handler.Invoke(ctx, input, snap)
	if err != nil {
		return nil, status.Error(codes.Unknown, err.Error())
	}
	if out == nil {
		return structpb.NewNullValue(), nil
	}

	v, err := EncodeValue(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding output: %v", err)
	}
	return v, nil
}

func (s *Server) ping(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return &structpb.Struct{}, nil
}

func (s *Server) unaryActivityInterceptor(
	ctx context.Context,
	req any,
	_ *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	s.updateActivity()
	return handler(ctx, req)
}

func (s *Server) updateActivity() {
	s.activityMu.Lock()
	s.lastActivity = time.Now()
	s.activityMu.Unlock()
}

func (s *Server) monitorTimeout() {
	defer s.watcher.Done()
	ticker := time.NewTicker(s.watchInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		s.activityMu.RLock()
		inactive := time.Since(s.lastActivity)
		s.activityMu.RUnlock()

		if inactive >= s.idleTimeout {
			s.logger.Info("Server timeout reached, shutting down",
				"timeout", s.idleTimeout,
				"last_activity", inactive)
			s.Stop()
			return
		}
	}
}

func (s *Server) watchInterval() time.Duration {
	if s.idleTimeout < time.Second {
		return s.idleTimeout
	}
	return time.Second
}
