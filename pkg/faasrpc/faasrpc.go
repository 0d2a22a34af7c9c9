// Package faasrpc is the gRPC contract between the runtime and handlers living in another process.
// Messages are well-known protobuf types, so no generated stubs are needed on either side:
// Invoke takes a Struct {"input": ..., "context": {...}} and answers with a Value (null means no output).
package faasrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
)

const (
	ServiceName  = "kvfaas.Handler"
	InvokeMethod = "/" + ServiceName + "/Invoke"
	PingMethod   = "/" + ServiceName + "/Ping"

	// Scheme prefixes handler paths that point at a gRPC handler server.
	Scheme = "grpc://"
)

// handlerService is implemented by Server; it exists so ServiceDesc can be type checked by grpc.
type handlerService interface {
	invoke(ctx context.Context, req *structpb.Struct) (*structpb.Value, error)
	ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*handlerService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(handlerService).invoke(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InvokeMethod}
				return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
					return srv.(handlerService).invoke(ctx, req.(*structpb.Struct))
				})
			},
		},
		{
			MethodName: "Ping",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(handlerService).ping(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PingMethod}
				return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
					return srv.(handlerService).ping(ctx, req.(*structpb.Struct))
				})
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}

// EncodeRequest packs an invocation into the wire Struct.
func EncodeRequest(input any, snap execution.Snapshot) (*structpb.Struct, error) {
	in, err := toPlain(input)
	if err != nil {
		return nil, fmt.Errorf("encoding input: %w", err)
	}
	ctxValue, err := toPlain(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding context: %w", err)
	}
	return structpb.NewStruct(map[string]any{
		"input":   in,
		"context": ctxValue,
	})
}

// DecodeRequest unpacks the wire Struct produced by EncodeRequest.
func DecodeRequest(req *structpb.Struct) (any, execution.Snapshot, error) {
	var snap execution.Snapshot
	fields := req.GetFields()

	var input any
	if v, ok := fields["input"]; ok {
		input = v.AsInterface()
	}
	if v, ok := fields["context"]; ok {
		b, err := json.Marshal(v.AsInterface())
		if err != nil {
			return nil, snap, err
		}
		if err := json.Unmarshal(b, &snap); err != nil {
			return nil, snap, fmt.Errorf("decoding context: %w", err)
		}
	}
	return input, snap, nil
}

// EncodeValue converts any JSON serialisable value into a protobuf Value.
func EncodeValue(v any) (*structpb.Value, error) {
	plain, err := toPlain(v)
	if err != nil {
		return nil, err
	}
	return structpb.NewValue(plain)
}

// toPlain reduces v to the maps, slices and scalars that structpb understands.
func toPlain(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, float64:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
