// Package transport exposes the engine to hosts over gRPC and NATS.
// Both carry JSON-encoded snapshots and decisions.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

const (
	// ServiceName is the gRPC service of the engine
	ServiceName = "quantlink.tick.v1.TickEngine"
	// DecideMethod is the full method name of the unary tick call
	DecideMethod = "/" + ServiceName + "/Decide"
	// CodecName is the content-subtype clients must request
	CodecName = "json"
)

// Decider decides one tick; *engine.Engine implements it
type Decider interface {
	Run(snap market.Snapshot) market.Decision
}

// jsonCodec gRPC 编解码（market 类型无 .proto 定义，直接用 JSON）
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// TickEngineServer is the server API of the tick service
type TickEngineServer interface {
	Decide(ctx context.Context, snap *market.Snapshot) (*market.Decision, error)
}

func decideHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(market.Snapshot)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TickEngineServer).Decide(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DecideMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TickEngineServer).Decide(ctx, req.(*market.Snapshot))
	}
	return interceptor(ctx, in, info, handler)
}

// TickEngineServiceDesc describes the tick service for grpc.Server.RegisterService
var TickEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TickEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decide", Handler: decideHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quantlink/tick/v1/tick.proto",
}

// GRPCServer serves the tick service
type GRPCServer struct {
	decider Decider
	server  *grpc.Server
	log     *zap.Logger
}

// NewGRPCServer creates the server and registers the service
func NewGRPCServer(decider Decider, log *zap.Logger, opts ...grpc.ServerOption) *GRPCServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &GRPCServer{
		decider: decider,
		server:  grpc.NewServer(opts...),
		log:     log.Named("grpc"),
	}
	s.server.RegisterService(&TickEngineServiceDesc, s)
	return s
}

// Decide implements TickEngineServer
func (s *GRPCServer) Decide(ctx context.Context, snap *market.Snapshot) (*market.Decision, error) {
	if snap == nil {
		return nil, status.Error(codes.InvalidArgument, "empty snapshot")
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	d := s.decider.Run(*snap)
	return &d, nil
}

// Serve accepts connections on lis until Stop
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.log.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves
func (s *GRPCServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Stop drains in-flight calls and stops the server
func (s *GRPCServer) Stop() {
	s.server.GracefulStop()
}
