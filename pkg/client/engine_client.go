// Package client is the host side of the transports: it sends snapshots to a
// running engine and returns its decisions
package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/transport"
)

// EngineClient gRPC 引擎客户端
type EngineClient struct {
	conn *grpc.ClientConn
}

// NewEngineClient 创建客户端；连接在首次调用时建立
func NewEngineClient(addr string, opts ...grpc.DialOption) (*EngineClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(transport.CodecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &EngineClient{conn: conn}, nil
}

// Close 关闭连接
func (c *EngineClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Decide sends one snapshot and waits for the decision
func (c *EngineClient) Decide(ctx context.Context, snap *market.Snapshot) (*market.Decision, error) {
	out := new(market.Decision)
	if err := c.conn.Invoke(ctx, transport.DecideMethod, snap, out); err != nil {
		return nil, fmt.Errorf("decide: %w", err)
	}
	return out, nil
}
