package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/transport"
)

// NATSClient NATS 请求客户端
type NATSClient struct {
	conn     *nats.Conn
	snapSubj string
	decSubj  string
	subs     []*nats.Subscription
}

// NewNATSClient 创建NATS客户端
func NewNATSClient(url, prefix string) (*NATSClient, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	snapSubj, decSubj := transport.Subjects(prefix)
	return &NATSClient{conn: conn, snapSubj: snapSubj, decSubj: decSubj}, nil
}

// Close 关闭连接
func (c *NATSClient) Close() error {
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// Decide publishes a snapshot as a request and waits for the reply.
// Returns the decision and the request id it was correlated by.
func (c *NATSClient) Decide(ctx context.Context, snap *market.Snapshot) (*market.Decision, string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, "", fmt.Errorf("encode snapshot: %w", err)
	}
	reqID := uuid.NewString()
	msg := nats.NewMsg(c.snapSubj)
	msg.Header.Set(transport.RequestIDHeader, reqID)
	msg.Data = data

	resp, err := c.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, reqID, fmt.Errorf("request %s: %w", reqID, err)
	}
	var d market.Decision
	if err := json.Unmarshal(resp.Data, &d); err != nil {
		return nil, reqID, fmt.Errorf("decode decision: %w", err)
	}
	return &d, reqID, nil
}

// SubscribeDecisions 订阅引擎广播的决策
func (c *NATSClient) SubscribeDecisions(handler func(reqID string, d *market.Decision)) error {
	sub, err := c.conn.Subscribe(c.decSubj, func(msg *nats.Msg) {
		var d market.Decision
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			fmt.Printf("[NATS] Failed to unmarshal decision: %v\n", err)
			return
		}
		handler(msg.Header.Get(transport.RequestIDHeader), &d)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.subs = append(c.subs, sub)
	return nil
}
