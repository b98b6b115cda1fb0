package transport

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// RequestIDHeader carries the correlation id of a snapshot and its decision
const RequestIDHeader = "Request-Id"

// Subjects returns the snapshot and decision subjects for a prefix
func Subjects(prefix string) (snapshot, decision string) {
	return prefix + ".snapshot", prefix + ".decision"
}

// NATSBridge answers snapshots published on <prefix>.snapshot.
// Each decision is sent as the reply (when the publisher asked for one) and
// broadcast on <prefix>.decision.
type NATSBridge struct {
	decider  Decider
	conn     *nats.Conn
	sub      *nats.Subscription
	snapSubj string
	decSubj  string
	log      *zap.Logger

	// 统计
	handled  atomic.Int64
	rejected atomic.Int64
}

// NewNATSBridge connects to the NATS server at url
func NewNATSBridge(url, prefix string, decider Decider, log *zap.Logger) (*NATSBridge, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("quantlink-tick-engine"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	snapSubj, decSubj := Subjects(prefix)
	return &NATSBridge{
		decider:  decider,
		conn:     conn,
		snapSubj: snapSubj,
		decSubj:  decSubj,
		log:      log.Named("nats"),
	}, nil
}

// Start subscribes to the snapshot subject
func (b *NATSBridge) Start() error {
	sub, err := b.conn.Subscribe(b.snapSubj, b.onSnapshot)
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", b.snapSubj, err)
	}
	b.sub = sub
	b.log.Info("subscribed", zap.String("subject", b.snapSubj))
	return nil
}

// Close unsubscribes, drains and closes the connection
func (b *NATSBridge) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.conn != nil {
		return b.conn.Drain()
	}
	return nil
}

// Stats returns handled and rejected message counts
func (b *NATSBridge) Stats() (handled, rejected int64) {
	return b.handled.Load(), b.rejected.Load()
}

func (b *NATSBridge) onSnapshot(msg *nats.Msg) {
	reqID := msg.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}

	out, err := HandleSnapshot(b.decider, msg.Data)
	if err != nil {
		b.rejected.Add(1)
		b.log.Warn("snapshot rejected", zap.String("request_id", reqID), zap.Error(err))
		return
	}
	b.handled.Add(1)

	reply := nats.NewMsg(b.decSubj)
	reply.Header.Set(RequestIDHeader, reqID)
	reply.Data = out
	if err := b.conn.PublishMsg(reply); err != nil {
		b.log.Error("publish decision failed", zap.String("request_id", reqID), zap.Error(err))
	}
	if msg.Reply != "" {
		resp := nats.NewMsg(msg.Reply)
		resp.Header.Set(RequestIDHeader, reqID)
		resp.Data = out
		if err := msg.RespondMsg(resp); err != nil {
			b.log.Error("reply failed", zap.String("request_id", reqID), zap.Error(err))
		}
	}
}

// HandleSnapshot decodes a JSON snapshot, decides it and encodes the decision
func HandleSnapshot(decider Decider, data []byte) ([]byte, error) {
	var snap market.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	d := decider.Run(snap)
	out, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode decision: %w", err)
	}
	return out, nil
}
