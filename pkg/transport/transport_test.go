package transport

import (
	"context"
	"encoding/json"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// echoDecider buys one lot at the best bid of every symbol
type echoDecider struct {
	calls int
}

func (e *echoDecider) Run(snap market.Snapshot) market.Decision {
	e.calls++
	d := market.Decision{Timestamp: snap.Timestamp, Orders: map[market.Symbol][]market.Order{}, TraderData: snap.TraderData + "x"}
	for _, sym := range snap.Symbols() {
		if bid, _, ok := snap.OrderDepths[sym].BestBid(); ok {
			d.Orders[sym] = []market.Order{{Symbol: sym, Price: bid, Quantity: 1}}
		}
	}
	return d
}

func TestHandleSnapshot(t *testing.T) {
	dec := &echoDecider{}
	in := `{"timestamp":100,"trader_data":"abc","order_depths":{"AMETHYSTS":{"buy_orders":{"9995":3},"sell_orders":{"10005":-4}}}}`

	out, err := HandleSnapshot(dec, []byte(in))
	if err != nil {
		t.Fatalf("HandleSnapshot() error = %v", err)
	}
	var d market.Decision
	if err := json.Unmarshal(out, &d); err != nil {
		t.Fatal(err)
	}
	if d.Timestamp != 100 || d.TraderData != "abcx" {
		t.Errorf("decision = %+v", d)
	}
	if got := d.Orders["AMETHYSTS"]; len(got) != 1 || got[0].Price != 9995 {
		t.Errorf("orders = %v", got)
	}

	if _, err := HandleSnapshot(dec, []byte("{")); err == nil {
		t.Error("expected decode error")
	}
	if dec.calls != 1 {
		t.Errorf("decider calls = %d, want 1", dec.calls)
	}
}

func TestSubjects(t *testing.T) {
	snap, dec := Subjects("tick")
	if snap != "tick.snapshot" || dec != "tick.decision" {
		t.Errorf("Subjects() = %q, %q", snap, dec)
	}
}

func TestGRPCServer_Decide(t *testing.T) {
	s := NewGRPCServer(&echoDecider{}, nil)

	if _, err := s.Decide(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Errorf("nil snapshot error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Decide(ctx, &market.Snapshot{}); status.Code(err) != codes.Canceled {
		t.Errorf("cancelled context error = %v", err)
	}

	d, err := s.Decide(context.Background(), &market.Snapshot{Timestamp: 7})
	if err != nil || d.Timestamp != 7 {
		t.Errorf("Decide() = %+v, %v", d, err)
	}
}

func TestJSONCodec(t *testing.T) {
	c := jsonCodec{}
	data, err := c.Marshal(&market.Decision{Timestamp: 5, Conversions: -3})
	if err != nil {
		t.Fatal(err)
	}
	var d market.Decision
	if err := c.Unmarshal(data, &d); err != nil || d.Conversions != -3 {
		t.Errorf("Unmarshal() = %+v, %v", d, err)
	}
	if c.Name() != "json" {
		t.Errorf("Name() = %q", c.Name())
	}
}
