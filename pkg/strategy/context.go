package strategy

import (
	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/book"
	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/position"
	"github.com/yourusername/quantlink-tick-engine/pkg/pricing"
	"github.com/yourusername/quantlink-tick-engine/pkg/state"
)

// Context is everything a strategy sees during one tick. The accountant,
// the book set and the current frame are owned by the tick and shared by
// every strategy in registry order.
type Context struct {
	Snapshot   *market.Snapshot
	Accountant *position.Accountant
	Books      *book.Set
	State      *state.State
	Frame      state.Frame // this tick's frame; Records is shared with State.History
	Log        *zap.Logger

	orders      map[market.Symbol][]market.Order
	conversions int
	appended    bool // Frame is already in State.History
}

// NewContext creates a tick context
func NewContext(snap *market.Snapshot, acct *position.Accountant, books *book.Set,
	st *state.State, frame state.Frame, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	return &Context{
		Snapshot:   snap,
		Accountant: acct,
		Books:      books,
		State:      st,
		Frame:      frame,
		Log:        log,
		orders:     make(map[market.Symbol][]market.Order),
	}
}

// Orders returns the orders emitted so far, per symbol in emission order
func (c *Context) Orders() map[market.Symbol][]market.Order {
	return c.orders
}

// Conversions returns the net conversion request of the tick
func (c *Context) Conversions() int {
	return c.conversions
}

// Record returns this tick's record of a symbol
func (c *Context) Record(sym market.Symbol) state.Record {
	return c.Frame.Records[sym]
}

// PutRecord replaces this tick's record of a symbol
func (c *Context) PutRecord(sym market.Symbol, r state.Record) {
	c.Frame.Records[sym] = r
}

// AppendFrame pushes this tick's frame into the history once
func (c *Context) AppendFrame(warmupTicks int) {
	if c.appended {
		return
	}
	c.State.Append(c.Frame, warmupTicks)
	c.appended = true
}

// PreviousRecord returns the record of a symbol from the tick before this
// one, before or after AppendFrame
func (c *Context) PreviousRecord(sym market.Symbol) (state.Record, bool) {
	f, ok := c.State.History.Latest()
	if c.appended {
		f, ok = c.State.History.Previous()
	}
	if !ok {
		return state.Record{}, false
	}
	return f.Record(sym)
}

// FairInput assembles the model input of a symbol from history (newest first,
// this tick included) and this tick's imbalance
func (c *Context) FairInput(sym market.Symbol) pricing.FairInput {
	in := pricing.FairInput{Mids: c.State.History.Series(sym, state.FieldMid)}
	in.Imbalance, in.HasImbalance = c.Record(sym).Get(state.FieldImbalance)
	return in
}

// SnapshotMid is the mid of the unmodified snapshot depth
func (c *Context) SnapshotMid(sym market.Symbol) (float64, bool) {
	depth, ok := c.Snapshot.OrderDepths[sym]
	if !ok {
		return 0, false
	}
	return depth.Mid()
}

// RequestConversion registers a conversion with the accountant and adds it
// to the tick's conversion request
func (c *Context) RequestConversion(sym market.Symbol, qty int) bool {
	if err := c.Accountant.Convert(sym, qty); err != nil {
		c.Log.Error("conversion rejected", zap.String("symbol", string(sym)), zap.Error(err))
		return false
	}
	c.conversions += qty
	return true
}

// emit commits and records an order; dir is the order direction
func (c *Context) emit(sym market.Symbol, dir market.Side, price, qty int) bool {
	if qty <= 0 {
		return false
	}
	signed := qty * int(dir)
	if err := c.Accountant.Commit(sym, signed); err != nil {
		// capacity is clamped by every caller, this is a bug
		c.Log.Error("order dropped", zap.String("symbol", string(sym)), zap.Error(err))
		return false
	}
	o := market.Order{Symbol: sym, Price: price, Quantity: signed}
	c.orders[sym] = append(c.orders[sym], o)
	c.Log.Debug("order", zap.Stringer("order", o))
	return true
}

// clamp limits a requested quantity to the accountant's capacity
func (c *Context) clamp(sym market.Symbol, dir market.Side, qty int) int {
	return max(min(qty, c.Accountant.CapacityFor(sym, dir)), 0)
}

// Take buys (dir=Buy) resting asks or sells into resting bids whose price
// satisfies pred, best first, up to capacity. One order per claimed level.
// Returns the filled quantity.
func (c *Context) Take(sym market.Symbol, dir market.Side, pred func(price int) bool, capacity int) int {
	b, ok := c.Books.Get(sym)
	if !ok {
		return 0
	}
	capacity = c.clamp(sym, dir, capacity)
	fills, _ := b.Claim(dir.Opposite(), pred, capacity)
	filled := 0
	for _, f := range fills {
		if c.emit(sym, dir, f.Price, f.Qty) {
			filled += f.Qty
		}
	}
	return filled
}

// Sweep claims like Take but emits a single order for the whole quantity at
// the deepest claimed price. Returns the filled quantity and that price.
func (c *Context) Sweep(sym market.Symbol, dir market.Side, pred func(price int) bool, capacity int) (int, int) {
	b, ok := c.Books.Get(sym)
	if !ok {
		return 0, 0
	}
	capacity = c.clamp(sym, dir, capacity)
	fills, _ := b.Claim(dir.Opposite(), pred, capacity)
	if len(fills) == 0 {
		return 0, 0
	}
	filled := 0
	for _, f := range fills {
		filled += f.Qty
	}
	deepest := fills[len(fills)-1].Price
	if !c.emit(sym, dir, deepest, filled) {
		return 0, 0
	}
	return filled, deepest
}

// Cross sends qty at a single price, claiming whatever rests there.
// The unclaimed remainder of the order is left to the exchange.
func (c *Context) Cross(sym market.Symbol, dir market.Side, price, qty int) int {
	b, ok := c.Books.Get(sym)
	if !ok {
		return 0
	}
	qty = c.clamp(sym, dir, qty)
	if qty <= 0 {
		return 0
	}
	b.ClaimAt(dir.Opposite(), price, qty)
	if !c.emit(sym, dir, price, qty) {
		return 0
	}
	return qty
}

// Post places a resting quote and registers it in the simulated book
func (c *Context) Post(sym market.Symbol, dir market.Side, price, qty int) int {
	b, ok := c.Books.Get(sym)
	if !ok {
		return 0
	}
	qty = c.clamp(sym, dir, qty)
	if !c.emit(sym, dir, price, qty) {
		return 0
	}
	b.Post(dir, price, qty)
	return qty
}
