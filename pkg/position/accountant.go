// Package position tracks remaining buy/sell capacity per instrument within
// one tick, from the configured limit, the live position and the provisional
// position implied by orders already decided this tick.
package position

import (
	"errors"
	"fmt"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// ErrExceedsCapacity is returned by Commit when the caller did not clamp
var ErrExceedsCapacity = errors.New("position: quantity exceeds capacity")

// Limits is an immutable symbol -> position limit table
type Limits struct {
	limits map[market.Symbol]int
}

// NewLimits copies the given table; negative limits are treated as 0
func NewLimits(table map[market.Symbol]int) Limits {
	l := Limits{limits: make(map[market.Symbol]int, len(table))}
	for sym, v := range table {
		if v < 0 {
			v = 0
		}
		l.limits[sym] = v
	}
	return l
}

// Of returns the limit of a symbol; unknown symbols have limit 0
func (l Limits) Of(sym market.Symbol) int {
	return l.limits[sym]
}

// Len returns the number of configured symbols
func (l Limits) Len() int {
	return len(l.limits)
}

// Accountant 本 tick 内的仓位核算：limit、实盘持仓、本 tick 已下单的临时持仓
type Accountant struct {
	limits      Limits
	live        map[market.Symbol]int
	provisional map[market.Symbol]int
	converted   map[market.Symbol]int
}

// NewAccountant creates a per-tick accountant from live positions
func NewAccountant(limits Limits, live map[market.Symbol]int) *Accountant {
	a := &Accountant{
		limits:      limits,
		live:        make(map[market.Symbol]int, len(live)),
		provisional: make(map[market.Symbol]int),
		converted:   make(map[market.Symbol]int),
	}
	for sym, v := range live {
		a.live[sym] = v
	}
	return a
}

// Capacity returns how much can still be bought and sold this tick.
// live includes any conversion registered this tick.
//
//	buy  = limit - live - max(provisional, 0)
//	sell = limit + live + min(provisional, 0)
func (a *Accountant) Capacity(sym market.Symbol) (buy, sell int) {
	limit := a.limits.Of(sym)
	live := a.live[sym] + a.converted[sym]
	prov := a.provisional[sym]

	buy = limit - live - max(prov, 0)
	sell = limit + live + min(prov, 0)
	return max(buy, 0), max(sell, 0)
}

// CapacityFor returns the capacity of one side
func (a *Accountant) CapacityFor(sym market.Symbol, side market.Side) int {
	buy, sell := a.Capacity(sym)
	if side == market.Buy {
		return buy
	}
	return sell
}

// Commit adds a signed quantity to the provisional position
func (a *Accountant) Commit(sym market.Symbol, qty int) error {
	if qty == 0 {
		return nil
	}
	buy, sell := a.Capacity(sym)
	if (qty > 0 && qty > buy) || (qty < 0 && -qty > sell) {
		return fmt.Errorf("%w: %s qty=%d buy=%d sell=%d", ErrExceedsCapacity, sym, qty, buy, sell)
	}
	a.provisional[sym] += qty
	return nil
}

// Convert registers a conversion request settled against the live position.
// The effective live position becomes live + qty and must stay within the limit.
func (a *Accountant) Convert(sym market.Symbol, qty int) error {
	if qty == 0 {
		return nil
	}
	limit := a.limits.Of(sym)
	next := a.Position(sym) + qty
	if next > limit || next < -limit {
		return fmt.Errorf("%w: %s conversion=%d live=%d limit=%d", ErrExceedsCapacity, sym, qty, a.live[sym], limit)
	}
	a.converted[sym] += qty
	return nil
}

// Converted returns the conversion registered this tick
func (a *Accountant) Converted(sym market.Symbol) int {
	return a.converted[sym]
}

// Live returns the confirmed position
func (a *Accountant) Live(sym market.Symbol) int {
	return a.live[sym]
}

// Provisional returns the exposure decided so far this tick
func (a *Accountant) Provisional(sym market.Symbol) int {
	return a.provisional[sym]
}

// Position returns live + converted + provisional
func (a *Accountant) Position(sym market.Symbol) int {
	return a.live[sym] + a.converted[sym] + a.provisional[sym]
}

// Limit returns the configured limit
func (a *Accountant) Limit(sym market.Symbol) int {
	return a.limits.Of(sym)
}
