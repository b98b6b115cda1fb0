// Package market defines the host-facing data model: per-tick snapshots of
// order books and positions, and the decision returned for each tick.
package market

import (
	"fmt"
	"sort"
)

// Symbol identifies a tradable instrument (e.g. "AMETHYSTS", "COCONUT_COUPON")
type Symbol string

// Side of an order or a book
type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

// String returns BUY or SELL
func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the other side
func (s Side) Opposite() Side {
	return -s
}

// OrderDepth 是单个品种本 tick 的盘口快照
// Buy: price -> volume (正数)；Sell: price -> volume (负数)
type OrderDepth struct {
	Buy  map[int]int `json:"buy_orders"`
	Sell map[int]int `json:"sell_orders"`
}

// NewOrderDepth creates an empty depth
func NewOrderDepth() OrderDepth {
	return OrderDepth{
		Buy:  make(map[int]int),
		Sell: make(map[int]int),
	}
}

// BestBid returns the highest buy price with positive volume
func (d OrderDepth) BestBid() (price, volume int, ok bool) {
	for p, v := range d.Buy {
		if v <= 0 {
			continue
		}
		if !ok || p > price {
			price, volume, ok = p, v, true
		}
	}
	return price, volume, ok
}

// BestAsk returns the lowest sell price with negative volume; volume is returned as a magnitude
func (d OrderDepth) BestAsk() (price, volume int, ok bool) {
	for p, v := range d.Sell {
		if v >= 0 {
			continue
		}
		if !ok || p < price {
			price, volume, ok = p, -v, true
		}
	}
	return price, volume, ok
}

// Mid returns (best bid + best ask) / 2
func (d OrderDepth) Mid() (float64, bool) {
	bid, _, okBid := d.BestBid()
	ask, _, okAsk := d.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return float64(bid+ask) / 2.0, true
}

// Imbalance returns (bidVol - askVol) / (bidVol + askVol) at the top of book
func (d OrderDepth) Imbalance() (float64, bool) {
	_, bidVol, okBid := d.BestBid()
	_, askVol, okAsk := d.BestAsk()
	if !okBid || !okAsk || bidVol+askVol == 0 {
		return 0, false
	}
	return float64(bidVol-askVol) / float64(bidVol+askVol), true
}

// Order is a limit order emitted by the engine. Quantity > 0 buys, < 0 sells.
type Order struct {
	Symbol   Symbol `json:"symbol"`
	Price    int    `json:"price"`
	Quantity int    `json:"quantity"`
}

// Side returns the direction of the order
func (o Order) Side() Side {
	if o.Quantity < 0 {
		return Sell
	}
	return Buy
}

func (o Order) String() string {
	qty := o.Quantity
	if qty < 0 {
		qty = -qty
	}
	return fmt.Sprintf("%s %s %dx %d", o.Side(), o.Symbol, qty, o.Price)
}

// Trade is an own fill reported by the host since the previous tick
type Trade struct {
	Symbol    Symbol `json:"symbol"`
	Price     int    `json:"price"`
	Quantity  int    `json:"quantity"`
	Buyer     string `json:"buyer,omitempty"`
	Seller    string `json:"seller,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ConversionObservation 外部交易所报价与费用，用于转换套利
type ConversionObservation struct {
	BidPrice      float64 `json:"bid_price"`
	AskPrice      float64 `json:"ask_price"`
	TransportFees float64 `json:"transport_fees"`
	ExportTariff  float64 `json:"export_tariff"`
	ImportTariff  float64 `json:"import_tariff"`
	Sunlight      float64 `json:"sunlight,omitempty"`
	Humidity      float64 `json:"humidity,omitempty"`
}

// Snapshot is everything the host hands the engine for one tick
type Snapshot struct {
	Timestamp   int64                            `json:"timestamp"`
	TraderData  string                           `json:"trader_data"`
	OrderDepths map[Symbol]OrderDepth            `json:"order_depths"`
	Positions   map[Symbol]int                   `json:"position"`
	OwnTrades   map[Symbol][]Trade               `json:"own_trades"`
	Conversions map[Symbol]ConversionObservation `json:"conversion_observations"`
}

// Position returns the live position for a symbol; absent means flat
func (s *Snapshot) Position(sym Symbol) int {
	if s.Positions == nil {
		return 0
	}
	return s.Positions[sym]
}

// Symbols returns the symbols present in the snapshot in sorted order
func (s *Snapshot) Symbols() []Symbol {
	out := make([]Symbol, 0, len(s.OrderDepths))
	for sym := range s.OrderDepths {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decision is the engine's answer for one tick
type Decision struct {
	Timestamp   int64              `json:"timestamp"`
	Orders      map[Symbol][]Order `json:"orders"`
	Conversions int                `json:"conversions"`
	TraderData  string             `json:"trader_data"`
}

// OrderCount returns the total number of orders across symbols
func (d *Decision) OrderCount() int {
	n := 0
	for _, orders := range d.Orders {
		n += len(orders)
	}
	return n
}
