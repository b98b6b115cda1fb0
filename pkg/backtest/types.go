// Package backtest replays recorded snapshots through a decider and
// summarises what the engine would have sent to the exchange.
package backtest

import (
	"context"
	"time"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// Decider is anything that can answer one snapshot: the in-process engine
// or a remote engine behind gRPC / NATS
type Decider interface {
	Decide(ctx context.Context, snap market.Snapshot) (market.Decision, error)
}

// DeciderFunc adapts a plain function to Decider
type DeciderFunc func(ctx context.Context, snap market.Snapshot) (market.Decision, error)

// Decide calls f
func (f DeciderFunc) Decide(ctx context.Context, snap market.Snapshot) (market.Decision, error) {
	return f(ctx, snap)
}

// Local wraps a synchronous runner (engine.Engine, trader.Trader)
func Local(r interface {
	Run(market.Snapshot) market.Decision
}) Decider {
	return DeciderFunc(func(_ context.Context, snap market.Snapshot) (market.Decision, error) {
		return r.Run(snap), nil
	})
}

// SymbolStats 单品种统计
type SymbolStats struct {
	Symbol       market.Symbol `json:"symbol"`
	Orders       int           `json:"orders"`
	BuyQty       int           `json:"buy_qty"`
	SellQty      int           `json:"sell_qty"`
	BuyNotional  int64         `json:"buy_notional"`
	SellNotional int64         `json:"sell_notional"`
	MaxAbsPos    int           `json:"max_abs_position"`
	Breaches     int           `json:"limit_breaches"` // 持仓+挂单可能越过上限的 tick 数
}

// AvgBuyPrice returns the quantity-weighted buy price, 0 without buys
func (s *SymbolStats) AvgBuyPrice() float64 {
	if s.BuyQty == 0 {
		return 0
	}
	return float64(s.BuyNotional) / float64(s.BuyQty)
}

// AvgSellPrice returns the quantity-weighted sell price, 0 without sells
func (s *SymbolStats) AvgSellPrice() float64 {
	if s.SellQty == 0 {
		return 0
	}
	return float64(s.SellNotional) / float64(s.SellQty)
}

// Result contains the complete replay results
type Result struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration_ns"`

	Ticks          int   `json:"ticks"`
	FirstTimestamp int64 `json:"first_timestamp"`
	LastTimestamp  int64 `json:"last_timestamp"`
	Errors         int   `json:"errors"`
	Conversions    int   `json:"conversions"`
	TotalOrders    int   `json:"total_orders"`

	// 单 tick 耗时
	MaxTickDuration time.Duration `json:"max_tick_duration_ns"`
	AvgTickDuration time.Duration `json:"avg_tick_duration_ns"`
	OverBudget      int           `json:"over_budget"`

	Symbols []*SymbolStats `json:"symbols"`
}
