package backtest

import (
	"sort"
	"time"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/position"
	"github.com/yourusername/quantlink-tick-engine/pkg/risk"
)

// Statistics collects per-tick decision statistics
type Statistics struct {
	limits position.Limits
	budget time.Duration

	symbols    map[market.Symbol]*SymbolStats
	ticks      int
	errors     int
	convs      int
	orders     int
	first      int64
	last       int64
	totalDur   time.Duration
	maxDur     time.Duration
	overBudget int
	startTime  time.Time
}

// NewStatistics creates a collector; budget <= 0 disables the budget count
func NewStatistics(limits position.Limits, budget time.Duration) *Statistics {
	return &Statistics{
		limits:    limits,
		budget:    budget,
		symbols:   make(map[market.Symbol]*SymbolStats),
		startTime: time.Now(),
	}
}

func (s *Statistics) symbol(sym market.Symbol) *SymbolStats {
	st, ok := s.symbols[sym]
	if !ok {
		st = &SymbolStats{Symbol: sym}
		s.symbols[sym] = st
	}
	return st
}

// OnError counts a snapshot the decider failed to answer
func (s *Statistics) OnError() {
	s.errors++
}

// OnDecision records one answered snapshot
func (s *Statistics) OnDecision(snap *market.Snapshot, d *market.Decision, took time.Duration) {
	if s.ticks == 0 {
		s.first = snap.Timestamp
	}
	s.ticks++
	s.last = snap.Timestamp
	s.convs += d.Conversions
	s.orders += d.OrderCount()

	s.totalDur += took
	if took > s.maxDur {
		s.maxDur = took
	}
	if s.budget > 0 && took > s.budget {
		s.overBudget++
	}

	for sym, pos := range snap.Positions {
		st := s.symbol(sym)
		if abs(pos) > st.MaxAbsPos {
			st.MaxAbsPos = abs(pos)
		}
	}

	for sym, orders := range d.Orders {
		st := s.symbol(sym)
		for _, o := range orders {
			st.Orders++
			if o.Quantity > 0 {
				st.BuyQty += o.Quantity
				st.BuyNotional += int64(o.Price) * int64(o.Quantity)
			} else {
				st.SellQty -= o.Quantity
				st.SellNotional -= int64(o.Price) * int64(o.Quantity)
			}
		}
	}

	// 每个品种每 tick 至多计一次
	breached := make(map[market.Symbol]bool)
	for _, b := range risk.Check(s.limits, snap, d, 0) {
		if !breached[b.Symbol] {
			breached[b.Symbol] = true
			s.symbol(b.Symbol).Breaches++
		}
	}
}

// GenerateReport builds the final result
func (s *Statistics) GenerateReport() *Result {
	end := time.Now()
	r := &Result{
		StartTime:       s.startTime,
		EndTime:         end,
		Duration:        end.Sub(s.startTime),
		Ticks:           s.ticks,
		FirstTimestamp:  s.first,
		LastTimestamp:   s.last,
		Errors:          s.errors,
		Conversions:     s.convs,
		TotalOrders:     s.orders,
		MaxTickDuration: s.maxDur,
		OverBudget:      s.overBudget,
	}
	if s.ticks > 0 {
		r.AvgTickDuration = s.totalDur / time.Duration(s.ticks)
	}

	r.Symbols = make([]*SymbolStats, 0, len(s.symbols))
	for _, st := range s.symbols {
		cp := *st
		r.Symbols = append(r.Symbols, &cp)
	}
	sort.Slice(r.Symbols, func(i, j int) bool { return r.Symbols[i].Symbol < r.Symbols[j].Symbol })
	return r
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
