// Package engine runs one decision pass per market snapshot: decode the
// carried state, derive this tick's records, run every bound strategy in
// registry order against a shared simulated book and position accountant,
// and return the orders with the re-encoded state.
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/book"
	"github.com/yourusername/quantlink-tick-engine/pkg/config"
	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/position"
	"github.com/yourusername/quantlink-tick-engine/pkg/state"
	"github.com/yourusername/quantlink-tick-engine/pkg/strategy"
)

// Status 引擎运行状态（供 API 查询）
type Status struct {
	Ticks         uint64        `json:"ticks"`
	DecodeErrors  uint64        `json:"decode_errors"`
	OverBudget    uint64        `json:"over_budget"`
	LastTimestamp int64         `json:"last_timestamp"`
	LastOrders    int           `json:"last_orders"`
	LastDuration  time.Duration `json:"last_duration_ns"`
	Phase         string        `json:"phase"`
	Strategies    []string      `json:"strategies"`
}

// Engine is safe for concurrent use; ticks are serialised
type Engine struct {
	mu       sync.Mutex
	cfg      config.EngineConfig
	limits   position.Limits
	codec    state.Codec
	registry *strategy.Registry
	log      *zap.Logger
	status   Status
}

// New creates an engine around a built registry
func New(cfg *config.TraderConfig, registry *strategy.Registry, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg.Engine,
		limits:   position.NewLimits(cfg.Limits()),
		codec:    state.NewCodec(cfg.Engine.HistorySize),
		registry: registry,
		log:      log.Named("engine"),
	}
	e.status.Phase = state.WarmUp.String()
	e.status.Strategies = registry.Describe()
	for _, line := range e.status.Strategies {
		e.log.Info("strategy chain", zap.String("chain", line))
	}
	return e
}

// FromConfig builds the registry from the configuration and creates the engine
func FromConfig(cfg *config.TraderConfig, log *zap.Logger) (*Engine, error) {
	reg, err := strategy.BuildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, reg, log), nil
}

// Reload swaps the strategy registry; the next tick uses the new chain
func (e *Engine) Reload(registry *strategy.Registry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry = registry
	e.status.Strategies = registry.Describe()
	e.log.Info("strategy registry reloaded", zap.Int("symbols", registry.Len()))
}

// Status returns a copy of the current counters
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.status
	s.Strategies = append([]string(nil), e.status.Strategies...)
	return s
}

// Run decides one tick. The result depends only on the snapshot (its
// token included) and the configuration.
func (e *Engine) Run(snap market.Snapshot) market.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	decision, st, decodeErr := e.tick(snap)
	elapsed := time.Since(start)

	e.status.Ticks++
	if decodeErr != nil {
		e.status.DecodeErrors++
	}
	e.status.LastTimestamp = snap.Timestamp
	e.status.LastOrders = decision.OrderCount()
	e.status.LastDuration = elapsed
	e.status.Phase = st.Phase.String()

	if e.cfg.TickBudget > 0 && elapsed > e.cfg.TickBudget {
		e.status.OverBudget++
		e.log.Warn("tick over budget",
			zap.Int64("timestamp", snap.Timestamp),
			zap.Duration("elapsed", elapsed),
			zap.Duration("budget", e.cfg.TickBudget))
	}
	return decision
}

func (e *Engine) tick(snap market.Snapshot) (market.Decision, *state.State, error) {
	st, err := e.codec.Decode(snap.TraderData)
	if err != nil {
		e.log.Warn("trader data rejected, starting fresh",
			zap.Int64("timestamp", snap.Timestamp),
			zap.Error(err))
	}

	frame := baseFrame(&snap)
	ctx := strategy.NewContext(&snap,
		position.NewAccountant(e.limits, snap.Positions),
		book.NewSet(snap.OrderDepths),
		st, frame, e.log)

	// 先派生记录，再入历史，最后按注册顺序执行策略
	for _, sym := range e.registry.Symbols() {
		for _, s := range e.registry.For(sym) {
			if o, ok := s.(strategy.Observer); ok {
				o.Observe(ctx, sym)
			}
		}
	}
	ctx.AppendFrame(e.cfg.WarmupTicks)

	for _, sym := range e.registry.Symbols() {
		for _, s := range e.registry.For(sym) {
			s.Run(ctx, sym)
		}
	}

	d := market.Decision{
		Timestamp:   snap.Timestamp,
		Orders:      ctx.Orders(),
		Conversions: ctx.Conversions(),
		TraderData:  e.codec.Encode(st),
	}
	e.log.Debug("tick",
		zap.Int64("timestamp", snap.Timestamp),
		zap.Stringer("phase", st.Phase),
		zap.Int("orders", d.OrderCount()),
		zap.Int("conversions", d.Conversions))
	return d, st, err
}

// baseFrame records mid, imbalance and own traded volume of every snapshot symbol
func baseFrame(snap *market.Snapshot) state.Frame {
	frame := state.NewFrame(snap.Timestamp)
	for sym, depth := range snap.OrderDepths {
		var r state.Record
		if mid, ok := depth.Mid(); ok {
			r.Set(state.FieldMid, mid)
		}
		if imb, ok := depth.Imbalance(); ok {
			r.Set(state.FieldImbalance, imb)
		}
		for _, t := range snap.OwnTrades[sym] {
			if t.Quantity < 0 {
				r.OwnVolume -= t.Quantity
			} else {
				r.OwnVolume += t.Quantity
			}
		}
		frame.Records[sym] = r
	}
	return frame
}
