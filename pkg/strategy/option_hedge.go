package strategy

import (
	"math"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/pricing"
	"github.com/yourusername/quantlink-tick-engine/pkg/state"
)

// OptionHedge trades an option against its Black-Scholes value at the
// forecast implied vol and keeps the book delta hedged in the underlying.
// It is bound to the option symbol.
type OptionHedge struct {
	Underlying market.Symbol
	Kind       pricing.OptionKind
	Strike     float64
	Expiry     float64 // T, in the same unit as the vol
	Rate       float64
	DeadBand   float64
	Solver     pricing.SolverConfig
}

// NewOptionHedge creates the strategy from parameters
func NewOptionHedge(p Params) (*OptionHedge, error) {
	kind, err := pricing.ParseOptionKind(p.String("kind", "call"))
	if err != nil {
		return nil, err
	}
	underlying := p.String("underlying", "")
	if underlying == "" {
		return nil, errMissing("underlying")
	}
	def := pricing.DefaultSolverConfig()
	return &OptionHedge{
		Underlying: market.Symbol(underlying),
		Kind:       kind,
		Strike:     p.Float("strike", 10000),
		Expiry:     p.Float("expiry", 248),
		Rate:       p.Float("rate", 0),
		DeadBand:   p.Float("dead_band", 0.5),
		Solver: pricing.SolverConfig{
			InitialGuess:  p.Float("initial_guess", def.InitialGuess),
			MaxIterations: p.Int("max_iterations", def.MaxIterations),
			Precision:     p.Float("precision", def.Precision),
		},
	}, nil
}

func (s *OptionHedge) Name() string { return "option_hedge" }

func (s *OptionHedge) params(spot, sigma float64) pricing.Params {
	return pricing.Params{S: spot, K: s.Strike, R: s.Rate, Sigma: sigma, T: s.Expiry}
}

// Observe solves this tick's implied vol and delta from snapshot mids.
// When the solver fails the previous tick's vol is reused; with none the
// option record carries no vol and Run does nothing.
func (s *OptionHedge) Observe(ctx *Context, sym market.Symbol) {
	spot, ok := ctx.SnapshotMid(s.Underlying)
	if !ok {
		return
	}
	optMid, ok := ctx.SnapshotMid(sym)
	if !ok {
		return
	}

	under := ctx.Record(s.Underlying)
	under.Set(state.FieldOptionMid, optMid)
	ctx.PutRecord(s.Underlying, under)

	rec := ctx.Record(sym)
	res, err := pricing.ImpliedVol(s.Kind, optMid, s.params(spot, 0), s.Solver)
	iv := res.Sigma
	if err != nil {
		prev, ok := ctx.PreviousRecord(sym)
		cached, has := prev.Get(state.FieldIV)
		ctx.Log.Warn("implied vol unavailable",
			zap.String("symbol", string(sym)),
			zap.Error(err),
			zap.Int("iterations", res.Iterations),
			zap.Bool("fallback", ok && has))
		if !ok || !has {
			return
		}
		iv = cached
	}

	delta, err := pricing.Delta(s.Kind, s.params(spot, iv))
	if err != nil {
		return
	}
	rec.Set(state.FieldIV, iv)
	rec.Set(state.FieldDelta, delta)
	ctx.PutRecord(sym, rec)
}

// forecast returns the vol to price at: current IV while warming up,
// else the no-intercept AR(1) forecast, else the last cached forecast
func (s *OptionHedge) forecast(ctx *Context, sym market.Symbol, iv float64) float64 {
	if ctx.State.Phase == state.WarmUp {
		return iv
	}
	newestFirst := ctx.State.History.Series(sym, state.FieldIV)
	chrono := make([]float64, len(newestFirst))
	for i, v := range newestFirst {
		chrono[len(chrono)-1-i] = v
	}
	f, err := pricing.ForecastIV(chrono)
	if err == nil && f > 0 && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	ctx.Log.Warn("iv forecast failed, using cached", zap.String("symbol", string(sym)), zap.Error(err))
	if prev, ok := ctx.PreviousRecord(sym); ok {
		if cached, ok := prev.Get(state.FieldForecastIV); ok {
			return cached
		}
	}
	return iv
}

// signal: +1 option cheap (buy), -1 rich (sell), 0 inside the dead-band
func (s *OptionHedge) signal(mid, fair float64) int {
	switch {
	case mid > fair+s.DeadBand:
		return -1
	case mid < fair-s.DeadBand:
		return 1
	}
	return 0
}

func (s *OptionHedge) Run(ctx *Context, sym market.Symbol) {
	rec := ctx.Record(sym)
	iv, okIV := rec.Get(state.FieldIV)
	delta, okDelta := rec.Get(state.FieldDelta)
	if !okIV || !okDelta {
		return
	}
	spot, ok := ctx.SnapshotMid(s.Underlying)
	if !ok {
		return
	}

	forecast := s.forecast(ctx, sym, iv)
	rec.Set(state.FieldForecastIV, forecast)

	prevDelta := delta
	if ctx.State.Phase == state.Steady {
		if prev, ok := ctx.PreviousRecord(sym); ok {
			if d, ok := prev.Get(state.FieldDelta); ok {
				prevDelta = d
			}
		}
	}

	sig := 0
	if mid, ok := s.optionMid(ctx, sym); ok {
		if fair, err := pricing.Price(s.Kind, s.params(spot, forecast)); err == nil {
			sig = s.signal(mid, fair)
		}
	}

	hedged := 0
	if sig != 0 {
		hedged, ok = s.directional(ctx, sym, market.Side(sig), delta)
	}
	if sig == 0 || !ok {
		hedged = s.rehedge(ctx, sym, prevDelta, delta)
	}

	rec.HedgeQty = hedged
	ctx.PutRecord(sym, rec)
	ctx.Log.Debug("option hedge",
		zap.String("symbol", string(sym)),
		zap.Int("signal", sig),
		zap.Float64("iv", iv),
		zap.Float64("forecast_iv", forecast),
		zap.Float64("delta", delta),
		zap.Float64("prev_delta", prevDelta),
		zap.Int("hedge", hedged))
}

// optionMid prefers the simulated book; once a side is gone it falls back to
// the snapshot mid recorded on the underlying by Observe
func (s *OptionHedge) optionMid(ctx *Context, sym market.Symbol) (float64, bool) {
	if b, ok := ctx.Books.Get(sym); ok {
		if mid, ok := b.Mid(); ok {
			return mid, true
		}
	}
	return ctx.Record(s.Underlying).Get(state.FieldOptionMid)
}

// directional takes the best option level and hedges the fill at delta.
// ok is false when there was no capacity to act, so the caller rehedges instead.
func (s *OptionHedge) directional(ctx *Context, sym market.Symbol, dir market.Side, delta float64) (int, bool) {
	optBook, ok := ctx.Books.Get(sym)
	if !ok {
		return 0, false
	}
	underBook, ok := ctx.Books.Get(s.Underlying)
	if !ok {
		return 0, false
	}
	optCap := ctx.Accountant.CapacityFor(sym, dir)

	// hedge direction: -sign(delta × option qty)
	hedgeDir := dir.Opposite()
	if delta < 0 {
		hedgeDir = dir
	}
	if optCap <= 0 || ctx.Accountant.CapacityFor(s.Underlying, hedgeDir) <= 0 {
		return 0, false
	}
	level, ok := optBook.BestLevel(dir.Opposite())
	if !ok {
		return 0, false
	}
	hedgeLevel, ok := underBook.BestLevel(hedgeDir.Opposite())
	if !ok {
		return 0, false
	}

	filled := ctx.Take(sym, dir, func(p int) bool { return p == level.Price }, optCap)
	if filled == 0 {
		return 0, false
	}
	qty := int(math.Round(math.Abs(delta) * float64(filled)))
	hedged := ctx.Cross(s.Underlying, hedgeDir, hedgeLevel.Price, qty)
	return hedged * int(hedgeDir), true
}

// rehedge trades round(|prev - delta| × |option position|) in the underlying:
// buy when delta fell, sell when it rose
func (s *OptionHedge) rehedge(ctx *Context, sym market.Symbol, prevDelta, delta float64) int {
	change := prevDelta - delta
	if change == 0 {
		return 0
	}
	pos := ctx.Accountant.Live(sym)
	if pos < 0 {
		pos = -pos
	}
	qty := int(math.Round(math.Abs(change) * float64(pos)))
	if qty == 0 {
		return 0
	}
	b, ok := ctx.Books.Get(s.Underlying)
	if !ok {
		return 0
	}

	dir := market.Sell
	if change > 0 {
		dir = market.Buy
	}
	level, ok := b.BestLevel(dir.Opposite())
	if !ok {
		return 0
	}
	return ctx.Cross(s.Underlying, dir, level.Price, qty) * int(dir)
}

var _ Observer = (*OptionHedge)(nil)
