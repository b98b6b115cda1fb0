package strategy

import (
	"math"
	"testing"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/pricing"
	"github.com/yourusername/quantlink-tick-engine/pkg/state"
)

const (
	coconut = market.Symbol("COCONUT")
	coupon  = market.Symbol("COCONUT_COUPON")
)

var optionLimits = map[market.Symbol]int{coconut: 300, coupon: 600}

func newOptionHedge() *OptionHedge {
	return &OptionHedge{
		Underlying: coconut,
		Kind:       pricing.Call,
		Strike:     10000,
		Expiry:     248,
		DeadBand:   0.5,
		Solver:     pricing.DefaultSolverConfig(),
	}
}

// optionSnapshot: spot mid 10000, option mid 628 (iv ≈ 0.01, delta ≈ 0.531)
func optionSnapshot(couponLive int) *market.Snapshot {
	return &market.Snapshot{
		Timestamp: 300,
		OrderDepths: map[market.Symbol]market.OrderDepth{
			coconut: depth(map[int]int{9999: 50}, map[int]int{10001: 50}),
			coupon:  depth(map[int]int{627: 20}, map[int]int{629: 20}),
		},
		Positions: map[market.Symbol]int{coupon: couponLive},
	}
}

// steadyState returns a steady history whose coupon records carry the given
// IVs (oldest first) and delta
func steadyState(ivs []float64, delta float64) *state.State {
	st := state.New(10)
	for i, iv := range ivs {
		f := state.NewFrame(int64(i * 100))
		var r state.Record
		r.Set(state.FieldIV, iv)
		r.Set(state.FieldDelta, delta)
		f.Records[coupon] = r
		st.Append(f, 0)
	}
	st.Phase = state.Steady
	return st
}

func runHedge(s *OptionHedge, snap *market.Snapshot, st *state.State) *Context {
	ctx := newTestContext(snap, optionLimits, st)
	s.Observe(ctx, coupon)
	ctx.AppendFrame(0)
	s.Run(ctx, coupon)
	return ctx
}

func TestOptionHedge_Observe(t *testing.T) {
	ctx := newTestContext(optionSnapshot(0), optionLimits, nil)
	newOptionHedge().Observe(ctx, coupon)

	rec := ctx.Record(coupon)
	iv, ok := rec.Get(state.FieldIV)
	if !ok || math.Abs(iv-0.01) > 1e-3 {
		t.Fatalf("IV = %v (%v), want ≈ 0.01", iv, ok)
	}
	delta, ok := rec.Get(state.FieldDelta)
	if !ok || math.Abs(delta-0.5314) > 1e-3 {
		t.Errorf("Delta = %v, want ≈ 0.5314", delta)
	}
	if m, ok := ctx.Record(coconut).Get(state.FieldOptionMid); !ok || m != 628 {
		t.Errorf("underlying OptionMid = %v, want 628", m)
	}
}

func TestOptionHedge_IVFallback(t *testing.T) {
	s := newOptionHedge()
	s.Solver.MaxIterations = 1
	s.Solver.Precision = 1e-300

	t.Run("previous vol reused", func(t *testing.T) {
		// the tick before carries 0.0123, the one before that 0.0111
		st := steadyState([]float64{0.0111, 0.0123}, 0.5)
		ctx := newTestContext(optionSnapshot(0), optionLimits, st)
		s.Observe(ctx, coupon)
		ctx.AppendFrame(0)
		if iv, ok := ctx.Record(coupon).Get(state.FieldIV); !ok || iv != 0.0123 {
			t.Errorf("IV = %v (%v), want cached 0.0123", iv, ok)
		}
	})

	t.Run("no previous vol", func(t *testing.T) {
		ctx := newTestContext(optionSnapshot(0), optionLimits, nil)
		s.Observe(ctx, coupon)
		ctx.AppendFrame(0)
		if ctx.Record(coupon).Has(state.HasIV) {
			t.Error("IV recorded without solver result or cache")
		}
		s.Run(ctx, coupon)
		if len(ctx.Orders()) != 0 {
			t.Errorf("orders = %v, want none", ctx.Orders())
		}
	})
}

func TestContext_PreviousRecord(t *testing.T) {
	ctx := newTestContext(optionSnapshot(0), optionLimits, steadyState([]float64{0.0111, 0.0123}, 0.5))

	check := func(when string) {
		t.Helper()
		prev, ok := ctx.PreviousRecord(coupon)
		if iv, _ := prev.Get(state.FieldIV); !ok || iv != 0.0123 {
			t.Errorf("PreviousRecord() %s = %v (%v), want IV 0.0123", when, iv, ok)
		}
	}
	check("before AppendFrame")
	ctx.AppendFrame(0)
	check("after AppendFrame")
	ctx.AppendFrame(0)
	if n := ctx.State.History.Len(); n != 3 {
		t.Errorf("History.Len() = %d, want 3 (frame appended once)", n)
	}
}

func TestOptionHedge_WarmUpIsNeutral(t *testing.T) {
	ctx := newTestContext(optionSnapshot(100), optionLimits, nil)
	s := newOptionHedge()
	s.Observe(ctx, coupon)
	ctx.AppendFrame(9)
	s.Run(ctx, coupon)

	// forecast = current IV prices the option at its own mid, delta unchanged
	if len(ctx.Orders()) != 0 {
		t.Errorf("orders = %v, want none during warm-up", ctx.Orders())
	}
	if !ctx.Record(coupon).Has(state.HasForecastIV) {
		t.Error("forecast IV not recorded")
	}
}

func TestOptionHedge_Directional(t *testing.T) {
	// rising vol history forecasts above the current IV: option cheap, buy it
	st := steadyState([]float64{0.005, 0.0075}, 0.5)
	ctx := runHedge(newOptionHedge(), optionSnapshot(0), st)

	assertOrders(t, ctx.Orders()[coupon], []market.Order{
		{Symbol: coupon, Price: 629, Quantity: 20},
	})
	// round(0.531 × 20) sold against the best bid
	assertOrders(t, ctx.Orders()[coconut], []market.Order{
		{Symbol: coconut, Price: 9999, Quantity: -11},
	})
	rec := ctx.Record(coupon)
	if rec.HedgeQty != -11 {
		t.Errorf("HedgeQty = %d, want -11", rec.HedgeQty)
	}
	if f, _ := rec.Get(state.FieldForecastIV); f <= rec.IV {
		t.Errorf("forecast %v should exceed iv %v", f, rec.IV)
	}
}

func TestOptionHedge_RecordedMidWhenBookOneSided(t *testing.T) {
	s := newOptionHedge()
	ctx := newTestContext(optionSnapshot(0), optionLimits, steadyState([]float64{0.005, 0.0075}, 0.5))
	s.Observe(ctx, coupon)
	ctx.AppendFrame(0)

	// an earlier strategy on the coupon took every bid
	b, _ := ctx.Books.Get(coupon)
	if got := b.ClaimAt(market.Buy, 627, 20); got != 20 {
		t.Fatalf("ClaimAt() = %d, want 20", got)
	}
	if _, ok := b.Mid(); ok {
		t.Fatal("book should have no mid")
	}
	s.Run(ctx, coupon)

	// signal priced off the recorded 628: still cheap, buy the asks
	assertOrders(t, ctx.Orders()[coupon], []market.Order{
		{Symbol: coupon, Price: 629, Quantity: 20},
	})
}

func TestOptionHedge_Rehedge(t *testing.T) {
	tests := []struct {
		name      string
		live      int
		prevDelta float64
		deadBand  float64
		want      []market.Order
	}{
		{
			name:      "delta fell, buy underlying",
			live:      100,
			prevDelta: 0.6,
			deadBand:  1000,
			// round((0.6 - 0.531) × 100) = 7
			want: []market.Order{{Symbol: coconut, Price: 10001, Quantity: 7}},
		},
		{
			name:      "delta rose, sell underlying",
			live:      -100,
			prevDelta: 0.45,
			deadBand:  1000,
			// round((0.531 - 0.45) × 100) = 8
			want: []market.Order{{Symbol: coconut, Price: 9999, Quantity: -8}},
		},
		{
			name:      "no option capacity falls back to rehedge",
			live:      600,
			prevDelta: 0.55,
			deadBand:  0.5,
			// round(0.0186 × 600) = 11
			want: []market.Order{{Symbol: coconut, Price: 10001, Quantity: 11}},
		},
		{
			name:      "flat option position",
			live:      0,
			prevDelta: 0.9,
			deadBand:  1000,
			want:      nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newOptionHedge()
			s.DeadBand = tt.deadBand
			ivs := []float64{0.005, 0.0075}
			if tt.deadBand >= 1000 {
				ivs = []float64{0.01, 0.01}
			}
			ctx := runHedge(s, optionSnapshot(tt.live), steadyState(ivs, tt.prevDelta))

			if got := ctx.Orders()[coupon]; len(got) != 0 {
				t.Errorf("option orders = %v, want none", got)
			}
			assertOrders(t, ctx.Orders()[coconut], tt.want)
		})
	}
}

func TestOptionHedge_Signal(t *testing.T) {
	s := &OptionHedge{DeadBand: 0.5}
	tests := []struct {
		mid, fair float64
		want      int
	}{
		{100, 100, 0},
		{100.5, 100, 0},
		{100.6, 100, -1},
		{99.4, 100, 1},
	}
	for _, tt := range tests {
		if got := s.signal(tt.mid, tt.fair); got != tt.want {
			t.Errorf("signal(%v, %v) = %d, want %d", tt.mid, tt.fair, got, tt.want)
		}
	}
}
