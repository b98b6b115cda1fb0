package engine

import (
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/yourusername/quantlink-tick-engine/pkg/config"
	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/pricing"
	"github.com/yourusername/quantlink-tick-engine/pkg/state"
)

func depth(bids, asks map[int]int) market.OrderDepth {
	d := market.NewOrderDepth()
	for p, v := range bids {
		d.Buy[p] = v
	}
	for p, v := range asks {
		d.Sell[p] = -v
	}
	return d
}

func testConfig(t testing.TB) *config.TraderConfig {
	t.Helper()
	cfg := &config.TraderConfig{
		Products: []config.ProductConfig{
			{Symbol: "AMETHYSTS", Limit: 20},
			{Symbol: "STARFRUIT", Limit: 20},
			{Symbol: "ORCHIDS", Limit: 100},
			{Symbol: "CHOCOLATE", Limit: 250},
			{Symbol: "STRAWBERRIES", Limit: 350},
			{Symbol: "ROSES", Limit: 60},
			{Symbol: "GIFT_BASKET", Limit: 60},
			{Symbol: "COCONUT", Limit: 300},
			{Symbol: "COCONUT_COUPON", Limit: 600},
		},
		Baskets: []pricing.Basket{{
			Symbol: "GIFT_BASKET",
			Components: []pricing.Component{
				{Symbol: "CHOCOLATE", Weight: 4},
				{Symbol: "STRAWBERRIES", Weight: 6},
				{Symbol: "ROSES", Weight: 1},
			},
			Premium: 379.4904833333333,
		}},
		Strategies: []config.StrategyItemConfig{
			{ID: "amethysts", Type: "market_maker", Enabled: true, Symbols: []string{"AMETHYSTS"},
				Parameters: map[string]interface{}{"fair_price": 10000}},
			{ID: "starfruit", Type: "market_maker", Enabled: true, Symbols: []string{"STARFRUIT"},
				Parameters: map[string]interface{}{
					"model":     "regression",
					"intercept": 2.356494353223752,
					"lag_coefs": []interface{}{0.18898843, 0.20770677, 0.26106908, 0.34176867},
				}},
			{ID: "orchids", Type: "conversion_arb", Enabled: true, Symbols: []string{"ORCHIDS"}},
			{ID: "basket", Type: "basket_arb", Enabled: true,
				Symbols:    []string{"GIFT_BASKET", "CHOCOLATE", "STRAWBERRIES", "ROSES"},
				Parameters: map[string]interface{}{"basket": "GIFT_BASKET", "threshold": 10}},
			{ID: "coupon", Type: "option_hedge", Enabled: true, Symbols: []string{"COCONUT_COUPON"},
				Parameters: map[string]interface{}{"underlying": "COCONUT"}},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return cfg
}

func newTestEngine(t testing.TB) *Engine {
	t.Helper()
	e, err := FromConfig(testConfig(t), nil)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	return e
}

func fullSnapshot(ts int64, token string) market.Snapshot {
	return market.Snapshot{
		Timestamp:  ts,
		TraderData: token,
		OrderDepths: map[market.Symbol]market.OrderDepth{
			"AMETHYSTS":      depth(map[int]int{9995: 3}, map[int]int{9998: 5, 10005: 4}),
			"STARFRUIT":      depth(map[int]int{5040: 10}, map[int]int{5043: 10}),
			"ORCHIDS":        depth(map[int]int{1095: 8}, map[int]int{1097: 5, 1099: 10}),
			"CHOCOLATE":      depth(map[int]int{7999: 10}, map[int]int{8001: 10}),
			"STRAWBERRIES":   depth(map[int]int{3999: 10}, map[int]int{4001: 10}),
			"ROSES":          depth(map[int]int{13999: 10}, map[int]int{14001: 10}),
			"GIFT_BASKET":    depth(map[int]int{70395: 25, 70390: 15}, map[int]int{70405: 10}),
			"COCONUT":        depth(map[int]int{9999: 50}, map[int]int{10001: 50}),
			"COCONUT_COUPON": depth(map[int]int{627: 20}, map[int]int{629: 20}),
		},
		Positions: map[market.Symbol]int{"ORCHIDS": -30},
		OwnTrades: map[market.Symbol][]market.Trade{
			"AMETHYSTS": {{Symbol: "AMETHYSTS", Price: 9998, Quantity: 2}, {Symbol: "AMETHYSTS", Price: 10002, Quantity: -3}},
		},
		Conversions: map[market.Symbol]market.ConversionObservation{
			"ORCHIDS": {BidPrice: 1100, AskPrice: 1102, TransportFees: 1, ExportTariff: 0.5, ImportTariff: 1},
		},
	}
}

func TestRun_Purity(t *testing.T) {
	e := newTestEngine(t)
	snap := fullSnapshot(100, "")

	first := e.Run(snap)
	second := e.Run(snap)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same snapshot gave different decisions:\n%+v\n%+v", first, second)
	}

	other := newTestEngine(t)
	if third := other.Run(snap); !reflect.DeepEqual(first, third) {
		t.Error("fresh engine disagrees with a used one")
	}
}

func TestRun_TakeThenMake(t *testing.T) {
	e := newTestEngine(t)
	d := e.Run(fullSnapshot(100, ""))

	want := []market.Order{
		{Symbol: "AMETHYSTS", Price: 9998, Quantity: 5},
		{Symbol: "AMETHYSTS", Price: 9996, Quantity: 15},
		{Symbol: "AMETHYSTS", Price: 10004, Quantity: -20},
	}
	if got := d.Orders["AMETHYSTS"]; !reflect.DeepEqual(got, want) {
		t.Errorf("AMETHYSTS orders = %v, want %v", got, want)
	}
	if d.Conversions != 30 {
		t.Errorf("Conversions = %d, want 30", d.Conversions)
	}
	// regression needs four mids before it prices anything
	if got := d.Orders["STARFRUIT"]; len(got) != 0 {
		t.Errorf("STARFRUIT orders on the first tick = %v", got)
	}
	if got := d.Orders["GIFT_BASKET"]; len(got) != 1 || got[0].Quantity != -12 {
		t.Errorf("GIFT_BASKET orders = %v, want one sell of 12", got)
	}
}

func TestRun_TokenCarriesHistory(t *testing.T) {
	e := newTestEngine(t)
	codec := state.NewCodec(10)

	token := ""
	for i := 0; i < 12; i++ {
		d := e.Run(fullSnapshot(int64(i*100), token))
		token = d.TraderData

		st, err := codec.Decode(token)
		if err != nil {
			t.Fatalf("tick %d: Decode() error = %v", i, err)
		}
		wantLen := min(i+1, 10)
		if st.History.Len() != wantLen {
			t.Errorf("tick %d: history len = %d, want %d", i, st.History.Len(), wantLen)
		}
		wantPhase := state.WarmUp
		if i+1 >= 9 {
			wantPhase = state.Steady
		}
		if st.Phase != wantPhase {
			t.Errorf("tick %d: phase = %v, want %v", i, st.Phase, wantPhase)
		}
	}

	st, _ := codec.Decode(token)
	latest, _ := st.History.Latest()
	rec, _ := latest.Record("AMETHYSTS")
	if rec.OwnVolume != 5 {
		t.Errorf("OwnVolume = %d, want 5", rec.OwnVolume)
	}
	if mids := st.History.Series("STARFRUIT", state.FieldMid); len(mids) != 10 {
		t.Errorf("STARFRUIT mids = %d, want 10", len(mids))
	}
	if !latest.Records["COCONUT_COUPON"].Has(state.HasIV) {
		t.Error("coupon IV not carried")
	}

	s := e.Status()
	if s.Ticks != 12 || s.Phase != "steady" || s.LastTimestamp != 1100 {
		t.Errorf("Status() = %+v", s)
	}
}

// 第二个 tick 期权报价高于标的（看涨期权不可能），IV 无解，沿用上一个 tick 的 IV
func TestRun_IVFallbackUsesPreviousTick(t *testing.T) {
	e := newTestEngine(t)
	codec := state.NewCodec(10)
	ivAt := func(token string) (float64, bool) {
		t.Helper()
		st, err := codec.Decode(token)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		latest, _ := st.History.Latest()
		rec, _ := latest.Record("COCONUT_COUPON")
		return rec.Get(state.FieldIV)
	}

	first := e.Run(fullSnapshot(100, ""))
	want, ok := ivAt(first.TraderData)
	if !ok {
		t.Fatal("first tick recorded no IV")
	}

	snap := fullSnapshot(200, first.TraderData)
	snap.OrderDepths["COCONUT_COUPON"] = depth(map[int]int{19999: 20}, map[int]int{20001: 20})
	second := e.Run(snap)
	if got, ok := ivAt(second.TraderData); !ok || got != want {
		t.Errorf("IV after failed solve = %v (%v), want previous tick's %v", got, ok, want)
	}
}

func TestRun_CorruptToken(t *testing.T) {
	e := newTestEngine(t)
	fresh := e.Run(fullSnapshot(100, ""))
	got := e.Run(fullSnapshot(100, "not base64 at all!"))

	if !reflect.DeepEqual(fresh, got) {
		t.Error("corrupt token should decide like an empty one")
	}
	if s := e.Status(); s.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", s.DecodeErrors)
	}
}

func TestRun_EmptySnapshot(t *testing.T) {
	e := newTestEngine(t)
	d := e.Run(market.Snapshot{Timestamp: 1})
	if d.OrderCount() != 0 || d.Conversions != 0 {
		t.Errorf("decision on empty snapshot = %+v", d)
	}
	if d.TraderData == "" {
		t.Error("token must always be returned")
	}
}

func TestRun_TickBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.TickBudget = time.Nanosecond
	e, err := FromConfig(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	e.Run(fullSnapshot(100, ""))
	if e.Status().OverBudget != 1 {
		t.Errorf("OverBudget = %d, want 1", e.Status().OverBudget)
	}
}

// 任意快照下所有品种满足 |live + conversions + Σorders| <= limit
func TestRun_PositionBoundProperty(t *testing.T) {
	e := newTestEngine(t)
	products := testConfig(t).Products

	rapid.Check(t, func(t *rapid.T) {
		snap := fullSnapshot(rapid.Int64Range(0, 1e6).Draw(t, "ts"), "")
		snap.Positions = map[market.Symbol]int{}
		for _, p := range products {
			sym, limit := market.Symbol(p.Symbol), p.Limit
			snap.Positions[sym] = rapid.IntRange(-limit, limit).Draw(t, "live_"+string(sym))
			if rapid.Bool().Draw(t, "reshape_"+string(sym)) {
				mid := 100 + rapid.IntRange(0, 20000).Draw(t, "mid_"+string(sym))
				snap.OrderDepths[sym] = depth(
					map[int]int{mid - rapid.IntRange(1, 5).Draw(t, "bidOff"): rapid.IntRange(1, 200).Draw(t, "bidVol")},
					map[int]int{mid + rapid.IntRange(0, 5).Draw(t, "askOff"): rapid.IntRange(1, 200).Draw(t, "askVol")},
				)
			}
		}

		d := e.Run(snap)
		for _, p := range products {
			sym, limit := market.Symbol(p.Symbol), p.Limit
			net := snap.Positions[sym]
			if sym == "ORCHIDS" {
				net += d.Conversions
			}
			for _, o := range d.Orders[sym] {
				net += o.Quantity
			}
			if net > limit || net < -limit {
				t.Fatalf("%s: net %d outside ±%d", sym, net, limit)
			}
		}
	})
}
