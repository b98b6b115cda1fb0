package strategy

import (
	"math"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/pricing"
)

// BasketArb trades the deviation of one basket leg from the fair value
// implied by the other legs, expecting it to revert
type BasketArb struct {
	Basket            pricing.Basket
	Threshold         float64
	LiquidityFraction float64
	RatioMatch        bool // cap component legs at |basket_pos*weight - leg_pos|
	Cover             bool // flatten near fair when the deviation is inside the threshold
}

// NewBasketArb creates the strategy for a configured basket
func NewBasketArb(basket pricing.Basket, p Params) *BasketArb {
	return &BasketArb{
		Basket:            basket,
		Threshold:         p.Float("threshold", 0),
		LiquidityFraction: p.Float("liquidity_fraction", 0.3),
		RatioMatch:        p.Bool("ratio_match", true),
		Cover:             p.Bool("cover", false),
	}
}

func (s *BasketArb) Name() string { return "basket_arb" }

func (s *BasketArb) mids(ctx *Context) map[market.Symbol]float64 {
	out := make(map[market.Symbol]float64, len(s.Basket.Components)+1)
	for _, leg := range s.Basket.Legs() {
		if m, ok := ctx.SnapshotMid(leg); ok {
			out[leg] = m
		}
	}
	return out
}

func (s *BasketArb) Run(ctx *Context, sym market.Symbol) {
	b, ok := ctx.Books.Get(sym)
	if !ok {
		return
	}
	dev, fair, ok := s.Basket.Deviation(sym, s.mids(ctx))
	if !ok {
		return
	}

	var dir market.Side
	switch {
	case dev > s.Threshold:
		dir = market.Sell
	case dev < -s.Threshold:
		dir = market.Buy
	default:
		if s.Cover {
			s.cover(ctx, sym, fair)
		}
		return
	}

	capacity := ctx.Accountant.CapacityFor(sym, dir)
	if s.RatioMatch && sym != s.Basket.Symbol {
		w, _ := s.Basket.Weight(sym)
		target := float64(ctx.Accountant.Position(s.Basket.Symbol)) * w
		gap := int(math.Round(math.Abs(target - float64(ctx.Accountant.Position(sym)))))
		capacity = min(capacity, gap)
	}
	liquidity := int(math.Round(float64(b.TotalVolume(dir.Opposite())) * s.LiquidityFraction))
	size := min(capacity, liquidity)
	if size <= 0 {
		return
	}

	filled, price := ctx.Sweep(sym, dir, nil, size)
	ctx.Log.Debug("basket deviation traded",
		zap.String("symbol", string(sym)),
		zap.Float64("deviation", dev),
		zap.Stringer("side", dir),
		zap.Int("qty", filled),
		zap.Int("price", price))
}

// cover walks the book within threshold of fair to flatten the residual position
func (s *BasketArb) cover(ctx *Context, sym market.Symbol, fair float64) {
	pos := ctx.Accountant.Position(sym)
	if pos == 0 {
		return
	}
	near := func(p int) bool { return math.Abs(float64(p)-fair) < s.Threshold }
	if pos > 0 {
		ctx.Take(sym, market.Sell, near, pos)
	} else {
		ctx.Take(sym, market.Buy, near, -pos)
	}
}
