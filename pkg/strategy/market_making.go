package strategy

import (
	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/pricing"
)

// TakeLiquidity buys asks below fair - threshold and sells bids above
// fair + threshold, keeping Reserve units of capacity unused on each side
type TakeLiquidity struct {
	Model     pricing.FairValueModel
	Threshold int
	Reserve   int
}

// NewTakeLiquidity creates the strategy from parameters
// (threshold, reserve, plus the fair value model keys)
func NewTakeLiquidity(p Params) (*TakeLiquidity, error) {
	model, err := fairValueModel(p)
	if err != nil {
		return nil, err
	}
	return &TakeLiquidity{
		Model:     model,
		Threshold: p.Int("threshold", 0),
		Reserve:   p.Int("reserve", 0),
	}, nil
}

func (s *TakeLiquidity) Name() string { return "take_liquidity" }

func (s *TakeLiquidity) Run(ctx *Context, sym market.Symbol) {
	fair, ok := s.Model.Fair(ctx.FairInput(sym))
	if !ok {
		ctx.Log.Debug("no fair value", zap.String("symbol", string(sym)))
		return
	}
	buy, sell := ctx.Accountant.Capacity(sym)

	bought := ctx.Take(sym, market.Buy, func(p int) bool { return p < fair-s.Threshold }, buy-s.Reserve)
	sold := ctx.Take(sym, market.Sell, func(p int) bool { return p > fair+s.Threshold }, sell-s.Reserve)

	if bought > 0 || sold > 0 {
		ctx.Log.Debug("took liquidity",
			zap.String("symbol", string(sym)),
			zap.Int("fair", fair),
			zap.Int("bought", bought),
			zap.Int("sold", sold))
	}
}

// MakeMarket posts one tick inside the remaining spread for all residual
// capacity, on each side where the quote stays on the favourable side of fair
type MakeMarket struct {
	Model pricing.FairValueModel
}

// NewMakeMarket creates the strategy from the fair value model keys
func NewMakeMarket(p Params) (*MakeMarket, error) {
	model, err := fairValueModel(p)
	if err != nil {
		return nil, err
	}
	return &MakeMarket{Model: model}, nil
}

func (s *MakeMarket) Name() string { return "make_market" }

func (s *MakeMarket) Run(ctx *Context, sym market.Symbol) {
	b, ok := ctx.Books.Get(sym)
	if !ok {
		return
	}
	fair, ok := s.Model.Fair(ctx.FairInput(sym))
	if !ok {
		return
	}
	bestBid, okBid := b.BestBid()
	bestAsk, okAsk := b.BestAsk()
	if !okBid || !okAsk || bestAsk-bestBid <= 0 {
		return
	}

	buy, sell := ctx.Accountant.Capacity(sym)
	if bid := bestBid + 1; bid < fair && buy > 0 {
		ctx.Post(sym, market.Buy, bid, buy)
	}
	if ask := bestAsk - 1; ask > fair && sell > 0 {
		ctx.Post(sym, market.Sell, ask, sell)
	}
}

// fairValueModel 根据参数构造公允价模型：fair_price 固定价，或 regression 回归
func fairValueModel(p Params) (pricing.FairValueModel, error) {
	switch p.String("model", "fixed") {
	case "fixed":
		return pricing.Fixed{Price: p.Int("fair_price", 0)}, nil
	case "regression":
		coefs, err := p.Floats("lag_coefs")
		if err != nil {
			return nil, err
		}
		return pricing.Regression{
			Intercept:     p.Float("intercept", 0),
			LagCoefs:      coefs,
			ImbalanceCoef: p.Float("imbalance_coef", 0),
		}, nil
	default:
		return nil, errUnknown("model", p.String("model", ""))
	}
}
