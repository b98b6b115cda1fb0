package strategy

import (
	"math"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// ConversionArb arbitrages the local book against a foreign venue reachable
// through conversions. Each tick the whole carried position is converted
// back, local liquidity beyond the foreign fair prices is taken, and one
// one-sided quote is posted at the foreign fair price plus a margin.
type ConversionArb struct {
	MaxLimit    int     // per-side cap on taking and quoting
	Margin      float64 // quote distance from foreign fair
	SellHaircut float64 // subtracted from the foreign bid
}

// NewConversionArb creates the strategy from parameters
func NewConversionArb(p Params) *ConversionArb {
	return &ConversionArb{
		MaxLimit:    p.Int("max_limit", 100),
		Margin:      p.Float("profit_margin", 2),
		SellHaircut: p.Float("sell_haircut", 0.1),
	}
}

func (s *ConversionArb) Name() string { return "conversion_arb" }

// ForeignFair returns the prices at which a unit can be sold to (fairBid)
// or bought from (fairAsk) the foreign venue after fees
func (s *ConversionArb) ForeignFair(obs market.ConversionObservation) (fairBid, fairAsk float64) {
	fairBid = obs.BidPrice - obs.TransportFees - obs.ExportTariff - s.SellHaircut
	fairAsk = obs.AskPrice + obs.TransportFees + obs.ImportTariff
	return fairBid, fairAsk
}

func (s *ConversionArb) Run(ctx *Context, sym market.Symbol) {
	obs, ok := ctx.Snapshot.Conversions[sym]
	if !ok {
		return
	}
	b, ok := ctx.Books.Get(sym)
	if !ok {
		return
	}
	rec := ctx.Record(sym)

	limit := ctx.Accountant.Limit(sym)
	conversions := max(min(-ctx.Accountant.Live(sym), limit), -limit)
	ctx.RequestConversion(sym, conversions)

	fairBid, fairAsk := s.ForeignFair(obs)
	buy, sell := ctx.Accountant.Capacity(sym)
	buy, sell = min(buy, s.MaxLimit), min(sell, s.MaxLimit)

	// 本地买入、海外卖出
	var lastPrice int
	bought := ctx.Take(sym, market.Buy, func(p int) bool {
		if float64(p) < fairBid {
			lastPrice = p
			return true
		}
		return false
	}, buy)
	// 本地卖出、海外买入
	sold := ctx.Take(sym, market.Sell, func(p int) bool {
		if float64(p) > fairAsk {
			lastPrice = p
			return true
		}
		return false
	}, sell)
	buy -= bought
	sell -= sold

	rec.ConversionQty = sold - bought
	rec.ConversionPrice = float64(lastPrice)

	bestBid, okBid := b.BestBid()
	bestAsk, okAsk := b.BestAsk()
	quoteSell := okAsk && float64(bestAsk-1) >= fairAsk+s.Margin && sell > 0
	quoteBuy := okBid && float64(bestBid+1) <= fairBid-s.Margin && buy > 0
	if quoteSell && quoteBuy {
		quoteSell = false
	}

	switch {
	case quoteSell:
		price := int(math.Round(fairAsk + s.Margin))
		rec.QuotePrice, rec.QuoteQty = price, -ctx.Post(sym, market.Sell, price, sell)
	case quoteBuy:
		price := int(math.Round(fairBid - s.Margin))
		rec.QuotePrice, rec.QuoteQty = price, ctx.Post(sym, market.Buy, price, buy)
	}
	ctx.PutRecord(sym, rec)

	ctx.Log.Debug("conversion arb",
		zap.String("symbol", string(sym)),
		zap.Int("conversions", conversions),
		zap.Float64("fair_bid", fairBid),
		zap.Float64("fair_ask", fairAsk),
		zap.Int("bought", bought),
		zap.Int("sold", sold),
		zap.Int("quote_price", rec.QuotePrice),
		zap.Int("quote_qty", rec.QuoteQty))
}
