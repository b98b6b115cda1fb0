package strategy

import (
	"errors"
	"fmt"

	"github.com/yourusername/quantlink-tick-engine/pkg/config"
	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// ErrParameter is wrapped by every parameter error of the constructors
var ErrParameter = errors.New("invalid strategy parameter")

func errMissing(key string) error {
	return fmt.Errorf("%w: %s is required", ErrParameter, key)
}

func errUnknown(key, value string) error {
	return fmt.Errorf("%w: unknown %s %q", ErrParameter, key, value)
}

// BuildRegistry creates every enabled strategy of the configuration and binds
// it to its symbols in configuration order
func BuildRegistry(cfg *config.TraderConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, item := range cfg.GetEnabledStrategies() {
		params, err := item.ResolveParameters()
		if err != nil {
			return nil, err
		}
		for _, s := range item.Symbols {
			strategies, err := createStrategy(cfg, item.Type, Params(params))
			if err != nil {
				return nil, fmt.Errorf("failed to create strategy %s: %w", item.ID, err)
			}
			reg.Bind(market.Symbol(s), strategies...)
		}
	}
	return reg, nil
}

// createStrategy 根据类型创建策略；market_maker 展开为 take_liquidity -> make_market
func createStrategy(cfg *config.TraderConfig, typ string, p Params) ([]Strategy, error) {
	switch typ {
	case "take_liquidity":
		s, err := NewTakeLiquidity(p)
		if err != nil {
			return nil, err
		}
		return []Strategy{s}, nil
	case "make_market":
		s, err := NewMakeMarket(p)
		if err != nil {
			return nil, err
		}
		return []Strategy{s}, nil
	case "market_maker":
		take, err := NewTakeLiquidity(p)
		if err != nil {
			return nil, err
		}
		return []Strategy{take, &MakeMarket{Model: take.Model}}, nil
	case "basket_arb":
		name := p.String("basket", "")
		basket, ok := cfg.Basket(name)
		if !ok {
			return nil, errUnknown("basket", name)
		}
		return []Strategy{NewBasketArb(basket, p)}, nil
	case "option_hedge":
		s, err := NewOptionHedge(p)
		if err != nil {
			return nil, err
		}
		return []Strategy{s}, nil
	case "conversion_arb":
		return []Strategy{NewConversionArb(p)}, nil
	}
	return nil, errUnknown("type", typ)
}
