package pricing

import "github.com/yourusername/quantlink-tick-engine/pkg/market"

// Component is one weighted leg of a basket
type Component struct {
	Symbol market.Symbol `yaml:"symbol"`
	Weight float64       `yaml:"weight"`
}

// Basket is a composite instrument priced as Σ wᵢ·midᵢ + Premium
type Basket struct {
	Symbol     market.Symbol `yaml:"symbol"`
	Components []Component   `yaml:"components"`
	Premium    float64       `yaml:"premium"`
}

// Legs returns the basket symbol followed by its components
func (b Basket) Legs() []market.Symbol {
	out := make([]market.Symbol, 0, len(b.Components)+1)
	out = append(out, b.Symbol)
	for _, c := range b.Components {
		out = append(out, c.Symbol)
	}
	return out
}

// Weight returns the weight of a component; the basket itself has weight 1
func (b Basket) Weight(sym market.Symbol) (float64, bool) {
	if sym == b.Symbol {
		return 1, true
	}
	for _, c := range b.Components {
		if c.Symbol == sym {
			return c.Weight, true
		}
	}
	return 0, false
}

// FairValue solves the basket relation for one leg given every other leg's mid.
//
//	basket:      Σ wᵢ·midᵢ + premium
//	component j: (mid_basket - Σ_{i≠j} wᵢ·midᵢ - premium) / w_j
//
// ok is false when any needed mid is missing or the leg is unknown.
func (b Basket) FairValue(leg market.Symbol, mids map[market.Symbol]float64) (float64, bool) {
	if leg == b.Symbol {
		fair := b.Premium
		for _, c := range b.Components {
			m, ok := mids[c.Symbol]
			if !ok {
				return 0, false
			}
			fair += c.Weight * m
		}
		return fair, true
	}

	w, ok := b.Weight(leg)
	if !ok || w == 0 {
		return 0, false
	}
	fair, ok := mids[b.Symbol]
	if !ok {
		return 0, false
	}
	fair -= b.Premium
	for _, c := range b.Components {
		if c.Symbol == leg {
			continue
		}
		m, ok := mids[c.Symbol]
		if !ok {
			return 0, false
		}
		fair -= c.Weight * m
	}
	return fair / w, true
}

// Deviation returns mid - fair for a leg
func (b Basket) Deviation(leg market.Symbol, mids map[market.Symbol]float64) (dev, fair float64, ok bool) {
	mid, ok := mids[leg]
	if !ok {
		return 0, 0, false
	}
	fair, ok = b.FairValue(leg, mids)
	if !ok {
		return 0, 0, false
	}
	return mid - fair, fair, true
}
