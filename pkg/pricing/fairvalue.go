package pricing

import "math"

// FairInput is what a fair value model may look at for one symbol this tick
type FairInput struct {
	Mids         []float64 // Mids[i] is the mid i ticks back, up to the first gap
	Imbalance    float64
	HasImbalance bool
}

// FairValueModel produces an integer fair value, or ok=false to skip the tick
type FairValueModel interface {
	Fair(in FairInput) (int, bool)
}

// Fixed is a constant fair value
type Fixed struct {
	Price int
}

func (f Fixed) Fair(FairInput) (int, bool) {
	return f.Price, true
}

// Regression 线性回归公允价：intercept + Σ coef_i·mid_{t-i} + imbalanceCoef·imbalance
type Regression struct {
	Intercept     float64
	LagCoefs      []float64 // LagCoefs[0] applies to the current mid
	ImbalanceCoef float64
}

func (r Regression) Fair(in FairInput) (int, bool) {
	if len(in.Mids) < len(r.LagCoefs) {
		return 0, false
	}
	v := r.Intercept
	for i, c := range r.LagCoefs {
		v += c * in.Mids[i]
	}
	if r.ImbalanceCoef != 0 {
		if !in.HasImbalance {
			return 0, false
		}
		v += r.ImbalanceCoef * in.Imbalance
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return int(math.Round(v)), true
}
