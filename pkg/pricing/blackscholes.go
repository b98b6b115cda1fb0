// Package pricing holds the fair value models used by the strategies:
// Black-Scholes with greeks and implied volatility, basket relative value,
// and fixed / regression fair values.
package pricing

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerate is returned when inputs make the model undefined
// (non-positive spot, vol or expiry, or vanishing vega)
var ErrDegenerate = errors.New("pricing: degenerate inputs")

// OptionKind 期权类型
type OptionKind int

const (
	Call OptionKind = iota
	Put
)

func (k OptionKind) String() string {
	if k == Put {
		return "put"
	}
	return "call"
}

// ParseOptionKind parses "call" or "put"
func ParseOptionKind(s string) (OptionKind, error) {
	switch s {
	case "call", "CALL", "":
		return Call, nil
	case "put", "PUT":
		return Put, nil
	}
	return Call, fmt.Errorf("unknown option kind %q", s)
}

// Params are the Black-Scholes inputs. T is in the same time unit as Sigma.
type Params struct {
	S     float64 // spot
	K     float64 // strike
	R     float64 // risk-free rate
	Sigma float64
	T     float64
}

// WithSigma returns a copy with a different volatility
func (p Params) WithSigma(sigma float64) Params {
	p.Sigma = sigma
	return p
}

func (p Params) valid() bool {
	return p.S > 0 && p.K > 0 && p.Sigma > 0 && p.T > 0 &&
		!math.IsNaN(p.Sigma) && !math.IsInf(p.Sigma, 0)
}

func (p Params) d1d2() (float64, float64) {
	sqrtT := math.Sqrt(p.T)
	d1 := (math.Log(p.S/p.K) + (p.R+0.5*p.Sigma*p.Sigma)*p.T) / (p.Sigma * sqrtT)
	return d1, d1 - p.Sigma*sqrtT
}

// NormCDF standard normal cumulative distribution
func NormCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// NormPDF standard normal density
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// CallPrice European call price
func CallPrice(p Params) (float64, error) {
	if !p.valid() {
		return 0, ErrDegenerate
	}
	d1, d2 := p.d1d2()
	return p.S*NormCDF(d1) - p.K*math.Exp(-p.R*p.T)*NormCDF(d2), nil
}

// PutPrice European put price
func PutPrice(p Params) (float64, error) {
	if !p.valid() {
		return 0, ErrDegenerate
	}
	d1, d2 := p.d1d2()
	return p.K*math.Exp(-p.R*p.T)*NormCDF(-d2) - p.S*NormCDF(-d1), nil
}

// Price dispatches on the option kind
func Price(kind OptionKind, p Params) (float64, error) {
	if kind == Put {
		return PutPrice(p)
	}
	return CallPrice(p)
}

// DeltaCall = N(d1)
func DeltaCall(p Params) (float64, error) {
	if !p.valid() {
		return 0, ErrDegenerate
	}
	d1, _ := p.d1d2()
	return NormCDF(d1), nil
}

// DeltaPut = N(d1) - 1
func DeltaPut(p Params) (float64, error) {
	d, err := DeltaCall(p)
	if err != nil {
		return 0, err
	}
	return d - 1, nil
}

// Delta dispatches on the option kind
func Delta(kind OptionKind, p Params) (float64, error) {
	if kind == Put {
		return DeltaPut(p)
	}
	return DeltaCall(p)
}

// Gamma = n(d1) / (S·σ·√T)
func Gamma(p Params) (float64, error) {
	if !p.valid() {
		return 0, ErrDegenerate
	}
	d1, _ := p.d1d2()
	return NormPDF(d1) / (p.S * p.Sigma * math.Sqrt(p.T)), nil
}

// Vega = S·n(d1)·√T
func Vega(p Params) (float64, error) {
	if !p.valid() {
		return 0, ErrDegenerate
	}
	d1, _ := p.d1d2()
	return p.S * NormPDF(d1) * math.Sqrt(p.T), nil
}
