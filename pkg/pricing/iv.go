package pricing

import (
	"errors"
	"math"
)

// ErrNoConvergence is returned when the iteration budget is exhausted.
// The accompanying IVResult still carries the last iterate.
var ErrNoConvergence = errors.New("pricing: implied vol did not converge")

// SolverConfig Newton-Raphson 参数
type SolverConfig struct {
	InitialGuess  float64 `yaml:"initial_guess"`
	MaxIterations int     `yaml:"max_iterations"`
	Precision     float64 `yaml:"precision"`
}

// DefaultSolverConfig starts low; large guesses diverge on deep OTM/ITM strikes
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		InitialGuess:  0.01,
		MaxIterations: 100,
		Precision:     1e-8,
	}
}

// IVResult is the outcome of one implied vol solve
type IVResult struct {
	Sigma      float64
	Iterations int
	Converged  bool
	Residual   float64 // model price - observed at Sigma
}

// ImpliedVol solves BS(kind, params.WithSigma(σ)) = observed by Newton-Raphson.
// params.Sigma is ignored.
func ImpliedVol(kind OptionKind, observed float64, params Params, cfg SolverConfig) (IVResult, error) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultSolverConfig().MaxIterations
	}
	if cfg.Precision <= 0 {
		cfg.Precision = DefaultSolverConfig().Precision
	}
	sigma := cfg.InitialGuess
	if sigma <= 0 {
		sigma = DefaultSolverConfig().InitialGuess
	}

	res := IVResult{Sigma: sigma}
	for i := 0; i < cfg.MaxIterations; i++ {
		p := params.WithSigma(sigma)
		est, err := Price(kind, p)
		if err != nil {
			return res, ErrDegenerate
		}
		diff := est - observed
		res.Sigma, res.Iterations, res.Residual = sigma, i+1, diff
		if math.Abs(diff) < cfg.Precision {
			res.Converged = true
			return res, nil
		}

		vega, err := Vega(p)
		if err != nil || vega == 0 || math.IsNaN(vega) {
			return res, ErrDegenerate
		}
		next := sigma - diff/vega
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return res, ErrDegenerate
		}
		sigma = next
	}
	return res, ErrNoConvergence
}
