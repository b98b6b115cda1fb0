package pricing

import (
	"fmt"

	"github.com/yourusername/quantlink-tick-engine/pkg/stats"
)

// ForecastIV regresses iv_t on iv_{t-1} without intercept over a chronological
// (oldest first) window and returns coef × latest iv.
// A window shorter than 2 or with an all-zero regressor fails with stats.ErrSingular/ErrShape.
func ForecastIV(chronological []float64) (float64, error) {
	n := len(chronological)
	if n < 2 {
		return 0, fmt.Errorf("forecast iv over %d points: %w", n, stats.ErrShape)
	}
	coef, err := stats.ThroughOrigin(chronological[:n-1], chronological[1:])
	if err != nil {
		return 0, fmt.Errorf("forecast iv: %w", err)
	}
	return coef * chronological[n-1], nil
}
