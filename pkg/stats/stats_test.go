package stats

import (
	"errors"
	"math"
	"testing"
)

// 测试辅助函数：比较浮点数是否近似相等
func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		expected float64
	}{
		{name: "Simple average", data: []float64{1, 2, 3, 4, 5}, expected: 3.0},
		{name: "Empty array", data: []float64{}, expected: 0.0},
		{name: "Negative values", data: []float64{-2, -4, -6}, expected: -4.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mean(tt.data); !almostEqual(got, tt.expected, 1e-10) {
				t.Errorf("Mean() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestVarianceAndStdDev(t *testing.T) {
	data := []float64{6, 7, 8, 9, 10}
	if got := Variance(data); !almostEqual(got, 2.0, 1e-10) {
		t.Errorf("Variance() = %v, want 2.0", got)
	}
	if got := StdDev(data); !almostEqual(got, math.Sqrt(2.0), 1e-10) {
		t.Errorf("StdDev() = %v, want sqrt(2)", got)
	}
}

func TestOLS(t *testing.T) {
	tests := []struct {
		name          string
		y             []float64
		x             [][]float64
		intercept     bool
		wantCoef      []float64
		wantIntercept float64
	}{
		{
			name:          "y=2x+1",
			y:             []float64{3, 5, 7, 9, 11},
			x:             [][]float64{{1}, {2}, {3}, {4}, {5}},
			intercept:     true,
			wantCoef:      []float64{2},
			wantIntercept: 1,
		},
		{
			name:      "y=3a-b without intercept",
			y:         []float64{2, 5, 1, 9},
			x:         [][]float64{{1, 1}, {2, 1}, {1, 2}, {3, 0}},
			intercept: false,
			wantCoef:  []float64{3, -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := OLS(tt.y, tt.x, tt.intercept)
			if err != nil {
				t.Fatalf("OLS() error = %v", err)
			}
			for i, want := range tt.wantCoef {
				if !almostEqual(res.Coefficients[i], want, 1e-9) {
					t.Errorf("Coefficients[%d] = %v, want %v", i, res.Coefficients[i], want)
				}
			}
			if !almostEqual(res.Intercept, tt.wantIntercept, 1e-9) {
				t.Errorf("Intercept = %v, want %v", res.Intercept, tt.wantIntercept)
			}
			if !almostEqual(res.R2, 1.0, 1e-9) {
				t.Errorf("R2 = %v, want 1 for exact fit", res.R2)
			}
		})
	}
}

func TestOLS_Singular(t *testing.T) {
	// 两列完全共线
	_, err := OLS([]float64{1, 2, 3}, [][]float64{{1, 2}, {2, 4}, {3, 6}}, false)
	if !errors.Is(err, ErrSingular) {
		t.Errorf("expected ErrSingular, got %v", err)
	}
}

func TestOLS_Shape(t *testing.T) {
	if _, err := OLS(nil, nil, false); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape for empty input, got %v", err)
	}
	if _, err := OLS([]float64{1, 2}, [][]float64{{1}}, false); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape for mismatched rows, got %v", err)
	}
}

func TestThroughOrigin(t *testing.T) {
	beta, err := ThroughOrigin([]float64{1, 2, 3}, []float64{0.5, 1.0, 1.5})
	if err != nil {
		t.Fatalf("ThroughOrigin() error = %v", err)
	}
	if !almostEqual(beta, 0.5, 1e-12) {
		t.Errorf("beta = %v, want 0.5", beta)
	}

	if _, err := ThroughOrigin([]float64{0, 0}, []float64{1, 2}); !errors.Is(err, ErrSingular) {
		t.Errorf("expected ErrSingular for zero regressor, got %v", err)
	}
}

func TestOLSResult_Predict(t *testing.T) {
	r := OLSResult{Coefficients: []float64{2, -1}, Intercept: 0.5}
	if got := r.Predict([]float64{3, 1}); !almostEqual(got, 5.5, 1e-12) {
		t.Errorf("Predict() = %v, want 5.5", got)
	}
}
