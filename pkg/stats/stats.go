// Package stats provides the small set of statistics the pricing models need:
// moments and ordinary least squares.
package stats

import (
	"errors"
	"math"
)

// ErrSingular is returned when the normal equations cannot be solved
var ErrSingular = errors.New("stats: singular system")

// ErrShape is returned for mismatched or empty inputs
var ErrShape = errors.New("stats: mismatched or empty input")

// singularEps 主元小于该值视为奇异
const singularEps = 1e-12

// Mean 计算均值
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// Variance 计算总体方差
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := Mean(data)
	var v float64
	for _, x := range data {
		d := x - mean
		v += d * d
	}
	return v / float64(len(data))
}

// StdDev 计算标准差
func StdDev(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// OLSResult holds a fitted linear model
type OLSResult struct {
	Coefficients []float64 // one per regressor column
	Intercept    float64   // zero when fitted without intercept
	R2           float64
	Residuals    []float64
}

// Predict evaluates the model on one row of regressors
func (r OLSResult) Predict(row []float64) float64 {
	y := r.Intercept
	for i, c := range r.Coefficients {
		if i < len(row) {
			y += c * row[i]
		}
	}
	return y
}

// OLS fits y = X·β (+ intercept) by solving the normal equations X'X β = X'y.
// x is row-major: x[i] is the regressor row of observation i.
func OLS(y []float64, x [][]float64, intercept bool) (OLSResult, error) {
	n := len(y)
	if n == 0 || len(x) != n || len(x[0]) == 0 {
		return OLSResult{}, ErrShape
	}
	k := len(x[0])
	cols := k
	if intercept {
		cols++
	}

	design := make([][]float64, n)
	for i, row := range x {
		if len(row) != k {
			return OLSResult{}, ErrShape
		}
		r := make([]float64, 0, cols)
		if intercept {
			r = append(r, 1)
		}
		design[i] = append(r, row...)
	}

	// X'X | X'y 增广矩阵
	aug := make([][]float64, cols)
	for a := 0; a < cols; a++ {
		aug[a] = make([]float64, cols+1)
		for b := 0; b < cols; b++ {
			var s float64
			for i := 0; i < n; i++ {
				s += design[i][a] * design[i][b]
			}
			aug[a][b] = s
		}
		var s float64
		for i := 0; i < n; i++ {
			s += design[i][a] * y[i]
		}
		aug[a][cols] = s
	}

	beta, err := solve(aug)
	if err != nil {
		return OLSResult{}, err
	}

	res := OLSResult{Residuals: make([]float64, n)}
	if intercept {
		res.Intercept = beta[0]
		res.Coefficients = beta[1:]
	} else {
		res.Coefficients = beta
	}

	mean := Mean(y)
	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		fitted := 0.0
		for j := 0; j < cols; j++ {
			fitted += design[i][j] * beta[j]
		}
		res.Residuals[i] = y[i] - fitted
		ssRes += res.Residuals[i] * res.Residuals[i]
		d := y[i] - mean
		ssTot += d * d
	}
	if ssTot > 0 {
		res.R2 = 1 - ssRes/ssTot
	}
	return res, nil
}

// ThroughOrigin fits y = β·x without intercept: β = Σxy / Σx²
func ThroughOrigin(x, y []float64) (float64, error) {
	if len(x) == 0 || len(x) != len(y) {
		return 0, ErrShape
	}
	var sxy, sxx float64
	for i := range x {
		sxy += x[i] * y[i]
		sxx += x[i] * x[i]
	}
	if sxx < singularEps {
		return 0, ErrSingular
	}
	return sxy / sxx, nil
}

// solve runs Gaussian elimination with partial pivoting on an augmented matrix
func solve(aug [][]float64) ([]float64, error) {
	n := len(aug)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < singularEps {
			return nil, ErrSingular
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		for r := col + 1; r < n; r++ {
			f := aug[r][col] / aug[col][col]
			for c := col; c <= n; c++ {
				aug[r][c] -= f * aug[col][c]
			}
		}
	}

	out := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		s := aug[r][n]
		for c := r + 1; c < n; c++ {
			s -= aug[r][c] * out[c]
		}
		out[r] = s / aug[r][r]
	}
	return out, nil
}
