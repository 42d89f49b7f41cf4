package visualization

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// flatten copies m into a row-major slice
func flatten(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		out = append(out, m.RawRowView(r)...)
	}
	return out
}

// RMSE computes the root mean square error between two equally sized matrices
func RMSE(a, b *mat.Dense) float64 {
	x, y := flatten(a), flatten(b)
	n := len(x)
	if n != len(y) || n == 0 {
		return 0
	}

	mse := 0.0
	for i := 0; i < n; i++ {
		diff := x[i] - y[i]
		mse += diff * diff
	}
	mse /= float64(n)

	return math.Sqrt(mse)
}

// SSIM computes a single-window Structural Similarity Index over two
// equally sized [0,1] matrices
func SSIM(a, b *mat.Dense) float64 {
	const L = 1.0 // Dynamic range
	const k1 = 0.01
	const k2 = 0.03

	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	x, y := flatten(a), flatten(b)
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}

	muX := stat.Mean(x, nil)
	muY := stat.Mean(y, nil)

	sigmaX := stat.Variance(x, nil)
	sigmaY := stat.Variance(y, nil)
	sigmaXY := stat.Covariance(x, y, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)

	if den > 0 {
		return num / den
	}
	return 0
}
