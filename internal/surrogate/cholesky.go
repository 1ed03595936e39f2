package surrogate

import (
	"fmt"
	"math"
)

// choleskyFactor holds the lower-triangular factor L of a symmetric
// positive-definite matrix, K = L L'
type choleskyFactor struct {
	lower [][]float64
	n     int
}

// factorize computes the Cholesky decomposition, failing if the matrix is
// not positive definite
func factorize(m [][]float64) (*choleskyFactor, error) {
	n := len(m)
	lower := make([][]float64, n)
	for i := range lower {
		lower[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := m[i][j]
			for k := 0; k < j; k++ {
				sum -= lower[i][k] * lower[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil, fmt.Errorf("matrix is not positive definite at row %d", i)
				}
				lower[i][i] = math.Sqrt(sum)
			} else {
				lower[i][j] = sum / lower[j][j]
			}
		}
	}

	return &choleskyFactor{lower: lower, n: n}, nil
}

// factorizeWithJitter retries factorization with escalating diagonal
// jitter. Near-duplicate observations make the covariance matrix nearly
// singular; the jitter keeps the solve stable.
func factorizeWithJitter(m [][]float64) (*choleskyFactor, error) {
	jitter := 1e-10
	var lastErr error
	for attempt := 0; attempt < 6; attempt++ {
		work := make([][]float64, len(m))
		for i := range m {
			work[i] = make([]float64, len(m[i]))
			copy(work[i], m[i])
			work[i][i] += jitter
		}
		chol, err := factorize(work)
		if err == nil {
			return chol, nil
		}
		lastErr = err
		jitter *= 100
	}
	return nil, lastErr
}

// Solve returns K^-1 b using forward and back substitution
func (c *choleskyFactor) Solve(b []float64) []float64 {
	y := c.SolveLower(b)

	// Back substitution: L' x = y
	x := make([]float64, c.n)
	for i := c.n - 1; i >= 0; i-- {
		sum := y[i]
		for k := i + 1; k < c.n; k++ {
			sum -= c.lower[k][i] * x[k]
		}
		x[i] = sum / c.lower[i][i]
	}
	return x
}

// SolveLower returns L^-1 b using forward substitution
func (c *choleskyFactor) SolveLower(b []float64) []float64 {
	y := make([]float64, c.n)
	for i := 0; i < c.n; i++ {
		sum := b[i]
		for k := 0; k < i; k++ {
			sum -= c.lower[i][k] * y[k]
		}
		y[i] = sum / c.lower[i][i]
	}
	return y
}
