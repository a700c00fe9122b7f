// Package returns implements the correlated return generators behind the
// simulation engine: historical bootstrap (single-year and block), a
// regime-switching Markov model, and a fat-tailed Student's-t model.
package returns

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/wealthpath-desktop/wealth-backend/pkg/formulas"
	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

// ErrNotPositiveDefinite is returned when a correlation matrix cannot be
// Cholesky-factorized even after shrinkage toward the identity.
var ErrNotPositiveDefinite = errors.New("correlation matrix is not positive definite")

const (
	symmetryTolerance = 1e-9
	maxShrinkage      = 0.5
	shrinkageStep     = 0.05
)

// ValidateCorrelationMatrix checks shape, symmetry, unit diagonal and entry
// bounds of a supplied matrix.
func ValidateCorrelationMatrix(c [][]float64, assetCount int) error {
	if len(c) != assetCount {
		return fmt.Errorf("correlation matrix has %d rows, want %d", len(c), assetCount)
	}
	for i, row := range c {
		if len(row) != assetCount {
			return fmt.Errorf("correlation matrix row %d has %d entries, want %d", i, len(row), assetCount)
		}
		if math.Abs(row[i]-1) > symmetryTolerance {
			return fmt.Errorf("correlation matrix diagonal entry %d is %v, want 1", i, row[i])
		}
		for j, v := range row {
			if math.IsNaN(v) || v < -1 || v > 1 {
				return fmt.Errorf("correlation matrix entry (%d,%d) out of range: %v", i, j, v)
			}
			if math.Abs(v-c[j][i]) > symmetryTolerance {
				return fmt.Errorf("correlation matrix not symmetric at (%d,%d)", i, j)
			}
		}
	}
	return nil
}

// EstimateCorrelation derives the pairwise correlation matrix from the
// assets' shared history window. Degenerate pairs fall back to zero, the
// diagonal is pinned to exactly 1.
func EstimateCorrelation(window [][]float64) [][]float64 {
	n := len(window)
	c := make([][]float64, n)
	for i := range c {
		c[i] = make([]float64, n)
		c[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := formulas.Correlation(window[i], window[j])
			c[i][j] = r
			c[j][i] = r
		}
	}
	return c
}

// choleskyLower returns the lower-triangular Cholesky factor of a
// correlation matrix. A factorization failure triggers progressive
// shrinkage toward the identity before giving up with
// ErrNotPositiveDefinite.
func choleskyLower(logger *zap.Logger, c [][]float64) ([][]float64, error) {
	n := len(c)
	if lower, ok := factorize(c); ok {
		return lower, nil
	}
	for lambda := shrinkageStep; lambda <= maxShrinkage+1e-12; lambda += shrinkageStep {
		shrunk := make([][]float64, n)
		for i := range shrunk {
			shrunk[i] = make([]float64, n)
			for j := range shrunk[i] {
				shrunk[i][j] = (1 - lambda) * c[i][j]
				if i == j {
					shrunk[i][j] += lambda
				}
			}
		}
		if lower, ok := factorize(shrunk); ok {
			logger.Warn("Correlation matrix required shrinkage to factorize",
				zap.Float64("lambda", lambda))
			return lower, nil
		}
	}
	return nil, ErrNotPositiveDefinite
}

func factorize(c [][]float64) ([][]float64, bool) {
	n := len(c)
	flat := make([]float64, 0, n*n)
	for _, row := range c {
		flat = append(flat, row...)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(n, flat)); !ok {
		return nil, false
	}
	var tri mat.TriDense
	chol.LTo(&tri)
	lower := make([][]float64, n)
	for i := range lower {
		lower[i] = make([]float64, n)
		for j := 0; j <= i; j++ {
			lower[i][j] = tri.At(i, j)
		}
	}
	return lower, true
}

// sharedWindow trims every series to the most recent n periods, where n is
// the shortest history across the portfolio.
func sharedWindow(assets []types.PortfolioAsset) [][]float64 {
	n := 0
	for i, a := range assets {
		if i == 0 || len(a.Returns) < n {
			n = len(a.Returns)
		}
	}
	window := make([][]float64, len(assets))
	for i, a := range assets {
		window[i] = a.Returns[len(a.Returns)-n:]
	}
	return window
}
