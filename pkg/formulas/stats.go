// Package formulas provides the statistical primitives shared by the
// simulation engine and its aggregation layer.
package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mean returns the arithmetic mean, 0 for an empty slice
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// StdDev returns the sample standard deviation, 0 below two points
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// Correlation returns the Pearson correlation of two equal-length series,
// 0 when either side is degenerate
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// Lag1Autocorrelation estimates first-order serial correlation
func Lag1Autocorrelation(xs []float64) float64 {
	if len(xs) < 3 {
		return 0
	}
	return Correlation(xs[:len(xs)-1], xs[1:])
}

// SortedCopy returns an ascending copy of xs
func SortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// Percentile reads the p-th quantile (p in [0, 1]) from an ascending
// slice using linear interpolation between adjacent ranks.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// PercentileRank returns the index of the single element representing the
// p-th quantile (p in [0, 1]) of an ascending population of size n. Used
// where a whole ranked member must be selected rather than an interpolated
// value.
func PercentileRank(n int, p float64) int {
	if n <= 0 {
		return 0
	}
	idx := int(math.Round(p * float64(n-1)))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return idx
}

// CAGR returns the compound annual growth rate over exactly years periods.
// A non-positive terminal value reports -1 (total loss).
func CAGR(initial, terminal float64, years int) float64 {
	if years <= 0 || initial <= 0 {
		return 0
	}
	if terminal <= 0 {
		return -1
	}
	return math.Pow(terminal/initial, 1/float64(years)) - 1
}

// TimeWeightedReturn geometrically links per-period returns into an
// annualized rate
func TimeWeightedReturn(periodReturns []float64) float64 {
	if len(periodReturns) == 0 {
		return 0
	}
	growth := 1.0
	for _, r := range periodReturns {
		growth *= 1 + r
	}
	if growth <= 0 {
		return -1
	}
	return math.Pow(growth, 1/float64(len(periodReturns))) - 1
}

// EmpiricalVaR returns the value-at-risk cutoff of an ascending population
// at the given confidence (0.95 reads the 5th percentile).
func EmpiricalVaR(sorted []float64, confidence float64) float64 {
	return Percentile(sorted, 1-confidence)
}

// EmpiricalCVaR averages the tail at or below the VaR cutoff
func EmpiricalCVaR(sorted []float64, confidence float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	cutoff := int(math.Ceil((1 - confidence) * float64(len(sorted))))
	if cutoff < 1 {
		cutoff = 1
	}
	if cutoff > len(sorted) {
		cutoff = len(sorted)
	}
	sum := 0.0
	for _, v := range sorted[:cutoff] {
		sum += v
	}
	return sum / float64(cutoff)
}

// ParametricVaR returns the normal-approximation value-at-risk cutoff for a
// population with the given moments
func ParametricVaR(mean, stddev, confidence float64) float64 {
	if stddev <= 0 {
		return mean
	}
	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - confidence)
	return mean + stddev*z
}
