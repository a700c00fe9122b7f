package returns

import (
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/pkg/formulas"
)

// Block-length bounds for the block bootstrap. Below minHistoryForBlocks
// shared periods the variant degrades to single-year sampling.
const (
	minBlockLength      = 3
	minHistoryForBlocks = 12
)

// bootstrapGenerator resamples whole historical years. Every asset reads
// the SAME randomly drawn year index, which is what carries historical
// cross-asset correlation into the simulated paths. Per-asset independent
// indices would destroy that correlation and are never used.
type bootstrapGenerator struct {
	cal *calibration
}

func newBootstrap(cal *calibration) *bootstrapGenerator {
	return &bootstrapGenerator{cal: cal}
}

func (g *bootstrapGenerator) Generate(years int, rng *rand.Rand) ([][]float64, error) {
	n := g.cal.periods()
	out := make([][]float64, years)
	for y := 0; y < years; y++ {
		idx := rng.Intn(n)
		row := make([]float64, len(g.cal.window))
		for a := range g.cal.window {
			row[a] = g.cal.window[a][idx]
		}
		out[y] = row
	}
	return out, nil
}

// blockBootstrapGenerator resamples contiguous runs of historical years so
// serial autocorrelation survives alongside cross-asset correlation. Block
// start indices are shared across assets exactly like single-year indices.
type blockBootstrapGenerator struct {
	cal      *calibration
	blockLen int
}

func newBlockBootstrap(logger *zap.Logger, cal *calibration) *blockBootstrapGenerator {
	n := cal.periods()
	blockLen := 1
	if n < minHistoryForBlocks {
		logger.Warn("History too short for block bootstrap, degrading to single-year sampling",
			zap.Int("periods", n),
			zap.Int("required", minHistoryForBlocks))
	} else {
		rho := 0.0
		for _, series := range cal.window {
			rho += formulas.Lag1Autocorrelation(series)
		}
		rho /= float64(len(cal.window))
		blockLen = OptimalBlockLength(n, rho)
		logger.Debug("Tuned block length",
			zap.Int("blockLength", blockLen),
			zap.Float64("lag1Autocorrelation", rho))
	}
	return &blockBootstrapGenerator{cal: cal, blockLen: blockLen}
}

func (g *blockBootstrapGenerator) Generate(years int, rng *rand.Rand) ([][]float64, error) {
	n := g.cal.periods()
	out := make([][]float64, 0, years)
	for len(out) < years {
		start := rng.Intn(n - g.blockLen + 1)
		for k := 0; k < g.blockLen && len(out) < years; k++ {
			row := make([]float64, len(g.cal.window))
			for a := range g.cal.window {
				row[a] = g.cal.window[a][start+k]
			}
			out = append(out, row)
		}
	}
	return out, nil
}

// OptimalBlockLength applies a Politis-White-style rule to the series
// length and its lag-1 autocorrelation, clamped to [3, n/4]. Degenerate
// autocorrelation estimates (non-finite, <= 0, or >= 1) fall back to the
// minimum block length.
func OptimalBlockLength(n int, rho float64) int {
	length := minBlockLength
	if !math.IsNaN(rho) && !math.IsInf(rho, 0) && rho > 0 && rho < 1 {
		factor := math.Pow(2*rho/(1-rho*rho), 2.0/3.0)
		length = int(math.Ceil(factor * math.Cbrt(float64(n))))
	}
	if length < minBlockLength {
		length = minBlockLength
	}
	maxLength := n / 4
	if maxLength < minBlockLength {
		maxLength = minBlockLength
	}
	if length > maxLength {
		length = maxLength
	}
	return length
}
