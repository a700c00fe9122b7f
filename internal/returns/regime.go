package returns

import (
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
	"github.com/wealthpath-desktop/wealth-backend/pkg/utils"
)

// Regime identifies a market state in the switching model
type Regime string

const (
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeCrash    Regime = "crash"
	RegimeRecovery Regime = "recovery"
)

// RegimeOrder fixes the row/column order of every transition matrix
var RegimeOrder = []Regime{RegimeBull, RegimeBear, RegimeCrash, RegimeRecovery}

// Sampled regime returns are clamped to this range to keep tail draws from
// feeding NaN/Inf into the engines.
const (
	regimeReturnFloor = -0.99
	regimeReturnCeil  = 5.0
)

// Survivorship-bias subtraction per calibration mode. Historical indices
// overstate returns because failed constituents drop out of the record.
const (
	biasHistorical   = 0.015
	biasConservative = 0.020
)

// regimeParams scales an asset's historical moments inside one state
type regimeParams struct {
	meanMult   float64
	meanOffset float64
	volMult    float64
}

var regimeParamTable = map[Regime]regimeParams{
	RegimeBull:     {meanMult: 1.4, meanOffset: 0.02, volMult: 0.80},
	RegimeBear:     {meanMult: -0.5, meanOffset: -0.03, volMult: 1.30},
	RegimeCrash:    {meanMult: -2.0, meanOffset: -0.15, volMult: 2.00},
	RegimeRecovery: {meanMult: 1.8, meanOffset: 0.03, volMult: 1.10},
}

// TransitionMatrix returns the transition probabilities for a calibration
// mode, rows and columns ordered by RegimeOrder. The conservative matrix
// stresses the chain: weaker bull persistence, likelier and stickier
// crashes, slower recovery.
func TransitionMatrix(mode types.CalibrationMode) [][]float64 {
	if mode == types.CalibrationConservative {
		return [][]float64{
			{0.70, 0.20, 0.10, 0.00},
			{0.15, 0.60, 0.20, 0.05},
			{0.03, 0.27, 0.50, 0.20},
			{0.30, 0.20, 0.10, 0.40},
		}
	}
	return [][]float64{
		{0.80, 0.15, 0.05, 0.00},
		{0.25, 0.55, 0.15, 0.05},
		{0.05, 0.25, 0.40, 0.30},
		{0.40, 0.10, 0.05, 0.45},
	}
}

// survivorshipBias returns the mean subtraction for a calibration mode
func survivorshipBias(mode types.CalibrationMode) float64 {
	if mode == types.CalibrationConservative {
		return biasConservative
	}
	return biasHistorical
}

// Chain is a finite-state Markov chain sampled by cumulative probability
type Chain struct {
	matrix [][]float64
}

// NewChain validates and wraps a transition matrix: square, non-negative
// entries, every row summing to 1 within tolerance.
func NewChain(matrix [][]float64) (*Chain, error) {
	n := len(matrix)
	if n == 0 {
		return nil, fmt.Errorf("transition matrix is empty")
	}
	for i, row := range matrix {
		if len(row) != n {
			return nil, fmt.Errorf("transition matrix row %d has %d entries, want %d", i, len(row), n)
		}
		sum := 0.0
		for j, p := range row {
			if p < 0 || math.IsNaN(p) {
				return nil, fmt.Errorf("transition matrix entry (%d,%d) is invalid: %v", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			return nil, fmt.Errorf("transition matrix row %d sums to %v, want 1", i, sum)
		}
	}
	return &Chain{matrix: matrix}, nil
}

// Next draws the successor state by walking the row's cumulative
// probabilities
func (c *Chain) Next(state int, rng *rand.Rand) int {
	u := rng.Float64()
	cum := 0.0
	row := c.matrix[state]
	for j, p := range row {
		cum += p
		if u < cum {
			return j
		}
	}
	return len(row) - 1
}

// States returns the number of chain states
func (c *Chain) States() int { return len(c.matrix) }

// regimeGenerator draws returns from a 4-state Markov chain. All assets
// share the chain state and a single standard-normal draw each year, so
// their co-movement survives without an explicit correlation matrix; each
// asset keeps its own historically calibrated mean and volatility, scaled
// by the state's parameters.
type regimeGenerator struct {
	cal   *calibration
	chain *Chain
	bias  float64
}

func newRegime(logger *zap.Logger, cal *calibration, mode types.CalibrationMode) (*regimeGenerator, error) {
	chain, err := NewChain(TransitionMatrix(mode))
	if err != nil {
		return nil, err
	}
	logger.Debug("Calibrated regime model",
		zap.String("mode", string(mode)),
		zap.Float64("survivorshipBias", survivorshipBias(mode)))
	return &regimeGenerator{
		cal:   cal,
		chain: chain,
		bias:  survivorshipBias(mode),
	}, nil
}

func (g *regimeGenerator) Generate(years int, rng *rand.Rand) ([][]float64, error) {
	out := make([][]float64, years)
	state := 0 // chains start in the bull state
	for y := 0; y < years; y++ {
		state = g.chain.Next(state, rng)
		params := regimeParamTable[RegimeOrder[state]]
		z := boxMuller(rng)
		row := make([]float64, len(g.cal.window))
		for a := range row {
			mean := g.cal.means[a]*params.meanMult + params.meanOffset - g.bias
			vol := g.cal.stddevs[a] * params.volMult
			row[a] = utils.Clamp(mean+z*vol, regimeReturnFloor, regimeReturnCeil)
		}
		out[y] = row
	}
	return out, nil
}
