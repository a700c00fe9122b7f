package returns

import (
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/pkg/formulas"
	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

// Generator produces one correlated return vector per simulated year.
// Generate returns a [year][asset] matrix. Implementations are immutable
// after construction; every random draw flows through the caller's rng so
// runs stay reproducible and safely parallel.
type Generator interface {
	Generate(years int, rng *rand.Rand) ([][]float64, error)
}

// calibration holds the per-asset statistics every model draws on,
// computed once at construction over the shared history window.
type calibration struct {
	window  [][]float64 // [asset][period], trimmed to the shortest history
	means   []float64
	stddevs []float64
	classes []types.AssetClass
}

func calibrate(assets []types.PortfolioAsset) (*calibration, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets to calibrate")
	}
	window := sharedWindow(assets)
	if len(window[0]) < 2 {
		return nil, fmt.Errorf("shared history window has %d periods, need at least 2", len(window[0]))
	}
	cal := &calibration{
		window:  window,
		means:   make([]float64, len(assets)),
		stddevs: make([]float64, len(assets)),
		classes: make([]types.AssetClass, len(assets)),
	}
	for i := range assets {
		cal.means[i] = formulas.Mean(window[i])
		cal.stddevs[i] = formulas.StdDev(window[i])
		cal.classes[i] = assets[i].Class
		if cal.classes[i] == "" {
			cal.classes[i] = types.AssetClassEquityIndex
		}
	}
	return cal, nil
}

func (c *calibration) periods() int { return len(c.window[0]) }

// NewGenerator builds the generator selected by the config's model tag.
// All calibration, block-length tuning and Cholesky factorization happens
// here, once, so Generate stays cheap inside the iteration hot loop.
// Model selection occurs exactly once; the hot path never branches on it.
func NewGenerator(logger *zap.Logger, cfg *types.SimulationConfig, assets []types.PortfolioAsset, corr [][]float64) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cal, err := calibrate(assets)
	if err != nil {
		return nil, err
	}

	switch cfg.Model {
	case types.ModelBootstrap:
		return newBootstrap(cal), nil

	case types.ModelBlockBootstrap:
		return newBlockBootstrap(logger, cal), nil

	case types.ModelRegime:
		return newRegime(logger, cal, cfg.Calibration)

	case types.ModelFatTail:
		if corr == nil {
			corr = EstimateCorrelation(cal.window)
		} else if err := ValidateCorrelationMatrix(corr, len(assets)); err != nil {
			return nil, err
		}
		return newFatTail(logger, cal, cfg.Calibration, corr)

	default:
		return nil, fmt.Errorf("unknown return model %q", cfg.Model)
	}
}

// boxMuller draws one standard normal value
func boxMuller(rng *rand.Rand) float64 {
	u1 := rng.Float64()
	for u1 == 0 {
		u1 = rng.Float64()
	}
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// chiSquared draws a chi-squared value with integer df as a sum of squared
// standard normals
func chiSquared(df int, rng *rand.Rand) float64 {
	sum := 0.0
	for i := 0; i < df; i++ {
		z := boxMuller(rng)
		sum += z * z
	}
	return sum
}
