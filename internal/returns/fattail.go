package returns

import (
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
	"github.com/wealthpath-desktop/wealth-backend/pkg/utils"
)

// Fat-tail draws are clamped wider than the regime model's range
const (
	fatTailReturnFloor = -2.0
	fatTailReturnCeil  = 2.0
)

// Extra survivorship bias applied on top of the class table when running
// the conservative calibration.
const conservativeBiasBump = 0.005

// tailParams calibrates one asset class. Lower df means fatter tails; the
// skew multiplier amplifies negative draws only, because crashes hit
// harder than rallies help; bias is the class's survivorship subtraction.
type tailParams struct {
	df   int
	skew float64
	bias float64
}

var tailParamTable = map[types.AssetClass]tailParams{
	types.AssetClassEquityStock: {df: 3, skew: 1.25, bias: 0.020},
	types.AssetClassEquityIndex: {df: 5, skew: 1.15, bias: 0.010},
	types.AssetClassCommodity:   {df: 4, skew: 1.20, bias: 0.005},
	types.AssetClassBond:        {df: 8, skew: 1.05, bias: 0.002},
}

// TailParamsFor resolves the calibration for an asset class, defaulting
// unknown classes to equity-index.
func TailParamsFor(class types.AssetClass) (df int, skew, bias float64) {
	p, ok := tailParamTable[class]
	if !ok {
		p = tailParamTable[types.AssetClassEquityIndex]
	}
	return p.df, p.skew, p.bias
}

// fatTailGenerator draws Student's-t returns via the chi-squared-scaled
// normal construction: a standard normal divided by sqrt(chi2(df)/df). The
// normal vector is correlated across assets through the Cholesky factor of
// the correlation matrix before the per-asset tail transform, so the
// Gaussian dependence core survives the heavy-tail scaling.
type fatTailGenerator struct {
	cal       *calibration
	lower     [][]float64 // Cholesky factor
	params    []tailParams
	biasBump  float64
	varAdjust []float64 // sqrt((df-2)/df) per asset, pins variance to the historical stddev
}

func newFatTail(logger *zap.Logger, cal *calibration, mode types.CalibrationMode, corr [][]float64) (*fatTailGenerator, error) {
	lower, err := choleskyLower(logger, corr)
	if err != nil {
		return nil, err
	}
	g := &fatTailGenerator{
		cal:       cal,
		lower:     lower,
		params:    make([]tailParams, len(cal.classes)),
		varAdjust: make([]float64, len(cal.classes)),
	}
	if mode == types.CalibrationConservative {
		g.biasBump = conservativeBiasBump
	}
	for i, class := range cal.classes {
		p, ok := tailParamTable[class]
		if !ok {
			p = tailParamTable[types.AssetClassEquityIndex]
		}
		g.params[i] = p
		g.varAdjust[i] = math.Sqrt(float64(p.df-2) / float64(p.df))
	}
	logger.Debug("Calibrated fat-tail model",
		zap.String("mode", string(mode)),
		zap.Int("assets", len(cal.classes)))
	return g, nil
}

func (g *fatTailGenerator) Generate(years int, rng *rand.Rand) ([][]float64, error) {
	assetCount := len(g.cal.window)
	z := make([]float64, assetCount)
	out := make([][]float64, years)
	for y := 0; y < years; y++ {
		for i := range z {
			z[i] = boxMuller(rng)
		}
		row := make([]float64, assetCount)
		for i := 0; i < assetCount; i++ {
			// Correlate: w_i = sum_j<=i L[i][j] * z_j.
			w := 0.0
			for j := 0; j <= i; j++ {
				w += g.lower[i][j] * z[j]
			}
			p := g.params[i]
			t := w / math.Sqrt(chiSquared(p.df, rng)/float64(p.df))
			if t < 0 {
				t *= p.skew
			}
			r := g.cal.means[i] - p.bias - g.biasBump + t*g.cal.stddevs[i]*g.varAdjust[i]
			row[i] = utils.Clamp(r, fatTailReturnFloor, fatTailReturnCeil)
		}
		out[y] = row
	}
	return out, nil
}
