package simulation

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wealthpath-desktop/wealth-backend/internal/leverage"
	"github.com/wealthpath-desktop/wealth-backend/internal/sellstrategy"
	"github.com/wealthpath-desktop/wealth-backend/pkg/formulas"
	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

// pathView is the strategy-neutral slice of one iteration used for ranking
// and summary statistics
type pathView struct {
	iteration  int
	terminal   float64
	taxes      float64
	years      []types.YearPoint
	success    bool
	failed     bool
	marginCall bool
}

// aggregate ranks every finite iteration per strategy, extracts the
// path-coherent percentile trajectories, and computes the summary
// statistics. Reported percentile paths are complete single iterations,
// never per-year cross-sections of different runs.
func aggregate(cfg *types.SimulationConfig, runID string, outcomes []iterationOutcome, elapsed time.Duration) (*types.SimulationOutput, error) {
	borrowViews := make([]pathView, 0, len(outcomes))
	sellViews := make([]pathView, 0, len(outcomes))
	excluded := 0

	for i, oc := range outcomes {
		borrowOK := isFinite(oc.borrow.TerminalNetWorth)
		sellOK := isFinite(oc.sell.TerminalValue)
		if !borrowOK || !sellOK {
			excluded++
		}
		if borrowOK {
			borrowViews = append(borrowViews, pathView{
				iteration:  i,
				terminal:   oc.borrow.TerminalNetWorth,
				taxes:      oc.borrow.TaxesBorrowed,
				years:      oc.borrow.Years,
				success:    oc.borrow.Success,
				failed:     oc.borrow.Failed,
				marginCall: oc.borrow.MarginCalls > 0,
			})
		}
		if sellOK {
			sellViews = append(sellViews, pathView{
				iteration: i,
				terminal:  oc.sell.TerminalValue,
				taxes:     oc.sell.TaxesPaid,
				years:     oc.sell.Years,
				success:   oc.sell.Success,
				failed:    oc.sell.Depleted,
			})
		}
	}

	if len(borrowViews) == 0 || len(sellViews) == 0 {
		return nil, ErrAllPathsNonFinite
	}

	initial := cfg.InitialValue.InexactFloat64()
	initialNetWorth := initial - cfg.InitialLoan.InexactFloat64()

	borrowResult, borrowMedian := summarize(borrowViews, initialNetWorth, cfg.HorizonYears, true)
	sellResult, sellMedian := summarize(sellViews, initial, cfg.HorizonYears, false)

	out := &types.SimulationOutput{
		RunID:         runID,
		Model:         cfg.Model,
		Calibration:   cfg.Calibration,
		Iterations:    cfg.Iterations,
		HorizonYears:  cfg.HorizonYears,
		Seed:          cfg.Seed,
		Leverage:      borrowResult,
		Sell:          sellResult,
		Comparison:    estateComparison(cfg, outcomes[borrowMedian].borrow, outcomes[sellMedian].sell),
		ExcludedPaths: excluded,
		Elapsed:       elapsed,
		CompletedAt:   time.Now().UTC(),
	}

	return out, nil
}

// summarize ranks the views by terminal wealth and builds one strategy's
// result. Returns the iteration index behind the reported median path.
func summarize(views []pathView, v0 float64, horizon int, leveraged bool) (types.StrategyResult, int) {
	sort.Slice(views, func(a, b int) bool {
		if views[a].terminal != views[b].terminal {
			return views[a].terminal < views[b].terminal
		}
		return views[a].iteration < views[b].iteration
	})

	n := len(views)
	terminals := make([]float64, n)
	taxes := make([]float64, n)
	cagrs := make([]float64, n)
	successes, failures, calls := 0, 0, 0
	for i, v := range views {
		terminals[i] = v.terminal
		taxes[i] = v.taxes
		cagrs[i] = formulas.CAGR(v0, v.terminal, horizon)
		if v.success {
			successes++
		}
		if v.failed {
			failures++
		}
		if v.marginCall {
			calls++
		}
	}

	p10 := views[formulas.PercentileRank(n, 0.10)]
	p25 := views[formulas.PercentileRank(n, 0.25)]
	p50 := views[formulas.PercentileRank(n, 0.50)]
	p75 := views[formulas.PercentileRank(n, 0.75)]
	p90 := views[formulas.PercentileRank(n, 0.90)]

	res := types.StrategyResult{
		TerminalPercentiles: types.PercentileSet{
			P10: decimal.NewFromFloat(p10.terminal),
			P25: decimal.NewFromFloat(p25.terminal),
			P50: decimal.NewFromFloat(p50.terminal),
			P75: decimal.NewFromFloat(p75.terminal),
			P90: decimal.NewFromFloat(p90.terminal),
		},
		Paths: types.PathSet{
			P10: p10.years,
			P25: p25.years,
			P50: p50.years,
			P75: p75.years,
			P90: p90.years,
		},

		SuccessRate: float64(successes) / float64(n),
		FailureRate: float64(failures) / float64(n),

		// CAGR spans exactly horizon periods; horizon+1 would silently
		// understate returns
		MedianCAGR:           formulas.CAGR(v0, p50.terminal, horizon),
		AnnualizedVolatility: formulas.StdDev(cagrs),
		TimeWeightedReturn:   pathTWR(v0, p50.years),

		MeanTerminal:    decimal.NewFromFloat(formulas.Mean(terminals)),
		MedianTerminal:  decimal.NewFromFloat(p50.terminal),
		MedianTaxes:     decimal.NewFromFloat(formulas.Percentile(formulas.SortedCopy(taxes), 0.50)),
		TerminalVaR95:   decimal.NewFromFloat(formulas.EmpiricalVaR(terminals, 0.95)),
		TerminalCVaR95:  decimal.NewFromFloat(formulas.EmpiricalCVaR(terminals, 0.95)),
		ParametricVaR95: decimal.NewFromFloat(formulas.ParametricVaR(formulas.Mean(terminals), formulas.StdDev(terminals), 0.95)),
	}

	if leveraged {
		res.MarginCallRate = float64(calls) / float64(n)
	} else {
		res.DepletionRate = float64(failures) / float64(n)
	}

	return res, p50.iteration
}

// pathTWR geometrically links one trajectory's year-over-year wealth
// returns. A wealth measure at or below zero anywhere on the path makes
// the linked return undefined, reported as total loss.
func pathTWR(v0 float64, years []types.YearPoint) float64 {
	rets := make([]float64, 0, len(years))
	prev := v0
	for _, y := range years {
		if prev <= 0 {
			return -1
		}
		rets = append(rets, y.NetWorth/prev-1)
		prev = y.NetWorth
	}
	return formulas.TimeWeightedReturn(rets)
}

// estateComparison contrasts the two strategies' median iterations at the
// horizon: embedded gains vanish at death under stepped-up basis, so each
// dollar of unrealized gain carried to the end saves its capital-gains tax.
func estateComparison(cfg *types.SimulationConfig, borrow *leverage.PathResult, sell *sellstrategy.PathResult) types.EstateComparison {
	ltcg := cfg.Tax.LTCGRate
	if cfg.Tax.Disabled {
		ltcg = 0
	}

	embBorrow := borrow.EmbeddedGains()
	embSell := sell.EmbeddedGains()

	return types.EstateComparison{
		EmbeddedGainsLeverage:    decimal.NewFromFloat(embBorrow),
		EmbeddedGainsSell:        decimal.NewFromFloat(embSell),
		SteppedUpSavingsLeverage: decimal.NewFromFloat(embBorrow * ltcg),
		SteppedUpSavingsSell:     decimal.NewFromFloat(embSell * ltcg),
		NetEstateLeverage:        decimal.NewFromFloat(borrow.TerminalNetWorth),
		NetEstateSell:            decimal.NewFromFloat(sell.TerminalValue),
		Differential:             decimal.NewFromFloat(borrow.TerminalNetWorth - sell.TerminalValue),
	}
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
