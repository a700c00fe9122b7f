// Package leverage implements the borrow-against-assets wealth strategy.
package leverage

import (
	"math"

	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

// Account states recorded per simulated year.
const (
	StateNormal      = "normal"
	StateWarning     = "warning-zone"
	StateMarginCall  = "margin-call"
	StateLiquidation = "forced-liquidation"
	StateFailed      = "failed"
)

// PathResult is the outcome of one simulated leverage trajectory
type PathResult struct {
	Years []types.YearPoint

	TerminalValue    float64
	TerminalLoan     float64
	TerminalNetWorth float64
	TerminalBasis    float64

	TaxesBorrowed float64
	MarginCalls   int
	Liquidations  int

	Failed     bool
	FailedYear int // 0 when the path never failed
	Success    bool
}

// EmbeddedGains returns the unrealized gain carried at the horizon
func (r *PathResult) EmbeddedGains() float64 {
	return math.Max(0, r.TerminalValue-r.TerminalBasis)
}

// Engine runs the borrow strategy year by year: spending and dividend taxes
// are financed by new borrowing against the portfolio, never by selling,
// until an LTV breach forces liquidation. Safe for concurrent use: all state
// is precomputed at construction, SimulatePath only reads it.
type Engine struct {
	logger *zap.Logger

	terms types.LeverageTerms
	tax   types.TaxConfig

	initialValue float64
	initialLoan  float64
	initialBasis float64
	horizon      int

	withdrawals   []float64 // indexed by 1-based year
	monthlyPay    bool
	monthlyRate   float64
	annualFactor  float64
	restoreTarget float64
}

// NewEngine precomputes the withdrawal schedule and loan factors for a run
func NewEngine(logger *zap.Logger, cfg *types.SimulationConfig) *Engine {
	e := &Engine{
		logger:       logger,
		terms:        cfg.Leverage,
		tax:          cfg.Tax,
		initialValue: cfg.InitialValue.InexactFloat64(),
		initialLoan:  cfg.InitialLoan.InexactFloat64(),
		initialBasis: cfg.InitialCostBasis.InexactFloat64(),
		horizon:      cfg.HorizonYears,
	}

	e.withdrawals = make([]float64, cfg.HorizonYears+1)
	for y := 1; y <= cfg.HorizonYears; y++ {
		e.withdrawals[y] = cfg.Withdrawal.AmountForYear(y, cfg.InflationRate)
	}

	rate := cfg.Leverage.InterestRate
	if cfg.Leverage.Compounding == types.CompoundingMonthly {
		e.monthlyRate = rate / 12
		e.annualFactor = math.Pow(1+rate/12, 12)
		e.monthlyPay = cfg.Withdrawal.Cadence == types.CadenceMonthly
	} else {
		// Annual compounding has no intra-year accrual, so a monthly
		// cadence collapses to the annual case.
		e.annualFactor = 1 + rate
	}

	e.restoreTarget = cfg.Leverage.TargetLTV
	if e.restoreTarget == 0 {
		e.restoreTarget = cfg.Leverage.SafetyBuffer * cfg.Leverage.MaintenanceLTV
	}

	logger.Debug("Leverage engine ready",
		zap.Float64("restore_target_ltv", e.restoreTarget),
		zap.Float64("max_ltv", cfg.Leverage.MaxLTV),
		zap.Int("horizon_years", cfg.HorizonYears))

	return e
}

// SimulatePath runs one full trajectory over the given per-year portfolio
// returns. returns must cover at least the configured horizon.
func (e *Engine) SimulatePath(returns []float64) *PathResult {
	res := &PathResult{
		Years: make([]types.YearPoint, 0, e.horizon),
	}

	value := e.initialValue
	loan := e.initialLoan
	basis := e.initialBasis

	for y := 1; y <= e.horizon; y++ {
		if res.Failed {
			res.Years = append(res.Years, types.YearPoint{
				Year:           y,
				PortfolioValue: 0,
				LoanBalance:    loan,
				NetWorth:       res.TerminalNetWorth,
				State:          StateFailed,
			})
			continue
		}

		value *= 1 + returns[y-1]

		if !e.tax.Disabled && e.tax.DividendYield > 0 {
			divTax := value * e.tax.DividendYield * e.tax.OrdinaryRate
			loan += divTax
			res.TaxesBorrowed += divTax
		}

		w := e.withdrawals[y]
		if e.monthlyPay {
			monthly := w / 12
			for m := 0; m < 12; m++ {
				loan = (loan + monthly) * (1 + e.monthlyRate)
			}
		} else {
			loan = (loan + w) * e.annualFactor
		}

		point := types.YearPoint{Year: y, Withdrawal: w, State: StateNormal}

		ltv := loan / value
		if ltv >= e.terms.MaintenanceLTV {
			point.State = StateWarning
		}
		if ltv >= e.terms.MaxLTV {
			point.State = StateMarginCall
			point.MarginCall = true
			res.MarginCalls++
			value, loan, basis = e.liquidate(value, loan, basis, &point, res)
		}

		netWorth := value - loan
		if point.State != StateFailed && netWorth <= 0 {
			point.State = StateFailed
		}
		if point.State == StateFailed {
			res.Failed = true
			res.FailedYear = y
			value = 0
		}

		point.PortfolioValue = value
		point.LoanBalance = loan
		point.NetWorth = netWorth
		res.Years = append(res.Years, point)

		res.TerminalValue = value
		res.TerminalLoan = loan
		res.TerminalNetWorth = netWorth
		res.TerminalBasis = basis
	}

	last := res.Years[len(res.Years)-1]
	res.Success = !res.Failed &&
		last.State != StateMarginCall &&
		last.State != StateLiquidation &&
		res.TerminalNetWorth > e.initialValue

	return res
}

// liquidate executes a forced sale restoring LTV to the restoration target.
// The haircut drags on sale proceeds; capital-gains tax on the sold gain is
// borrowed. Returns the post-sale value, loan, and cost basis.
func (e *Engine) liquidate(value, loan, basis float64, point *types.YearPoint, res *PathResult) (float64, float64, float64) {
	point.Liquidation = true
	res.Liquidations++

	gainFraction := 0.0
	ltcg := 0.0
	if !e.tax.Disabled {
		gainFraction = math.Max(0, 1-basis/value)
		ltcg = e.tax.LTCGRate
	}

	target := e.restoreTarget
	denom := (1 - e.terms.Haircut) - gainFraction*ltcg - target
	sale := 0.0
	if denom > 0 {
		sale = (loan - target*value) / denom
	}

	if denom <= 0 || sale >= value {
		// Selling everything cannot restore the target; close the account.
		tax := value * gainFraction * ltcg
		loan = loan - value*(1-e.terms.Haircut) + tax
		res.TaxesBorrowed += tax
		point.State = StateFailed
		return 0, loan, 0
	}

	tax := sale * gainFraction * ltcg
	loan = loan - sale*(1-e.terms.Haircut) + tax
	basis *= 1 - sale/value
	value -= sale
	res.TaxesBorrowed += tax
	point.State = StateLiquidation

	return value, loan, basis
}

// States lists every recordable account state in lifecycle order
func States() []string {
	return []string{StateNormal, StateWarning, StateMarginCall, StateLiquidation, StateFailed}
}
