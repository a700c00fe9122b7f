// Package sellstrategy implements the sell-to-fund wealth strategy.
package sellstrategy

import (
	"math"

	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

// Account states recorded per simulated year.
const (
	StateNormal   = "normal"
	StateDepleted = "depleted"
)

// PathResult is the outcome of one simulated sell trajectory
type PathResult struct {
	Years []types.YearPoint

	TerminalValue float64
	TerminalBasis float64

	TaxesPaid float64

	Depleted     bool
	DepletedYear int // 0 when the path never depleted
	Success      bool
}

// EmbeddedGains returns the unrealized gain carried at the horizon
func (r *PathResult) EmbeddedGains() float64 {
	return math.Max(0, r.TerminalValue-r.TerminalBasis)
}

// Engine runs the sell strategy year by year: dividend taxes and spending
// come straight out of the portfolio, with each sale grossed up for the
// capital-gains tax it realizes. Safe for concurrent use: all state is
// precomputed at construction, SimulatePath only reads it.
//
// The strategy has no credit line, so the configured loan terms and any
// initial loan balance are ignored; it models the no-borrow alternative
// starting from the same portfolio.
type Engine struct {
	logger *zap.Logger

	tax types.TaxConfig

	initialValue float64
	initialBasis float64
	horizon      int

	withdrawals []float64 // indexed by 1-based year
}

// NewEngine precomputes the withdrawal schedule for a run
func NewEngine(logger *zap.Logger, cfg *types.SimulationConfig) *Engine {
	e := &Engine{
		logger:       logger,
		tax:          cfg.Tax,
		initialValue: cfg.InitialValue.InexactFloat64(),
		initialBasis: cfg.InitialCostBasis.InexactFloat64(),
		horizon:      cfg.HorizonYears,
	}

	e.withdrawals = make([]float64, cfg.HorizonYears+1)
	for y := 1; y <= cfg.HorizonYears; y++ {
		e.withdrawals[y] = cfg.Withdrawal.AmountForYear(y, cfg.InflationRate)
	}

	logger.Debug("Sell engine ready",
		zap.Int("horizon_years", cfg.HorizonYears),
		zap.Bool("taxes", !cfg.Tax.Disabled))

	return e
}

// SimulatePath runs one full trajectory over the given per-year portfolio
// returns. returns must cover at least the configured horizon.
func (e *Engine) SimulatePath(returns []float64) *PathResult {
	res := &PathResult{
		Years: make([]types.YearPoint, 0, e.horizon),
	}

	value := e.initialValue
	basis := e.initialBasis

	for y := 1; y <= e.horizon; y++ {
		if res.Depleted {
			res.Years = append(res.Years, types.YearPoint{
				Year:  y,
				State: StateDepleted,
			})
			continue
		}

		// Dividend tax sells first, against the start-of-year value
		if !e.tax.Disabled && e.tax.DividendYield > 0 {
			divTax := value * e.tax.DividendYield * e.tax.OrdinaryRate
			basis *= 1 - divTax/value
			value -= divTax
			res.TaxesPaid += divTax
		}

		w := e.withdrawals[y]
		point := types.YearPoint{Year: y, Withdrawal: w, State: StateNormal}

		sale := e.grossUp(w, value, basis)
		if sale >= value {
			// Selling everything cannot fund the year; the final
			// liquidation still realizes its gains
			if !e.tax.Disabled {
				gainFraction := math.Max(0, 1-basis/value)
				res.TaxesPaid += value * gainFraction * e.tax.LTCGRate
			}
			res.Depleted = true
			res.DepletedYear = y
			point.State = StateDepleted
			value = 0
			basis = 0
		} else if sale > 0 {
			res.TaxesPaid += sale - w
			basis *= 1 - sale/value
			value -= sale
		}

		value *= 1 + returns[y-1]

		point.PortfolioValue = value
		point.NetWorth = value
		res.Years = append(res.Years, point)

		res.TerminalValue = value
		res.TerminalBasis = basis
	}

	res.Success = !res.Depleted && res.TerminalValue > e.initialValue

	return res
}

// grossUp sizes the sale covering a withdrawal plus the capital-gains tax
// the sale itself realizes, using the average embedded gain per dollar
func (e *Engine) grossUp(withdrawal, value, basis float64) float64 {
	if withdrawal <= 0 {
		return 0
	}
	if e.tax.Disabled || e.tax.LTCGRate == 0 || value <= 0 {
		return withdrawal
	}
	gainFraction := math.Max(0, 1-basis/value)
	return withdrawal / (1 - gainFraction*e.tax.LTCGRate)
}
