// Package types provides configuration types for the wealth simulation backend.
package types

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Default knobs applied by Normalize when a field is left zero.
const (
	DefaultBatchSize    = 2500
	DefaultSafetyBuffer = 0.80
	WeightSumTolerance  = 1e-6
)

// LeverageTerms describes the securities-backed line of credit. All ratios
// are decimal scale. MaintenanceLTV is the soft warning threshold, MaxLTV the
// hard margin-call threshold. TargetLTV, when set, is the level a forced
// liquidation restores to; when zero the restoration target is
// SafetyBuffer * MaintenanceLTV.
type LeverageTerms struct {
	TargetLTV      float64     `json:"targetLtv,omitempty"`
	InterestRate   float64     `json:"interestRate"`
	Compounding    Compounding `json:"compounding"`
	MaintenanceLTV float64     `json:"maintenanceLtv"`
	MaxLTV         float64     `json:"maxLtv"`
	Haircut        float64     `json:"haircut"`
	SafetyBuffer   float64     `json:"safetyBuffer,omitempty"`
}

// Chapter reduces spending from a given year onward. Reductions across
// chapters compose multiplicatively.
type Chapter struct {
	StartYear int     `json:"startYear"`
	Reduction float64 `json:"reduction"`
}

// WithdrawalPlan describes the spending schedule funded by the strategy
type WithdrawalPlan struct {
	Amount           decimal.Decimal `json:"amount"`
	AnnualEscalation float64         `json:"annualEscalation,omitempty"`
	Cadence          Cadence         `json:"cadence"`
	Chapters         []Chapter       `json:"chapters,omitempty"`
}

// TaxConfig holds the tax-modeling inputs. Rates are configurable inputs,
// not validated against any jurisdiction. Disabled models a tax-advantaged
// account: no dividend tax, no gross-up, no capital gains on liquidation.
type TaxConfig struct {
	DividendYield float64 `json:"dividendYield"`
	OrdinaryRate  float64 `json:"ordinaryRate"`
	LTCGRate      float64 `json:"ltcgRate"`
	Disabled      bool    `json:"disabled,omitempty"`
}

// SimulationConfig is the fully resolved configuration for one run.
// Immutable for the duration of the run. A zero Seed makes the engine pick
// one from the clock and echo it in the output for replay.
type SimulationConfig struct {
	Iterations       int             `json:"iterations"`
	HorizonYears     int             `json:"horizonYears"`
	InitialValue     decimal.Decimal `json:"initialValue"`
	InitialLoan      decimal.Decimal `json:"initialLoan,omitempty"`
	InitialCostBasis decimal.Decimal `json:"initialCostBasis,omitempty"`
	InflationRate    float64         `json:"inflationRate"`

	Model       ReturnModel     `json:"model"`
	Calibration CalibrationMode `json:"calibration,omitempty"`

	Leverage   LeverageTerms  `json:"leverage"`
	Withdrawal WithdrawalPlan `json:"withdrawal"`
	Tax        TaxConfig      `json:"tax"`

	Seed      int64 `json:"seed,omitempty"`
	BatchSize int   `json:"batchSize,omitempty"`
	Workers   int   `json:"workers,omitempty"`
}

// ValidationError reports a rejected configuration field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Normalize fills defaulted fields in place
func (c *SimulationConfig) Normalize() {
	if c.Calibration == "" {
		c.Calibration = CalibrationHistorical
	}
	if c.Leverage.Compounding == "" {
		c.Leverage.Compounding = CompoundingMonthly
	}
	if c.Leverage.SafetyBuffer == 0 {
		c.Leverage.SafetyBuffer = DefaultSafetyBuffer
	}
	if c.Withdrawal.Cadence == "" {
		c.Withdrawal.Cadence = CadenceAnnual
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.InitialCostBasis.IsZero() {
		c.InitialCostBasis = c.InitialValue
	}
}

// Validate rejects configurations the engine must not attempt to run.
// Checks are ordered cheapest first and fail on the first violation.
func (c *SimulationConfig) Validate() error {
	if c.Iterations <= 0 {
		return invalid("iterations", "must be positive, got %d", c.Iterations)
	}
	if c.HorizonYears <= 0 {
		return invalid("horizonYears", "must be positive, got %d", c.HorizonYears)
	}
	if !c.InitialValue.IsPositive() {
		return invalid("initialValue", "must be positive, got %s", c.InitialValue)
	}
	if c.InitialLoan.IsNegative() {
		return invalid("initialLoan", "must not be negative, got %s", c.InitialLoan)
	}
	if c.InitialCostBasis.IsNegative() {
		return invalid("initialCostBasis", "must not be negative, got %s", c.InitialCostBasis)
	}
	if c.InflationRate <= -1 {
		return invalid("inflationRate", "must be greater than -100%%, got %v", c.InflationRate)
	}
	switch c.Model {
	case ModelBootstrap, ModelBlockBootstrap, ModelRegime, ModelFatTail:
	default:
		return invalid("model", "unknown return model %q", c.Model)
	}
	switch c.Calibration {
	case CalibrationHistorical, CalibrationConservative, "":
	default:
		return invalid("calibration", "unknown calibration mode %q", c.Calibration)
	}
	if err := c.Leverage.validate(); err != nil {
		return err
	}
	if err := c.Withdrawal.validate(); err != nil {
		return err
	}
	if err := c.Tax.validate(); err != nil {
		return err
	}
	if c.BatchSize < 0 {
		return invalid("batchSize", "must not be negative, got %d", c.BatchSize)
	}
	if c.Workers < 0 {
		return invalid("workers", "must not be negative, got %d", c.Workers)
	}
	return nil
}

func (t *LeverageTerms) validate() error {
	if t.InterestRate < 0 {
		return invalid("leverage.interestRate", "must not be negative, got %v", t.InterestRate)
	}
	switch t.Compounding {
	case CompoundingAnnual, CompoundingMonthly, "":
	default:
		return invalid("leverage.compounding", "unknown frequency %q", t.Compounding)
	}
	if t.MaintenanceLTV <= 0 || t.MaintenanceLTV >= 1 {
		return invalid("leverage.maintenanceLtv", "must be in (0, 1), got %v", t.MaintenanceLTV)
	}
	if t.MaxLTV < t.MaintenanceLTV || t.MaxLTV >= 1 {
		return invalid("leverage.maxLtv", "must be in [maintenanceLtv, 1), got %v", t.MaxLTV)
	}
	if t.TargetLTV < 0 || t.TargetLTV > t.MaintenanceLTV {
		return invalid("leverage.targetLtv", "must be in [0, maintenanceLtv], got %v", t.TargetLTV)
	}
	if t.Haircut < 0 || t.Haircut >= 1 {
		return invalid("leverage.haircut", "must be in [0, 1), got %v", t.Haircut)
	}
	if t.SafetyBuffer < 0 || t.SafetyBuffer > 1 {
		return invalid("leverage.safetyBuffer", "must be in (0, 1], got %v", t.SafetyBuffer)
	}
	return nil
}

func (w *WithdrawalPlan) validate() error {
	if w.Amount.IsNegative() {
		return invalid("withdrawal.amount", "must not be negative, got %s", w.Amount)
	}
	if w.AnnualEscalation <= -1 {
		return invalid("withdrawal.annualEscalation", "must be greater than -100%%, got %v", w.AnnualEscalation)
	}
	switch w.Cadence {
	case CadenceAnnual, CadenceMonthly, "":
	default:
		return invalid("withdrawal.cadence", "unknown cadence %q", w.Cadence)
	}
	for i, ch := range w.Chapters {
		if ch.StartYear < 1 {
			return invalid("withdrawal.chapters", "chapter %d startYear must be >= 1, got %d", i, ch.StartYear)
		}
		if ch.Reduction < 0 || ch.Reduction >= 1 {
			return invalid("withdrawal.chapters", "chapter %d reduction must be in [0, 1), got %v", i, ch.Reduction)
		}
	}
	return nil
}

func (t *TaxConfig) validate() error {
	if t.DividendYield < 0 || t.DividendYield >= 1 {
		return invalid("tax.dividendYield", "must be in [0, 1), got %v", t.DividendYield)
	}
	if t.OrdinaryRate < 0 || t.OrdinaryRate >= 1 {
		return invalid("tax.ordinaryRate", "must be in [0, 1), got %v", t.OrdinaryRate)
	}
	if t.LTCGRate < 0 || t.LTCGRate >= 1 {
		return invalid("tax.ltcgRate", "must be in [0, 1), got %v", t.LTCGRate)
	}
	return nil
}

// ValidatePortfolio rejects portfolios the engine must not sample from:
// empty sets, bad weights, series too short to resample, non-finite entries.
func ValidatePortfolio(assets []PortfolioAsset) error {
	if len(assets) == 0 {
		return invalid("assets", "portfolio is empty")
	}
	seen := make(map[string]bool, len(assets))
	weightSum := 0.0
	for i, a := range assets {
		if a.ID == "" {
			return invalid("assets", "asset %d has no id", i)
		}
		if seen[a.ID] {
			return invalid("assets", "duplicate asset id %q", a.ID)
		}
		seen[a.ID] = true
		if a.Weight < 0 || a.Weight > 1 {
			return invalid("assets", "asset %q weight must be in [0, 1], got %v", a.ID, a.Weight)
		}
		weightSum += a.Weight
		if len(a.Returns) < 2 {
			return invalid("assets", "asset %q has %d historical returns, need at least 2", a.ID, len(a.Returns))
		}
		for j, r := range a.Returns {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return invalid("assets", "asset %q return %d is not finite", a.ID, j)
			}
			if r <= -1 {
				return invalid("assets", "asset %q return %d is a total loss or worse (%v)", a.ID, j, r)
			}
		}
	}
	if math.Abs(weightSum-1) > WeightSumTolerance {
		return invalid("assets", "weights must sum to 1, got %v", weightSum)
	}
	return nil
}

// DefaultSimulationConfig returns a runnable baseline configuration
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		Iterations:    10000,
		HorizonYears:  30,
		InitialValue:  decimal.NewFromInt(1_000_000),
		InflationRate: 0.03,
		Model:         ModelBootstrap,
		Calibration:   CalibrationHistorical,
		Leverage: LeverageTerms{
			InterestRate:   0.07,
			Compounding:    CompoundingMonthly,
			MaintenanceLTV: 0.50,
			MaxLTV:         0.65,
			Haircut:        0.05,
			SafetyBuffer:   DefaultSafetyBuffer,
		},
		Withdrawal: WithdrawalPlan{
			Amount:  decimal.NewFromInt(40_000),
			Cadence: CadenceAnnual,
		},
		Tax: TaxConfig{
			DividendYield: 0.018,
			OrdinaryRate:  0.37,
			LTCGRate:      0.20,
		},
		BatchSize: DefaultBatchSize,
	}
}
