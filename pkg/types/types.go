// Package types provides shared type definitions for the wealth simulation backend.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass categorizes an asset for tail-risk calibration
type AssetClass string

const (
	AssetClassEquityStock AssetClass = "equity-stock"
	AssetClassEquityIndex AssetClass = "equity-index"
	AssetClassCommodity   AssetClass = "commodity"
	AssetClassBond        AssetClass = "bond"
)

// ReturnModel selects the return-generating process for a run
type ReturnModel string

const (
	ModelBootstrap      ReturnModel = "bootstrap"
	ModelBlockBootstrap ReturnModel = "block-bootstrap"
	ModelRegime         ReturnModel = "regime"
	ModelFatTail        ReturnModel = "fat-tail"
)

// CalibrationMode selects the parameter set used by the parametric models
type CalibrationMode string

const (
	CalibrationHistorical   CalibrationMode = "historical"
	CalibrationConservative CalibrationMode = "conservative"
)

// Cadence is the withdrawal timing within a year
type Cadence string

const (
	CadenceAnnual  Cadence = "annual"
	CadenceMonthly Cadence = "monthly"
)

// Compounding is the loan interest compounding frequency
type Compounding string

const (
	CompoundingAnnual  Compounding = "annual"
	CompoundingMonthly Compounding = "monthly"
)

// RunStatus tracks the lifecycle of a simulation run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// PortfolioAsset is one holding in the simulated portfolio. Returns holds
// ordered annual period returns in decimal scale (0.07 = 7%). CatalogID may
// reference a stored series; the API resolves it to Returns before the
// engine runs. Immutable once a simulation starts.
type PortfolioAsset struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Weight    float64    `json:"weight"`
	Returns   []float64  `json:"returns,omitempty"`
	Class     AssetClass `json:"class,omitempty"`
	CatalogID string     `json:"catalogId,omitempty"`
}

// YearPoint is one year of a simulated trajectory
type YearPoint struct {
	Year           int     `json:"year"`
	PortfolioValue float64 `json:"portfolioValue"`
	LoanBalance    float64 `json:"loanBalance"`
	NetWorth       float64 `json:"netWorth"`
	Withdrawal     float64 `json:"withdrawal"`
	MarginCall     bool    `json:"marginCall,omitempty"`
	Liquidation    bool    `json:"liquidation,omitempty"`
	State          string  `json:"state,omitempty"`
}

// PercentileSet holds terminal values at the standard percentile ranks
type PercentileSet struct {
	P10 decimal.Decimal `json:"p10"`
	P25 decimal.Decimal `json:"p25"`
	P50 decimal.Decimal `json:"p50"`
	P75 decimal.Decimal `json:"p75"`
	P90 decimal.Decimal `json:"p90"`
}

// PathSet holds one complete trajectory per percentile rank. Each path is
// the year-by-year history of a single simulated iteration, never a
// per-year cross-section of different iterations.
type PathSet struct {
	P10 []YearPoint `json:"p10"`
	P25 []YearPoint `json:"p25"`
	P50 []YearPoint `json:"p50"`
	P75 []YearPoint `json:"p75"`
	P90 []YearPoint `json:"p90"`
}

// StrategyResult summarizes one strategy's population of trajectories
type StrategyResult struct {
	TerminalPercentiles PercentileSet `json:"terminalPercentiles"`
	Paths               PathSet       `json:"paths"`

	SuccessRate    float64 `json:"successRate"`
	FailureRate    float64 `json:"failureRate"`
	MarginCallRate float64 `json:"marginCallRate,omitempty"`
	DepletionRate  float64 `json:"depletionRate,omitempty"`

	MedianCAGR           float64 `json:"medianCagr"`
	AnnualizedVolatility float64 `json:"annualizedVolatility"`
	TimeWeightedReturn   float64 `json:"timeWeightedReturn"`

	MeanTerminal    decimal.Decimal `json:"meanTerminal"`
	MedianTerminal  decimal.Decimal `json:"medianTerminal"`
	MedianTaxes     decimal.Decimal `json:"medianTaxes"`
	TerminalVaR95   decimal.Decimal `json:"terminalVar95"`
	TerminalCVaR95  decimal.Decimal `json:"terminalCvar95"`
	ParametricVaR95 decimal.Decimal `json:"parametricVar95"`
}

// EstateComparison contrasts the two strategies at the horizon, taken from
// each strategy's median iteration
type EstateComparison struct {
	EmbeddedGainsLeverage    decimal.Decimal `json:"embeddedGainsLeverage"`
	EmbeddedGainsSell        decimal.Decimal `json:"embeddedGainsSell"`
	SteppedUpSavingsLeverage decimal.Decimal `json:"steppedUpSavingsLeverage"`
	SteppedUpSavingsSell     decimal.Decimal `json:"steppedUpSavingsSell"`
	NetEstateLeverage        decimal.Decimal `json:"netEstateLeverage"`
	NetEstateSell            decimal.Decimal `json:"netEstateSell"`
	Differential             decimal.Decimal `json:"differential"`
}

// SimulationOutput is the complete result of one run
type SimulationOutput struct {
	RunID        string          `json:"runId"`
	Model        ReturnModel     `json:"model"`
	Calibration  CalibrationMode `json:"calibration"`
	Iterations   int             `json:"iterations"`
	HorizonYears int             `json:"horizonYears"`
	Seed         int64           `json:"seed"`

	Leverage   StrategyResult   `json:"leverage"`
	Sell       StrategyResult   `json:"sell"`
	Comparison EstateComparison `json:"comparison"`

	ExcludedPaths int           `json:"excludedPaths"`
	Elapsed       time.Duration `json:"elapsed"`
	CompletedAt   time.Time     `json:"completedAt"`
}

// SimulationProgress is a point-in-time view of a running simulation
type SimulationProgress struct {
	RunID               string    `json:"runId"`
	Status              RunStatus `json:"status"`
	Progress            float64   `json:"progress"` // 0-100
	CompletedIterations int       `json:"completedIterations"`
	TotalIterations     int       `json:"totalIterations"`
	StartedAt           time.Time `json:"startedAt"`
	Error               string    `json:"error,omitempty"`
}

// SimulationRequest carries everything a run needs: the resolved config,
// the portfolio, and an optional explicit correlation matrix. When
// Correlation is nil the engine estimates it from the shared history window.
type SimulationRequest struct {
	Config      SimulationConfig `json:"config"`
	Assets      []PortfolioAsset `json:"assets"`
	Correlation [][]float64      `json:"correlation,omitempty"`
}
