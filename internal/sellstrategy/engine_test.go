// Package sellstrategy_test provides tests for the sell-to-fund engine.
package sellstrategy_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/internal/sellstrategy"
	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

// sellConfig is a fully explicit baseline: no withdrawals, no taxes, one
// year. Tests mutate what they exercise.
func sellConfig() types.SimulationConfig {
	return types.SimulationConfig{
		Iterations:    1,
		HorizonYears:  1,
		InitialValue:  decimal.NewFromInt(1_000_000),
		InflationRate: 0,
		Model:         types.ModelBootstrap,
		Calibration:   types.CalibrationHistorical,
		Leverage: types.LeverageTerms{
			Compounding:    types.CompoundingAnnual,
			MaintenanceLTV: 0.50,
			MaxLTV:         0.65,
			Haircut:        0.05,
			SafetyBuffer:   0.80,
		},
		Withdrawal: types.WithdrawalPlan{
			Amount:  decimal.Zero,
			Cadence: types.CadenceAnnual,
		},
		Tax: types.TaxConfig{Disabled: true},
	}
}

func TestGrossUpCoversCapitalGains(t *testing.T) {
	cfg := sellConfig()
	cfg.InitialCostBasis = decimal.NewFromInt(500_000)
	cfg.Withdrawal.Amount = decimal.NewFromInt(40_000)
	cfg.Tax = types.TaxConfig{LTCGRate: 0.20}
	cfg.Normalize()

	res := sellstrategy.NewEngine(zap.NewNop(), &cfg).SimulatePath([]float64{0})

	// Half of every dollar is gain, so the sale grosses up by
	// 1/(1 - 0.5*0.2): 40000 becomes 44444.44
	sale := 40_000 / (1 - 0.5*0.2)
	if math.Abs(res.TaxesPaid-(sale-40_000)) > 0.01 {
		t.Errorf("Capital-gains tax incorrect: expected %v, got %v", sale-40_000, res.TaxesPaid)
	}

	wantValue := 1_000_000 - sale
	if math.Abs(res.TerminalValue-wantValue) > 0.01 {
		t.Errorf("Terminal value incorrect: expected %v, got %v", wantValue, res.TerminalValue)
	}

	wantBasis := 500_000 * (1 - sale/1_000_000)
	if math.Abs(res.TerminalBasis-wantBasis) > 0.01 {
		t.Errorf("Cost basis incorrect: expected %v, got %v", wantBasis, res.TerminalBasis)
	}

	t.Logf("Sold %v to fund a 40000 withdrawal", sale)
}

func TestNoTaxSellsExactly(t *testing.T) {
	cfg := sellConfig()
	cfg.Withdrawal.Amount = decimal.NewFromInt(40_000)
	cfg.Normalize()

	res := sellstrategy.NewEngine(zap.NewNop(), &cfg).SimulatePath([]float64{0.05})

	// (1000000 - 40000) * 1.05
	if math.Abs(res.TerminalValue-1_008_000) > 0.01 {
		t.Errorf("Terminal value incorrect: expected 1008000, got %v", res.TerminalValue)
	}
	if res.TaxesPaid != 0 {
		t.Errorf("Tax-free sale should pay nothing, got %v", res.TaxesPaid)
	}
}

func TestDepletionEndsThePath(t *testing.T) {
	cfg := sellConfig()
	cfg.HorizonYears = 3
	cfg.InitialValue = decimal.NewFromInt(100_000)
	cfg.Withdrawal.Amount = decimal.NewFromInt(60_000)
	cfg.Normalize()

	res := sellstrategy.NewEngine(zap.NewNop(), &cfg).SimulatePath([]float64{0, 0, 0})

	if !res.Depleted {
		t.Fatal("Path should have depleted")
	}
	if res.DepletedYear != 2 {
		t.Errorf("Depleted year incorrect: expected 2, got %d", res.DepletedYear)
	}
	if res.Years[0].State != sellstrategy.StateNormal {
		t.Errorf("Year 1 state incorrect: got %s", res.Years[0].State)
	}
	if res.Years[1].State != sellstrategy.StateDepleted {
		t.Errorf("Year 2 state incorrect: got %s", res.Years[1].State)
	}
	if res.Years[2].State != sellstrategy.StateDepleted {
		t.Errorf("Year 3 state incorrect: got %s", res.Years[2].State)
	}
	if res.Years[2].Withdrawal != 0 {
		t.Errorf("Depleted path should stop withdrawing, got %v", res.Years[2].Withdrawal)
	}

	// Depleted paths still contribute a terminal value to the population
	if res.TerminalValue != 0 {
		t.Errorf("Terminal value should be zero, got %v", res.TerminalValue)
	}
	if res.Success {
		t.Error("Depleted path must not count as success")
	}
}

func TestDepletionRealizesFinalGains(t *testing.T) {
	cfg := sellConfig()
	cfg.InitialValue = decimal.NewFromInt(50_000)
	cfg.InitialCostBasis = decimal.NewFromInt(25_000)
	cfg.Withdrawal.Amount = decimal.NewFromInt(60_000)
	cfg.Tax = types.TaxConfig{LTCGRate: 0.20}
	cfg.Normalize()

	res := sellstrategy.NewEngine(zap.NewNop(), &cfg).SimulatePath([]float64{0})

	if !res.Depleted || res.DepletedYear != 1 {
		t.Fatalf("Path should deplete in year 1, got %+v", res)
	}

	// Liquidating all 50000 with half embedded gain realizes
	// 50000 * 0.5 * 0.2 = 5000 of tax
	if math.Abs(res.TaxesPaid-5_000) > 0.01 {
		t.Errorf("Final liquidation tax incorrect: expected 5000, got %v", res.TaxesPaid)
	}
}

func TestDividendTaxSellsBeforeReturn(t *testing.T) {
	cfg := sellConfig()
	cfg.Tax = types.TaxConfig{DividendYield: 0.02, OrdinaryRate: 0.40}
	cfg.Normalize()

	res := sellstrategy.NewEngine(zap.NewNop(), &cfg).SimulatePath([]float64{0.10})

	// Tax comes from the start-of-year 1M (8000), not the post-return
	// 1.1M (8800)
	if math.Abs(res.TaxesPaid-8_000) > 0.01 {
		t.Errorf("Dividend tax incorrect: expected 8000, got %v", res.TaxesPaid)
	}

	// (1000000 - 8000) * 1.10
	if math.Abs(res.TerminalValue-1_091_200) > 0.01 {
		t.Errorf("Terminal value incorrect: expected 1091200, got %v", res.TerminalValue)
	}

	wantBasis := 1_000_000 * (1 - 8_000.0/1_000_000)
	if math.Abs(res.TerminalBasis-wantBasis) > 0.01 {
		t.Errorf("Cost basis incorrect: expected %v, got %v", wantBasis, res.TerminalBasis)
	}
}

func TestBasisNeverGrowsWithAppreciation(t *testing.T) {
	cfg := sellConfig()
	cfg.HorizonYears = 2
	cfg.Withdrawal.Amount = decimal.NewFromInt(10_000)
	cfg.Tax = types.TaxConfig{LTCGRate: 0.20}
	cfg.Normalize()

	res := sellstrategy.NewEngine(zap.NewNop(), &cfg).SimulatePath([]float64{1.0, 0})

	// Year 1 sells at zero gain (basis == value), then the portfolio
	// doubles. Year 2's sale sees gainFraction 0.5 from the doubling,
	// while basis only ever shrinks.
	sale2 := 10_000 / (1 - 0.5*0.2)
	if math.Abs(res.TaxesPaid-(sale2-10_000)) > 0.01 {
		t.Errorf("Taxes incorrect: expected %v, got %v", sale2-10_000, res.TaxesPaid)
	}

	basis1 := 1_000_000 * (1 - 10_000.0/1_000_000)
	wantBasis := basis1 * (1 - sale2/1_980_000)
	if math.Abs(res.TerminalBasis-wantBasis) > 0.01 {
		t.Errorf("Cost basis incorrect: expected %v, got %v", wantBasis, res.TerminalBasis)
	}
	if res.TerminalBasis >= basis1 {
		t.Errorf("Basis must not grow with appreciation: %v vs %v", res.TerminalBasis, basis1)
	}
}

func TestSuccessRequiresStrictGrowth(t *testing.T) {
	cfg := sellConfig()
	cfg.Normalize()
	engine := sellstrategy.NewEngine(zap.NewNop(), &cfg)

	flat := engine.SimulatePath([]float64{0})
	if flat.Success {
		t.Error("Terminal value equal to initial must not count as success")
	}

	grown := engine.SimulatePath([]float64{0.01})
	if !grown.Success {
		t.Errorf("Terminal value %v over initial should count as success", grown.TerminalValue)
	}
}
