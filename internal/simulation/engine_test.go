// Package simulation_test provides tests for the run orchestrator.
package simulation_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/internal/simulation"
	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

func simRequest() *types.SimulationRequest {
	return &types.SimulationRequest{
		Config: types.SimulationConfig{
			Iterations:    2000,
			HorizonYears:  10,
			InitialValue:  decimal.NewFromInt(1_000_000),
			InflationRate: 0.03,
			Model:         types.ModelBootstrap,
			Calibration:   types.CalibrationHistorical,
			Leverage: types.LeverageTerms{
				InterestRate:   0.07,
				Compounding:    types.CompoundingMonthly,
				MaintenanceLTV: 0.50,
				MaxLTV:         0.65,
				Haircut:        0.05,
				SafetyBuffer:   0.80,
			},
			Withdrawal: types.WithdrawalPlan{
				Amount:  decimal.Zero,
				Cadence: types.CadenceAnnual,
			},
			Tax:       types.TaxConfig{Disabled: true},
			Seed:      42,
			BatchSize: 1000,
			Workers:   2,
		},
		Assets: []types.PortfolioAsset{
			{
				ID:     "us-total-market",
				Weight: 0.6,
				Class:  types.AssetClassEquityIndex,
				Returns: []float64{
					0.10, -0.05, 0.07, 0.12, -0.02, 0.09, 0.04, -0.08,
				},
			},
			{
				ID:     "aggregate-bond",
				Weight: 0.4,
				Class:  types.AssetClassBond,
				Returns: []float64{
					0.05, 0.01, -0.03, 0.06, 0.02, -0.01, 0.04, 0.03,
				},
			},
		},
	}
}

// With no loan, no withdrawals and no taxes, both strategies reduce to pure
// compounding of the shared return sequence, so their populations must match
// iteration for iteration. Independent draws would break every assertion
// here with near certainty.
func TestBothStrategiesShareSequences(t *testing.T) {
	out, err := simulation.NewEngine(zap.NewNop()).Run(context.Background(), simRequest())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	pairs := []struct {
		name     string
		borrow   decimal.Decimal
		sell     decimal.Decimal
		borrowYr []types.YearPoint
		sellYr   []types.YearPoint
	}{
		{"p10", out.Leverage.TerminalPercentiles.P10, out.Sell.TerminalPercentiles.P10, out.Leverage.Paths.P10, out.Sell.Paths.P10},
		{"p25", out.Leverage.TerminalPercentiles.P25, out.Sell.TerminalPercentiles.P25, out.Leverage.Paths.P25, out.Sell.Paths.P25},
		{"p50", out.Leverage.TerminalPercentiles.P50, out.Sell.TerminalPercentiles.P50, out.Leverage.Paths.P50, out.Sell.Paths.P50},
		{"p75", out.Leverage.TerminalPercentiles.P75, out.Sell.TerminalPercentiles.P75, out.Leverage.Paths.P75, out.Sell.Paths.P75},
		{"p90", out.Leverage.TerminalPercentiles.P90, out.Sell.TerminalPercentiles.P90, out.Leverage.Paths.P90, out.Sell.Paths.P90},
	}
	for _, p := range pairs {
		if !p.borrow.Equal(p.sell) {
			t.Errorf("%s terminals differ between strategies: %s vs %s", p.name, p.borrow, p.sell)
		}
		for y := range p.borrowYr {
			if p.borrowYr[y].PortfolioValue != p.sellYr[y].PortfolioValue {
				t.Fatalf("%s year %d values differ: %v vs %v",
					p.name, y+1, p.borrowYr[y].PortfolioValue, p.sellYr[y].PortfolioValue)
			}
		}
	}

	if !out.Comparison.Differential.Equal(decimal.Zero) {
		t.Errorf("Identical dynamics should produce zero estate differential, got %s",
			out.Comparison.Differential)
	}

	t.Logf("Strategies matched across all ranks; median terminal %s", out.Leverage.TerminalPercentiles.P50)
}

func TestPercentilesMonotonicAndPathCoherent(t *testing.T) {
	out, err := simulation.NewEngine(zap.NewNop()).Run(context.Background(), simRequest())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, strat := range []struct {
		name string
		res  types.StrategyResult
	}{
		{"leverage", out.Leverage},
		{"sell", out.Sell},
	} {
		ps := strat.res.TerminalPercentiles
		ordered := []decimal.Decimal{ps.P10, ps.P25, ps.P50, ps.P75, ps.P90}
		for i := 1; i < len(ordered); i++ {
			if ordered[i].LessThan(ordered[i-1]) {
				t.Errorf("%s percentiles not monotonic at rank %d: %s < %s",
					strat.name, i, ordered[i], ordered[i-1])
			}
		}

		// Every reported trajectory must end exactly on the terminal it
		// was ranked by
		paths := []struct {
			terminal decimal.Decimal
			path     []types.YearPoint
		}{
			{ps.P10, strat.res.Paths.P10},
			{ps.P25, strat.res.Paths.P25},
			{ps.P50, strat.res.Paths.P50},
			{ps.P75, strat.res.Paths.P75},
			{ps.P90, strat.res.Paths.P90},
		}
		for i, p := range paths {
			if len(p.path) != out.HorizonYears {
				t.Fatalf("%s path %d has %d years, expected %d",
					strat.name, i, len(p.path), out.HorizonYears)
			}
			last := decimal.NewFromFloat(p.path[len(p.path)-1].NetWorth)
			if !last.Equal(p.terminal) {
				t.Errorf("%s path %d terminal %s does not match percentile %s",
					strat.name, i, last, p.terminal)
			}
		}
	}
}

func TestSameSeedSameOutput(t *testing.T) {
	req := simRequest()

	first, err := simulation.NewEngine(zap.NewNop()).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	// Different worker count, same seed
	req2 := simRequest()
	req2.Config.Workers = 7
	second, err := simulation.NewEngine(zap.NewNop()).Run(context.Background(), req2)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	for _, out := range []*types.SimulationOutput{first, second} {
		out.RunID = ""
		out.Elapsed = 0
		out.CompletedAt = time.Time{}
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Same seed must produce identical output regardless of worker count")
	}

	if first.Seed != 42 {
		t.Errorf("Configured seed should be echoed, got %d", first.Seed)
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	first, err := simulation.NewEngine(zap.NewNop()).Run(context.Background(), simRequest())
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	req2 := simRequest()
	req2.Config.Seed = 43
	second, err := simulation.NewEngine(zap.NewNop()).Run(context.Background(), req2)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if first.Leverage.TerminalPercentiles.P50.Equal(second.Leverage.TerminalPercentiles.P50) &&
		first.Sell.TerminalPercentiles.P50.Equal(second.Sell.TerminalPercentiles.P50) {
		t.Errorf("Seeds 42 and 43 produced identical medians: leverage %s, sell %s",
			first.Leverage.TerminalPercentiles.P50, first.Sell.TerminalPercentiles.P50)
	}
}

func TestClockSeedIsEchoed(t *testing.T) {
	req := simRequest()
	req.Config.Seed = 0
	req.Config.Iterations = 1000

	out, err := simulation.NewEngine(zap.NewNop()).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Seed == 0 {
		t.Error("A clock-picked seed must be echoed in the output for replay")
	}
}

func TestProgressAtBatchBoundaries(t *testing.T) {
	req := simRequest()
	req.Config.Workers = 1

	var pcts []float64
	var counts []int
	engine := simulation.NewEngine(zap.NewNop())
	engine.OnProgress(func(pct float64, completed, total int) {
		pcts = append(pcts, pct)
		counts = append(counts, completed)
		if total != 2000 {
			t.Errorf("Total incorrect: expected 2000, got %d", total)
		}
	})

	if _, err := engine.Run(context.Background(), req); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(pcts) != 2 {
		t.Fatalf("Expected 2 batch updates, got %d: %v", len(pcts), pcts)
	}
	if pcts[0] != 50 || pcts[1] != 100 {
		t.Errorf("Progress percentages incorrect: %v", pcts)
	}
	if counts[0] != 1000 || counts[1] != 2000 {
		t.Errorf("Completed counts incorrect: %v", counts)
	}
}

func TestCancelStopsAtBatchBoundary(t *testing.T) {
	req := simRequest()
	req.Config.Iterations = 10_000
	req.Config.Workers = 1

	engine := simulation.NewEngine(zap.NewNop())
	engine.OnProgress(func(pct float64, completed, total int) {
		// Cancel as soon as the first batch lands
		engine.Cancel()
	})

	out, err := engine.Run(context.Background(), req)
	if !errors.Is(err, simulation.ErrRunCancelled) {
		t.Fatalf("Expected ErrRunCancelled, got %v", err)
	}
	if out != nil {
		t.Error("Cancelled run must not produce partial output")
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := simulation.NewEngine(zap.NewNop()).Run(ctx, simRequest())
	if !errors.Is(err, simulation.ErrRunCancelled) {
		t.Fatalf("Expected ErrRunCancelled, got %v", err)
	}
	if out != nil {
		t.Error("Cancelled run must not produce partial output")
	}
}

func TestRejectsInvalidRequest(t *testing.T) {
	req := simRequest()
	req.Config.Iterations = 0
	if _, err := simulation.NewEngine(zap.NewNop()).Run(context.Background(), req); err == nil {
		t.Error("Zero iterations should be rejected")
	}

	req = simRequest()
	req.Assets[0].Weight = 0.9
	if _, err := simulation.NewEngine(zap.NewNop()).Run(context.Background(), req); err == nil {
		t.Error("Weights not summing to 1 should be rejected")
	}
}
