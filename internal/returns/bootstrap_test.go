package returns_test

import (
	"math"
	"math/rand"
	"testing"

	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/internal/returns"
	"github.com/wealthpath-desktop/wealth-backend/pkg/formulas"
	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

// twinSeries builds two deterministic histories that move almost in
// lockstep (correlation around 0.999).
func twinSeries(n int) ([]float64, []float64) {
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 0.08 + 0.15*math.Sin(float64(i)*0.7)
		a[i] = base
		b[i] = base + 0.004*math.Cos(float64(i)*1.3)
	}
	return a, b
}

func twinAssets(n int) []types.PortfolioAsset {
	a, b := twinSeries(n)
	return []types.PortfolioAsset{
		{ID: "a", Weight: 0.5, Returns: a},
		{ID: "b", Weight: 0.5, Returns: b},
	}
}

func column(sample [][]float64, idx int) []float64 {
	out := make([]float64, len(sample))
	for i, row := range sample {
		out[i] = row[idx]
	}
	return out
}

func TestBootstrapPreservesCorrelation(t *testing.T) {
	assets := twinAssets(40)
	histCorr := formulas.Correlation(assets[0].Returns, assets[1].Returns)
	if histCorr < 0.99 {
		t.Fatalf("fixture correlation = %v, want near 1", histCorr)
	}

	cfg := types.DefaultSimulationConfig()
	cfg.Model = types.ModelBootstrap
	gen, err := returns.NewGenerator(zap.NewNop(), &cfg, assets, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	sample, err := gen.Generate(10_000, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sampledCorr := formulas.Correlation(column(sample, 0), column(sample, 1))
	if sampledCorr < 0.95 {
		t.Fatalf("shared-index sampling correlation = %v, want >= 0.95", sampledCorr)
	}

	// Negative control: independent per-asset indices destroy the
	// co-movement the shared index preserves.
	a, b := twinSeries(40)
	rng := rand.New(rand.NewSource(7))
	indepA := make([]float64, 10_000)
	indepB := make([]float64, 10_000)
	for i := range indepA {
		indepA[i] = a[rng.Intn(len(a))]
		indepB[i] = b[rng.Intn(len(b))]
	}
	indepCorr := formulas.Correlation(indepA, indepB)
	if math.Abs(indepCorr) > 0.2 {
		t.Fatalf("independent sampling correlation = %v, want near 0", indepCorr)
	}

	t.Logf("historical=%.4f shared=%.4f independent=%.4f", histCorr, sampledCorr, indepCorr)
}

func TestBootstrapAlignsToShortestHistory(t *testing.T) {
	a, b := twinSeries(40)
	// Asset b carries extra old history; only the shared tail window
	// should be sampled.
	longB := append([]float64{0.9, -0.8, 0.7, -0.6, 0.5}, b...)
	assets := []types.PortfolioAsset{
		{ID: "a", Weight: 0.5, Returns: a},
		{ID: "b", Weight: 0.5, Returns: longB},
	}

	cfg := types.DefaultSimulationConfig()
	cfg.Model = types.ModelBootstrap
	gen, err := returns.NewGenerator(zap.NewNop(), &cfg, assets, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	sample, err := gen.Generate(5_000, rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	corr := formulas.Correlation(column(sample, 0), column(sample, 1))
	if corr < 0.95 {
		t.Fatalf("window misalignment suspected: sampled correlation = %v", corr)
	}
}

func TestBlockBootstrapPreservesCorrelation(t *testing.T) {
	assets := twinAssets(48)
	cfg := types.DefaultSimulationConfig()
	cfg.Model = types.ModelBlockBootstrap
	gen, err := returns.NewGenerator(zap.NewNop(), &cfg, assets, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	sample, err := gen.Generate(10_000, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	corr := formulas.Correlation(column(sample, 0), column(sample, 1))
	if corr < 0.95 {
		t.Fatalf("block sampling correlation = %v, want >= 0.95", corr)
	}
}

func TestBlockBootstrapShortHistoryFallsBack(t *testing.T) {
	// Nine periods is below the block threshold; the generator must
	// degrade to single-year sampling rather than fail.
	assets := twinAssets(9)
	cfg := types.DefaultSimulationConfig()
	cfg.Model = types.ModelBlockBootstrap
	gen, err := returns.NewGenerator(zap.NewNop(), &cfg, assets, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	sample, err := gen.Generate(1_000, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(sample) != 1_000 {
		t.Fatalf("generated %d years, want 1000", len(sample))
	}
	for y, row := range sample {
		for a, r := range row {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				t.Fatalf("non-finite return at year %d asset %d", y, a)
			}
		}
	}
}

func TestOptimalBlockLength(t *testing.T) {
	cases := []struct {
		n    int
		rho  float64
		want int
	}{
		{100, 0.5, 6},
		{100, 0.0, 3},    // no persistence: minimum block
		{100, -0.4, 3},   // mean reversion: minimum block
		{100, 1.0, 3},    // degenerate autocorrelation: fallback
		{100, 0.95, 25},  // clamped to n/4
		{1000, 0.95, 73}, // large n, unclamped
		{8, 0.5, 3},      // n/4 below the minimum: floor wins
	}
	for _, tc := range cases {
		got := returns.OptimalBlockLength(tc.n, tc.rho)
		if got != tc.want {
			t.Errorf("OptimalBlockLength(%d, %v) = %d, want %d", tc.n, tc.rho, got, tc.want)
		}
	}
}

func TestGeneratorsAreDeterministic(t *testing.T) {
	assets := twinAssets(40)
	for _, model := range []types.ReturnModel{
		types.ModelBootstrap,
		types.ModelBlockBootstrap,
		types.ModelRegime,
		types.ModelFatTail,
	} {
		cfg := types.DefaultSimulationConfig()
		cfg.Model = model
		gen, err := returns.NewGenerator(zap.NewNop(), &cfg, assets, nil)
		if err != nil {
			t.Fatalf("%s: NewGenerator: %v", model, err)
		}
		first, err := gen.Generate(200, rand.New(rand.NewSource(42)))
		if err != nil {
			t.Fatalf("%s: Generate: %v", model, err)
		}
		second, err := gen.Generate(200, rand.New(rand.NewSource(42)))
		if err != nil {
			t.Fatalf("%s: Generate: %v", model, err)
		}
		for y := range first {
			for a := range first[y] {
				if first[y][a] != second[y][a] {
					t.Fatalf("%s: year %d asset %d differs between identically seeded runs", model, y, a)
				}
			}
		}
	}
}
