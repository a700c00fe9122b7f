package types_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

func TestChapterMultiplierComposesMultiplicatively(t *testing.T) {
	plan := types.WithdrawalPlan{
		Amount: decimal.NewFromInt(100_000),
		Chapters: []types.Chapter{
			{StartYear: 10, Reduction: 0.25},
			{StartYear: 20, Reduction: 0.25},
		},
	}

	cases := []struct {
		year int
		want float64
	}{
		{1, 1.0},
		{9, 1.0},
		{10, 0.75},
		{19, 0.75},
		{20, 0.5625},
		{30, 0.5625},
	}
	for _, tc := range cases {
		got := plan.ChapterMultiplier(tc.year)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("year %d: multiplier = %v, want %v", tc.year, got, tc.want)
		}
	}

	if got := plan.ChapterMultiplier(20); got == 0.50 {
		t.Error("chapter reductions must compose multiplicatively, not additively")
	}
}

func TestAmountForYearEscalation(t *testing.T) {
	plan := types.WithdrawalPlan{
		Amount:           decimal.NewFromInt(40_000),
		AnnualEscalation: 0.01,
	}

	if got := plan.AmountForYear(1, 0.03); math.Abs(got-40_000) > 1e-9 {
		t.Errorf("year 1 should be the base amount, got %v", got)
	}

	// Inflation and escalation compound together.
	want := 40_000 * math.Pow(1.03*1.01, 9)
	if got := plan.AmountForYear(10, 0.03); math.Abs(got-want) > 1e-6 {
		t.Errorf("year 10 = %v, want %v", got, want)
	}
}

func TestAmountForYearZeroBase(t *testing.T) {
	var plan types.WithdrawalPlan
	if got := plan.AmountForYear(5, 0.03); got != 0 {
		t.Errorf("zero base amount must withdraw nothing, got %v", got)
	}
}
