package types

import "math"

// ChapterMultiplier returns the cumulative spending multiplier in effect for
// a 1-based simulation year. Chapters whose StartYear has been reached
// compose multiplicatively: two 25% reductions leave 0.5625 of base
// spending, not 0.50.
func (w *WithdrawalPlan) ChapterMultiplier(year int) float64 {
	mult := 1.0
	for _, ch := range w.Chapters {
		if year >= ch.StartYear {
			mult *= 1 - ch.Reduction
		}
	}
	return mult
}

// AmountForYear returns the withdrawal for a 1-based simulation year. The
// base amount grows with inflation and the plan's own escalation compounded
// together, then the chapter multiplier applies.
func (w *WithdrawalPlan) AmountForYear(year int, inflationRate float64) float64 {
	base := w.Amount.InexactFloat64()
	if base == 0 {
		return 0
	}
	growth := math.Pow((1+inflationRate)*(1+w.AnnualEscalation), float64(year-1))
	return base * growth * w.ChapterMultiplier(year)
}
