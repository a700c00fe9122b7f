package data

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/pkg/formulas"
)

// SeriesValidator checks an annual return series for problems that would
// poison a simulation calibrated on it
type SeriesValidator struct {
	logger *zap.Logger

	MaxAbsReturn       float64 // annual returns beyond this are outliers
	MinYears           int     // shorter histories get flagged
	SmoothingThreshold float64 // lag-1 autocorrelation above this looks interpolated
}

// SeriesIssue is one quality problem found in a series
type SeriesIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // "critical", "high", "medium", "low"
	Index    int    `json:"index,omitempty"`
	Message  string `json:"message"`
	Value    string `json:"value,omitempty"`
}

// QualityReport summarizes one series' quality assessment
type QualityReport struct {
	ID           string        `json:"id"`
	Years        int           `json:"years"`
	Issues       []SeriesIssue `json:"issues"`
	QualityScore int           `json:"qualityScore"` // 0-100
	IsUsable     bool          `json:"isUsable"`

	NonFiniteCount int `json:"nonFiniteCount"`
	OutlierCount   int `json:"outlierCount"`

	StartYear int `json:"startYear"`
	EndYear   int `json:"endYear"`

	Recommendations []string `json:"recommendations"`
}

// NewSeriesValidator creates a validator with defaults for annual data
func NewSeriesValidator(logger *zap.Logger) *SeriesValidator {
	return &SeriesValidator{
		logger:             logger,
		MaxAbsReturn:       1.0,
		MinYears:           12,
		SmoothingThreshold: 0.95,
	}
}

// Validate runs all quality checks on one series
func (v *SeriesValidator) Validate(series *Series) *QualityReport {
	if len(series.Returns) == 0 {
		return &QualityReport{
			ID:           series.ID,
			Years:        0,
			Issues:       []SeriesIssue{{Type: "NO_DATA", Severity: "critical", Message: "Series has no observations"}},
			QualityScore: 0,
			IsUsable:     false,
			StartYear:    series.StartYear,
			EndYear:      series.StartYear,
			Recommendations: []string{
				"Load observations before using this series",
			},
		}
	}

	issues := make([]SeriesIssue, 0)
	issues = append(issues, v.checkFinite(series)...)
	issues = append(issues, v.checkImpossibleReturns(series)...)
	issues = append(issues, v.checkOutliers(series)...)
	issues = append(issues, v.checkHistoryLength(series)...)
	issues = append(issues, v.checkSmoothing(series)...)
	issues = append(issues, v.checkVariance(series)...)

	score := v.qualityScore(issues)

	report := &QualityReport{
		ID:              series.ID,
		Years:           len(series.Returns),
		Issues:          issues,
		QualityScore:    score,
		IsUsable:        score >= 70 && !hasCritical(issues),
		NonFiniteCount:  countIssues(issues, "NON_FINITE"),
		OutlierCount:    countIssues(issues, "OUTLIER_RETURN"),
		StartYear:       series.StartYear,
		EndYear:         series.EndYear(),
		Recommendations: v.recommendations(issues),
	}

	if !report.IsUsable {
		v.logger.Warn("Series failed quality assessment",
			zap.String("id", series.ID),
			zap.Int("score", score),
			zap.Int("issues", len(issues)))
	}

	return report
}

func (v *SeriesValidator) checkFinite(series *Series) []SeriesIssue {
	issues := make([]SeriesIssue, 0)
	for i, r := range series.Returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			issues = append(issues, SeriesIssue{
				Type:     "NON_FINITE",
				Severity: "critical",
				Index:    i,
				Message:  fmt.Sprintf("Non-finite return at year %d", series.StartYear+i),
			})
		}
	}
	return issues
}

func (v *SeriesValidator) checkImpossibleReturns(series *Series) []SeriesIssue {
	issues := make([]SeriesIssue, 0)
	for i, r := range series.Returns {
		if r <= -1 {
			issues = append(issues, SeriesIssue{
				Type:     "IMPOSSIBLE_RETURN",
				Severity: "critical",
				Index:    i,
				Message:  fmt.Sprintf("Return of %.4f at year %d wipes out more than the whole position", r, series.StartYear+i),
				Value:    fmt.Sprintf("%.4f", r),
			})
		}
	}
	return issues
}

func (v *SeriesValidator) checkOutliers(series *Series) []SeriesIssue {
	issues := make([]SeriesIssue, 0)
	for i, r := range series.Returns {
		if !math.IsNaN(r) && !math.IsInf(r, 0) && r > -1 && math.Abs(r) > v.MaxAbsReturn {
			issues = append(issues, SeriesIssue{
				Type:     "OUTLIER_RETURN",
				Severity: "high",
				Index:    i,
				Message:  fmt.Sprintf("Annual return of %.1f%% at year %d", r*100, series.StartYear+i),
				Value:    fmt.Sprintf("%.4f", r),
			})
		}
	}
	return issues
}

func (v *SeriesValidator) checkHistoryLength(series *Series) []SeriesIssue {
	if len(series.Returns) >= v.MinYears {
		return nil
	}
	return []SeriesIssue{{
		Type:     "SHORT_HISTORY",
		Severity: "medium",
		Message:  fmt.Sprintf("Only %d annual observations, %d wanted", len(series.Returns), v.MinYears),
		Value:    fmt.Sprintf("%d", len(series.Returns)),
	}}
}

func (v *SeriesValidator) checkSmoothing(series *Series) []SeriesIssue {
	rho := formulas.Lag1Autocorrelation(series.Returns)
	if math.Abs(rho) <= v.SmoothingThreshold {
		return nil
	}
	return []SeriesIssue{{
		Type:     "SMOOTHED_SERIES",
		Severity: "high",
		Message:  fmt.Sprintf("Lag-1 autocorrelation of %.3f suggests interpolated data", rho),
		Value:    fmt.Sprintf("%.4f", rho),
	}}
}

func (v *SeriesValidator) checkVariance(series *Series) []SeriesIssue {
	if len(series.Returns) < 2 {
		return nil
	}
	first := series.Returns[0]
	for _, r := range series.Returns[1:] {
		if r != first {
			return nil
		}
	}
	return []SeriesIssue{{
		Type:     "ZERO_VARIANCE",
		Severity: "high",
		Message:  "Every observation is identical, correlation estimation degenerates",
	}}
}

// qualityScore maps the issue list to a 0-100 score
func (v *SeriesValidator) qualityScore(issues []SeriesIssue) int {
	penalty := 0.0
	for _, issue := range issues {
		switch issue.Severity {
		case "critical":
			penalty += 25
		case "high":
			penalty += 10
		case "medium":
			penalty += 5
		case "low":
			penalty += 1
		}
	}
	return int(100 - math.Min(penalty, 100))
}

func (v *SeriesValidator) recommendations(issues []SeriesIssue) []string {
	counts := make(map[string]int)
	for _, issue := range issues {
		counts[issue.Type]++
	}

	recs := make([]string, 0)
	if counts["NON_FINITE"] > 0 {
		recs = append(recs, "Remove or repair non-finite entries before simulating")
	}
	if counts["IMPOSSIBLE_RETURN"] > 0 {
		recs = append(recs, "Returns at or below -100% are not representable, verify the source data")
	}
	if counts["OUTLIER_RETURN"] > 0 {
		recs = append(recs, "Verify extreme annual returns against the original source")
	}
	if counts["SHORT_HISTORY"] > 0 {
		recs = append(recs, "Short histories thin out the bootstrap, prefer a longer series")
	}
	if counts["SMOOTHED_SERIES"] > 0 {
		recs = append(recs, "Near-unit persistence usually means interpolated data, use raw annual returns")
	}
	if counts["ZERO_VARIANCE"] > 0 {
		recs = append(recs, "A constant series carries no risk information")
	}
	if len(recs) == 0 {
		recs = append(recs, "Series is acceptable for simulation")
	}
	return recs
}

func hasCritical(issues []SeriesIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "critical" {
			return true
		}
	}
	return false
}

func countIssues(issues []SeriesIssue, issueType string) int {
	count := 0
	for _, issue := range issues {
		if issue.Type == issueType {
			count++
		}
	}
	return count
}
