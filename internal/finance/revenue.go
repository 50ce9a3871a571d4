package finance

import (
	"fmt"
	"math"

	"github.com/MrWong99/finengine/internal/finance/rating"
)

// ─────────────────────────────────────────────────────────────────────────────
// Revenue quality
// ─────────────────────────────────────────────────────────────────────────────

// QualityTarget is the benchmark revenue quality score.
const QualityTarget = 0.75

// categoryTolerance is how far the category sum may drift from the reported
// total, as a fraction of the total.
const categoryTolerance = 0.01

// QualityRequest is the input of [RevenueQualityScore].
type QualityRequest struct {
	HighGrowthRevenue float64
	StableRevenue     float64
	DecliningRevenue  float64
	TotalRevenue      float64
}

// QualityDistribution is the share of revenue in each growth category.
type QualityDistribution struct {
	HighGrowth float64 `json:"high_growth"`
	Stable     float64 `json:"stable"`
	Declining  float64 `json:"declining"`
}

// QualityResult is the output of [RevenueQualityScore].
type QualityResult struct {
	QualityScore   float64             `json:"quality_score"`
	Distribution   QualityDistribution `json:"distribution"`
	Grade          string              `json:"grade"`
	Recommendation string              `json:"recommendation"`
	TargetScore    float64             `json:"target_score"`
	GapToTarget    float64             `json:"gap_to_target"`
}

var qualityRecommendations = map[string]string{
	"A": "Excellent revenue quality. Continue investing in high-growth segments and maintain momentum.",
	"B": "Good revenue quality with room for improvement. Focus on accelerating growth in stable segments.",
	"C": "Moderate revenue quality. Strategic pivot needed to increase high-growth revenue proportion.",
	"D": "Poor revenue quality. Urgent action required to address declining revenue and stimulate growth.",
	"F": "Critical revenue quality issues. Immediate restructuring needed to reverse declining trends.",
}

// RevenueQualityScore weights revenue by growth category (high growth 1.0,
// stable 0.7, declining 0.0) and grades the result against [QualityTarget].
func RevenueQualityScore(req QualityRequest) (*QualityResult, error) {
	if req.TotalRevenue == 0 {
		return nil, Domainf("total_revenue must be non-zero")
	}
	parts := []float64{req.HighGrowthRevenue, req.StableRevenue, req.DecliningRevenue}
	if !withinTolerance(parts, req.TotalRevenue, categoryTolerance) {
		return nil, Invalidf("total_revenue must equal the sum of the revenue categories within 1%%")
	}

	dist := QualityDistribution{
		HighGrowth: req.HighGrowthRevenue / req.TotalRevenue,
		Stable:     req.StableRevenue / req.TotalRevenue,
		Declining:  req.DecliningRevenue / req.TotalRevenue,
	}
	score := dist.HighGrowth*1.0 + dist.Stable*0.7 + dist.Declining*0.0
	grade := rating.Classify(rating.RevenueQualityGrade, score)

	return &QualityResult{
		QualityScore:   score,
		Distribution:   dist,
		Grade:          grade,
		Recommendation: qualityRecommendations[grade],
		TargetScore:    QualityTarget,
		GapToTarget:    QualityTarget - score,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Organic growth
// ─────────────────────────────────────────────────────────────────────────────

// GrowthRequest is the input of [OrganicGrowth]. PeriodYears is nil when the
// caller did not supply it, in which case the periods are one year apart.
type GrowthRequest struct {
	RevenuePrior   float64
	RevenueCurrent float64
	PeriodYears    *float64
}

// GrowthResult is the output of [OrganicGrowth].
type GrowthResult struct {
	GrowthRate     float64 `json:"growth_rate"`
	AbsoluteGrowth float64 `json:"absolute_growth"`
	RevenuePrior   float64 `json:"revenue_prior"`
	RevenueCurrent float64 `json:"revenue_current"`
	PeriodYears    float64 `json:"period_years"`
	CAGR           float64 `json:"cagr"`
	GrowthRating   string  `json:"growth_rating"`
	Interpretation string  `json:"interpretation"`
}

// OrganicGrowth computes period-over-period growth and its annualised rate.
func OrganicGrowth(req GrowthRequest) (*GrowthResult, error) {
	absolute := req.RevenueCurrent - req.RevenuePrior
	growth, err := ratio(absolute, req.RevenuePrior, "revenue_prior")
	if err != nil {
		return nil, err
	}

	period := 1.0
	if req.PeriodYears != nil {
		period = *req.PeriodYears
	}
	cagr := growth
	if period != 1 {
		cagr = math.Pow(req.RevenueCurrent/req.RevenuePrior, 1/period) - 1
		if _, err := finite(cagr, "period_years"); err != nil {
			return nil, err
		}
	}

	label := rating.Classify(rating.OrganicGrowth, growth)
	return &GrowthResult{
		GrowthRate:     growth,
		AbsoluteGrowth: absolute,
		RevenuePrior:   req.RevenuePrior,
		RevenueCurrent: req.RevenueCurrent,
		PeriodYears:    period,
		CAGR:           cagr,
		GrowthRating:   label,
		Interpretation: fmt.Sprintf("%s organic growth of %.2f%% (%.2f%% annualised over a %g-year period)",
			label, growth*100, cagr*100, period),
	}, nil
}
