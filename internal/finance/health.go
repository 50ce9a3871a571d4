package finance

import (
	"math"

	"github.com/MrWong99/finengine/internal/finance/rating"
)

// Health score models.
const (
	ModelFiveDimension  = "five_dimension"
	ModelThreeDimension = "three_dimension"
)

// revenueGrowthCeiling is the growth rate that earns a full revenue score.
const revenueGrowthCeiling = 0.15

// HealthRequest is the input of [CompanyHealthScore]. ModernRevenuePct and
// PipelineCoverage are supplied together or not at all.
type HealthRequest struct {
	RevenueGrowth        float64
	SLACompliance        float64
	CustomerSatisfaction float64
	ModernRevenuePct     *float64
	PipelineCoverage     *float64
}

// HealthComponent is one weighted dimension of the health score.
type HealthComponent struct {
	Dimension    string  `json:"dimension"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// HealthResult is the output of [CompanyHealthScore].
type HealthResult struct {
	OverallScore   float64           `json:"overall_score"`
	Model          string            `json:"model"`
	Components     []HealthComponent `json:"components"`
	RiskLevel      string            `json:"risk_level"`
	Interpretation string            `json:"interpretation"`
}

var healthInterpretations = map[string]string{
	"LOW":      "Company health is excellent across all dimensions.",
	"MEDIUM":   "Company health is good but some areas need attention for optimal performance.",
	"HIGH":     "Company faces significant challenges in multiple areas requiring strategic intervention.",
	"CRITICAL": "Company health is critical with severe issues across key performance indicators.",
}

// CompanyHealthScore combines normalised 0-100 dimension scores into one
// weighted composite. With the modern-revenue and pipeline inputs present the
// five-dimension weights apply (30/25/20/15/10); without them the
// three-dimension weights (40/35/25) apply.
func CompanyHealthScore(req HealthRequest) (*HealthResult, error) {
	if (req.ModernRevenuePct == nil) != (req.PipelineCoverage == nil) {
		return nil, Invalidf("modern_revenue_pct and pipeline_coverage must be supplied together")
	}

	revenue := math.Min(math.Max(req.RevenueGrowth/revenueGrowthCeiling*100, 0), 100)
	sla := req.SLACompliance * 100
	satisfaction := req.CustomerSatisfaction

	var (
		model      string
		components []HealthComponent
	)
	if req.ModernRevenuePct != nil {
		model = ModelFiveDimension
		components = []HealthComponent{
			{Dimension: "revenue", Score: revenue, Weight: 0.30},
			{Dimension: "sla", Score: sla, Weight: 0.25},
			{Dimension: "innovation", Score: *req.ModernRevenuePct * 100, Weight: 0.20},
			{Dimension: "satisfaction", Score: satisfaction, Weight: 0.15},
			{Dimension: "pipeline", Score: math.Min(*req.PipelineCoverage*100, 100), Weight: 0.10},
		}
	} else {
		model = ModelThreeDimension
		components = []HealthComponent{
			{Dimension: "revenue", Score: revenue, Weight: 0.40},
			{Dimension: "sla", Score: sla, Weight: 0.35},
			{Dimension: "satisfaction", Score: satisfaction, Weight: 0.25},
		}
	}

	var overall float64
	for i := range components {
		components[i].Contribution = components[i].Score * components[i].Weight
		overall += components[i].Contribution
	}

	risk := rating.Classify(rating.HealthRisk, overall)
	return &HealthResult{
		OverallScore:   overall,
		Model:          model,
		Components:     components,
		RiskLevel:      risk,
		Interpretation: healthInterpretations[risk],
	}, nil
}
