package dispatch

import (
	"github.com/MrWong99/finengine/internal/finance"
	"github.com/MrWong99/finengine/internal/finance/args"
)

// Tool names.
const (
	ToolCompanyHealth      = "company_health_score"
	ToolRevenueQuality     = "revenue_quality_score"
	ToolHHI                = "hhi_and_diversification"
	ToolOperatingLeverage  = "operating_leverage"
	ToolPortfolioMomentum  = "portfolio_momentum"
	ToolGini               = "gini_coefficient"
	ToolOrganicGrowth      = "organic_growth"
	ToolSupportEfficiency  = "support_efficiency_score"
	ToolGrowthAttribution  = "growth_attribution"
	ToolSegmentGrowth      = "segment_growth_analysis"
	ToolLifecycleGrowth    = "lifecycle_weighted_growth"
	ToolVectorStoreMetrics = "get_metrics_from_vector_store"
)

// Catalogue returns every tool definition in advertised order. vs serves the
// vector store lookup; it may be nil, in which case that tool fails with a
// retriever error.
func Catalogue(vs Retriever) []Definition {
	return append(Calculators(), vectorStoreTool(vs))
}

// Calculators returns the eleven pure metric tools.
func Calculators() []Definition {
	return []Definition{
		{
			Name: ToolCompanyHealth,
			Description: "Composite company health score (0-100) across revenue growth, SLA compliance, " +
				"customer satisfaction and, when both are given, innovation and pipeline coverage. " +
				"Returns the weighted components, a risk level and an interpretation.",
			Fields: []args.Field{
				args.Number("revenue_growth", "Revenue growth rate as a fraction (0.15 = 15%)."),
				args.Number("sla_compliance", "SLA compliance as a fraction.").Range(0, 1),
				args.Number("customer_satisfaction", "Customer satisfaction score from 0 to 100.").Range(0, 100),
				args.Number("modern_revenue_pct", "Share of revenue from modern offerings. Give together with pipeline_coverage.").Range(0, 1).Optional(),
				args.Number("pipeline_coverage", "Pipeline coverage ratio (1.0 = 100%). Give together with modern_revenue_pct.").AtLeast(0).Optional(),
			},
			Call: bind(func(b args.Bag) finance.HealthRequest {
				return finance.HealthRequest{
					RevenueGrowth:        b.Float("revenue_growth"),
					SLACompliance:        b.Float("sla_compliance"),
					CustomerSatisfaction: b.Float("customer_satisfaction"),
					ModernRevenuePct:     b.OptFloat("modern_revenue_pct"),
					PipelineCoverage:     b.OptFloat("pipeline_coverage"),
				}
			}, finance.CompanyHealthScore),
		},
		{
			Name: ToolRevenueQuality,
			Description: "Revenue quality score weighting high-growth, stable and declining revenue. " +
				"The three categories must add up to total_revenue within 1%.",
			Fields: []args.Field{
				args.Number("high_growth_revenue", "Revenue from high-growth products.").AtLeast(0),
				args.Number("stable_revenue", "Revenue from stable products.").AtLeast(0),
				args.Number("declining_revenue", "Revenue from declining products.").AtLeast(0),
				args.Number("total_revenue", "Total revenue.").AtLeast(0),
			},
			Call: bind(func(b args.Bag) finance.QualityRequest {
				return finance.QualityRequest{
					HighGrowthRevenue: b.Float("high_growth_revenue"),
					StableRevenue:     b.Float("stable_revenue"),
					DecliningRevenue:  b.Float("declining_revenue"),
					TotalRevenue:      b.Float("total_revenue"),
				}
			}, finance.RevenueQualityScore),
		},
		{
			Name:        ToolHHI,
			Description: "Herfindahl-Hirschman concentration index of revenue across segments, with diversification score, effective segment count and concentration issues.",
			Fields: []args.Field{
				args.NumberList("revenues", "Revenue per segment.", 0),
			},
			Call: bind(revenues, finance.HHIAndDiversification),
		},
		{
			Name:        ToolOperatingLeverage,
			Description: "Operating leverage as revenue growth over cost growth, with margin expansion in basis points and an efficiency rating.",
			Fields: []args.Field{
				args.Number("revenue_growth_rate", "Revenue growth rate as a fraction."),
				args.Number("cost_growth_rate", "Cost growth rate as a fraction. Must not be zero."),
			},
			Call: bind(func(b args.Bag) finance.LeverageRequest {
				return finance.LeverageRequest{
					RevenueGrowthRate: b.Float("revenue_growth_rate"),
					CostGrowthRate:    b.Float("cost_growth_rate"),
				}
			}, finance.OperatingLeverage),
		},
		{
			Name:        ToolPortfolioMomentum,
			Description: "Revenue-weighted growth momentum of a segment portfolio, with per-segment contributions and the top contributor.",
			Fields: []args.Field{
				growthSegmentsField(),
			},
			Call: bind(growthSegments, finance.PortfolioMomentum),
		},
		{
			Name:        ToolGini,
			Description: "Gini coefficient of revenue distribution across segments, with inequality level and diversification score.",
			Fields: []args.Field{
				args.NumberList("revenues", "Revenue per segment.", 0),
			},
			Call: bind(revenues, finance.GiniCoefficient),
		},
		{
			Name:        ToolOrganicGrowth,
			Description: "Organic revenue growth between two periods, with CAGR over period_years and a growth rating.",
			Fields: []args.Field{
				args.Number("revenue_prior", "Revenue of the earlier period. Must not be zero.").AtLeast(0),
				args.Number("revenue_current", "Revenue of the later period.").AtLeast(0),
				args.Number("period_years", "Years between the two periods.").Above(0).Optional().WithDefault(1),
			},
			Call: bind(func(b args.Bag) finance.GrowthRequest {
				return finance.GrowthRequest{
					RevenuePrior:   b.Float("revenue_prior"),
					RevenueCurrent: b.Float("revenue_current"),
					PeriodYears:    b.OptFloat("period_years"),
				}
			}, finance.OrganicGrowth),
		},
		{
			Name:        ToolSupportEfficiency,
			Description: "Support efficiency score from first-contact resolution, SLA compliance and handling time improvement.",
			Fields: []args.Field{
				args.Number("fcr_current", "First-contact resolution rate as a fraction.").Range(0, 1),
				args.Number("sla_compliance", "SLA compliance as a fraction.").Range(0, 1),
				args.Number("handling_time_prior", "Average handling time of the earlier period. Must not be zero.").AtLeast(0),
				args.Number("handling_time_current", "Average handling time of the later period.").AtLeast(0),
			},
			Call: bind(func(b args.Bag) finance.SupportRequest {
				return finance.SupportRequest{
					FCRCurrent:          b.Float("fcr_current"),
					SLACompliance:       b.Float("sla_compliance"),
					HandlingTimePrior:   b.Float("handling_time_prior"),
					HandlingTimeCurrent: b.Float("handling_time_current"),
				}
			}, finance.SupportEfficiencyScore),
		},
		{
			Name:        ToolGrowthAttribution,
			Description: "Attributes total revenue change to segments, split into growth drivers and drags.",
			Fields: []args.Field{
				args.LabelledMap("segments", "Segment label to fiscal-year revenues.",
					args.Number("fy_prior", "Revenue of the prior fiscal year.").AtLeast(0),
					args.Number("fy_current", "Revenue of the current fiscal year.").AtLeast(0),
				),
			},
			Call: bind(periodSegments, finance.GrowthAttribution),
		},
		{
			Name:        ToolSegmentGrowth,
			Description: "Compares modern and traditional segment growth and rates the transformation status.",
			Fields: []args.Field{
				args.Number("modern_fy_prior", "Modern segment revenue, prior fiscal year.").AtLeast(0),
				args.Number("modern_fy_current", "Modern segment revenue, current fiscal year.").AtLeast(0),
				args.Number("traditional_fy_prior", "Traditional segment revenue, prior fiscal year.").AtLeast(0),
				args.Number("traditional_fy_current", "Traditional segment revenue, current fiscal year.").AtLeast(0),
			},
			Call: bind(func(b args.Bag) finance.SegmentGrowthRequest {
				return finance.SegmentGrowthRequest{
					ModernPrior:        b.Float("modern_fy_prior"),
					ModernCurrent:      b.Float("modern_fy_current"),
					TraditionalPrior:   b.Float("traditional_fy_prior"),
					TraditionalCurrent: b.Float("traditional_fy_current"),
				}
			}, finance.SegmentGrowthAnalysis),
		},
		{
			Name:        ToolLifecycleGrowth,
			Description: "Groups segments into High, Mature and Declining lifecycle stages and reports weighted growth and portfolio quality.",
			Fields: []args.Field{
				growthSegmentsField(),
			},
			Call: bind(growthSegments, finance.LifecycleWeightedGrowth),
		},
	}
}

func growthSegmentsField() args.Field {
	return args.LabelledMap("segments", "Segment label to revenue and growth rate.",
		args.Number("revenue", "Segment revenue.").AtLeast(0),
		args.Number("growth_rate", "Segment growth rate as a fraction."),
	)
}

func revenues(b args.Bag) []float64 { return b.Floats("revenues") }

// growthSegments decodes the segments map in the order the caller wrote it.
func growthSegments(b args.Bag) []finance.Segment {
	entries := b.Entries("segments")
	out := make([]finance.Segment, 0, len(entries))
	for _, e := range entries {
		rev, _ := e.Value.Get("revenue")
		g, _ := e.Value.Get("growth_rate")
		out = append(out, finance.Segment{Name: e.Key, Revenue: rev.Float(), GrowthRate: g.Float()})
	}
	return out
}

func periodSegments(b args.Bag) []finance.PeriodSegment {
	entries := b.Entries("segments")
	out := make([]finance.PeriodSegment, 0, len(entries))
	for _, e := range entries {
		prior, _ := e.Value.Get("fy_prior")
		cur, _ := e.Value.Get("fy_current")
		out = append(out, finance.PeriodSegment{Name: e.Key, FYPrior: prior.Float(), FYCurrent: cur.Float()})
	}
	return out
}
