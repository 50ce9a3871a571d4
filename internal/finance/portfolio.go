package finance

import (
	"fmt"

	"github.com/MrWong99/finengine/internal/finance/rating"
)

// segmentTotal sums segment revenue and fails when there is nothing to weight by.
func segmentTotal(segments []Segment) (float64, error) {
	if len(segments) == 0 {
		return 0, Domainf("segments must contain at least one entry")
	}
	var total float64
	for _, s := range segments {
		total += s.Revenue
	}
	if total == 0 {
		return 0, Domainf("total segment revenue must be non-zero")
	}
	return finite(total, "total segment revenue")
}

// ─────────────────────────────────────────────────────────────────────────────
// Portfolio momentum
// ─────────────────────────────────────────────────────────────────────────────

// MomentumContribution is one segment's share of portfolio momentum.
type MomentumContribution struct {
	Segment            string  `json:"segment"`
	Revenue            float64 `json:"revenue"`
	RevenueShare       float64 `json:"revenue_share"`
	GrowthRate         float64 `json:"growth_rate"`
	Contribution       float64 `json:"contribution"`
	DollarContribution float64 `json:"dollar_contribution"`
}

// MomentumResult is the output of [PortfolioMomentum].
type MomentumResult struct {
	Momentum       float64                `json:"portfolio_momentum"`
	TotalRevenue   float64                `json:"total_revenue"`
	Segments       []MomentumContribution `json:"segment_contributions"`
	TopContributor string                 `json:"top_contributor"`
	MomentumRating string                 `json:"momentum_rating"`
}

// PortfolioMomentum is the revenue-weighted average growth rate of the
// portfolio. The top contributor is the segment adding the most revenue in
// absolute terms (revenue x growth rate); the first such segment wins ties.
func PortfolioMomentum(segments []Segment) (*MomentumResult, error) {
	total, err := segmentTotal(segments)
	if err != nil {
		return nil, err
	}

	res := &MomentumResult{
		TotalRevenue: total,
		Segments:     make([]MomentumContribution, len(segments)),
	}
	top := -1
	for i, s := range segments {
		share := s.Revenue / total
		c := MomentumContribution{
			Segment:            s.Name,
			Revenue:            s.Revenue,
			RevenueShare:       share,
			GrowthRate:         s.GrowthRate,
			Contribution:       share * s.GrowthRate,
			DollarContribution: s.Revenue * s.GrowthRate,
		}
		res.Segments[i] = c
		res.Momentum += c.Contribution
		if top < 0 || c.DollarContribution > res.Segments[top].DollarContribution {
			top = i
		}
	}
	res.TopContributor = res.Segments[top].Segment
	res.MomentumRating = rating.Classify(rating.MomentumRating, res.Momentum)
	return res, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle-weighted growth
// ─────────────────────────────────────────────────────────────────────────────

// LifecycleStage aggregates the segments sharing a lifecycle stage.
// WeightedGrowth is nil when the stage holds no revenue.
type LifecycleStage struct {
	Stage          string   `json:"stage"`
	Segments       []string `json:"segments"`
	Revenue        float64  `json:"revenue"`
	RevenueShare   float64  `json:"revenue_share"`
	Contribution   float64  `json:"contribution"`
	WeightedGrowth *float64 `json:"weighted_growth,omitempty"`
}

// LifecycleResult is the output of [LifecycleWeightedGrowth].
type LifecycleResult struct {
	WeightedGrowth   float64          `json:"weighted_growth"`
	TotalRevenue     float64          `json:"total_revenue"`
	Stages           []LifecycleStage `json:"stages"`
	HighGrowthShare  float64          `json:"high_growth_share"`
	DecliningShare   float64          `json:"declining_share"`
	PortfolioQuality string           `json:"portfolio_quality"`
	Interpretation   string           `json:"interpretation"`
}

var stageOrder = []string{rating.StageHigh, rating.StageMature, rating.StageDeclining}

// LifecycleWeightedGrowth classifies each segment as high growth, mature or
// declining and reports revenue-weighted growth overall and per stage.
func LifecycleWeightedGrowth(segments []Segment) (*LifecycleResult, error) {
	total, err := segmentTotal(segments)
	if err != nil {
		return nil, err
	}

	stages := make([]LifecycleStage, len(stageOrder))
	index := make(map[string]int, len(stageOrder))
	for i, name := range stageOrder {
		stages[i] = LifecycleStage{Stage: name, Segments: []string{}}
		index[name] = i
	}

	weightedSums := make([]float64, len(stages))
	res := &LifecycleResult{TotalRevenue: total}
	for _, s := range segments {
		st := &stages[index[rating.Classify(rating.LifecycleStage, s.GrowthRate)]]
		st.Segments = append(st.Segments, s.Name)
		st.Revenue += s.Revenue
		c := s.Revenue / total * s.GrowthRate
		st.Contribution += c
		res.WeightedGrowth += c
		weightedSums[index[st.Stage]] += s.Revenue * s.GrowthRate
	}

	for i := range stages {
		st := &stages[i]
		st.RevenueShare = st.Revenue / total
		if st.Revenue != 0 {
			wg := weightedSums[i] / st.Revenue
			st.WeightedGrowth = &wg
		}
	}

	res.Stages = stages
	res.HighGrowthShare = stages[index[rating.StageHigh]].RevenueShare
	res.DecliningShare = stages[index[rating.StageDeclining]].RevenueShare
	res.PortfolioQuality = rating.LifecycleQuality(res.HighGrowthShare, res.DecliningShare)
	res.Interpretation = fmt.Sprintf("%s lifecycle mix: %.1f%% of revenue in high-growth segments, %.1f%% in declining segments, weighted growth %.2f%%",
		res.PortfolioQuality, res.HighGrowthShare*100, res.DecliningShare*100, res.WeightedGrowth*100)
	return res, nil
}
