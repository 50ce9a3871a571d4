package finance

import (
	"fmt"
	"math"
	"slices"

	"github.com/MrWong99/finengine/internal/finance/rating"
)

// ─────────────────────────────────────────────────────────────────────────────
// Growth attribution
// ─────────────────────────────────────────────────────────────────────────────

// contributionTolerance is the allowed drift of summed contributions from 100%.
const contributionTolerance = 0.0001

// SegmentDelta is one segment's change between the two fiscal years.
type SegmentDelta struct {
	Segment      string  `json:"segment"`
	FYPrior      float64 `json:"fy_prior"`
	FYCurrent    float64 `json:"fy_current"`
	Delta        float64 `json:"delta"`
	Contribution float64 `json:"contribution"`
}

// AttributionCheck verifies that contributions add back up to the total.
type AttributionCheck struct {
	ContributionSum float64 `json:"contribution_sum"`
	Balanced        bool    `json:"balanced"`
}

// AttributionResult is the output of [GrowthAttribution].
type AttributionResult struct {
	TotalPrior   float64          `json:"total_prior"`
	TotalCurrent float64          `json:"total_current"`
	TotalDelta   float64          `json:"total_delta"`
	Segments     []SegmentDelta   `json:"segments"`
	Drivers      []SegmentDelta   `json:"drivers"`
	Drags        []SegmentDelta   `json:"drags"`
	Verification AttributionCheck `json:"verification"`
}

// GrowthAttribution splits the total revenue change across segments.
// Drivers are segments that grew, largest first; drags are segments that
// shrank, largest decline first. Unchanged segments are neither.
func GrowthAttribution(segments []PeriodSegment) (*AttributionResult, error) {
	if len(segments) == 0 {
		return nil, Domainf("segments must contain at least one entry")
	}

	res := &AttributionResult{
		Segments: make([]SegmentDelta, len(segments)),
		Drivers:  []SegmentDelta{},
		Drags:    []SegmentDelta{},
	}
	for i, s := range segments {
		d := s.FYCurrent - s.FYPrior
		res.Segments[i] = SegmentDelta{Segment: s.Name, FYPrior: s.FYPrior, FYCurrent: s.FYCurrent, Delta: d}
		res.TotalPrior += s.FYPrior
		res.TotalCurrent += s.FYCurrent
		res.TotalDelta += d
	}
	if res.TotalDelta == 0 {
		return nil, Domainf("total revenue change must be non-zero")
	}
	for _, t := range []float64{res.TotalPrior, res.TotalCurrent, res.TotalDelta} {
		if _, err := finite(t, "segment revenue total"); err != nil {
			return nil, err
		}
	}

	contributions := make([]float64, len(res.Segments))
	for i := range res.Segments {
		sd := &res.Segments[i]
		sd.Contribution = sd.Delta / res.TotalDelta
		contributions[i] = sd.Contribution
		switch {
		case sd.Delta > 0:
			res.Drivers = append(res.Drivers, *sd)
		case sd.Delta < 0:
			res.Drags = append(res.Drags, *sd)
		}
	}
	slices.SortStableFunc(res.Drivers, func(a, b SegmentDelta) int { return compareDesc(a.Delta, b.Delta) })
	slices.SortStableFunc(res.Drags, func(a, b SegmentDelta) int { return compareDesc(b.Delta, a.Delta) })

	res.Verification = AttributionCheck{
		ContributionSum: sum(contributions),
		Balanced:        withinTolerance(contributions, 1, contributionTolerance),
	}
	return res, nil
}

// compareDesc orders larger values first.
func compareDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Segment growth analysis
// ─────────────────────────────────────────────────────────────────────────────

// SegmentGrowthRequest is the input of [SegmentGrowthAnalysis].
type SegmentGrowthRequest struct {
	ModernPrior        float64
	ModernCurrent      float64
	TraditionalPrior   float64
	TraditionalCurrent float64
}

// SegmentGrowthResult is the output of [SegmentGrowthAnalysis].
type SegmentGrowthResult struct {
	ModernGrowth         float64  `json:"modern_growth"`
	TraditionalGrowth    float64  `json:"traditional_growth"`
	GrowthRatio          float64  `json:"growth_ratio"`
	GrowthGap            float64  `json:"growth_gap"`
	ModernShareCurrent   *float64 `json:"modern_share_current,omitempty"`
	TransformationStatus string   `json:"transformation_status"`
	Interpretation       string   `json:"interpretation"`
}

// SegmentGrowthAnalysis compares the growth of modern offerings against the
// traditional business as a ratio of their growth rates.
func SegmentGrowthAnalysis(req SegmentGrowthRequest) (*SegmentGrowthResult, error) {
	modern, err := ratio(req.ModernCurrent-req.ModernPrior, req.ModernPrior, "modern_fy_prior")
	if err != nil {
		return nil, err
	}
	traditional, err := ratio(req.TraditionalCurrent-req.TraditionalPrior, req.TraditionalPrior, "traditional_fy_prior")
	if err != nil {
		return nil, err
	}
	growthRatio, err := ratio(modern, traditional, "traditional segment growth")
	if err != nil {
		return nil, err
	}
	// Omitted when neither segment has current revenue.
	var share *float64
	if v, err := divide(req.ModernCurrent, req.ModernCurrent+req.TraditionalCurrent, "combined current revenue"); err == nil {
		share = &v
	}

	status := rating.Classify(rating.TransformationState, growthRatio)
	return &SegmentGrowthResult{
		ModernGrowth:         modern,
		TraditionalGrowth:    traditional,
		GrowthRatio:          growthRatio,
		GrowthGap:            modern - traditional,
		ModernShareCurrent:   share,
		TransformationStatus: status,
		Interpretation: fmt.Sprintf("Transformation %s: modern segments growing %.1f%% vs %.1f%% for traditional (%.2fx)",
			status, modern*100, traditional*100, math.Round(growthRatio*100)/100),
	}, nil
}
