package finance

import (
	"fmt"
	"math"
	"strings"

	"github.com/MrWong99/finengine/internal/finance/rating"
)

// checkRevenues rejects empty lists and lists that sum to zero. Negative
// entries are rejected during argument validation.
func checkRevenues(revenues []float64) (sorted []float64, total float64, err error) {
	if len(revenues) == 0 {
		return nil, 0, Domainf("revenues must contain at least one segment")
	}
	sorted = sortedCopy(revenues)
	total = sum(sorted)
	if total == 0 {
		return nil, 0, Domainf("sum of revenues must be non-zero")
	}
	if _, err := finite(total, "sum of revenues"); err != nil {
		return nil, 0, err
	}
	return sorted, total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Herfindahl-Hirschman Index
// ─────────────────────────────────────────────────────────────────────────────

// HHIResult is the output of [HHIAndDiversification].
type HHIResult struct {
	HHI                  float64   `json:"hhi"`
	DiversificationScore float64   `json:"diversification_score"`
	EffectiveSegments    float64   `json:"effective_segments"`
	RiskLevel            string    `json:"risk_level"`
	Assessment           string    `json:"assessment"`
	MarketShares         []float64 `json:"market_shares"`
	LargestShare         float64   `json:"largest_share"`
	ConcentrationIssues  []string  `json:"concentration_issues"`
}

// HHIAndDiversification measures revenue concentration as the sum of squared
// segment shares. MarketShares follows the input order; every scalar is
// computed over the sorted revenues so permuting the input changes nothing
// but the order of MarketShares.
func HHIAndDiversification(revenues []float64) (*HHIResult, error) {
	sorted, total, err := checkRevenues(revenues)
	if err != nil {
		return nil, err
	}

	var hhi float64
	for _, r := range sorted {
		s := r / total
		hhi += s * s
	}
	largest := sorted[len(sorted)-1] / total

	shares := make([]float64, len(revenues))
	for i, r := range revenues {
		shares[i] = r / total
	}

	effective := 1 / hhi
	risk := rating.Classify(rating.ConcentrationRisk, hhi)

	issues := []string{}
	if largest > 0.50 {
		issues = append(issues, fmt.Sprintf("Single segment dominance: %.1f%% of revenue", largest*100))
	}
	if hhi > 0.35 {
		issues = append(issues, "HHI exceeds 0.35 indicating severe concentration")
	}
	if effective < 3 {
		issues = append(issues, fmt.Sprintf("Effective segment count (%.1f) is below recommended minimum of 3", effective))
	}

	return &HHIResult{
		HHI:                  hhi,
		DiversificationScore: 1 - hhi,
		EffectiveSegments:    effective,
		RiskLevel:            risk,
		Assessment: fmt.Sprintf("Revenue concentration is %s with HHI of %.3f. The portfolio behaves like %.1f equal-sized segments.",
			strings.ToLower(risk), hhi, effective),
		MarketShares:        shares,
		LargestShare:        largest,
		ConcentrationIssues: issues,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Gini coefficient
// ─────────────────────────────────────────────────────────────────────────────

// giniSmoothing keeps the effective-segment estimate finite for tiny Gini values.
const giniSmoothing = 0.0001

// GiniResult is the output of [GiniCoefficient].
type GiniResult struct {
	Gini                 float64   `json:"gini_coefficient"`
	DiversificationScore float64   `json:"diversification_score"`
	ConcentrationLevel   string    `json:"concentration_level"`
	LargestShare         float64   `json:"largest_share"`
	SmallestShare        float64   `json:"smallest_share"`
	EffectiveSegments    float64   `json:"effective_segments"`
	SortedRevenues       []float64 `json:"sorted_revenues"`
}

// GiniCoefficient measures inequality across segment revenues: 0 for a
// perfectly even split, approaching 1 as revenue concentrates in one segment.
func GiniCoefficient(revenues []float64) (*GiniResult, error) {
	sorted, total, err := checkRevenues(revenues)
	if err != nil {
		return nil, err
	}

	n := float64(len(sorted))
	var weighted float64
	for i, r := range sorted {
		weighted += float64(i+1) * r
	}
	g := 2*weighted/(n*total) - (n+1)/n
	g = math.Min(math.Max(g, 0), 1)

	effective := n
	if g > 0 {
		effective = 1 / (g + giniSmoothing)
	}

	return &GiniResult{
		Gini:                 g,
		DiversificationScore: 1 - g,
		ConcentrationLevel:   rating.Classify(rating.GiniConcentration, g),
		LargestShare:         sorted[len(sorted)-1] / total,
		SmallestShare:        sorted[0] / total,
		EffectiveSegments:    effective,
		SortedRevenues:       sorted,
	}, nil
}
