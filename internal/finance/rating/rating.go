// Package rating holds the threshold tables that turn a computed metric into a
// categorical label (risk level, letter grade, momentum rating, ...).
//
// Every table is a fixed, package-level value keyed by metric name so that a
// threshold is defined in exactly one place. Bands are closed on their lower
// bound unless marked [Band.Exclusive]; the upper bound of a band is the lower
// bound of the band above it.
package rating

import (
	"fmt"
	"slices"
)

// Band is one row of a [Table].
type Band struct {
	// Label is returned when the value falls into this band.
	Label string

	// Min is the lower bound of the band. Ignored for the catch-all band.
	Min float64

	// Exclusive makes Min an open bound (value > Min instead of value >= Min).
	Exclusive bool
}

// contains reports whether v clears the band's lower bound.
func (b Band) contains(v float64) bool {
	if b.Exclusive {
		return v > b.Min
	}
	return v >= b.Min
}

// Table is an ordered list of bands, highest first. The final band is the
// catch-all and matches every value that no earlier band accepted.
type Table struct {
	Metric string
	Bands  []Band
}

// Classify returns the label of the first band whose lower bound v clears.
func (t Table) Classify(v float64) string {
	last := len(t.Bands) - 1
	for _, b := range t.Bands[:last] {
		if b.contains(v) {
			return b.Label
		}
	}
	return t.Bands[last].Label
}

// Labels returns the labels of t, highest band first.
func (t Table) Labels() []string {
	out := make([]string, len(t.Bands))
	for i, b := range t.Bands {
		out[i] = b.Label
	}
	return out
}

// Metric names used as table keys.
const (
	HealthRisk          = "company_health_score"
	RevenueQualityGrade = "revenue_quality_score"
	ConcentrationRisk   = "hhi_and_diversification"
	LeverageEfficiency  = "operating_leverage"
	MomentumRating      = "portfolio_momentum"
	GiniConcentration   = "gini_coefficient"
	OrganicGrowth       = "organic_growth"
	SupportGrade        = "support_efficiency_score"
	TransformationState = "segment_growth_analysis"
	LifecycleStage      = "lifecycle_stage"
)

var tables = map[string]Table{
	HealthRisk: {Metric: HealthRisk, Bands: []Band{
		{Label: "LOW", Min: 80},
		{Label: "MEDIUM", Min: 65},
		{Label: "HIGH", Min: 50},
		{Label: "CRITICAL"},
	}},
	RevenueQualityGrade: {Metric: RevenueQualityGrade, Bands: []Band{
		{Label: "A", Min: 0.80},
		{Label: "B", Min: 0.65},
		{Label: "C", Min: 0.50},
		{Label: "D", Min: 0.35},
		{Label: "F"},
	}},
	// MEDIUM includes 0.25; only values strictly above it are HIGH.
	ConcentrationRisk: {Metric: ConcentrationRisk, Bands: []Band{
		{Label: "HIGH", Min: 0.25, Exclusive: true},
		{Label: "MEDIUM", Min: 0.15},
		{Label: "LOW"},
	}},
	LeverageEfficiency: {Metric: LeverageEfficiency, Bands: []Band{
		{Label: "Excellent", Min: 1.5},
		{Label: "Good", Min: 1.2},
		{Label: "Adequate", Min: 1.0},
		{Label: "Poor"},
	}},
	MomentumRating: {Metric: MomentumRating, Bands: []Band{
		{Label: "Strong", Min: 0.10, Exclusive: true},
		{Label: "Moderate", Min: 0.05},
		{Label: "Weak", Min: 0},
		{Label: "Declining"},
	}},
	GiniConcentration: {Metric: GiniConcentration, Bands: []Band{
		{Label: "High", Min: 0.40, Exclusive: true},
		{Label: "Moderate", Min: 0.25},
		{Label: "Low"},
	}},
	OrganicGrowth: {Metric: OrganicGrowth, Bands: []Band{
		{Label: "Exceptional", Min: 0.15, Exclusive: true},
		{Label: "Strong", Min: 0.10},
		{Label: "Moderate", Min: 0.05},
		{Label: "Weak", Min: 0},
		{Label: "Declining"},
	}},
	SupportGrade: {Metric: SupportGrade, Bands: []Band{
		{Label: "A", Min: 0.90},
		{Label: "B", Min: 0.80},
		{Label: "C", Min: 0.70},
		{Label: "D", Min: 0.60},
		{Label: "F"},
	}},
	TransformationState: {Metric: TransformationState, Bands: []Band{
		{Label: "Successful", Min: 3.0, Exclusive: true},
		{Label: "Progressing", Min: 1.0},
		{Label: "Failing"},
	}},
	LifecycleStage: {Metric: LifecycleStage, Bands: []Band{
		{Label: StageHigh, Min: 0.15, Exclusive: true},
		{Label: StageMature, Min: 0},
		{Label: StageDeclining},
	}},
}

// Lifecycle stage labels.
const (
	StageHigh      = "High"
	StageMature    = "Mature"
	StageDeclining = "Declining"
)

// Lookup returns the table registered for metric.
func Lookup(metric string) (Table, bool) {
	t, ok := tables[metric]
	return t, ok
}

// Classify is shorthand for Lookup(metric) followed by [Table.Classify]. It
// panics on an unknown metric name, which is a programming error.
func Classify(metric string, v float64) string {
	t, ok := tables[metric]
	if !ok {
		panic(fmt.Sprintf("rating: no table for metric %q", metric))
	}
	return t.Classify(v)
}

// Metrics returns the sorted names of all registered tables.
func Metrics() []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LifecycleQuality grades a portfolio from the revenue shares held by
// high-growth and declining segments. Both shares are fractions of total
// revenue.
func LifecycleQuality(highShare, decliningShare float64) string {
	switch {
	case highShare > 0.40 && decliningShare < 0.20:
		return "Excellent"
	case highShare > 0.30 && decliningShare < 0.25:
		return "Good"
	case highShare > 0.20:
		return "Fair"
	default:
		return "Poor"
	}
}
