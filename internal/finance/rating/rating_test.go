package rating

import "testing"

// ─────────────────────────────────────────────────────────────────────────────
// Boundary semantics
// ─────────────────────────────────────────────────────────────────────────────

func TestClassify_Boundaries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		metric string
		value  float64
		want   string
	}{
		// Closed lower bounds.
		{HealthRisk, 80, "LOW"},
		{HealthRisk, 79.999, "MEDIUM"},
		{HealthRisk, 65, "MEDIUM"},
		{HealthRisk, 50, "HIGH"},
		{HealthRisk, 49.99, "CRITICAL"},
		{LeverageEfficiency, 1.5, "Excellent"},
		{LeverageEfficiency, 1.2, "Good"},
		{LeverageEfficiency, 1.0, "Adequate"},
		{LeverageEfficiency, 0.99, "Poor"},
		{LeverageEfficiency, -3, "Poor"},
		{RevenueQualityGrade, 0.80, "A"},
		{RevenueQualityGrade, 0.65, "B"},
		{RevenueQualityGrade, 0.50, "C"},
		{RevenueQualityGrade, 0.35, "D"},
		{RevenueQualityGrade, 0.3499, "F"},
		{SupportGrade, 0.90, "A"},
		{SupportGrade, 0.6, "D"},
		{SupportGrade, 0.1, "F"},

		// Explicitly open lower bounds.
		{MomentumRating, 0.10, "Moderate"},
		{MomentumRating, 0.1001, "Strong"},
		{MomentumRating, 0.05, "Moderate"},
		{MomentumRating, 0, "Weak"},
		{MomentumRating, -0.0001, "Declining"},
		{OrganicGrowth, 0.15, "Strong"},
		{OrganicGrowth, 0.1501, "Exceptional"},
		{OrganicGrowth, 0.0883, "Moderate"},
		{OrganicGrowth, 0, "Weak"},
		{OrganicGrowth, -0.01, "Declining"},
		{ConcentrationRisk, 0.1499, "LOW"},
		{ConcentrationRisk, 0.15, "MEDIUM"},
		{ConcentrationRisk, 0.25, "MEDIUM"},
		{ConcentrationRisk, 0.2501, "HIGH"},
		{GiniConcentration, 0.2499, "Low"},
		{GiniConcentration, 0.25, "Moderate"},
		{GiniConcentration, 0.40, "Moderate"},
		{GiniConcentration, 0.41, "High"},
		{TransformationState, 3.0, "Progressing"},
		{TransformationState, 3.01, "Successful"},
		{TransformationState, 1.0, "Progressing"},
		{TransformationState, 0.5, "Failing"},
		{LifecycleStage, 0.15, StageMature},
		{LifecycleStage, 0.16, StageHigh},
		{LifecycleStage, 0, StageMature},
		{LifecycleStage, -0.02, StageDeclining},
	}

	for _, tt := range tests {
		if got := Classify(tt.metric, tt.value); got != tt.want {
			t.Errorf("Classify(%s, %v) = %q, want %q", tt.metric, tt.value, got, tt.want)
		}
	}
}

func TestClassify_UnknownMetricPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown metric")
		}
	}()
	Classify("no_such_metric", 1)
}

// ─────────────────────────────────────────────────────────────────────────────
// Table invariants
// ─────────────────────────────────────────────────────────────────────────────

func TestTables_DescendingBounds(t *testing.T) {
	t.Parallel()
	for _, name := range Metrics() {
		tbl, ok := Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) missing", name)
		}
		if tbl.Metric != name {
			t.Errorf("table %q registered under %q", tbl.Metric, name)
		}
		if len(tbl.Bands) < 2 {
			t.Errorf("table %q has %d bands, want at least 2", name, len(tbl.Bands))
			continue
		}
		for i := 1; i < len(tbl.Bands)-1; i++ {
			if tbl.Bands[i].Min >= tbl.Bands[i-1].Min {
				t.Errorf("table %q: band %q (min %v) not below %q (min %v)",
					name, tbl.Bands[i].Label, tbl.Bands[i].Min, tbl.Bands[i-1].Label, tbl.Bands[i-1].Min)
			}
		}
	}
}

func TestTable_Labels(t *testing.T) {
	t.Parallel()
	tbl, _ := Lookup(HealthRisk)
	got := tbl.Labels()
	want := []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}
	if len(got) != len(want) {
		t.Fatalf("Labels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Labels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle quality
// ─────────────────────────────────────────────────────────────────────────────

func TestLifecycleQuality(t *testing.T) {
	t.Parallel()
	tests := []struct {
		high, declining float64
		want            string
	}{
		{0.45, 0.10, "Excellent"},
		{0.45, 0.20, "Good"}, // declining share not strictly below 0.20
		{0.35, 0.22, "Good"},
		{0.35, 0.30, "Fair"},
		{0.25, 0.50, "Fair"},
		{0.20, 0.00, "Poor"},
		{0.00, 0.00, "Poor"},
	}
	for _, tt := range tests {
		if got := LifecycleQuality(tt.high, tt.declining); got != tt.want {
			t.Errorf("LifecycleQuality(%v, %v) = %q, want %q", tt.high, tt.declining, got, tt.want)
		}
	}
}
