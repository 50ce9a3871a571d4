package finance

import (
	"fmt"

	"github.com/MrWong99/finengine/internal/finance/rating"
)

// LeverageRequest is the input of [OperatingLeverage].
type LeverageRequest struct {
	RevenueGrowthRate float64
	CostGrowthRate    float64
}

// LeverageResult is the output of [OperatingLeverage].
type LeverageResult struct {
	OperatingLeverage  float64 `json:"operating_leverage"`
	RevenueGrowthRate  float64 `json:"revenue_growth_rate"`
	CostGrowthRate     float64 `json:"cost_growth_rate"`
	MarginExpansionBps float64 `json:"margin_expansion_bps"`
	EfficiencyRating   string  `json:"efficiency_rating"`
	Interpretation     string  `json:"interpretation"`
}

// OperatingLeverage compares revenue growth with cost growth. Margin
// expansion is reported in whole basis points.
func OperatingLeverage(req LeverageRequest) (*LeverageResult, error) {
	leverage, err := ratio(req.RevenueGrowthRate, req.CostGrowthRate, "cost_growth_rate")
	if err != nil {
		return nil, err
	}

	interpretation := fmt.Sprintf("Revenue growing %.1fx faster than costs", leverage)
	if leverage < 1 {
		interpretation = fmt.Sprintf("Costs growing faster than revenue (leverage %.1fx)", leverage)
	}

	return &LeverageResult{
		OperatingLeverage:  leverage,
		RevenueGrowthRate:  req.RevenueGrowthRate,
		CostGrowthRate:     req.CostGrowthRate,
		MarginExpansionBps: roundBps((req.RevenueGrowthRate - req.CostGrowthRate) * 10000),
		EfficiencyRating:   rating.Classify(rating.LeverageEfficiency, leverage),
		Interpretation:     interpretation,
	}, nil
}
