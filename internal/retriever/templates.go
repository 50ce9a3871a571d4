package retriever

import (
	"slices"
	"strings"

	"github.com/MrWong99/finengine/internal/finance"
)

// functionPrefix is accepted in front of a calculator name and stripped.
const functionPrefix = "calculate_"

// queryTemplates phrase a search for the inputs of each calculator. %s is
// replaced by the company name.
var queryTemplates = map[string]string{
	"company_health_score":      "%s revenue growth rate, SLA compliance, customer satisfaction score, modern revenue percentage and sales pipeline coverage",
	"revenue_quality_score":     "%s revenue split into high-growth, stable and declining segments and total revenue",
	"hhi_and_diversification":   "%s revenue by business segment or product line",
	"operating_leverage":        "%s revenue growth rate and operating cost growth rate year over year",
	"portfolio_momentum":        "%s segment revenue and growth rate by business segment",
	"gini_coefficient":          "%s revenue by customer, segment or product line",
	"organic_growth":            "%s prior period and current period revenue excluding acquisitions",
	"support_efficiency_score":  "%s first contact resolution rate, support SLA compliance and average handling time",
	"growth_attribution":        "%s segment revenue for the prior fiscal year and the current fiscal year",
	"segment_growth_analysis":   "%s modern and traditional business revenue for the prior and current fiscal year",
	"lifecycle_weighted_growth": "%s segment revenue and growth rate by product lifecycle stage",
}

// CanonicalFunction returns the calculator name for name with an optional
// "calculate_" prefix removed, and whether it is known.
func CanonicalFunction(name string) (string, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), functionPrefix)
	_, ok := queryTemplates[name]
	return name, ok
}

// Functions returns the known calculator names in sorted order.
func Functions() []string {
	names := make([]string, 0, len(queryTemplates))
	for name := range queryTemplates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BuildQuery returns the search text for function and company. function may
// carry the "calculate_" prefix. Unknown functions are an invalid argument.
func BuildQuery(function, company string) (string, error) {
	name, ok := CanonicalFunction(function)
	if !ok {
		return "", finance.Invalidf("function_name must be one of the calculators, got %q", finance.Sanitize(function))
	}
	return strings.Replace(queryTemplates[name], "%s", strings.TrimSpace(company), 1), nil
}
