// Package finance implements the business metric calculators.
//
// Every calculator is a pure function from a typed request to a typed result.
// Requests are assumed to have passed field validation (presence, type and
// declared ranges); the calculators themselves only check the arithmetic
// preconditions of their formulas and fail with a [KindArithmetic] error
// before any division by a zero denominator. Results report percentages as
// fractions. Ties in any ranking are broken by input order.
package finance

import (
	"math"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
)

// Segment is a labelled revenue line with its year-over-year growth rate.
type Segment struct {
	Name       string  `json:"name"`
	Revenue    float64 `json:"revenue"`
	GrowthRate float64 `json:"growth_rate"`
}

// PeriodSegment is a labelled revenue line observed in two fiscal years.
type PeriodSegment struct {
	Name      string  `json:"name"`
	FYPrior   float64 `json:"fy_prior"`
	FYCurrent float64 `json:"fy_current"`
}

// divide returns num/den, or a domain error naming what when den is zero or
// too small for the quotient to be finite.
func divide(num, den float64, what string) (float64, error) {
	if den == 0 {
		return 0, Domainf("%s must be non-zero", what)
	}
	return finite(num/den, what)
}

// ratio is divide rounded to ratioDigits significant digits, so that
// 0.15/0.10 is 1.5 and lands on the inclusive side of a rating boundary.
func ratio(num, den float64, what string) (float64, error) {
	q, err := divide(num, den, what)
	if err != nil {
		return 0, err
	}
	r, _ := strconv.ParseFloat(strconv.FormatFloat(q, 'g', ratioDigits, 64), 64)
	return r, nil
}

const ratioDigits = 12

// finite rejects overflowed results; what names the input responsible.
func finite(v float64, what string) (float64, error) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, Domainf("%s is out of range: result is not a finite number", what)
	}
	return v, nil
}

// sortedCopy returns an ascending copy of vs. Summing over it makes results
// independent of the caller's ordering.
func sortedCopy(vs []float64) []float64 {
	out := slices.Clone(vs)
	slices.Sort(out)
	return out
}

func sum(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}

// roundBps rounds a basis-point figure to a whole number, half away from zero.
func roundBps(v float64) float64 {
	return decimal.NewFromFloat(v).Round(0).InexactFloat64()
}

// withinTolerance reports whether the decimal sum of parts is within
// tolerance (a fraction of want) of want.
func withinTolerance(parts []float64, want, tolerance float64) bool {
	total := decimal.Zero
	for _, p := range parts {
		total = total.Add(decimal.NewFromFloat(p))
	}
	w := decimal.NewFromFloat(want)
	limit := w.Abs().Mul(decimal.NewFromFloat(tolerance))
	return total.Sub(w).Abs().LessThanOrEqual(limit)
}
