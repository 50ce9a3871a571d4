package finance

import (
	"fmt"
	"math"

	"github.com/MrWong99/finengine/internal/finance/rating"
)

// SupportRequest is the input of [SupportEfficiencyScore].
type SupportRequest struct {
	FCRCurrent          float64
	SLACompliance       float64
	HandlingTimePrior   float64
	HandlingTimeCurrent float64
}

// SupportResult is the output of [SupportEfficiencyScore].
type SupportResult struct {
	EfficiencyScore float64 `json:"efficiency_score"`
	FCRCurrent      float64 `json:"fcr_current"`
	TimeImprovement float64 `json:"time_improvement"`
	SLACompliance   float64 `json:"sla_compliance"`
	ResolutionScore float64 `json:"resolution_score"`
	Grade           string  `json:"grade"`
	Interpretation  string  `json:"interpretation"`
}

// SupportEfficiencyScore blends first-contact resolution and handling-time
// improvement (40%) with SLA compliance (60%).
func SupportEfficiencyScore(req SupportRequest) (*SupportResult, error) {
	improvement, err := divide(req.HandlingTimePrior-req.HandlingTimeCurrent, req.HandlingTimePrior, "handling_time_prior")
	if err != nil {
		return nil, err
	}

	resolution := 0.7*req.FCRCurrent + 0.3*improvement
	score := 0.4*resolution + 0.6*req.SLACompliance
	grade := rating.Classify(rating.SupportGrade, score)

	trend := "improved"
	if improvement < 0 {
		trend = "worsened"
	}
	return &SupportResult{
		EfficiencyScore: score,
		FCRCurrent:      req.FCRCurrent,
		TimeImprovement: improvement,
		SLACompliance:   req.SLACompliance,
		ResolutionScore: resolution,
		Grade:           grade,
		Interpretation: fmt.Sprintf("Grade %s support efficiency: handling time %s by %.1f%%, first-contact resolution %.1f%%, SLA compliance %.1f%%",
			grade, trend, math.Abs(improvement)*100, req.FCRCurrent*100, req.SLACompliance*100),
	}, nil
}
