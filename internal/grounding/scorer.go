package grounding

import (
	"fmt"

	"github.com/ppiankov/cogito/internal/model"
)

// Contribution is one claim's share of the overall confidence
type Contribution struct {
	ClaimID   string  `json:"claim_id"`
	Value     float64 `json:"value"`
	Grounded  bool    `json:"grounded"`
	Citations int     `json:"citations"`
	Reason    string  `json:"reason"`
}

// Verdict is the scorer's aggregate result
type Verdict struct {
	Confidence     float64              `json:"confidence"`
	Ungrounded     []string             `json:"ungrounded"`
	Contributions  []Contribution       `json:"contributions"`
	Recommendation model.Recommendation `json:"recommendation"`
	Reason         string               `json:"reason"`
}

// Scorer turns per-claim citations into a confidence and a recommendation
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score aggregates claims in order. cited maps claim id to its citations.
func (s *Scorer) Score(claims []model.Claim, cited map[string][]model.Citation, req model.GroundingRequirements) Verdict {
	v := Verdict{
		Ungrounded:    []string{},
		Contributions: make([]Contribution, 0, len(claims)),
	}

	// 1. Per-claim contribution
	total := 0.0
	for _, claim := range claims {
		c := s.contribution(claim, cited[claim.ID])
		if !c.Grounded {
			v.Ungrounded = append(v.Ungrounded, claim.Text)
		}
		total += c.Value
		v.Contributions = append(v.Contributions, c)
	}

	// 2. Overall confidence
	v.Confidence = 1.0
	if len(claims) > 0 {
		v.Confidence = total / float64(len(claims))
	}

	// 3. Recommendation
	v.Recommendation, v.Reason = s.Recommend(req, len(v.Ungrounded), v.Confidence)

	return v
}

func (s *Scorer) contribution(claim model.Claim, citations []model.Citation) Contribution {
	c := Contribution{ClaimID: claim.ID, Citations: len(citations)}

	switch {
	case len(citations) > 0:
		sum := 0.0
		for _, cit := range citations {
			sum += cit.Confidence
		}
		c.Value = sum / float64(len(citations))
		c.Grounded = true
		c.Reason = fmt.Sprintf("mean of %d citation(s)", len(citations))
	case !claim.ClaimType.RequiresGrounding():
		c.Value = 1.0
		c.Grounded = true
		c.Reason = "uncertainty admission"
	default:
		c.Reason = "no supporting source"
	}

	return c
}

// Recommend applies the fixed precedence block > warn > ask_user > allow.
// A zero-tolerance policy (max 0 ungrounded) asks the user about an
// ungrounded claim unless confidence is also below the minimum, in which
// case block still wins.
func (s *Scorer) Recommend(req model.GroundingRequirements, ungrounded int, confidence float64) (model.Recommendation, string) {
	exceeded := req.RequireCitations && ungrounded > req.MaxUngroundedClaims
	lowConfidence := confidence < req.MinConfidence

	switch {
	case exceeded && (lowConfidence || req.MaxUngroundedClaims > 0):
		return model.RecommendBlock, fmt.Sprintf("%d ungrounded claim(s) exceed the maximum of %d", ungrounded, req.MaxUngroundedClaims)
	case lowConfidence:
		return model.RecommendWarn, fmt.Sprintf("confidence %.2f below minimum %.2f", confidence, req.MinConfidence)
	case ungrounded >= 1 && req.MaxUngroundedClaims == 0:
		return model.RecommendAskUser, fmt.Sprintf("%d ungrounded claim(s) need user confirmation", ungrounded)
	default:
		return model.RecommendAllow, "all requirements met"
	}
}

// Status is the display-level simplification of a check
func Status(check model.GroundingCheck) model.GroundingStatus {
	switch {
	case check.Recommendation == model.RecommendBlock:
		return model.StatusBlocked
	case check.Confidence < UncertainThreshold:
		return model.StatusUncertain
	case len(check.UngroundedClaims) > 0:
		return model.StatusUngrounded
	default:
		return model.StatusGrounded
	}
}

// UncertainThreshold is the confidence below which a response displays as uncertain
const UncertainThreshold = 0.7
