package model

// Recommendation is what the grounding gate advises doing with a draft
type Recommendation string

const (
	RecommendAllow   Recommendation = "allow"
	RecommendWarn    Recommendation = "warn"
	RecommendAskUser Recommendation = "ask_user"
	RecommendBlock   Recommendation = "block"
)

// GroundingStatus is the display-level simplification of a grounding check
type GroundingStatus string

const (
	StatusGrounded   GroundingStatus = "grounded"
	StatusUngrounded GroundingStatus = "ungrounded"
	StatusUncertain  GroundingStatus = "uncertain"
	StatusBlocked    GroundingStatus = "blocked"
)

// CanonMode says how strictly the persona canon is applied to a session
type CanonMode string

const (
	CanonStrict  CanonMode = "strict"
	CanonRelaxed CanonMode = "relaxed"
	CanonOff     CanonMode = "off"
)

// GroundingRequirements is per-request grounding policy. The gate never fills
// these in itself; callers decide them per session and mode.
type GroundingRequirements struct {
	CanonMode           CanonMode `json:"canon_mode" yaml:"canon_mode" mapstructure:"canon_mode"`
	RequireCitations    bool      `json:"require_citations" yaml:"require_citations" mapstructure:"require_citations"`
	MinConfidence       float64   `json:"min_confidence" yaml:"min_confidence" mapstructure:"min_confidence"`
	AllowUnknown        bool      `json:"allow_unknown" yaml:"allow_unknown" mapstructure:"allow_unknown"`
	MaxUngroundedClaims int       `json:"max_ungrounded_claims" yaml:"max_ungrounded_claims" mapstructure:"max_ungrounded_claims"`
}

// GroundingCheck is the gate's verdict on one draft response
type GroundingCheck struct {
	Passed           bool                  `json:"passed"`
	Citations        []Citation            `json:"citations"`
	Confidence       float64               `json:"confidence"`
	UngroundedClaims []string              `json:"ungrounded_claims"`
	Recommendation   Recommendation        `json:"recommendation"`
	Reason           string                `json:"reason"`
	Claims           []Claim               `json:"claims,omitempty"`
	ClaimCitations   map[string][]Citation `json:"claim_citations,omitempty"`
}

// GroundedResponse pairs a check with its derived display status
type GroundedResponse struct {
	Text            string          `json:"text"`
	GroundingStatus GroundingStatus `json:"grounding_status"`
	Check           GroundingCheck  `json:"check"`
}
