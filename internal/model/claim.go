package model

// ClaimType categorizes the nature of an extracted claim
type ClaimType string

const (
	ClaimFactual     ClaimType = "factual"     // Asserts something about the world
	ClaimProcedural  ClaimType = "procedural"  // Describes how something is done
	ClaimDirective   ClaimType = "directive"   // Tells the user to do something
	ClaimUncertainty ClaimType = "uncertainty" // Admits not knowing; exempt from grounding
)

// RequiresGrounding reports whether a claim of this type needs a citation
func (t ClaimType) RequiresGrounding() bool {
	switch t {
	case ClaimUncertainty:
		return false
	case ClaimFactual, ClaimProcedural, ClaimDirective:
		return true
	}
	return true
}

// Claim is a single assertion-bearing sentence of a draft response.
// StartIdx and EndIdx are byte offsets into the analysed text.
type Claim struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	StartIdx        int       `json:"start_idx"`
	EndIdx          int       `json:"end_idx"`
	ClaimType       ClaimType `json:"claim_type"`
	RelatedEntities []string  `json:"related_entities,omitempty"`
}
