package pipeline

import "github.com/ppiankov/cogito/internal/model"

// Notes appended to drafts the gate did not fully accept
const (
	UnverifiedNote  = "Note: parts of this answer could not be verified against known sources."
	ConfirmQuestion = "I couldn't verify everything above. Can you confirm it matches what you know?"
	BlockedMessage  = "I can't share that answer because I couldn't verify it against trusted sources."
)

// finalOutput applies the grounding recommendation to the draft. Fixed
// messages pass through untouched.
func finalOutput(draft string, fixed bool, check model.GroundingCheck) string {
	if fixed {
		return draft
	}

	switch check.Recommendation {
	case model.RecommendAllow:
		return draft
	case model.RecommendWarn:
		return appendNote(draft, UnverifiedNote)
	case model.RecommendAskUser:
		return appendNote(draft, ConfirmQuestion)
	case model.RecommendBlock:
		return BlockedMessage
	default:
		return appendNote(draft, UnverifiedNote)
	}
}

func appendNote(draft, note string) string {
	if draft == "" {
		return note
	}
	return draft + "\n\n" + note
}
