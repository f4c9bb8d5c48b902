package model

import (
	"strings"
	"time"
)

// CitationType records where a piece of evidence came from
type CitationType string

const (
	CitationCanon      CitationType = "canon_entity"
	CitationMemory     CitationType = "memory"
	CitationToolOutput CitationType = "tool_output"
	CitationUserInput  CitationType = "user_input"
	CitationUncertain  CitationType = "uncertain"
)

// Citation links a claim to a source. Two citations with the same Key are the
// same evidence.
type Citation struct {
	ID         string         `json:"id"`
	Type       CitationType   `json:"type"`
	SourceID   string         `json:"source_id"`
	SourceText string         `json:"source_text"`
	Confidence float64        `json:"confidence"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CitationKey is the deduplication key of a citation
type CitationKey struct {
	Type     CitationType
	SourceID string
}

// Key returns the (type, source id) pair citations are deduplicated by
func (c Citation) Key() CitationKey {
	return CitationKey{Type: c.Type, SourceID: c.SourceID}
}

// DedupeCitations drops later citations whose key was already seen, keeping
// the original order
func DedupeCitations(citations []Citation) []Citation {
	seen := make(map[CitationKey]bool, len(citations))
	unique := make([]Citation, 0, len(citations))

	for _, c := range citations {
		if seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		unique = append(unique, c)
	}

	return unique
}

// AuthorityTier represents how much a canon source is trusted
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Curated canon written by the persona owners
	TierSecondary AuthorityTier = 2 // Official references, published material
	TierTertiary  AuthorityTier = 3 // Community notes, imported pages
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// Ceiling is the highest confidence a citation from this tier may carry
func (t AuthorityTier) Ceiling() float64 {
	switch t {
	case TierPrimary:
		return 0.95
	case TierSecondary:
		return 0.85
	default:
		return 0.75
	}
}

// ParseTier converts a tier string to an AuthorityTier
func ParseTier(tier string) AuthorityTier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "primary", "1":
		return TierPrimary
	case "secondary", "2":
		return TierSecondary
	case "tertiary", "3":
		return TierTertiary
	default:
		return TierTertiary
	}
}
