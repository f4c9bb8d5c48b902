package model

import "fmt"

// IntentCategory classifies what the user wants from a turn
type IntentCategory string

const (
	IntentQuery   IntentCategory = "query"   // User asks for information
	IntentCommand IntentCategory = "command" // User asks the agent to do something
	IntentOther   IntentCategory = "other"   // Small talk, unclear requests
)

// Valid reports whether c is one of the known categories
func (c IntentCategory) Valid() bool {
	switch c {
	case IntentQuery, IntentCommand, IntentOther:
		return true
	}
	return false
}

// ParseIntentCategory maps a gateway label onto a category, defaulting to other
func ParseIntentCategory(s string) IntentCategory {
	c := IntentCategory(s)
	if c.Valid() {
		return c
	}
	return IntentOther
}

// Intent is the classified meaning of a single utterance. It is produced once
// per turn and never modified afterwards.
type Intent struct {
	Category       IntentCategory `json:"category" validate:"required,oneof=query command other"`
	Confidence     float64        `json:"confidence" validate:"gte=0,lte=1"`
	RequiresMemory bool           `json:"requires_memory"`
}

func (i Intent) String() string {
	return fmt.Sprintf("%s(%.2f)", i.Category, i.Confidence)
}
