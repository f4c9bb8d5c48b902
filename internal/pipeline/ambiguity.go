package pipeline

import (
	"strings"
	"unicode"
)

// ClarificationMessage is returned for input the pipeline cannot parse
const ClarificationMessage = "I'm not sure what you mean. Could you rephrase that with a bit more detail?"

// fillers carry no request on their own. An utterance built only from
// these words has nothing to classify. Affirmations and negations are
// left out: they answer the confirmation question.
var fillers = map[string]bool{
	"a": true, "ah": true, "and": true, "anyway": true, "but": true,
	"eh": true, "er": true, "hm": true, "hmm": true, "huh": true,
	"like": true, "meh": true, "not": true, "oh": true, "or": true,
	"so": true, "the": true, "then": true, "uh": true, "um": true,
	"umm": true, "well": true, "what": true, "whatever": true,
}

// Ambiguity reports why input fails the structural check, or "" when the
// input is clear enough to classify. It never calls a collaborator.
func Ambiguity(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "empty input"
	}

	words := strings.FieldsFunc(strings.ToLower(trimmed), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	if len(words) == 0 {
		return "no words"
	}

	alnum := 0
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if alnum < 2 {
		return "too short"
	}

	for _, w := range words {
		if !fillers[strings.Trim(w, "'")] {
			return ""
		}
	}
	return "only filler words"
}

// IsAmbiguous reports whether input fails the structural check
func IsAmbiguous(input string) bool {
	return Ambiguity(input) != ""
}
