package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ppiankov/cogito/internal/model"
)

// DefaultMinClaimLength is the shortest sentence (in bytes, trimmed) that is
// treated as a claim; shorter fragments are noise
const DefaultMinClaimLength = 12

// ClaimExtractor extracts claims from draft response text
type ClaimExtractor struct {
	minLength   int
	uncertainty []string
	directive   []string
	procedural  []string
	stopwords   map[string]bool
}

// NewClaimExtractor creates a new claim extractor
func NewClaimExtractor() *ClaimExtractor {
	return &ClaimExtractor{
		minLength: DefaultMinClaimLength,
		uncertainty: []string{
			"don't know", "do not know", "dont know", "unknown", "not sure",
			"uncertain", "i can't confirm", "cannot confirm", "no record of",
		},
		directive: []string{
			"you should", "you must", "you need to", "please", "make sure",
			"try", "use", "do not", "don't", "always", "never", "consider",
			"remember to", "avoid", "ensure",
		},
		procedural: []string{
			"how to", "steps", "step ", "process", "first,", "to do this",
		},
		stopwords: map[string]bool{
			"The": true, "A": true, "An": true, "This": true, "That": true,
			"These": true, "Those": true, "It": true, "Its": true, "I": true,
			"We": true, "You": true, "He": true, "She": true, "They": true,
			"In": true, "On": true, "At": true, "If": true, "But": true,
			"And": true, "Or": true, "So": true, "Yes": true, "No": true,
			"Please": true, "There": true, "Here": true, "What": true,
			"When": true, "Where": true, "Why": true, "How": true, "My": true,
			"Your": true, "Our": true, "Their": true, "To": true, "For": true,
			"Of": true, "As": true, "Also": true, "However": true, "Then": true,
			"First": true, "Steps": true, "Step": true, "Use": true, "Try": true,
		},
	}
}

// WithMinLength overrides the noise filter length
func (e *ClaimExtractor) WithMinLength(n int) *ClaimExtractor {
	if n > 0 {
		e.minLength = n
	}
	return e
}

// Extract splits text into sentence claims. Offsets index text, so
// text[c.StartIdx:c.EndIdx] == c.Text for every returned claim.
func (e *ClaimExtractor) Extract(text string) []model.Claim {
	var claims []model.Claim

	for _, span := range splitSentences(text) {
		sentence := text[span.start:span.end]
		if len(sentence) < e.minLength {
			continue
		}

		claims = append(claims, model.Claim{
			ID:              uuid.NewString(),
			Text:            sentence,
			StartIdx:        span.start,
			EndIdx:          span.end,
			ClaimType:       e.Classify(sentence),
			RelatedEntities: e.Entities(sentence),
		})
	}

	return claims
}

// Classify assigns a claim type to a single sentence
func (e *ClaimExtractor) Classify(sentence string) model.ClaimType {
	lower := strings.ToLower(strings.TrimSpace(sentence))

	if strings.Contains(lower, "?") {
		return model.ClaimUncertainty
	}
	for _, phrase := range e.uncertainty {
		if strings.Contains(lower, phrase) {
			return model.ClaimUncertainty
		}
	}

	for _, marker := range e.directive {
		if hasWordPrefix(lower, marker) {
			return model.ClaimDirective
		}
	}

	for _, marker := range e.procedural {
		if strings.HasPrefix(lower, marker) {
			return model.ClaimProcedural
		}
	}

	return model.ClaimFactual
}

// Entities returns capitalized words and runs found in the sentence. This is a
// stand-in for entity linking and is known to be low precision.
func (e *ClaimExtractor) Entities(sentence string) []string {
	words := strings.FieldsFunc(sentence, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})

	var entities []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			entities = append(entities, s)
		}
	}

	// Collect runs of capitalized words, allowing a trailing number ("Era 3")
	var run []string
	flush := func() {
		if len(run) == 0 {
			return
		}
		if len(run) > 1 {
			add(strings.Join(run, " "))
			add(strings.Join(run, ""))
		}
		for _, w := range run {
			if !isNumber(w) {
				add(w)
			}
		}
		run = run[:0]
	}

	for _, w := range words {
		w = strings.Trim(w, "'-")
		switch {
		case isCapitalized(w) && !e.stopwords[w]:
			run = append(run, w)
		case isNumber(w) && len(run) > 0:
			run = append(run, w)
			flush()
		default:
			flush()
		}
	}
	flush()

	return entities
}

type sentenceSpan struct {
	start, end int
}

// splitSentences splits text on sentence terminators and newlines, returning
// trimmed spans into the original text
func splitSentences(text string) []sentenceSpan {
	var spans []sentenceSpan
	start := 0

	emit := func(end int) {
		s, e := trimSpan(text, start, end)
		if e > s {
			spans = append(spans, sentenceSpan{start: s, end: e})
		}
		start = end
	}

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			emit(i)
		case '!', '?':
			emit(i + 1)
		case '.':
			// Avoid splitting decimals and abbreviations glued to the next word
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\t' || text[i+1] == '\n' || text[i+1] == '\r' {
				emit(i + 1)
			}
		}
	}

	if start < len(text) {
		emit(len(text))
	}

	return spans
}

func trimSpan(text string, start, end int) (int, int) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return start, end
}

func hasWordPrefix(s, prefix string) bool {
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	if len(s) == len(prefix) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[len(prefix):])
	return !unicode.IsLetter(r)
}

func isCapitalized(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

func isNumber(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
