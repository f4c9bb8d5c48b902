package resolve

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/ppiankov/cogito/internal/cache"
	"github.com/ppiankov/cogito/internal/canon"
	"github.com/ppiankov/cogito/internal/model"
)

// CanonSource is the canon lookup the resolver depends on
type CanonSource interface {
	Match(terms []string) []canon.Match
	Version() uint64
}

// CanonResolver cites curated canon entities. Confidence is the source tier
// ceiling scaled by match quality.
type CanonResolver struct {
	source CanonSource
	cache  cache.Cache
	logger *slog.Logger
}

// NewCanonResolver creates a canon resolver; a nil cache disables caching
func NewCanonResolver(source CanonSource, c cache.Cache, logger *slog.Logger) *CanonResolver {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CanonResolver{
		source: source,
		cache:  c,
		logger: logger,
	}
}

// Resolve looks up the claim's entities and content tokens in the canon
func (r *CanonResolver) Resolve(ctx context.Context, claim model.Claim, entities []string, _ *model.TurnContext) []model.Citation {
	return guard(r.logger, "canon", func() []model.Citation {
		if r.source == nil || ctx.Err() != nil {
			return nil
		}

		terms := lookupTerms(claim.Text, entities)
		if len(terms) == 0 {
			return nil
		}

		key := cache.Key("canon", append([]string{strconv.FormatUint(r.source.Version(), 10)}, terms...)...)
		if cached, found := cache.GetJSON[[]model.Citation](r.cache, key); found {
			return cached
		}

		citations := r.cite(r.source.Match(terms))

		if err := cache.SetJSON(r.cache, key, citations, 0); err != nil {
			r.logger.Warn("canon cache write failed", "error", err)
		}
		return citations
	})
}

func (r *CanonResolver) cite(matches []canon.Match) []model.Citation {
	citations := make([]model.Citation, 0, len(matches))
	for _, m := range matches {
		citations = append(citations, model.Citation{
			ID:         uuid.NewString(),
			Type:       model.CitationCanon,
			SourceID:   m.Entity.ID,
			SourceText: m.Entity.Text,
			Confidence: clamp(m.Entity.Tier.Ceiling() * m.Quality),
			Metadata: map[string]any{
				"tier":   m.Entity.Tier.String(),
				"term":   m.Term,
				"source": m.Entity.Source,
			},
		})
	}
	return citations
}

// lookupTerms returns the entities followed by the claim's longer words,
// deduplicated and sorted after the entities so cache keys are stable
func lookupTerms(text string, entities []string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, e := range entities {
		if e != "" && !seen[e] {
			seen[e] = true
			terms = append(terms, e)
		}
	}

	var tokens []string
	for _, w := range contentWords(text) {
		if !seen[w] {
			seen[w] = true
			tokens = append(tokens, w)
		}
	}
	sort.Strings(tokens)

	return append(terms, tokens...)
}

// contentWords lowercases text and keeps words long enough to carry meaning
func contentWords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var out []string
	for _, w := range words {
		if len(w) >= 4 && !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

var stopwords = map[string]bool{
	"about": true, "after": true, "also": true, "been": true, "before": true,
	"could": true, "does": true, "from": true, "have": true, "into": true,
	"just": true, "more": true, "much": true, "only": true, "other": true,
	"should": true, "some": true, "such": true, "than": true, "that": true,
	"their": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "very": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "while": true, "will": true,
	"with": true, "would": true, "your": true,
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
