package resolve

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/cogito/internal/canon"
	"github.com/ppiankov/cogito/internal/model"
)

// Memory citations are discounted against canon and capped below the lowest
// canon tier ceiling so canon-first precedence holds numerically too
const (
	MemoryDiscount      = 0.8
	MemoryConfidenceCap = 0.7
)

// MemoryRepository reads a user's memory rows per dimension. No data is an
// empty slice, not an error.
type MemoryRepository interface {
	GetLongTermByUserID(ctx context.Context, userID string, limit int) ([]model.MemoryRecord, error)
	GetShortTermByUserID(ctx context.Context, userID string, limit int) ([]model.MemoryRecord, error)
	GetEpisodicByUserID(ctx context.Context, userID string, limit int) ([]model.MemoryRecord, error)
}

// MemoryResolver cites a user's stored memories
type MemoryResolver struct {
	repo         MemoryRepository
	dimensions   []model.MemoryDimension
	minRelevance float64
	maxResults   int
	fetchLimit   int
	logger       *slog.Logger
	now          func() time.Time
}

// NewMemoryResolver creates a memory resolver from config
func NewMemoryResolver(repo MemoryRepository, cfg model.MemoryConfig, logger *slog.Logger) *MemoryResolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &MemoryResolver{
		repo:         repo,
		dimensions:   cfg.Dimensions,
		minRelevance: cfg.MinRelevance,
		maxResults:   cfg.MaxResults,
		fetchLimit:   cfg.FetchLimit,
		logger:       logger,
		now:          time.Now,
	}
	if len(r.dimensions) == 0 {
		r.dimensions = model.AllMemoryDimensions()
	}
	if r.fetchLimit <= 0 {
		r.fetchLimit = 50
	}
	return r
}

// WithDimensions restricts lookups to the given dimensions
func (r *MemoryResolver) WithDimensions(dims ...model.MemoryDimension) *MemoryResolver {
	if len(dims) > 0 {
		r.dimensions = dims
	}
	return r
}

type scoredRecord struct {
	record    model.MemoryRecord
	relevance float64
}

// Resolve returns citations for the user's memories relevant to the claim,
// highest relevance first
func (r *MemoryResolver) Resolve(ctx context.Context, claim model.Claim, entities []string, rctx *model.TurnContext) []model.Citation {
	return guard(r.logger, "memory", func() []model.Citation {
		if r.repo == nil || rctx == nil || rctx.UserID == "" {
			return nil
		}

		terms := normalizedTerms(claim.Text, entities)
		if len(terms) == 0 {
			return nil
		}

		now := r.now()
		var scored []scoredRecord
		for _, dim := range r.dimensions {
			records, err := r.fetch(ctx, dim, rctx.UserID)
			if err != nil {
				resolverFaults.WithLabelValues("memory").Inc()
				r.logger.Warn("memory fetch failed", "dimension", dim, "user_id", rctx.UserID, "error", err)
				continue
			}
			for _, rec := range records {
				if rec.Expired(now) {
					continue
				}
				rel := relevance(rec, terms)
				if rel <= 0 || rel < r.minRelevance {
					continue
				}
				if rec.Dimension == "" {
					rec.Dimension = dim
				}
				scored = append(scored, scoredRecord{record: rec, relevance: rel})
			}
		}

		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].relevance > scored[j].relevance
		})
		if r.maxResults > 0 && len(scored) > r.maxResults {
			scored = scored[:r.maxResults]
		}

		citations := make([]model.Citation, 0, len(scored))
		for _, s := range scored {
			ts := s.record.CreatedAt
			if s.record.AccessedAt != nil {
				ts = *s.record.AccessedAt
			}
			citations = append(citations, model.Citation{
				ID:         uuid.NewString(),
				Type:       model.CitationMemory,
				SourceID:   s.record.ID,
				SourceText: s.record.Text,
				Confidence: MemoryConfidence(s.relevance),
				Timestamp:  &ts,
				Metadata: map[string]any{
					"dimension": string(s.record.Dimension),
					"relevance": s.relevance,
				},
			})
		}
		return citations
	})
}

func (r *MemoryResolver) fetch(ctx context.Context, dim model.MemoryDimension, userID string) ([]model.MemoryRecord, error) {
	switch dim {
	case model.MemoryLongTerm:
		return r.repo.GetLongTermByUserID(ctx, userID, r.fetchLimit)
	case model.MemoryShortTerm:
		return r.repo.GetShortTermByUserID(ctx, userID, r.fetchLimit)
	case model.MemoryEpisodic:
		return r.repo.GetEpisodicByUserID(ctx, userID, r.fetchLimit)
	}
	return nil, nil
}

// MemoryConfidence discounts a relevance score into citation confidence
func MemoryConfidence(relevance float64) float64 {
	c := clamp(relevance) * MemoryDiscount
	if c > MemoryConfidenceCap {
		return MemoryConfidenceCap
	}
	return c
}

// relevance is the share of claim terms found in the memory text, weighted
// by the stored relevance score when one is set
func relevance(rec model.MemoryRecord, terms []string) float64 {
	text := canon.Normalize(rec.Text)
	if text == "" {
		return 0
	}

	hits := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			hits++
		}
	}

	overlap := float64(hits) / float64(len(terms))
	if rec.RelevanceScore > 0 {
		overlap *= clamp(rec.RelevanceScore)
	}
	return overlap
}

func normalizedTerms(text string, entities []string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range lookupTerms(text, entities) {
		n := canon.Normalize(t)
		if len(n) >= 2 && !seen[n] {
			seen[n] = true
			terms = append(terms, n)
		}
	}
	return terms
}
