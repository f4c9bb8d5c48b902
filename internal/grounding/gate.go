package grounding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/cogito/internal/canon"
	"github.com/ppiankov/cogito/internal/extract"
	"github.com/ppiankov/cogito/internal/model"
	"github.com/ppiankov/cogito/internal/resolve"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// FailOpenMarker is the single ungrounded-claim entry of a fail-open check
const FailOpenMarker = "validation failed"

// ContextMemoryConfidence is the fixed confidence of citations synthesized
// from memories attached to the turn context
const ContextMemoryConfidence = 0.5

// ClaimSource splits a draft into claims
type ClaimSource interface {
	Extract(text string) []model.Claim
}

// Gate decides whether a draft response may reach the user
type Gate struct {
	canon     resolve.Resolver
	memory    resolve.Resolver
	extractor ClaimSource
	scorer    *Scorer
	workers   int
	logger    *slog.Logger
}

// Option configures a Gate
type Option func(*Gate)

// WithMemory adds the memory resolver consulted when canon has nothing
func WithMemory(r resolve.Resolver) Option {
	return func(g *Gate) { g.memory = r }
}

// WithExtractor replaces the claim extractor
func WithExtractor(e ClaimSource) Option {
	return func(g *Gate) { g.extractor = e }
}

// WithWorkers bounds concurrent per-claim resolution; 1 resolves sequentially
func WithWorkers(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithLogger sets the gate's logger
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate creates a grounding gate over a canon resolver
func NewGate(canonResolver resolve.Resolver, opts ...Option) *Gate {
	g := &Gate{
		canon:     canonResolver,
		extractor: extract.NewClaimExtractor(),
		scorer:    NewScorer(),
		workers:   4,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateResponse extracts claims from text, resolves each against canon,
// memory and context, and recommends what to do with the draft. It never
// returns an error: internal failures fail open to a visible warning.
func (g *Gate) ValidateResponse(ctx context.Context, text string, req model.GroundingRequirements, rctx *model.TurnContext) (check model.GroundingCheck) {
	ctx, span := otel.Tracer("cogito.grounding").Start(ctx, "grounding.ValidateResponse",
		trace.WithAttributes(
			attribute.String("canon_mode", string(req.CanonMode)),
			attribute.Int("text_len", len(text)),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			check = g.failOpen(fmt.Errorf("panic: %v", r), debug.Stack())
		}
		validationDuration.Observe(time.Since(start).Seconds())
		recommendations.WithLabelValues(string(check.Recommendation)).Inc()
		span.SetAttributes(
			attribute.String("recommendation", string(check.Recommendation)),
			attribute.Float64("confidence", check.Confidence),
		)
	}()

	// 1. Extract claims
	claims := g.extractor.Extract(text)
	claimsPerResponse.Observe(float64(len(claims)))

	// 2. Resolve sources per claim, fanned out but kept in claim order
	perClaim, err := g.resolveAll(ctx, claims, req, rctx)
	if err != nil {
		return g.failOpen(err, nil)
	}

	cited := make(map[string][]model.Citation, len(claims))
	var all []model.Citation
	for i, claim := range claims {
		cs := model.DedupeCitations(perClaim[i])
		cited[claim.ID] = cs
		all = append(all, cs...)
	}

	// 3. Score
	verdict := g.scorer.Score(claims, cited, req)

	check = model.GroundingCheck{
		Passed:           verdict.Recommendation == model.RecommendAllow || verdict.Recommendation == model.RecommendWarn,
		Citations:        model.DedupeCitations(all),
		Confidence:       verdict.Confidence,
		UngroundedClaims: verdict.Ungrounded,
		Recommendation:   verdict.Recommendation,
		Reason:           verdict.Reason,
		Claims:           claims,
		ClaimCitations:   cited,
	}

	g.logger.Debug("grounding check",
		"claims", len(claims),
		"citations", len(check.Citations),
		"confidence", check.Confidence,
		"recommendation", check.Recommendation)

	return check
}

// GroundResponse runs ValidateResponse and derives a display status
func (g *Gate) GroundResponse(ctx context.Context, text string, req model.GroundingRequirements, rctx *model.TurnContext) model.GroundedResponse {
	check := g.ValidateResponse(ctx, text, req, rctx)
	return model.GroundedResponse{
		Text:            text,
		GroundingStatus: Status(check),
		Check:           check,
	}
}

func (g *Gate) resolveAll(ctx context.Context, claims []model.Claim, req model.GroundingRequirements, rctx *model.TurnContext) ([][]model.Citation, error) {
	results := make([][]model.Citation, len(claims))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	for i, claim := range claims {
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("resolve claim %d: panic: %v", i, r)
				}
			}()
			results[i] = g.resolveClaim(egCtx, claim, req, rctx)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve claims: %w", err)
	}
	return results, nil
}

// resolveClaim applies canon-first, memory-second, context-third precedence
func (g *Gate) resolveClaim(ctx context.Context, claim model.Claim, req model.GroundingRequirements, rctx *model.TurnContext) []model.Citation {
	if !claim.ClaimType.RequiresGrounding() {
		return nil
	}

	entities := claim.RelatedEntities

	if g.canon != nil && req.CanonMode != model.CanonOff {
		cs := g.canon.Resolve(ctx, claim, entities, rctx)
		if req.CanonMode == model.CanonStrict {
			cs = dropTertiary(cs)
		}
		if len(cs) > 0 {
			return cs
		}
	}

	if g.memory != nil && rctx != nil && rctx.UserID != "" {
		if cs := g.memory.Resolve(ctx, claim, entities, rctx); len(cs) > 0 {
			return cs
		}
	}

	return contextCitations(entities, rctx)
}

// dropTertiary removes canon citations from tertiary sources. Citations
// without a tier are kept.
func dropTertiary(cs []model.Citation) []model.Citation {
	kept := cs[:0:0]
	for _, c := range cs {
		if tier, ok := c.Metadata["tier"].(string); ok && tier == model.TierTertiary.String() {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// contextCitations synthesizes citations from memories attached to the turn,
// keyed by entity id
func contextCitations(entities []string, rctx *model.TurnContext) []model.Citation {
	if rctx == nil || len(rctx.EntityMemories) == 0 {
		return nil
	}

	byKey := make(map[string]string, len(rctx.EntityMemories))
	for id := range rctx.EntityMemories {
		byKey[canon.Normalize(id)] = id
	}

	var citations []model.Citation
	for _, entity := range entities {
		id, ok := byKey[canon.Normalize(entity)]
		if !ok {
			continue
		}
		for _, rec := range rctx.EntityMemories[id] {
			sourceID := rec.ID
			if sourceID == "" {
				sourceID = "context:" + id
			}
			citations = append(citations, model.Citation{
				ID:         uuid.NewString(),
				Type:       model.CitationMemory,
				SourceID:   sourceID,
				SourceText: rec.Text,
				Confidence: ContextMemoryConfidence,
				Metadata: map[string]any{
					"entity": id,
					"origin": "context",
				},
			})
		}
	}
	return citations
}

func (g *Gate) failOpen(err error, stack []byte) model.GroundingCheck {
	failOpens.Inc()
	attrs := []any{"error", err}
	if stack != nil {
		attrs = append(attrs, "stack", string(stack))
	}
	g.logger.Error("grounding validation failed, failing open", attrs...)

	return FailOpenCheck(err)
}

// FailOpenCheck is the check returned when validation itself breaks
func FailOpenCheck(err error) model.GroundingCheck {
	if err == nil {
		err = errors.New("unknown error")
	}
	return model.GroundingCheck{
		Passed:           true,
		Citations:        []model.Citation{},
		Confidence:       0,
		UngroundedClaims: []string{FailOpenMarker},
		Recommendation:   model.RecommendWarn,
		Reason:           FailOpenMarker + ": " + err.Error(),
	}
}
