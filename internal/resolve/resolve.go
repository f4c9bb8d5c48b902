package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ppiankov/cogito/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// resolverFaults counts recovered panics and collaborator errors
	resolverFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_resolver_faults_total",
		Help: "Source resolver faults converted to empty results",
	}, []string{"resolver"})

	// resolverCitations counts citations produced per resolver
	resolverCitations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_resolver_citations_total",
		Help: "Citations produced by source resolvers",
	}, []string{"resolver"})
)

// Resolver answers "what authoritative text supports this claim?" for one
// source class. Implementations return an empty slice when nothing matches
// and never return errors or panic.
type Resolver interface {
	Resolve(ctx context.Context, claim model.Claim, entities []string, rctx *model.TurnContext) []model.Citation
}

// guard converts a panic inside fn into an empty result
func guard(logger *slog.Logger, name string, fn func() []model.Citation) (citations []model.Citation) {
	defer func() {
		if r := recover(); r != nil {
			resolverFaults.WithLabelValues(name).Inc()
			logger.Error("resolver panic recovered",
				"resolver", name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			citations = []model.Citation{}
		}
	}()

	citations = fn()
	if citations == nil {
		citations = []model.Citation{}
	}
	resolverCitations.WithLabelValues(name).Add(float64(len(citations)))
	return citations
}
