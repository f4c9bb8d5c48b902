package tools

import (
	"context"
	"regexp"
	"strings"

	"github.com/ppiankov/cogito/internal/canon"
	"github.com/ppiankov/cogito/internal/model"
	"github.com/ppiankov/cogito/internal/resolve"
)

// Built-in tool names
const (
	CanonLookupName  = "canon_lookup"
	MemoryRecallName = "memory_recall"
	WebFetchName     = "web_fetch"
)

const maxToolText = 4000

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// CanonLookup searches the canon store
type CanonLookup struct {
	store *canon.Store
	limit int
}

// NewCanonLookup creates the canon_lookup tool
func NewCanonLookup(store *canon.Store) *CanonLookup {
	return &CanonLookup{store: store, limit: 3}
}

func (t *CanonLookup) Name() string { return CanonLookupName }

func (t *CanonLookup) Description() string {
	return "Look up entities in the persona canon"
}

// Match applies to queries that mention something the canon knows about
func (t *CanonLookup) Match(intent model.Intent, input string) (map[string]any, bool) {
	if intent.Category != model.IntentQuery {
		return nil, false
	}
	if len(t.store.Search(input, 1)) == 0 {
		return nil, false
	}
	return map[string]any{"query": input}, true
}

// CanonHit is one canon_lookup result
type CanonHit struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Text   string `json:"text"`
	Tier   string `json:"tier"`
	Source string `json:"source,omitempty"`
}

func (t *CanonLookup) Run(_ context.Context, params map[string]any, _ *model.TurnContext) (any, error) {
	query, err := stringParam(params, "query")
	if err != nil {
		return nil, err
	}

	entities := t.store.Search(query, t.limit)
	hits := make([]CanonHit, 0, len(entities))
	for _, e := range entities {
		hits = append(hits, CanonHit{
			ID:     e.ID,
			Name:   e.Name,
			Text:   truncateText(e.Text, maxToolText),
			Tier:   e.Tier.String(),
			Source: e.Source,
		})
	}
	return map[string]any{"query": query, "entities": hits}, nil
}

// MemoryRecall reads the user's memories through the memory resolver
type MemoryRecall struct {
	resolver resolve.Resolver
}

// NewMemoryRecall creates the memory_recall tool
func NewMemoryRecall(resolver resolve.Resolver) *MemoryRecall {
	return &MemoryRecall{resolver: resolver}
}

func (t *MemoryRecall) Name() string { return MemoryRecallName }

func (t *MemoryRecall) Description() string {
	return "Recall what the user said in earlier turns"
}

var recallMarkers = []string{"remember", "last time", "i told you", "earlier", "my name", "what did i"}

// Match applies when the intent needs memory or the user refers back
func (t *MemoryRecall) Match(intent model.Intent, input string) (map[string]any, bool) {
	if intent.RequiresMemory {
		return map[string]any{"query": input}, true
	}
	lower := strings.ToLower(input)
	for _, m := range recallMarkers {
		if strings.Contains(lower, m) {
			return map[string]any{"query": input}, true
		}
	}
	return nil, false
}

// RecallHit is one memory_recall result
type RecallHit struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (t *MemoryRecall) Run(ctx context.Context, params map[string]any, rctx *model.TurnContext) (any, error) {
	query, err := stringParam(params, "query")
	if err != nil {
		return nil, err
	}

	citations := t.resolver.Resolve(ctx, model.Claim{Text: query}, nil, rctx)
	hits := make([]RecallHit, 0, len(citations))
	for _, c := range citations {
		hits = append(hits, RecallHit{ID: c.SourceID, Text: c.SourceText, Confidence: c.Confidence})
	}
	return map[string]any{"query": query, "memories": hits}, nil
}

// WebFetch reads a web page named in the input
type WebFetch struct {
	fetcher *Fetcher
}

// NewWebFetch creates the web_fetch tool
func NewWebFetch(fetcher *Fetcher) *WebFetch {
	return &WebFetch{fetcher: fetcher}
}

func (t *WebFetch) Name() string { return WebFetchName }

func (t *WebFetch) Description() string {
	return "Fetch a web page and return its visible text"
}

// Match applies when the input carries an http(s) URL
func (t *WebFetch) Match(_ model.Intent, input string) (map[string]any, bool) {
	u := urlPattern.FindString(input)
	if u == "" {
		return nil, false
	}
	return map[string]any{"url": strings.TrimRight(u, ".,;:!?)")}, true
}

func (t *WebFetch) Run(ctx context.Context, params map[string]any, _ *model.TurnContext) (any, error) {
	rawURL, err := stringParam(params, "url")
	if err != nil {
		return nil, err
	}

	result, err := t.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if len(result.Text) > maxToolText {
		result.Text = truncateText(result.Text, maxToolText)
		result.Truncated = true
	}
	return result, nil
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
