package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/cogito/internal/cache"
	"github.com/ppiankov/cogito/internal/canon"
	"github.com/ppiankov/cogito/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCanon(t *testing.T) *canon.Store {
	t.Helper()
	store := canon.NewStore(nil, nil)
	require.NoError(t, store.Add(
		canon.Entity{ID: "Era3", Name: "Era 3", Text: "Era 3 began after the flood.", Tier: model.TierPrimary},
		canon.Entity{ID: "archive", Name: "Grand Archive", Aliases: []string{"The Vault"}, Text: "The archive holds every ledger.", Tier: model.TierSecondary},
	))
	return store
}

func TestCanonResolver_CitesEntities(t *testing.T) {
	r := NewCanonResolver(newCanon(t), nil, nil)

	citations := r.Resolve(context.Background(), model.Claim{Text: "Era 3 is important"}, []string{"Era 3", "Era3", "Era"}, nil)

	require.Len(t, citations, 1)
	c := citations[0]
	assert.Equal(t, model.CitationCanon, c.Type)
	assert.Equal(t, "Era3", c.SourceID)
	assert.InDelta(t, 0.95, c.Confidence, 1e-9)
	assert.Equal(t, "primary", c.Metadata["tier"])
}

func TestCanonResolver_AliasScalesConfidence(t *testing.T) {
	r := NewCanonResolver(newCanon(t), nil, nil)

	citations := r.Resolve(context.Background(), model.Claim{Text: "The Vault is old"}, []string{"The Vault"}, nil)

	require.Len(t, citations, 1)
	assert.InDelta(t, 0.85*canon.QualityAlias, citations[0].Confidence, 1e-9)
}

func TestCanonResolver_NoMatchIsEmptyNotNil(t *testing.T) {
	r := NewCanonResolver(newCanon(t), nil, nil)

	citations := r.Resolve(context.Background(), model.Claim{Text: "Nothing relevant here"}, nil, nil)

	assert.NotNil(t, citations)
	assert.Empty(t, citations)
}

type countingSource struct {
	inner *canon.Store
	calls int
}

func (s *countingSource) Match(terms []string) []canon.Match {
	s.calls++
	return s.inner.Match(terms)
}

func (s *countingSource) Version() uint64 {
	return s.inner.Version()
}

func TestCanonResolver_CachesByCanonVersion(t *testing.T) {
	store := newCanon(t)
	source := &countingSource{inner: store}
	r := NewCanonResolver(source, cache.NewMemoryCache(time.Minute, time.Minute), nil)

	claim := model.Claim{Text: "Era 3 is important"}
	first := r.Resolve(context.Background(), claim, []string{"Era3"}, nil)
	second := r.Resolve(context.Background(), claim, []string{"Era3"}, nil)

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, first, second)

	require.NoError(t, store.Add(canon.Entity{ID: "mira"}))
	r.Resolve(context.Background(), claim, []string{"Era3"}, nil)
	assert.Equal(t, 2, source.calls)
}

type panickingSource struct{}

func (panickingSource) Match([]string) []canon.Match { panic("index corrupted") }

func (panickingSource) Version() uint64 { return 0 }

func TestCanonResolver_RecoversPanics(t *testing.T) {
	r := NewCanonResolver(panickingSource{}, nil, nil)

	var citations []model.Citation
	assert.NotPanics(t, func() {
		citations = r.Resolve(context.Background(), model.Claim{Text: "Era 3 is important"}, []string{"Era3"}, nil)
	})
	assert.NotNil(t, citations)
	assert.Empty(t, citations)
}

func memoryConfig() model.MemoryConfig {
	cfg := model.DefaultConfig().Memory
	cfg.MinRelevance = 0.3
	cfg.MaxResults = 2
	return cfg
}

func TestMemoryResolver_RanksAndCaps(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	repo := NewInMemoryRepository(
		model.MemoryRecord{ID: "m1", UserID: "u1", Dimension: model.MemoryLongTerm, Text: "User loves Era 3 stories", CreatedAt: now},
		model.MemoryRecord{ID: "m2", UserID: "u1", Dimension: model.MemoryShortTerm, Text: "Era 3 is important to the user", CreatedAt: now},
		model.MemoryRecord{ID: "m3", UserID: "u1", Dimension: model.MemoryEpisodic, Text: "Asked about Era 3", CreatedAt: now},
		model.MemoryRecord{ID: "m4", UserID: "u1", Dimension: model.MemoryShortTerm, Text: "Era 3 important", CreatedAt: now, ExpiresAt: &past},
		model.MemoryRecord{ID: "m5", UserID: "u2", Dimension: model.MemoryLongTerm, Text: "Era 3 is important", CreatedAt: now},
		model.MemoryRecord{ID: "m6", UserID: "u1", Dimension: model.MemoryLongTerm, Text: "Likes tea", CreatedAt: now},
	)
	r := NewMemoryResolver(repo, memoryConfig(), nil)

	citations := r.Resolve(context.Background(),
		model.Claim{Text: "Era 3 is important"},
		[]string{"Era 3", "Era3", "Era"},
		&model.TurnContext{UserID: "u1"})

	require.Len(t, citations, 2)
	assert.Equal(t, "m2", citations[0].SourceID)
	for _, c := range citations {
		assert.Equal(t, model.CitationMemory, c.Type)
		assert.LessOrEqual(t, c.Confidence, MemoryConfidenceCap)
		assert.NotEqual(t, "m4", c.SourceID)
		assert.NotEqual(t, "m5", c.SourceID)
		assert.NotEqual(t, "m6", c.SourceID)
	}
}

func TestMemoryResolver_DimensionSelection(t *testing.T) {
	repo := NewInMemoryRepository(
		model.MemoryRecord{ID: "lt", UserID: "u1", Dimension: model.MemoryLongTerm, Text: "Era 3 is important"},
		model.MemoryRecord{ID: "ep", UserID: "u1", Dimension: model.MemoryEpisodic, Text: "Era 3 is important"},
	)
	r := NewMemoryResolver(repo, memoryConfig(), nil).WithDimensions(model.MemoryEpisodic)

	citations := r.Resolve(context.Background(), model.Claim{Text: "Era 3 is important"}, []string{"Era3"}, &model.TurnContext{UserID: "u1"})

	require.Len(t, citations, 1)
	assert.Equal(t, "ep", citations[0].SourceID)
	assert.Equal(t, "episodic", citations[0].Metadata["dimension"])
}

func TestMemoryResolver_RequiresUser(t *testing.T) {
	repo := NewInMemoryRepository(model.MemoryRecord{ID: "m", UserID: "u1", Dimension: model.MemoryLongTerm, Text: "Era 3 is important"})
	r := NewMemoryResolver(repo, memoryConfig(), nil)

	assert.Empty(t, r.Resolve(context.Background(), model.Claim{Text: "Era 3 is important"}, nil, nil))
	assert.Empty(t, r.Resolve(context.Background(), model.Claim{Text: "Era 3 is important"}, nil, &model.TurnContext{}))
}

type failingRepo struct{ InMemoryRepository }

func (*failingRepo) GetLongTermByUserID(context.Context, string, int) ([]model.MemoryRecord, error) {
	return nil, errors.New("db locked")
}

func TestMemoryResolver_FetchErrorSkipsDimension(t *testing.T) {
	repo := &failingRepo{}
	repo.Add(model.MemoryRecord{ID: "st", UserID: "u1", Dimension: model.MemoryShortTerm, Text: "Era 3 is important"})
	r := NewMemoryResolver(repo, memoryConfig(), nil)

	citations := r.Resolve(context.Background(), model.Claim{Text: "Era 3 is important"}, []string{"Era3"}, &model.TurnContext{UserID: "u1"})

	require.Len(t, citations, 1)
	assert.Equal(t, "st", citations[0].SourceID)
}

func TestMemoryConfidence_CappedBelowCanon(t *testing.T) {
	assert.InDelta(t, 0.4, MemoryConfidence(0.5), 1e-9)
	assert.Equal(t, MemoryConfidenceCap, MemoryConfidence(1))
	assert.Less(t, MemoryConfidence(1), model.TierTertiary.Ceiling())
}
