package canon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/cogito/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorityClassifier_Classify(t *testing.T) {
	classifier := NewAuthorityClassifier(model.AuthorityConfig{
		PrimaryDomains:   []string{"canon", "lore.example.com"},
		SecondaryDomains: []string{"wiki.example.com"},
		PathPatterns: []model.PathPattern{
			{Pattern: `/official/`, Tier: "secondary"},
			{Pattern: `[`, Tier: "primary"}, // Invalid, skipped
		},
		DomainMap: map[string]string{"notes.example.com": "primary"},
	})

	tests := []struct {
		source   string
		expected model.AuthorityTier
	}{
		{"canon://persona/world", model.TierPrimary},
		{"https://lore.example.com/era3", model.TierPrimary},
		{"https://www.lore.example.com/era3", model.TierPrimary},
		{"https://wiki.example.com/Era_3", model.TierSecondary},
		{"https://notes.example.com/x", model.TierPrimary},
		{"https://WIKI.example.com:8443/Era_3", model.TierSecondary},
		{"canon/official/eras.yaml", model.TierSecondary},
		{"https://forum.example.org/thread/1", model.TierTertiary},
		{"/srv/canon/eras.yaml", model.TierPrimary},
		{"", model.TierTertiary},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.Classify(tt.source))
		})
	}
}

func TestAuthorityClassifier_DefaultConfigTrustsCanon(t *testing.T) {
	classifier := NewAuthorityClassifier(model.DefaultConfig().Canon.Authority)

	tests := []struct {
		source   string
		expected model.AuthorityTier
	}{
		{"canon://persona/world", model.TierPrimary},
		{"canon://persona", model.TierPrimary},
		{"CANON://persona", model.TierPrimary},
		{"canon/eras.yaml", model.TierPrimary},
		{"https://forum.example.org/thread/1", model.TierTertiary},
		{"", model.TierTertiary},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.Classify(tt.source))
		})
	}
}

func TestStore_LoadPathsDefaultTierIsPrimary(t *testing.T) {
	dir := t.TempDir()
	yamlDoc := `
entities:
  - id: flood
    name: The Flood
    aliases: [Great Flood]
    text: The flood ended Era 2.
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eras.yaml"), []byte(yamlDoc), 0o644))

	store := NewStore(NewAuthorityClassifier(model.DefaultConfig().Canon.Authority), nil)
	require.NoError(t, store.LoadPaths([]string{dir}))

	flood, ok := store.Get("flood")
	require.True(t, ok)
	assert.Equal(t, model.TierPrimary, flood.Tier)
	assert.InDelta(t, 0.95, flood.Tier.Ceiling(), 1e-9)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "era3", Normalize("Era 3"))
	assert.Equal(t, "era3", Normalize("era-3"))
	assert.Equal(t, "era3", Normalize("Era3"))
	assert.Equal(t, "", Normalize(" - "))
}

func TestStore_AddAndMatch(t *testing.T) {
	store := NewStore(nil, nil)
	require.NoError(t, store.Add(
		Entity{ID: "era3", Name: "Era 3", Aliases: []string{"Third Era"}, Text: "Era 3 began after the flood.", Tier: model.TierPrimary},
		Entity{ID: "mira", Text: "Mira keeps the archive."},
	))

	matches := store.Match([]string{"Era3", "Third Era", "Mira", "nobody"})
	require.Len(t, matches, 2)

	assert.Equal(t, "era3", matches[0].Entity.ID)
	assert.Equal(t, QualityExact, matches[0].Quality)
	assert.Equal(t, model.TierPrimary, matches[0].Entity.Tier)

	assert.Equal(t, "mira", matches[1].Entity.ID)
	assert.Equal(t, "mira", matches[1].Entity.Name)
	// No source, no explicit tier
	assert.Equal(t, model.TierTertiary, matches[1].Entity.Tier)

	aliasOnly := store.Match([]string{"third era"})
	require.Len(t, aliasOnly, 1)
	assert.Equal(t, QualityAlias, aliasOnly[0].Quality)
}

func TestStore_ReplaceReindexes(t *testing.T) {
	store := NewStore(nil, nil)
	require.NoError(t, store.Add(Entity{ID: "era3", Aliases: []string{"Old Name"}}))
	v1 := store.Version()

	require.NoError(t, store.Add(Entity{ID: "era3", Aliases: []string{"New Name"}}))

	assert.Greater(t, store.Version(), v1)
	assert.Equal(t, 1, store.Len())
	assert.Empty(t, store.Match([]string{"Old Name"}))
	assert.Len(t, store.Match([]string{"New Name"}), 1)
}

func TestStore_RejectsEntityWithoutID(t *testing.T) {
	store := NewStore(nil, nil)
	assert.Error(t, store.Add(Entity{Name: "Nameless"}))
}

func TestStore_LoadPaths(t *testing.T) {
	dir := t.TempDir()

	yamlDoc := `
source: canon://persona
tier: primary
entities:
  - id: era3
    name: Era 3
    aliases: [Third Era]
    text: Era 3 began after the flood.
  - id: rumor
    name: Tower Rumor
    text: The tower may be haunted.
    tier: tertiary
`
	htmlDoc := `<html><head><title>x</title><script>var s = 1;</script></head>
<body><p>The Grand Archive holds every ledger.</p></body></html>`

	require.NoError(t, os.WriteFile(filepath.Join(dir, "eras.yaml"), []byte(yamlDoc), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "grand-archive.html"), []byte(htmlDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))

	classifier := NewAuthorityClassifier(model.AuthorityConfig{PrimaryDomains: []string{"canon"}})
	store := NewStore(classifier, nil)
	require.NoError(t, store.LoadPaths([]string{dir}))

	assert.Equal(t, 3, store.Len())

	era, ok := store.Get("era3")
	require.True(t, ok)
	assert.Equal(t, model.TierPrimary, era.Tier)
	assert.Equal(t, "canon://persona", era.Source)

	rumor, ok := store.Get("rumor")
	require.True(t, ok)
	assert.Equal(t, model.TierTertiary, rumor.Tier)

	archive, ok := store.Get("grand-archive")
	require.True(t, ok)
	assert.Equal(t, "grand archive", archive.Name)
	assert.Contains(t, archive.Text, "every ledger")
	assert.NotContains(t, archive.Text, "var s")

	found := store.Search("tell me about the Grand Archive", 5)
	require.NotEmpty(t, found)
	assert.Equal(t, "grand-archive", found[0].ID)
}

func TestStore_LoadPathsMissing(t *testing.T) {
	store := NewStore(nil, nil)
	assert.Error(t, store.LoadPaths([]string{filepath.Join(t.TempDir(), "missing")}))
}
