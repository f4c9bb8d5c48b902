package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/cogito/internal/model"
	"github.com/ppiankov/cogito/internal/worker"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocks(t *testing.T) {
	facts, err := parseLocks([]string{"never_guess=true", "max_items = 3", "persona=archivist", "note=a=b"})
	require.NoError(t, err)

	assert.Equal(t, []model.LockedFact{
		{FactKey: "never_guess", Value: true},
		{FactKey: "max_items", Value: 3.0},
		{FactKey: "persona", Value: "archivist"},
		{FactKey: "note", Value: "a=b"},
	}, facts)

	_, err = parseLocks([]string{"missing-separator"})
	assert.Error(t, err)
	_, err = parseLocks([]string{"=value"})
	assert.Error(t, err)
}

func TestRegisterDefaults_EnvOverridesNestedKeys(t *testing.T) {
	t.Setenv("COGITO_LLM_PROVIDER", "ollama")
	t.Setenv("COGITO_GROUNDING_MAX_UNGROUNDED_CLAIMS", "0")
	t.Setenv("COGITO_CACHE_TTL", "90s")

	v := viper.New()
	v.SetEnvPrefix("COGITO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := model.DefaultConfig()
	require.NoError(t, registerDefaults(v, cfg))
	require.NoError(t, v.Unmarshal(cfg))

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 0, cfg.Grounding.MaxUngroundedClaims)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)

	// Untouched keys keep their defaults
	defaults := model.DefaultConfig()
	assert.Equal(t, defaults.Grounding.MinConfidence, cfg.Grounding.MinConfidence)
	assert.Equal(t, defaults.Memory.Dimensions, cfg.Memory.Dimensions)
	assert.Equal(t, defaults.Tools.Timeout, cfg.Tools.Timeout)
}

func TestApplyProviderEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")

	c := model.LLMConfig{Provider: "openai"}
	applyProviderEnv(&c)
	assert.Equal(t, "sk-test", c.APIKey)

	c = model.LLMConfig{Provider: "openai", APIKey: "from-config"}
	applyProviderEnv(&c)
	assert.Equal(t, "from-config", c.APIKey)

	c = model.LLMConfig{Provider: "ollama"}
	applyProviderEnv(&c)
	assert.Equal(t, "http://localhost:11434", c.BaseURL)
	assert.Empty(t, c.APIKey)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, model.LoggingConfig{Level: "warn", Format: "json"}, false)

	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])

	buf.Reset()
	logger = newLogger(&buf, model.LoggingConfig{Level: "error"}, true)
	logger.Debug("debug wins with verbose")
	assert.Contains(t, buf.String(), "debug wins with verbose")
}

func TestInitConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".cogito", "config.yaml")

	require.NoError(t, initConfigFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Cogito Configuration File")
	assert.Contains(t, string(data), "max_ungrounded_claims: 1")
	assert.NotContains(t, string(data), "api_key")

	err = initConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestWriteOutcomes(t *testing.T) {
	outcomes := []*worker.TurnOutcome{
		{Index: 0, Request: model.TurnRequest{UserID: "u1"}, Result: &model.TurnResult{RunID: "r1", Output: "ok", Success: true}},
		{Index: 1, Request: model.TurnRequest{UserID: "u2"}, Error: errors.New("turn cancelled")},
	}

	var buf bytes.Buffer
	failed, err := writeOutcomes(&buf, outcomes)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second batchLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "r1", first.Result.RunID)
	assert.Empty(t, first.Error)
	assert.Equal(t, "u2", second.UserID)
	assert.Equal(t, "turn cancelled", second.Error)
}

func TestPrintGrounded_Summary(t *testing.T) {
	var buf bytes.Buffer
	err := printGrounded(&buf, model.GroundedResponse{
		GroundingStatus: model.StatusUngrounded,
		Check: model.GroundingCheck{
			Recommendation:   model.RecommendAskUser,
			Confidence:       0.25,
			Citations:        []model.Citation{{Type: model.CitationCanon, SourceID: "era3", Confidence: 0.95}},
			UngroundedClaims: []string{"The lighthouse was built in 1402."},
		},
	}, false)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ask_user")
	assert.Contains(t, out, "era3")
	assert.Contains(t, out, "- The lighthouse was built in 1402.")
}

func TestReadDraft(t *testing.T) {
	text, err := readDraft("-", strings.NewReader("  Era 3 began after the flood.\n"))
	require.NoError(t, err)
	assert.Equal(t, "Era 3 began after the flood.", text)

	_, err = readDraft(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	dir := t.TempDir()

	canonDoc := `
source: canon://persona
entities:
  - id: era3
    name: Era 3
    text: Era 3 began after the flood.
`
	canonPath := filepath.Join(dir, "canon.yaml")
	require.NoError(t, os.WriteFile(canonPath, []byte(canonDoc), 0o644))

	cfg := model.DefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "cogito.db")
	cfg.Canon.Paths = []string{canonPath}
	cfg.Tools.RespectRobots = false
	return cfg
}

func TestBuildApp_OfflineTurnIsPersisted(t *testing.T) {
	cfg := testConfig(t)
	a, err := buildApp(cfg, newLogger(&bytes.Buffer{}, cfg.Logging, false))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 1, a.canon.Len())
	assert.Equal(t, []string{"web_fetch", "memory_recall", "canon_lookup"}, a.registry.Names())

	ctx := context.Background()
	result, err := a.pipeline.RunTurn(ctx, model.TurnRequest{Input: "What is Era 3?", UserID: "u1"})
	require.NoError(t, err)

	assert.False(t, result.Ambiguous)
	assert.Contains(t, result.Output, "flood")
	require.NotEmpty(t, result.RunID)

	rec, err := a.store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.UserID)
}

func TestBuildApp_StoredLocksReachThePlanner(t *testing.T) {
	cfg := testConfig(t)
	a, err := buildApp(cfg, newLogger(&bytes.Buffer{}, cfg.Logging, false))
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.store.LockFact(ctx, "s1", model.LockedFact{FactKey: "never_guess", Value: true}))

	result, err := a.pipeline.RunTurn(ctx, model.TurnRequest{Input: "Who built the tower?", UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)

	require.NotNil(t, result.State)
	require.NotNil(t, result.State.Plan)
	assert.True(t, result.State.Plan.IsRefusal())
}

func TestBuildApp_BadCanonPathFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Canon.Paths = []string{filepath.Join(t.TempDir(), "missing")}

	_, err := buildApp(cfg, newLogger(&bytes.Buffer{}, cfg.Logging, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load canon")
}
