package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/cogito/internal/canon"
	"github.com/ppiankov/cogito/internal/grounding"
	"github.com/ppiankov/cogito/internal/llm"
	"github.com/ppiankov/cogito/internal/model"
	"github.com/ppiankov/cogito/internal/planner"
	"github.com/ppiankov/cogito/internal/resolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	calls  atomic.Int32
	intent model.Intent
	err    error
}

func (f *fakeClassifier) ClassifyIntent(context.Context, string) (model.Intent, error) {
	f.calls.Add(1)
	return f.intent, f.err
}

type fakeResponder struct {
	calls atomic.Int32
	draft string
	err   error

	mu   sync.Mutex
	last llm.ResponseRequest
}

func (f *fakeResponder) GenerateResponse(_ context.Context, req llm.ResponseRequest) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	return f.draft, f.err
}

type fakeTools struct {
	calls atomic.Int32
	out   any
	err   error
}

func (f *fakeTools) Execute(context.Context, string, map[string]any, *model.TurnContext) (any, error) {
	f.calls.Add(1)
	return f.out, f.err
}

type fakeSelector struct{ name string }

func (s fakeSelector) Select(model.Intent, string) (planner.ToolChoice, bool) {
	if s.name == "" {
		return planner.ToolChoice{}, false
	}
	return planner.ToolChoice{Name: s.name, Params: map[string]any{"query": "x"}}, true
}

func (s fakeSelector) Names() []string { return []string{s.name} }

type fakePolicy struct {
	allow    bool
	calls    atomic.Int32
	recorded []model.PolicyDecision
}

func (f *fakePolicy) Authorize(context.Context, model.PolicyRequest) (bool, string, error) {
	f.calls.Add(1)
	if f.allow {
		return true, "ok", nil
	}
	return false, "commands are disabled", nil
}

func (f *fakePolicy) RecordDecision(_ context.Context, d model.PolicyDecision) error {
	f.recorded = append(f.recorded, d)
	return nil
}

type fixedGate struct {
	calls atomic.Int32
	rec   model.Recommendation
}

func (g *fixedGate) ValidateResponse(context.Context, string, model.GroundingRequirements, *model.TurnContext) model.GroundingCheck {
	g.calls.Add(1)
	return model.GroundingCheck{
		Passed:         g.rec == model.RecommendAllow || g.rec == model.RecommendWarn,
		Recommendation: g.rec,
		Confidence:     1,
		Citations:      []model.Citation{},
	}
}

type failingStore struct{}

func (failingStore) SaveRun(context.Context, *model.RunRecord) error {
	return errors.New("disk full")
}

type harness struct {
	classifier *fakeClassifier
	responder  *fakeResponder
	tools      *fakeTools
	policy     *fakePolicy
	gate       *fixedGate
	store      *MemoryRunStore
	events     *EventRecorder
	deps       Deps
}

func newHarness(intent model.Intent, selector planner.ToolSelector) *harness {
	h := &harness{
		classifier: &fakeClassifier{intent: intent},
		responder:  &fakeResponder{draft: "Here is what I found."},
		tools:      &fakeTools{out: map[string]any{"text": "tool says hi"}},
		policy:     &fakePolicy{allow: true},
		gate:       &fixedGate{rec: model.RecommendAllow},
		store:      &MemoryRunStore{},
		events:     &EventRecorder{},
	}
	h.deps = Deps{
		Classifier: h.classifier,
		Planner:    planner.New(planner.WithSelector(selector)),
		Responder:  h.responder,
		Gate:       h.gate,
		Tools:      h.tools,
		Policy:     h.policy,
		Store:      h.store,
	}
	return h
}

func (h *harness) pipeline(t *testing.T, opts ...Option) *CognitionPipeline {
	t.Helper()
	opts = append([]Option{WithObserver(h.events)}, opts...)
	p, err := New(h.deps, opts...)
	require.NoError(t, err)
	return p
}

func query() model.Intent {
	return model.Intent{Category: model.IntentQuery, Confidence: 0.9}
}

var stageEvents = []model.EventType{
	model.EventIntent,
	model.EventPlan,
	model.EventExecution,
	model.EventGrounding,
	model.EventReflection,
}

func TestNew_RequiresCollaborators(t *testing.T) {
	h := newHarness(query(), nil)
	deps := h.deps
	deps.Classifier = nil
	_, err := New(deps)
	assert.ErrorContains(t, err, "intent classifier")

	deps = h.deps
	deps.Gate = nil
	_, err = New(deps)
	assert.ErrorContains(t, err, "grounding gate")
}

func TestRunTurn_AmbiguousShortCircuits(t *testing.T) {
	h := newHarness(query(), fakeSelector{name: "canon_lookup"})
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "so what not", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, ClarificationMessage, result.Output)
	assert.True(t, result.Ambiguous)
	assert.Empty(t, result.RunID)
	assert.Equal(t, []model.EventType{model.EventAmbiguityDetected}, h.events.Types())
	assert.Equal(t, int32(0), h.classifier.calls.Load())
	assert.Equal(t, int32(0), h.tools.calls.Load())
	assert.Equal(t, int32(0), h.responder.calls.Load())
	assert.Equal(t, int32(0), h.gate.calls.Load())
	assert.Empty(t, h.store.Records())
}

func TestRunTurn_ConfirmationReplyIsClassified(t *testing.T) {
	h := newHarness(model.Intent{Category: model.IntentOther, Confidence: 0.8}, nil)
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "yes", UserID: "u1"})
	require.NoError(t, err)

	assert.False(t, result.Ambiguous)
	assert.NotEqual(t, ClarificationMessage, result.Output)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, int32(1), h.classifier.calls.Load())
	assert.Len(t, h.store.Records(), 1)
}

func TestRunTurn_QueryWithTool(t *testing.T) {
	h := newHarness(query(), fakeSelector{name: "canon_lookup"})
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "Tell me about Era 3", UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, "Here is what I found.", result.Output)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, stageEvents, h.events.Types())
	assert.Equal(t, int32(1), h.classifier.calls.Load())
	assert.Equal(t, int32(1), h.tools.calls.Load())
	assert.Equal(t, int32(1), h.responder.calls.Load())
	assert.Contains(t, h.responder.last.ToolOutputs, "canon_lookup")

	records := h.store.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, result.RunID, rec.ID)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "s1", rec.SessionID)
	assert.True(t, rec.Success)
	assert.Equal(t, result.Output, rec.Output)
	require.NotNil(t, rec.Reflection)
	assert.Len(t, rec.Reflection.MemoryToStore, 2)

	for _, ev := range h.events.Events() {
		assert.Equal(t, "u1", ev.UserID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestRunTurn_ExecutionFailureStillPersists(t *testing.T) {
	h := newHarness(query(), fakeSelector{name: "web_fetch"})
	h.tools.err = errors.New("connection refused")
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "What does the page say?", UserID: "u1"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, stageEvents, h.events.Types())
	records := h.store.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Contains(t, records[0].Execution.Error, "connection refused")
	require.NotNil(t, records[0].Reflection)
	assert.Less(t, records[0].Reflection.ConfidenceInResponse, 0.5)
	assert.Empty(t, records[0].Reflection.MemoryToStore)
}

func TestRunTurn_ResponseFailureUsesFailureMessage(t *testing.T) {
	h := newHarness(query(), nil)
	h.responder.err = errors.New("model overloaded")
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "What is Era 3?", UserID: "u1"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, FailureMessage, result.Output)
	assert.Len(t, h.store.Records(), 1)
}

func TestRunTurn_PersistenceFailureIsFatal(t *testing.T) {
	h := newHarness(query(), nil)
	h.deps.Store = failingStore{}
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "What is Era 3?", UserID: "u1"})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, stageEvents, h.events.Types())
}

func TestRunTurn_IntentFailureIsFatal(t *testing.T) {
	h := newHarness(query(), nil)
	h.classifier.err = errors.New("rate limited")
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "What is Era 3?", UserID: "u1"})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrIntentClassification)
	assert.Empty(t, h.events.Types())
	assert.Empty(t, h.store.Records())
	assert.Equal(t, int32(0), h.responder.calls.Load())
}

func TestRunTurn_PolicyDenialSkipsToolsAndResponder(t *testing.T) {
	h := newHarness(model.Intent{Category: model.IntentCommand, Confidence: 0.8}, fakeSelector{name: "web_fetch"})
	h.policy.allow = false
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "fetch the admin page", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, DenialMessage, result.Output)
	assert.False(t, result.Success)
	assert.Equal(t, int32(1), h.policy.calls.Load())
	assert.Equal(t, int32(0), h.tools.calls.Load())
	assert.Equal(t, int32(0), h.responder.calls.Load())
	require.Len(t, h.policy.recorded, 1)
	assert.Equal(t, model.DecisionDeny, h.policy.recorded[0].Decision)

	steps := result.State.Execution.StepResults
	require.Len(t, steps, 3)
	require.NotNil(t, steps[0].Authorized)
	assert.False(t, *steps[0].Authorized)
	assert.Equal(t, "skipped: policy denied", steps[1].Error)

	rec := h.store.Records()[0]
	require.Len(t, rec.Reflection.PolicyDecisions, 1)
	assert.Equal(t, model.DecisionDeny, rec.Reflection.PolicyDecisions[0].Decision)
}

func TestRunTurn_NeverGuessRefuses(t *testing.T) {
	h := newHarness(query(), nil)
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{
		Input:  "Who built the tower?",
		UserID: "u1",
		ContinuityPack: &model.ContinuityPack{
			LockedFacts: []model.LockedFact{{FactKey: "never_guess", Value: true}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, RefusalMessage, result.Output)
	assert.True(t, result.State.Plan.IsRefusal())
	assert.Equal(t, int32(0), h.responder.calls.Load())
	assert.Equal(t, int32(1), h.gate.calls.Load())
}

func TestRunTurn_ContinuitySupplierProvidesLockedFacts(t *testing.T) {
	h := newHarness(query(), nil)
	h.deps.Continuity = StaticContinuity{
		"s1": {SessionID: "s1", LockedFacts: []model.LockedFact{{FactKey: "rules", Value: "never_guess"}}},
	}
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "Who built the tower?", UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, RefusalMessage, result.Output)

	// Other sessions are unaffected
	result, err = p.RunTurn(context.Background(), model.TurnRequest{Input: "Who built the tower?", UserID: "u1", SessionID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, "Here is what I found.", result.Output)
}

func TestRunTurn_GroundingTransformsOutput(t *testing.T) {
	tests := []struct {
		rec  model.Recommendation
		want string
	}{
		{model.RecommendAllow, "Here is what I found."},
		{model.RecommendWarn, "Here is what I found.\n\n" + UnverifiedNote},
		{model.RecommendAskUser, "Here is what I found.\n\n" + ConfirmQuestion},
		{model.RecommendBlock, BlockedMessage},
	}

	for _, tt := range tests {
		t.Run(string(tt.rec), func(t *testing.T) {
			h := newHarness(query(), nil)
			h.gate.rec = tt.rec
			p := h.pipeline(t)

			result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "What is Era 3?", UserID: "u1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Output)
			assert.Equal(t, tt.want, h.store.Records()[0].Output)
		})
	}
}

func TestRunTurn_CancelledTurnWritesNothing(t *testing.T) {
	h := newHarness(query(), nil)
	p := h.pipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	p.exec.responder = responderFunc(func(context.Context, llm.ResponseRequest) (string, error) {
		cancel()
		return "", context.Canceled
	})

	result, err := p.RunTurn(ctx, model.TurnRequest{Input: "What is Era 3?", UserID: "u1"})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.store.Records())
}

type responderFunc func(context.Context, llm.ResponseRequest) (string, error)

func (f responderFunc) GenerateResponse(ctx context.Context, req llm.ResponseRequest) (string, error) {
	return f(ctx, req)
}

func TestRunTurn_PerTurnRequirements(t *testing.T) {
	var seen model.GroundingRequirements
	h := newHarness(query(), nil)
	h.deps.Gate = gateFunc(func(_ context.Context, _ string, req model.GroundingRequirements, _ *model.TurnContext) model.GroundingCheck {
		seen = req
		return model.GroundingCheck{Passed: true, Recommendation: model.RecommendAllow, Confidence: 1}
	})
	configured := model.GroundingRequirements{CanonMode: model.CanonOff, MinConfidence: 0.1}
	p := h.pipeline(t, WithRequirements(configured))

	_, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "What is Era 3?", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, configured, seen)

	override := model.GroundingRequirements{CanonMode: model.CanonStrict, RequireCitations: true}
	_, err = p.RunTurn(context.Background(), model.TurnRequest{Input: "What is Era 3?", UserID: "u1", Requirements: &override})
	require.NoError(t, err)
	assert.Equal(t, override, seen)
}

type gateFunc func(context.Context, string, model.GroundingRequirements, *model.TurnContext) model.GroundingCheck

func (f gateFunc) ValidateResponse(ctx context.Context, text string, req model.GroundingRequirements, rctx *model.TurnContext) model.GroundingCheck {
	return f(ctx, text, req, rctx)
}

type countingMemory struct{ calls atomic.Int32 }

func (m *countingMemory) Resolve(context.Context, model.Claim, []string, *model.TurnContext) []model.Citation {
	m.calls.Add(1)
	return []model.Citation{{ID: "m", Type: model.CitationMemory, SourceID: "mem-1", Confidence: 0.7}}
}

func TestRunTurn_CanonGroundedScenario(t *testing.T) {
	store := canon.NewStore(nil, nil)
	require.NoError(t, store.Add(canon.Entity{ID: "Era3", Name: "Era 3", Text: "Era 3 began after the flood.", Tier: model.TierPrimary}))
	memory := &countingMemory{}

	h := newHarness(query(), nil)
	h.responder.draft = "Era 3 is important"
	h.deps.Gate = grounding.NewGate(resolve.NewCanonResolver(store, nil, nil), grounding.WithMemory(memory))
	p := h.pipeline(t)

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "Is Era 3 important?", UserID: "u1"})
	require.NoError(t, err)

	check := result.State.Grounding
	require.Len(t, check.Citations, 1)
	assert.Equal(t, model.CitationCanon, check.Citations[0].Type)
	assert.Equal(t, "Era3", check.Citations[0].SourceID)
	assert.Equal(t, int32(0), memory.calls.Load())
	assert.Equal(t, model.RecommendAllow, check.Recommendation)
	assert.Equal(t, "Era 3 is important", result.Output)
	assert.Equal(t, check.Citations, h.store.Records()[0].Citations)
}

func TestRunTurn_AskUserScenario(t *testing.T) {
	h := newHarness(query(), nil)
	h.responder.draft = "The lighthouse was built in 1402."
	h.deps.Gate = grounding.NewGate(resolve.NewCanonResolver(canon.NewStore(nil, nil), nil, nil))
	p := h.pipeline(t, WithRequirements(model.GroundingRequirements{
		CanonMode:           model.CanonStrict,
		RequireCitations:    true,
		MaxUngroundedClaims: 0,
	}))

	result, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "When was the lighthouse built?", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, model.RecommendAskUser, result.State.Grounding.Recommendation)
	assert.Equal(t, "The lighthouse was built in 1402.\n\n"+ConfirmQuestion, result.Output)
}

func TestRunTurn_ConcurrentTurnsAreIndependent(t *testing.T) {
	h := newHarness(query(), fakeSelector{name: "canon_lookup"})
	p := h.pipeline(t, WithObserver(NopObserver{}))

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := p.RunTurn(context.Background(), model.TurnRequest{Input: "What is Era 3?", UserID: "u1"})
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}
	assert.Len(t, h.store.Records(), 8)
}
