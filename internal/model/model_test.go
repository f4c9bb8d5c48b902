package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupeCitations_Idempotent(t *testing.T) {
	citations := []Citation{
		{ID: "1", Type: CitationCanon, SourceID: "era3", Confidence: 0.9},
		{ID: "2", Type: CitationMemory, SourceID: "era3", Confidence: 0.5},
		{ID: "3", Type: CitationCanon, SourceID: "era3", Confidence: 0.4},
	}

	combined := append(append([]Citation{}, citations...), citations...)
	once := DedupeCitations(combined)
	twice := DedupeCitations(once)

	assert.Len(t, once, 2)
	assert.Equal(t, once, twice)
	// First occurrence wins
	assert.Equal(t, "1", once[0].ID)
	assert.Equal(t, "2", once[1].ID)
}

func TestDedupeCitations_Empty(t *testing.T) {
	assert.Empty(t, DedupeCitations(nil))
}

func TestParseIntentCategory(t *testing.T) {
	assert.Equal(t, IntentQuery, ParseIntentCategory("query"))
	assert.Equal(t, IntentCommand, ParseIntentCategory("command"))
	assert.Equal(t, IntentOther, ParseIntentCategory("banana"))
	assert.Equal(t, IntentOther, ParseIntentCategory(""))
}

func TestStepType_Valid(t *testing.T) {
	assert.True(t, StepToolCall.Valid())
	assert.True(t, StepPolicyCheck.Valid())
	assert.True(t, StepRespond.Valid())
	assert.False(t, StepType("parallel").Valid())
}

func TestClaimType_RequiresGrounding(t *testing.T) {
	assert.False(t, ClaimUncertainty.RequiresGrounding())
	assert.True(t, ClaimFactual.RequiresGrounding())
	assert.True(t, ClaimProcedural.RequiresGrounding())
	assert.True(t, ClaimDirective.RequiresGrounding())
}

func TestAuthorityTier_Ceiling(t *testing.T) {
	assert.Greater(t, TierPrimary.Ceiling(), TierSecondary.Ceiling())
	assert.Greater(t, TierSecondary.Ceiling(), TierTertiary.Ceiling())
	assert.Equal(t, TierPrimary, ParseTier(" Primary "))
	assert.Equal(t, TierTertiary, ParseTier("whatever"))
}

func TestMemoryRecord_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.False(t, MemoryRecord{}.Expired(now))
	assert.True(t, MemoryRecord{ExpiresAt: &past}.Expired(now))
	assert.False(t, MemoryRecord{ExpiresAt: &future}.Expired(now))
}

func TestPlan_Helpers(t *testing.T) {
	p := Plan{
		Steps:     []PlanStep{{ID: "a", Type: StepRespond, Params: map[string]any{ParamMode: ModeRefusal}}},
		Reasoning: ReasoningPolicyRefusal,
	}
	assert.True(t, p.IsRefusal())
	assert.True(t, p.HasStepType(StepRespond))
	assert.False(t, p.HasStepType(StepToolCall))
	assert.Equal(t, ModeRefusal, p.Steps[0].Param(ParamMode))
	assert.Equal(t, "", p.Steps[0].Param("missing"))

	var tc *TurnContext
	assert.Nil(t, tc.LockedFacts())
}
