package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/ppiankov/cogito/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter returns canned completions in order
type scriptedCompleter struct {
	replies  []string
	err      error
	requests []CompletionRequest
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return &CompletionResponse{Text: reply, Model: "test"}, nil
}

type countingThrottle struct{ waits []string }

func (c *countingThrottle) Wait(_ context.Context, key string) error {
	c.waits = append(c.waits, key)
	return nil
}

func TestChatGateway_ClassifyIntent(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"```json\n{\"category\": \"Query\", \"confidence\": 1.4, \"requires_memory\": true}\n```"}}
	throttle := &countingThrottle{}
	gw := NewChatGateway(completer, throttle, 500, nil)

	intent, err := gw.ClassifyIntent(context.Background(), "what is era 3?")
	require.NoError(t, err)

	assert.Equal(t, model.IntentQuery, intent.Category)
	assert.Equal(t, 1.0, intent.Confidence)
	assert.True(t, intent.RequiresMemory)
	assert.Equal(t, []string{"scripted"}, throttle.waits)
	require.Len(t, completer.requests, 1)
	assert.True(t, completer.requests[0].JSON)
	assert.Contains(t, completer.requests[0].Prompt, "what is era 3?")
}

func TestChatGateway_ClassifyIntentUnknownCategory(t *testing.T) {
	gw := NewChatGateway(&scriptedCompleter{replies: []string{`{"category": "banter", "confidence": 0.4}`}}, nil, 0, nil)

	intent, err := gw.ClassifyIntent(context.Background(), "hey")
	require.NoError(t, err)
	assert.Equal(t, model.IntentOther, intent.Category)
}

func TestChatGateway_ClassifyIntentErrors(t *testing.T) {
	gw := NewChatGateway(&scriptedCompleter{err: errors.New("timeout")}, nil, 0, nil)
	_, err := gw.ClassifyIntent(context.Background(), "hey")
	assert.Error(t, err)

	gw = NewChatGateway(&scriptedCompleter{replies: []string{"no json here"}}, nil, 0, nil)
	_, err = gw.ClassifyIntent(context.Background(), "hey")
	assert.Error(t, err)
}

func TestChatGateway_GeneratePlan(t *testing.T) {
	reply := `Here is the plan:
{"steps": [
  {"id": "s1", "type": "tool_call", "description": "look up", "tool_name": "canon_lookup", "tool_params": {"query": "Era 3"}},
  {"id": "s2", "type": "respond", "description": "answer", "dependencies": ["s1"]}
], "reasoning": "lookup first", "estimated_complexity": "low", "tools_needed": ["canon_lookup"]}`
	completer := &scriptedCompleter{replies: []string{reply}}
	gw := NewChatGateway(completer, nil, 0, nil)

	plan, err := gw.GeneratePlan(context.Background(), PlanRequest{
		Intent: model.Intent{Category: model.IntentQuery, Confidence: 0.9},
		Context: &model.TurnContext{
			Input:          "What is Era 3?",
			ContinuityPack: &model.ContinuityPack{LockedFacts: []model.LockedFact{{FactKey: "never_guess", Value: true}}},
		},
		Tools: []string{"canon_lookup", "web_fetch"},
	})
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, model.StepToolCall, plan.Steps[0].Type)
	assert.Equal(t, "canon_lookup", plan.Steps[0].ToolName)
	assert.Equal(t, []string{"s1"}, plan.Steps[1].Dependencies)
	assert.Equal(t, model.ComplexityLow, plan.EstimatedComplexity)

	prompt := completer.requests[0].Prompt
	assert.Contains(t, prompt, "canon_lookup, web_fetch")
	assert.Contains(t, prompt, "never_guess")
}

func TestChatGateway_GenerateResponse(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"  Era 3 began after the flood.  "}}
	gw := NewChatGateway(completer, nil, 0, nil)

	text, err := gw.GenerateResponse(context.Background(), ResponseRequest{
		Input:        "What is Era 3?",
		Intent:       model.Intent{Category: model.IntentQuery},
		ToolOutputs:  map[string]any{"s1": map[string]any{"text": "Era 3 began after the flood."}},
		Requirements: model.GroundingRequirements{AllowUnknown: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "Era 3 began after the flood.", text)

	prompt := completer.requests[0].Prompt
	assert.Contains(t, prompt, "Era 3 began after the flood.")
	assert.Contains(t, prompt, "say you don't know")
	assert.False(t, completer.requests[0].JSON)
}

func TestChatGateway_GenerateResponseEmpty(t *testing.T) {
	gw := NewChatGateway(&scriptedCompleter{replies: []string{"   "}}, nil, 0, nil)
	_, err := gw.GenerateResponse(context.Background(), ResponseRequest{Input: "hi"})
	assert.Error(t, err)
}

func TestBuildResponsePrompt_Modes(t *testing.T) {
	assert.Contains(t, BuildResponsePrompt(ResponseRequest{Mode: model.ModeClarify}), "clarifying question")
	assert.Contains(t, BuildResponsePrompt(ResponseRequest{Mode: model.ModeRefusal}), "cannot answer")
	assert.Contains(t, BuildResponsePrompt(ResponseRequest{}), "(none)")
}

func TestNewGateway(t *testing.T) {
	gw, err := NewGateway(Config{}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, gw)

	_, err = NewGateway(Config{Provider: "mystery"}, nil, nil)
	assert.Error(t, err)

	gw, err = NewGateway(Config{Provider: "ollama"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama", gw.Name())

	_, err = NewGateway(Config{Provider: "openai"}, nil, nil)
	assert.Error(t, err)
}
