package pipeline

import (
	"context"
	"sync"

	"github.com/ppiankov/cogito/internal/llm"
	"github.com/ppiankov/cogito/internal/model"
)

// IntentClassifier labels an utterance. Its failure is fatal to the turn.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, text string) (model.Intent, error)
}

// ResponseGenerator drafts the reply for a respond step
type ResponseGenerator interface {
	GenerateResponse(ctx context.Context, req llm.ResponseRequest) (string, error)
}

// Planner turns an intent into an enforced plan. It never fails.
type Planner interface {
	Plan(ctx context.Context, intent model.Intent, rctx *model.TurnContext) *model.Plan
}

// ToolRunner executes tool_call steps
type ToolRunner interface {
	Execute(ctx context.Context, name string, params map[string]any, rctx *model.TurnContext) (any, error)
}

// PolicyEngine authorizes policy_check steps
type PolicyEngine interface {
	Authorize(ctx context.Context, req model.PolicyRequest) (bool, string, error)
	RecordDecision(ctx context.Context, d model.PolicyDecision) error
}

// Grounder checks a draft response
type Grounder interface {
	ValidateResponse(ctx context.Context, text string, req model.GroundingRequirements, rctx *model.TurnContext) model.GroundingCheck
}

// Reflector analyses a finished turn
type Reflector interface {
	Reflect(state *model.ThoughtState) *model.Reflection
}

// RunStore persists a run record together with its citations, memory
// candidates and policy decisions, atomically
type RunStore interface {
	SaveRun(ctx context.Context, rec *model.RunRecord) error
}

// ContinuitySupplier provides the session's continuity pack. A nil pack
// means the session has none.
type ContinuitySupplier interface {
	ContinuityPack(ctx context.Context, userID, sessionID string) (*model.ContinuityPack, error)
}

// Observer receives one event per completed stage
type Observer interface {
	OnEvent(ev model.Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ev model.Event)

func (f ObserverFunc) OnEvent(ev model.Event) { f(ev) }

// NopObserver discards events
type NopObserver struct{}

func (NopObserver) OnEvent(model.Event) {}

// EventRecorder collects events in memory
type EventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *EventRecorder) OnEvent(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events
func (r *EventRecorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

// Types returns the recorded event types in order
func (r *EventRecorder) Types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]model.EventType, len(r.events))
	for i, ev := range r.events {
		types[i] = ev.Type
	}
	return types
}

// MultiObserver fans events out to several observers in order
type MultiObserver []Observer

func (m MultiObserver) OnEvent(ev model.Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(ev)
		}
	}
}
