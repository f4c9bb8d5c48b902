package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/cogito/internal/model"
	"github.com/ppiankov/cogito/internal/reflection"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Fatal turn errors. Everything else is absorbed into the run record.
var (
	ErrIntentClassification = errors.New("intent classification failed")
	ErrPersistence          = errors.New("run record persistence failed")
)

var tracer = otel.Tracer("cogito.pipeline")

// Deps are the pipeline's collaborators. Classifier, Planner, Responder and
// Gate are required; the rest default to null implementations.
type Deps struct {
	Classifier IntentClassifier
	Planner    Planner
	Responder  ResponseGenerator
	Gate       Grounder
	Tools      ToolRunner
	Policy     PolicyEngine
	Reflector  Reflector
	Store      RunStore
	Continuity ContinuitySupplier
}

// CognitionPipeline sequences one turn: ambiguity check, intent, plan,
// execution, grounding, reflection and persistence. It keeps no state
// between turns, so one pipeline serves concurrent turns.
type CognitionPipeline struct {
	classifier   IntentClassifier
	planner      Planner
	gate         Grounder
	reflector    Reflector
	store        RunStore
	continuity   ContinuitySupplier
	exec         *executor
	requirements model.GroundingRequirements
	observer     Observer
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a CognitionPipeline
type Option func(*CognitionPipeline)

// WithRequirements sets the grounding requirements for turns that carry none
func WithRequirements(req model.GroundingRequirements) Option {
	return func(p *CognitionPipeline) { p.requirements = req }
}

// WithObserver sets the observer RunTurn reports to
func WithObserver(o Observer) Option {
	return func(p *CognitionPipeline) { p.observer = o }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *CognitionPipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(p *CognitionPipeline) { p.now = now }
}

// New wires a pipeline
func New(deps Deps, opts ...Option) (*CognitionPipeline, error) {
	switch {
	case deps.Classifier == nil:
		return nil, errors.New("pipeline: intent classifier is required")
	case deps.Planner == nil:
		return nil, errors.New("pipeline: planner is required")
	case deps.Responder == nil:
		return nil, errors.New("pipeline: response generator is required")
	case deps.Gate == nil:
		return nil, errors.New("pipeline: grounding gate is required")
	}

	p := &CognitionPipeline{
		classifier:   deps.Classifier,
		planner:      deps.Planner,
		gate:         deps.Gate,
		reflector:    deps.Reflector,
		store:        deps.Store,
		continuity:   deps.Continuity,
		requirements: model.DefaultGroundingRequirements(),
		observer:     NopObserver{},
		logger:       slog.Default(),
		now:          time.Now,
	}
	if p.reflector == nil {
		p.reflector = reflection.NewReflector()
	}
	if p.store == nil {
		p.store = &MemoryRunStore{}
	}
	for _, opt := range opts {
		opt(p)
	}

	tools := deps.Tools
	if tools == nil {
		tools = NullToolRunner{}
	}
	policy := deps.Policy
	if policy == nil {
		policy = AllowAllPolicy{}
	}
	p.exec = &executor{
		tools:     tools,
		policy:    policy,
		responder: deps.Responder,
		logger:    p.logger,
		now:       p.now,
	}
	return p, nil
}

// RunTurn runs one turn, reporting to the configured observer
func (p *CognitionPipeline) RunTurn(ctx context.Context, req model.TurnRequest) (*model.TurnResult, error) {
	return p.RunTurnObserved(ctx, req, p.observer)
}

// RunTurnObserved runs one turn, reporting each completed stage to obs.
// Only intent classification and persistence failures are returned as
// errors; a cancelled turn returns the context error and persists nothing.
func (p *CognitionPipeline) RunTurnObserved(ctx context.Context, req model.TurnRequest, obs Observer) (*model.TurnResult, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	start := p.now()

	ctx, span := tracer.Start(ctx, "pipeline.turn", trace.WithAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("session_id", req.SessionID),
	))
	defer span.End()

	state := &model.ThoughtState{
		Input:     req.Input,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Timestamp: start,
	}
	emit := func(typ model.EventType, data any) {
		obs.OnEvent(model.Event{
			Type:      typ,
			Timestamp: p.now(),
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Data:      data,
		})
	}

	if reason := Ambiguity(req.Input); reason != "" {
		emit(model.EventAmbiguityDetected, map[string]any{"input": req.Input, "reason": reason})
		turnsTotal.WithLabelValues("ambiguous").Inc()
		span.SetAttributes(attribute.Bool("ambiguous", true))
		p.logger.Debug("ambiguous input", "user_id", req.UserID, "reason", reason)
		return &model.TurnResult{Output: ClarificationMessage, Ambiguous: true, State: state}, nil
	}

	reqs := p.requirements
	if req.Requirements != nil {
		reqs = *req.Requirements
	}
	rctx := p.turnContext(ctx, req)

	// Intent
	var intent model.Intent
	err := p.stage(ctx, "classify_intent", func(ctx context.Context) error {
		var err error
		intent, err = p.classifier.ClassifyIntent(ctx, req.Input)
		return err
	})
	if err != nil {
		return nil, p.abort(span, fmt.Errorf("%w: %w", ErrIntentClassification, err))
	}
	state.Intent = &intent
	emit(model.EventIntent, intent)

	// Plan
	_ = p.stage(ctx, "plan", func(ctx context.Context) error {
		state.Plan = p.planner.Plan(ctx, intent, rctx)
		return nil
	})
	emit(model.EventPlan, state.Plan)

	// Execute
	var exec execution
	_ = p.stage(ctx, "execute", func(ctx context.Context) error {
		exec = p.exec.run(ctx, state.Plan, intent, reqs, rctx)
		return nil
	})
	state.Execution = exec.result
	emit(model.EventExecution, exec.result)

	if err := ctx.Err(); err != nil {
		return nil, p.abort(span, fmt.Errorf("turn cancelled: %w", err))
	}

	// Ground
	draft := exec.result.Output
	var check model.GroundingCheck
	_ = p.stage(ctx, "ground", func(ctx context.Context) error {
		check = p.gate.ValidateResponse(ctx, draft, reqs, rctx)
		return nil
	})
	state.Grounding = &check
	emit(model.EventGrounding, check)

	fixed := exec.fixed
	if draft == "" && !exec.result.Success {
		draft = FailureMessage
		fixed = true
	}
	output := finalOutput(draft, fixed, check)

	// Reflect
	_ = p.stage(ctx, "reflect", func(context.Context) error {
		state.Reflection = p.reflector.Reflect(state)
		return nil
	})
	emit(model.EventReflection, state.Reflection)

	if err := ctx.Err(); err != nil {
		return nil, p.abort(span, fmt.Errorf("turn cancelled: %w", err))
	}

	// Persist
	rec := &model.RunRecord{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Input:      req.Input,
		Intent:     state.Intent,
		Plan:       state.Plan,
		Execution:  state.Execution,
		Grounding:  state.Grounding,
		Reflection: state.Reflection,
		Citations:  check.Citations,
		Output:     output,
		Success:    exec.result.Success,
		Duration:   p.now().Sub(start),
		CreatedAt:  start,
	}
	err = p.stage(ctx, "persist", func(ctx context.Context) error {
		return p.store.SaveRun(ctx, rec)
	})
	if err != nil {
		return nil, p.abort(span, fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	outcome := "success"
	if !rec.Success {
		outcome = "failure"
	}
	turnsTotal.WithLabelValues(outcome).Inc()
	outputsTotal.WithLabelValues(string(check.Recommendation)).Inc()
	span.SetAttributes(
		attribute.String("run_id", rec.ID),
		attribute.String("intent", string(intent.Category)),
		attribute.String("recommendation", string(check.Recommendation)),
		attribute.Bool("success", rec.Success),
	)

	p.logger.Info("turn complete",
		"run_id", rec.ID,
		"user_id", req.UserID,
		"intent", intent.Category,
		"steps", len(state.Plan.Steps),
		"recommendation", check.Recommendation,
		"success", rec.Success,
		"duration", rec.Duration,
	)

	return &model.TurnResult{
		RunID:   rec.ID,
		Output:  output,
		Success: rec.Success,
		State:   state,
	}, nil
}

// turnContext builds the context bag, loading the continuity pack from the
// supplier when the request carries none
func (p *CognitionPipeline) turnContext(ctx context.Context, req model.TurnRequest) *model.TurnContext {
	pack := req.ContinuityPack
	if pack == nil && p.continuity != nil && req.SessionID != "" {
		loaded, err := p.continuity.ContinuityPack(ctx, req.UserID, req.SessionID)
		if err != nil {
			p.logger.Warn("continuity pack unavailable", "session_id", req.SessionID, "error", err)
		} else {
			pack = loaded
		}
	}

	return &model.TurnContext{
		Input:          req.Input,
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		ContinuityPack: pack,
		ToolOutputs:    make(map[string]any),
		EntityMemories: req.EntityMemories,
	}
}

// stage runs fn inside a span and records its duration
func (p *CognitionPipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	stageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *CognitionPipeline) abort(span trace.Span, err error) error {
	turnsTotal.WithLabelValues("error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.logger.Error("turn failed", "error", err)
	return err
}
