package planner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/ppiankov/cogito/internal/llm"
	"github.com/ppiankov/cogito/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PlanGenerator proposes plans. llm.Gateway satisfies it.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, req llm.PlanRequest) (*model.Plan, error)
}

// ToolChoice is the tool a selector picked for a turn
type ToolChoice struct {
	Name   string
	Params map[string]any
}

// ToolSelector matches a turn to one of the registered tools
type ToolSelector interface {
	Select(intent model.Intent, input string) (ToolChoice, bool)
	Names() []string
}

// Planner turns a classified intent into an enforced plan
type Planner struct {
	generator PlanGenerator
	selector  ToolSelector
	validate  *validator.Validate
	strict    bool
	audit     *AuditQueue
	logger    *slog.Logger
}

// Option configures a Planner
type Option func(*Planner)

// WithGenerator sets the LLM plan generator; nil means rule-based only
func WithGenerator(g PlanGenerator) Option {
	return func(p *Planner) { p.generator = g }
}

// WithSelector sets the tool selector used by rule-based plans
func WithSelector(s ToolSelector) Option {
	return func(p *Planner) { p.selector = s }
}

// WithStrictValidation toggles schema validation of generated plans
func WithStrictValidation(strict bool) Option {
	return func(p *Planner) { p.strict = strict }
}

// WithAudit routes locked-rule audit events to q
func WithAudit(q *AuditQueue) Option {
	return func(p *Planner) { p.audit = q }
}

// WithLogger sets the planner's logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a planner. Strict validation is on by default.
func New(opts ...Option) *Planner {
	p := &Planner{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		strict:   true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan produces the plan for one turn. It never fails: generator errors and
// invalid plans fall back to rule-based planning, and locked-fact
// enforcement runs on whatever plan results.
func (p *Planner) Plan(ctx context.Context, intent model.Intent, rctx *model.TurnContext) *model.Plan {
	ctx, span := otel.Tracer("cogito.planner").Start(ctx, "planner.plan",
		trace.WithAttributes(attribute.String("intent", string(intent.Category))))
	defer span.End()

	input := ""
	if rctx != nil {
		input = rctx.Input
	}

	var plan *model.Plan
	source := model.ReasoningRuleBased
	if p.generator != nil {
		if plan = p.generate(ctx, intent, rctx); plan != nil {
			source = "llm"
		}
	}
	if plan == nil {
		plan = RuleBased(intent, input, p.selector)
	}
	plansTotal.WithLabelValues(source).Inc()
	span.SetAttributes(attribute.String("source", source))

	enforced, events := Enforce(plan, intent, rctx.LockedFacts())
	for _, ev := range events {
		if rctx != nil {
			ev.UserID = rctx.UserID
			ev.SessionID = rctx.SessionID
		}
		lockedRuleOverrides.WithLabelValues(ev.Rule, ev.Action).Inc()
		p.logger.Info("locked rule enforced", "type", ev.Type, "rule", ev.Rule, "action", ev.Action)
		p.audit.Emit(ev)
	}

	return enforced
}

// generate asks the generator for a plan, returning nil when it must be
// replaced by the rule-based fallback
func (p *Planner) generate(ctx context.Context, intent model.Intent, rctx *model.TurnContext) *model.Plan {
	var tools []string
	if p.selector != nil {
		tools = p.selector.Names()
	}

	plan, err := p.generator.GeneratePlan(ctx, llm.PlanRequest{
		Intent:  intent,
		Context: rctx,
		Tools:   tools,
	})
	if err != nil {
		fallbacks.WithLabelValues("generator_error").Inc()
		p.logger.Warn("plan generation failed, using rule-based plan", "error", err)
		return nil
	}
	if plan == nil || len(plan.Steps) == 0 {
		fallbacks.WithLabelValues("empty_plan").Inc()
		p.logger.Warn("plan generator returned no steps, using rule-based plan")
		return nil
	}

	if p.strict {
		if err := p.Validate(plan); err != nil {
			fallbacks.WithLabelValues("invalid_plan").Inc()
			p.logger.Info("generated plan rejected, using rule-based plan", "error", err)
			return nil
		}
	}

	return plan
}

// Validate checks a plan's schema tags, step types, step id uniqueness and
// that dependencies only name earlier steps
func (p *Planner) Validate(plan *model.Plan) error {
	if plan == nil {
		return fmt.Errorf("plan is nil")
	}
	if err := p.validate.Struct(plan); err != nil {
		return fmt.Errorf("plan schema: %w", err)
	}

	seen := make(map[string]bool, len(plan.Steps))
	for i, step := range plan.Steps {
		switch step.Type {
		case model.StepToolCall, model.StepPolicyCheck, model.StepRespond:
		default:
			return fmt.Errorf("step %d: unknown type %q", i, step.Type)
		}

		if seen[step.ID] {
			return fmt.Errorf("step %d: duplicate id %q", i, step.ID)
		}
		for _, dep := range step.Dependencies {
			if !seen[dep] {
				return fmt.Errorf("step %q: dependency %q is not an earlier step", step.ID, dep)
			}
		}
		seen[step.ID] = true
	}

	return nil
}
