package planner

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/cogito/internal/model"
)

// Locked-fact rule keys and the actions enforcement takes for them
const (
	RuleDoNotRepeat = "do_not_repeat"
	RuleNeverGuess  = "never_guess"

	ActionPrependPolicyCheck = "prepend_policy_check"
	ActionReplaceWithRefusal = "replace_with_refusal"
)

// Enforce applies locked facts to a plan. The input plan is never modified;
// every override comes back with an audit event describing it.
func Enforce(plan *model.Plan, intent model.Intent, facts []model.LockedFact) (*model.Plan, []model.AuditEvent) {
	// never_guess wins outright: the refusal plan is final
	if HasRule(facts, RuleNeverGuess) && intent.Category == model.IntentQuery && !plan.HasStepType(model.StepToolCall) {
		ev := newAuditEvent(model.AuditLockedRuleViolation, RuleNeverGuess, ActionReplaceWithRefusal, map[string]any{
			"original_reasoning": plan.Reasoning,
			"original_steps":     len(plan.Steps),
		})
		return RefusalPlan(), []model.AuditEvent{ev}
	}

	if HasRule(facts, RuleDoNotRepeat) && !hasPolicyCheck(plan, RuleDoNotRepeat) {
		check := policyStep(RuleDoNotRepeat, "Check the reply does not repeat earlier answers")

		out := *plan
		out.Steps = make([]model.PlanStep, 0, len(plan.Steps)+1)
		out.Steps = append(out.Steps, check)
		out.Steps = append(out.Steps, plan.Steps...)

		ev := newAuditEvent(model.AuditLockedRuleApplied, RuleDoNotRepeat, ActionPrependPolicyCheck, map[string]any{
			"step_id": check.ID,
		})
		return &out, []model.AuditEvent{ev}
	}

	return plan, nil
}

// HasRule reports whether any locked fact carries rule. Matching is case
// insensitive against the key, a string value, or the JSON form of any
// other value.
func HasRule(facts []model.LockedFact, rule string) bool {
	rule = strings.ToLower(rule)
	for _, f := range facts {
		if strings.EqualFold(f.FactKey, rule) {
			return true
		}
		switch v := f.Value.(type) {
		case nil:
		case string:
			if strings.Contains(strings.ToLower(v), rule) {
				return true
			}
		default:
			data, err := json.Marshal(v)
			if err == nil && strings.Contains(strings.ToLower(string(data)), rule) {
				return true
			}
		}
	}
	return false
}

func hasPolicyCheck(plan *model.Plan, policyKey string) bool {
	for _, step := range plan.Steps {
		if step.Type == model.StepPolicyCheck && strings.EqualFold(step.Param(model.ParamPolicyKey), policyKey) {
			return true
		}
	}
	return false
}

func newAuditEvent(typ model.AuditEventType, rule, action string, details map[string]any) model.AuditEvent {
	return model.AuditEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Rule:      rule,
		Action:    action,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}
