package reflection

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ppiankov/cogito/internal/model"
)

// Reflection constants
const (
	IncompleteSummary = "incomplete turn"
	MemoryTTL         = 7 * 24 * time.Hour

	SuccessConfidence = 0.8
	FailureConfidence = 0.2

	contextNoteLimit = 200
)

// Reflector turns a finished turn into memory candidates and policy
// decision records. It never writes to a store.
type Reflector struct {
	now func() time.Time
}

// NewReflector creates a reflector
func NewReflector() *Reflector {
	return &Reflector{now: time.Now}
}

// Reflect analyses state. A turn missing its intent, plan or execution is
// reported as incomplete with zero confidence.
func (r *Reflector) Reflect(state *model.ThoughtState) *model.Reflection {
	if state == nil || state.Intent == nil || state.Plan == nil || state.Execution == nil {
		return &model.Reflection{
			Summary:     IncompleteSummary,
			KeyFindings: []string{},
		}
	}

	now := r.now().UTC()
	exec := state.Execution

	ref := &model.Reflection{
		KeyFindings:     findings(state),
		PolicyDecisions: policyDecisions(state.Plan, exec, now),
	}

	if exec.Success {
		ref.Summary = fmt.Sprintf("%s turn completed with %d step(s)", state.Intent.Category, len(exec.StepResults))
		ref.ConfidenceInResponse = SuccessConfidence
		ref.MemoryToStore = memoryCandidates(state, now)
	} else {
		ref.Summary = fmt.Sprintf("%s turn failed: %s", state.Intent.Category, exec.Error)
		ref.ConfidenceInResponse = FailureConfidence
	}

	return ref
}

func findings(state *model.ThoughtState) []string {
	out := []string{
		fmt.Sprintf("intent %s", state.Intent),
		fmt.Sprintf("plan reasoning: %s", state.Plan.Reasoning),
	}
	for _, sr := range state.Execution.StepResults {
		if !sr.Success {
			out = append(out, fmt.Sprintf("step %s (%s) failed: %s", sr.StepID, sr.Type, firstNonEmpty(sr.Error, sr.Reason)))
		}
	}
	if g := state.Grounding; g != nil {
		out = append(out, fmt.Sprintf("grounding %s at %.2f with %d ungrounded claim(s)",
			g.Recommendation, g.Confidence, len(g.UngroundedClaims)))
	}
	return out
}

// memoryCandidates stores the raw input and a short context note
func memoryCandidates(state *model.ThoughtState, now time.Time) []model.MemoryRecord {
	expires := now.Add(MemoryTTL)

	note := fmt.Sprintf("User asked (%s): %s", state.Intent.Category, truncate(state.Input, contextNoteLimit))
	if out := state.Execution.Output; out != "" {
		note += " | Replied: " + truncate(out, contextNoteLimit)
	}

	base := func(text, kind string) model.MemoryRecord {
		return model.MemoryRecord{
			ID:             uuid.NewString(),
			UserID:         state.UserID,
			Dimension:      model.MemoryShortTerm,
			Text:           text,
			Metadata:       map[string]any{"kind": kind, "session_id": state.SessionID},
			RelevanceScore: 1,
			CreatedAt:      now,
			ExpiresAt:      &expires,
		}
	}

	return []model.MemoryRecord{
		base(state.Input, "user_input"),
		base(note, "context_note"),
	}
}

// policyDecisions records one decision per executed policy_check step
func policyDecisions(plan *model.Plan, exec *model.ExecutionResult, now time.Time) []model.PolicyDecision {
	keys := make(map[string]string, len(plan.Steps))
	for _, s := range plan.Steps {
		keys[s.ID] = s.Param(model.ParamPolicyKey)
	}

	var out []model.PolicyDecision
	for _, sr := range exec.StepResults {
		switch sr.Type {
		case model.StepPolicyCheck:
			out = append(out, decision(sr, keys[sr.StepID], now))
		case model.StepToolCall, model.StepRespond:
		}
	}
	return out
}

func decision(sr model.StepResult, planKey string, now time.Time) model.PolicyDecision {
	key := firstNonEmpty(sr.PolicyKey, planKey)

	d := model.PolicyDecision{
		StepID:    sr.StepID,
		PolicyKey: key,
		Decision:  model.DecisionDeny,
		DecidedAt: now,
	}
	switch {
	case sr.Authorized != nil && *sr.Authorized:
		d.Decision = model.DecisionAllow
		d.Reason = firstNonEmpty(sr.Reason, fmt.Sprintf("policy %q authorized", key))
	case sr.Authorized != nil:
		d.Reason = firstNonEmpty(sr.Reason, fmt.Sprintf("policy %q denied", key))
	default:
		d.Reason = firstNonEmpty(sr.Error, "policy check did not produce a decision")
	}
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate cuts s to at most n bytes on a rune boundary
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
