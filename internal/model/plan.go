package model

// StepType is the closed set of things a plan step can do. Consumers switch on
// it exhaustively; an unknown value is a validation error, never a no-op.
type StepType string

const (
	StepToolCall    StepType = "tool_call"    // Invoke a tool through the tool runner
	StepPolicyCheck StepType = "policy_check" // Ask the policy engine for authorization
	StepRespond     StepType = "respond"      // Generate the reply to the user
)

// Valid reports whether t is a known step type
func (t StepType) Valid() bool {
	switch t {
	case StepToolCall, StepPolicyCheck, StepRespond:
		return true
	}
	return false
}

// Complexity is the planner's coarse estimate of how much work a plan is
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Well-known plan reasoning and step parameter values
const (
	ReasoningPolicyRefusal = "policy_refusal"
	ReasoningRuleBased     = "rule_based"

	ParamPolicyKey = "policy_key"
	ParamMode      = "mode"
	ModeClarify    = "clarify"
	ModeRefusal    = "refusal"
)

// PlanStep is one entry of a plan. Steps are created by the planner and never
// mutated; enforcement produces new steps instead.
type PlanStep struct {
	ID           string         `json:"id" validate:"required"`
	Type         StepType       `json:"type" validate:"required,oneof=tool_call policy_check respond"`
	Description  string         `json:"description"`
	Params       map[string]any `json:"params,omitempty"`
	ToolName     string         `json:"tool_name,omitempty" validate:"required_if=Type tool_call"`
	ToolParams   map[string]any `json:"tool_params,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

// Param returns a string parameter or the empty string
func (s PlanStep) Param(key string) string {
	if s.Params == nil {
		return ""
	}
	if v, ok := s.Params[key].(string); ok {
		return v
	}
	return ""
}

// Plan is an ordered step sequence. Dependencies are carried for downstream
// schedulers; the executor here runs steps in list order.
type Plan struct {
	Steps               []PlanStep `json:"steps" validate:"required,min=1,dive"`
	Reasoning           string     `json:"reasoning"`
	EstimatedComplexity Complexity `json:"estimated_complexity" validate:"omitempty,oneof=low medium high"`
	ToolsNeeded         []string   `json:"tools_needed,omitempty"`
	MemoryAccessNeeded  bool       `json:"memory_access_needed"`
}

// HasStepType reports whether any step has the given type
func (p Plan) HasStepType(t StepType) bool {
	for _, s := range p.Steps {
		if s.Type == t {
			return true
		}
	}
	return false
}

// IsRefusal reports whether the plan is a locked-rule refusal
func (p Plan) IsRefusal() bool {
	return p.Reasoning == ReasoningPolicyRefusal
}
