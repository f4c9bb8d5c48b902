package planner

import (
	"github.com/google/uuid"
	"github.com/ppiankov/cogito/internal/model"
)

// RuleBased builds the deterministic plan for an intent. It always returns
// at least one step.
func RuleBased(intent model.Intent, input string, selector ToolSelector) *model.Plan {
	var (
		choice  ToolChoice
		matched bool
	)
	if selector != nil {
		choice, matched = selector.Select(intent, input)
	}

	plan := &model.Plan{
		Reasoning:           model.ReasoningRuleBased,
		EstimatedComplexity: model.ComplexityLow,
		MemoryAccessNeeded:  intent.RequiresMemory,
	}

	switch intent.Category {
	case model.IntentQuery:
		if matched {
			tool := toolStep(choice)
			plan.Steps = []model.PlanStep{tool, respondStep("Answer from the tool output", "", tool.ID)}
			plan.ToolsNeeded = []string{choice.Name}
			plan.EstimatedComplexity = model.ComplexityMedium
		} else {
			plan.Steps = []model.PlanStep{respondStep("Answer the question", "")}
		}

	case model.IntentCommand:
		check := policyStep("command", "Authorize the command")
		plan.Steps = []model.PlanStep{check}
		last := check.ID
		if matched {
			tool := toolStep(choice, check.ID)
			plan.Steps = append(plan.Steps, tool)
			plan.ToolsNeeded = []string{choice.Name}
			last = tool.ID
		}
		plan.Steps = append(plan.Steps, respondStep("Report the outcome", "", last))
		plan.EstimatedComplexity = model.ComplexityMedium

	default:
		plan.Steps = []model.PlanStep{respondStep("Ask the user to clarify", model.ModeClarify)}
	}

	return plan
}

// RefusalPlan is the single-step plan that replaces a plan which would
// answer a query without any grounding tool
func RefusalPlan() *model.Plan {
	return &model.Plan{
		Steps: []model.PlanStep{
			respondStep("Decline to answer without a verified source", model.ModeRefusal),
		},
		Reasoning:           model.ReasoningPolicyRefusal,
		EstimatedComplexity: model.ComplexityLow,
	}
}

func toolStep(choice ToolChoice, deps ...string) model.PlanStep {
	return model.PlanStep{
		ID:           uuid.NewString(),
		Type:         model.StepToolCall,
		Description:  "Run " + choice.Name,
		ToolName:     choice.Name,
		ToolParams:   choice.Params,
		Dependencies: deps,
	}
}

func policyStep(policyKey, description string, deps ...string) model.PlanStep {
	return model.PlanStep{
		ID:           uuid.NewString(),
		Type:         model.StepPolicyCheck,
		Description:  description,
		Params:       map[string]any{model.ParamPolicyKey: policyKey},
		Dependencies: deps,
	}
}

func respondStep(description, mode string, deps ...string) model.PlanStep {
	step := model.PlanStep{
		ID:           uuid.NewString(),
		Type:         model.StepRespond,
		Description:  description,
		Dependencies: deps,
	}
	if mode != "" {
		step.Params = map[string]any{model.ParamMode: mode}
	}
	return step
}
