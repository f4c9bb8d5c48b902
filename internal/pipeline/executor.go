package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/cogito/internal/llm"
	"github.com/ppiankov/cogito/internal/model"
)

// Fixed replies that bypass response generation
const (
	RefusalMessage = "I can't answer that without a verified source, and I won't guess."
	DenialMessage  = "I'm not able to do that. The request was denied by policy."
	FailureMessage = "Something went wrong while handling that request. Please try again."
)

// executor runs plan steps in list order
type executor struct {
	tools     ToolRunner
	policy    PolicyEngine
	responder ResponseGenerator
	logger    *slog.Logger
	now       func() time.Time
}

// execution carries what later stages need besides the result itself
type execution struct {
	result *model.ExecutionResult

	// fixed is set when the output is a canned refusal or denial rather
	// than a generated draft
	fixed bool
}

func (e *executor) run(ctx context.Context, plan *model.Plan, intent model.Intent, reqs model.GroundingRequirements, rctx *model.TurnContext) execution {
	res := &model.ExecutionResult{Success: true}
	out := execution{result: res}

	if plan.IsRefusal() {
		for _, step := range plan.Steps {
			res.StepResults = append(res.StepResults, model.StepResult{
				StepID:  step.ID,
				Type:    step.Type,
				Success: true,
				Output:  RefusalMessage,
			})
		}
		res.Output = RefusalMessage
		out.fixed = true
		return out
	}

	denied := false
	responded := false
	fail := func(msg string) {
		res.Success = false
		if res.Error == "" {
			res.Error = msg
		}
	}

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			fail(err.Error())
			break
		}

		start := e.now()
		var sr model.StepResult

		switch step.Type {
		case model.StepPolicyCheck:
			sr = e.policyCheck(ctx, step, rctx)
			if !sr.Success {
				denied = true
				fail("policy denied: " + sr.Reason)
			}

		case model.StepToolCall:
			if denied {
				sr = model.StepResult{StepID: step.ID, Type: step.Type, Error: "skipped: policy denied"}
				break
			}
			sr = e.toolCall(ctx, step, rctx)
			if !sr.Success {
				fail(fmt.Sprintf("tool %s failed: %s", step.ToolName, sr.Error))
			}

		case model.StepRespond:
			responded = true
			if denied {
				sr = model.StepResult{StepID: step.ID, Type: step.Type, Success: true, Output: DenialMessage}
				res.Output = DenialMessage
				out.fixed = true
				break
			}
			sr = e.respond(ctx, step.ID, step.Param(model.ParamMode), plan, intent, reqs, rctx)
			if sr.Success {
				res.Output, _ = sr.Output.(string)
			} else {
				fail("respond failed: " + sr.Error)
			}

		default:
			sr = model.StepResult{StepID: step.ID, Type: step.Type, Error: fmt.Sprintf("unknown step type %q", step.Type)}
			fail(sr.Error)
		}

		sr.Duration = e.now().Sub(start)
		res.StepResults = append(res.StepResults, sr)
	}

	if !responded && ctx.Err() == nil {
		if denied {
			res.Output = DenialMessage
			out.fixed = true
		} else {
			sr := e.respond(ctx, "", "", plan, intent, reqs, rctx)
			if sr.Success {
				res.Output, _ = sr.Output.(string)
			} else {
				fail("respond failed: " + sr.Error)
			}
		}
	}

	return out
}

func (e *executor) policyCheck(ctx context.Context, step model.PlanStep, rctx *model.TurnContext) model.StepResult {
	key := step.Param(model.ParamPolicyKey)
	sr := model.StepResult{StepID: step.ID, Type: step.Type, PolicyKey: key}

	ok, reason, err := e.policy.Authorize(ctx, model.PolicyRequest{
		StepID:    step.ID,
		PolicyKey: key,
		Input:     rctx.Input,
		UserID:    rctx.UserID,
		SessionID: rctx.SessionID,
		Params:    step.Params,
	})
	if err != nil {
		// An engine that cannot decide denies
		ok = false
		reason = "authorization error"
		sr.Error = err.Error()
	}
	sr.Authorized = &ok
	sr.Success = ok
	sr.Reason = reason
	sr.Output = reason

	decision := model.DecisionAllow
	if !ok {
		decision = model.DecisionDeny
	}
	if err := e.policy.RecordDecision(ctx, model.PolicyDecision{
		StepID:    step.ID,
		PolicyKey: key,
		Decision:  decision,
		Reason:    reason,
		DecidedAt: e.now(),
	}); err != nil {
		e.logger.Warn("policy decision not recorded", "step_id", step.ID, "error", err)
	}
	return sr
}

func (e *executor) toolCall(ctx context.Context, step model.PlanStep, rctx *model.TurnContext) model.StepResult {
	sr := model.StepResult{StepID: step.ID, Type: step.Type}

	params := step.ToolParams
	if params == nil {
		params = step.Params
	}
	out, err := e.tools.Execute(ctx, step.ToolName, params, rctx)
	if err != nil {
		sr.Error = err.Error()
		e.logger.Warn("tool call failed", "tool", step.ToolName, "step_id", step.ID, "error", err)
		return sr
	}

	if rctx.ToolOutputs == nil {
		rctx.ToolOutputs = make(map[string]any)
	}
	key := step.ToolName
	if _, exists := rctx.ToolOutputs[key]; exists {
		key = step.ToolName + "#" + step.ID
	}
	rctx.ToolOutputs[key] = out

	sr.Success = true
	sr.Output = out
	return sr
}

func (e *executor) respond(ctx context.Context, stepID, mode string, plan *model.Plan, intent model.Intent, reqs model.GroundingRequirements, rctx *model.TurnContext) model.StepResult {
	sr := model.StepResult{StepID: stepID, Type: model.StepRespond}

	draft, err := e.responder.GenerateResponse(ctx, llm.ResponseRequest{
		Input:        rctx.Input,
		Intent:       intent,
		Plan:         plan,
		Mode:         mode,
		ToolOutputs:  rctx.ToolOutputs,
		LockedFacts:  rctx.LockedFacts(),
		Requirements: reqs,
	})
	if err != nil {
		sr.Error = err.Error()
		e.logger.Warn("response generation failed", "error", err)
		return sr
	}

	sr.Success = true
	sr.Output = draft
	return sr
}
