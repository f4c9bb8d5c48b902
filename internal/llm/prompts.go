package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/cogito/internal/model"
)

const systemPrompt = `You are the reasoning core of a conversational agent. You never invent facts.
Only state facts that appear in the provided tool outputs or locked facts.`

const intentPrompt = `Classify the user's message.

Categories:
- query: the user asks for information
- command: the user asks you to do something
- other: small talk or anything else

Respond with a JSON object only:
{"category": "query|command|other", "confidence": 0.0-1.0, "requires_memory": true|false}

Message:
%s`

const planPrompt = `Produce an execution plan for the user's message.

Intent: %s (confidence %.2f)
Message: %s
Available tools: %s
%s
Step types:
- tool_call: run a tool (set tool_name and tool_params)
- policy_check: authorize a command before acting (set params.policy_key)
- respond: write the reply to the user

Rules:
1. Steps run in list order; dependencies list ids of earlier steps.
2. Every step id is unique.
3. End with exactly one respond step.

Respond with a JSON object only:
{"steps": [{"id": "...", "type": "...", "description": "...", "params": {}, "tool_name": "", "tool_params": {}, "dependencies": []}],
 "reasoning": "...", "estimated_complexity": "low|medium|high", "tools_needed": [], "memory_access_needed": false}`

// BuildIntentPrompt constructs the intent classification prompt
func BuildIntentPrompt(text string) string {
	return fmt.Sprintf(intentPrompt, text)
}

// BuildPlanPrompt constructs the plan generation prompt
func BuildPlanPrompt(req PlanRequest) string {
	input := ""
	if req.Context != nil {
		input = req.Context.Input
	}

	tools := "(none)"
	if len(req.Tools) > 0 {
		tools = strings.Join(req.Tools, ", ")
	}

	return fmt.Sprintf(planPrompt,
		req.Intent.Category, req.Intent.Confidence, input, tools,
		formatLockedFacts(req.Context.LockedFacts()))
}

// BuildResponsePrompt constructs the response drafting prompt. Tool outputs
// are the only evidence the model is allowed to use.
func BuildResponsePrompt(req ResponseRequest) string {
	var b strings.Builder

	switch req.Mode {
	case model.ModeClarify:
		b.WriteString("The user's request is unclear. Ask one short clarifying question.\n\n")
	case model.ModeRefusal:
		b.WriteString("You must not answer this from memory. Say you cannot answer without a verified source.\n\n")
	default:
		b.WriteString("Answer the user's message.\n\n")
	}

	fmt.Fprintf(&b, "Message: %s\n", req.Input)
	fmt.Fprintf(&b, "Intent: %s\n", req.Intent.Category)

	b.WriteString("\nTool outputs:\n")
	if len(req.ToolOutputs) == 0 {
		b.WriteString("(none)\n")
	}
	keys := make([]string, 0, len(req.ToolOutputs))
	for k := range req.ToolOutputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, truncate(toJSON(req.ToolOutputs[k]), 4000))
	}

	b.WriteString(formatLockedFacts(req.LockedFacts))

	b.WriteString("\nRules:\n")
	b.WriteString("1. Use only facts from the tool outputs above.\n")
	if req.Requirements.AllowUnknown {
		b.WriteString("2. If the outputs do not cover something, say you don't know.\n")
	} else {
		b.WriteString("2. Do not mention anything the outputs do not cover.\n")
	}
	b.WriteString("3. Keep the reply short.\n")

	return b.String()
}

func formatLockedFacts(facts []model.LockedFact) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nLocked session rules (never violate):\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s: %s\n", f.FactKey, toJSON(f.Value))
	}
	return b.String()
}

func toJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// extractJSON returns the outermost JSON object in a completion, tolerating
// code fences and surrounding prose
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return text[start : end+1], nil
}
