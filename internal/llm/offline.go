package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/ppiankov/cogito/internal/model"
)

// ErrOfflinePlan is returned by OfflineGateway.GeneratePlan; planners fall
// back to their rules
var ErrOfflinePlan = errors.New("offline gateway does not generate plans")

// Offline replies
const (
	OfflineClarify = "Could you tell me a bit more about what you need?"
	OfflineUnknown = "I don't know enough to answer that yet."
	OfflineNoInfo  = "I can't answer that from what I currently know."
)

var (
	questionWords = []string{"who", "what", "when", "where", "why", "how", "which", "is", "are", "was", "were", "do", "does", "did", "can", "could", "tell me", "explain", "describe"}
	commandWords  = []string{"run", "delete", "remove", "send", "create", "make", "add", "set", "start", "stop", "open", "close", "book", "schedule", "cancel", "update", "write", "fetch", "summarize", "remind"}
	memoryWords   = []string{"remember", "last time", "i told you", "earlier", "again", "my "}
)

// OfflineGateway answers without a model: keyword intent classification and
// extractive responses built from tool outputs. It lets the pipeline run
// when no LLM provider is configured.
type OfflineGateway struct{}

// NewOfflineGateway creates the offline gateway
func NewOfflineGateway() *OfflineGateway {
	return &OfflineGateway{}
}

func (OfflineGateway) Name() string { return "offline" }

// ClassifyIntent labels text by its leading words and punctuation
func (OfflineGateway) ClassifyIntent(_ context.Context, text string) (model.Intent, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	intent := model.Intent{Category: model.IntentOther, Confidence: 0.4}

	switch {
	case strings.HasSuffix(lower, "?") || hasLeadingWord(lower, questionWords):
		intent = model.Intent{Category: model.IntentQuery, Confidence: 0.7}
	case hasLeadingWord(lower, commandWords) || strings.HasPrefix(lower, "please "):
		intent = model.Intent{Category: model.IntentCommand, Confidence: 0.6}
	}

	for _, w := range memoryWords {
		if strings.Contains(lower, w) {
			intent.RequiresMemory = true
			break
		}
	}
	return intent, nil
}

func (OfflineGateway) GeneratePlan(context.Context, PlanRequest) (*model.Plan, error) {
	return nil, ErrOfflinePlan
}

// GenerateResponse quotes text found in tool outputs, or admits it does
// not know
func (OfflineGateway) GenerateResponse(_ context.Context, req ResponseRequest) (string, error) {
	if req.Mode == model.ModeClarify {
		return OfflineClarify, nil
	}

	keys := make([]string, 0, len(req.ToolOutputs))
	for k := range req.ToolOutputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, textFields(req.ToolOutputs[k])...)
		if len(parts) >= 3 {
			parts = parts[:3]
			break
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " "), nil
	}

	if req.Requirements.AllowUnknown {
		return OfflineUnknown, nil
	}
	return OfflineNoInfo, nil
}

// textFields collects the "text" string fields of an arbitrary tool output
func textFields(v any) []string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil
	}

	var out []string
	var walk func(any)
	walk = func(n any) {
		switch t := n.(type) {
		case map[string]any:
			if s, ok := t["text"].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if k != "text" {
					walk(t[k])
				}
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		}
	}
	walk(generic)
	return out
}

func hasLeadingWord(s string, words []string) bool {
	for _, w := range words {
		if s == w || strings.HasPrefix(s, w+" ") || strings.HasPrefix(s, w+",") {
			return true
		}
	}
	return false
}
