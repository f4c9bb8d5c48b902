package llm

import (
	"context"

	"github.com/ppiankov/cogito/internal/model"
)

// Gateway is the LLM collaborator: intent classification, plan generation
// and response drafting
type Gateway interface {
	// Name returns the backing provider name
	Name() string

	// ClassifyIntent labels a single utterance
	ClassifyIntent(ctx context.Context, text string) (model.Intent, error)

	// GeneratePlan proposes a plan; the result is unvalidated
	GeneratePlan(ctx context.Context, req PlanRequest) (*model.Plan, error)

	// GenerateResponse drafts the reply the grounding gate will check
	GenerateResponse(ctx context.Context, req ResponseRequest) (string, error)
}

// Completer is a single-shot chat completion backend
type Completer interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is one system+user exchange
type CompletionRequest struct {
	System    string
	Prompt    string
	JSON      bool // Ask the backend for a JSON object
	MaxTokens int
}

// CompletionResponse is the backend's reply
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// PlanRequest is the input to plan generation
type PlanRequest struct {
	Intent  model.Intent
	Context *model.TurnContext
	Tools   []string // Tool names the executor can run
}

// ResponseRequest is the input to response drafting
type ResponseRequest struct {
	Input        string
	Intent       model.Intent
	Plan         *model.Plan
	Mode         string // model.ModeClarify, model.ModeRefusal or empty
	ToolOutputs  map[string]any
	LockedFacts  []model.LockedFact
	Requirements model.GroundingRequirements
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Temperature for all completions
	Temperature float64

	// RequestsPerSecond throttles calls to the provider (0 disables)
	RequestsPerSecond float64

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "", // Disabled by default
		Timeout:     30,
		MaxTokens:   1000,
		Temperature: 0.2,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:          c.Provider,
		Model:             c.Model,
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		MaxTokens:         c.MaxTokens,
		Temperature:       c.Temperature,
		RequestsPerSecond: c.RequestsPerSecond,
		HTTPProxy:         c.HTTPProxy,
		HTTPSProxy:        c.HTTPSProxy,
	}
}
