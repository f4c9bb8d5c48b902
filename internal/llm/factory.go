package llm

import (
	"fmt"
	"log/slog"
	"strings"
)

// NewCompleter creates a completion backend by provider name. An empty
// provider means the LLM is disabled: (nil, nil).
func NewCompleter(config Config) (Completer, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAICompleter(config)

	case "anthropic", "claude":
		return NewAnthropicCompleter(config)

	case "ollama":
		return NewOllamaCompleter(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// NewGateway builds the configured gateway, or nil when the LLM is disabled.
// The limiter is keyed by provider name.
func NewGateway(config Config, limiter Throttle, logger *slog.Logger) (Gateway, error) {
	completer, err := NewCompleter(config)
	if err != nil {
		return nil, err
	}
	if completer == nil {
		return nil, nil
	}

	return NewChatGateway(completer, limiter, config.MaxTokens, logger), nil
}
