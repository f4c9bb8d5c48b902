package llm

// DefaultOllamaBaseURL is Ollama's OpenAI-compatible endpoint
const DefaultOllamaBaseURL = "http://localhost:11434/v1"

// NewOllamaCompleter talks to a local Ollama server through its
// OpenAI-compatible API. No API key is needed.
func NewOllamaCompleter(config Config) (*OpenAICompleter, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultOllamaBaseURL
	}
	if config.APIKey == "" {
		config.APIKey = "ollama"
	}
	if config.Model == "" {
		config.Model = "llama3.2"
	}
	return newOpenAICompatible("ollama", config), nil
}
