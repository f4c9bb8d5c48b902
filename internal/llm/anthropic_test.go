package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicCompleter_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req.Model)
		assert.Contains(t, req.System, "JSON object")
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hi", req.Messages[0].Content)

		_, _ = w.Write([]byte(`{
			"id": "msg_123",
			"type": "message",
			"role": "assistant",
			"content": [{"type": "text", "text": "{\"category\":"}, {"type": "text", "text": " \"query\"}"}],
			"model": "claude-test",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	completer, err := NewAnthropicCompleter(Config{APIKey: "test-key", BaseURL: server.URL + "/", Model: "claude-test", Timeout: 5})
	require.NoError(t, err)

	resp, err := completer.Complete(context.Background(), CompletionRequest{System: "sys", Prompt: "hi", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"category": "query"}`, resp.Text)
	assert.Equal(t, 15, resp.TokensUsed)
}

func TestAnthropicCompleter_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	completer, err := NewAnthropicCompleter(Config{APIKey: "bad", BaseURL: server.URL, Timeout: 5})
	require.NoError(t, err)

	_, err = completer.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication_error")
	assert.Contains(t, err.Error(), "401")
}

func TestAnthropicCompleter_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"m","content":[],"model":"x"}`))
	}))
	defer server.Close()

	completer, err := NewAnthropicCompleter(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = completer.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	assert.Error(t, err)
}

func TestAnthropicCompleter_RequiresKey(t *testing.T) {
	_, err := NewAnthropicCompleter(Config{})
	assert.Error(t, err)
}
