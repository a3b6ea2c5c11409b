package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/conversation"
)

func TestAnthropicProvider_ConcatenatesTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		require.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "claude-test", payload["model"])
		require.Equal(t, float64(512), payload["max_tokens"])
		messages := payload["messages"].([]any)
		require.Len(t, messages, 2)
		require.Equal(t, "user", messages[0].(map[string]any)["role"])
		require.Equal(t, "assistant", messages[1].(map[string]any)["role"])
		system := payload["system"].([]any)
		require.Equal(t, "system prompt", system[0].(map[string]any)["text"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[
				{"type":"text","text":"Hello "},
				{"type":"tool_use","id":"tu_1","name":"lookup","input":{}},
				{"type":"text","text":"world"}
			],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}
		}`))
	}))
	defer server.Close()

	provider := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	text, err := provider.Generate(context.Background(), Request{
		Model:       "claude-test",
		MaxTokens:   512,
		Temperature: 0.4,
		System:      "system prompt",
		Turns: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "hi"},
			{Role: conversation.RoleAssistant, Content: "hello"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello world", text)
}

func TestAnthropicProvider_StatusErrorCarriesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"Your credit balance is too low to access the Anthropic API."}}`))
	}))
	defer server.Close()

	provider := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := provider.Generate(context.Background(), Request{
		Model:     "claude-test",
		MaxTokens: 16,
		Turns:     []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}},
	})
	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	require.Equal(t, http.StatusBadRequest, providerErr.Status)
	require.Contains(t, providerErr.Message, "credit balance is too low")
}
