package llm

import (
	"errors"
	"testing"
)

func TestNewProvider_Anthropic(t *testing.T) {
	provider, err := NewProvider(Config{Provider: "anthropic", APIKey: "key"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := provider.(*AnthropicProvider); !ok {
		t.Errorf("expected *AnthropicProvider, got %T", provider)
	}
}

func TestNewProvider_DefaultsToAnthropic(t *testing.T) {
	provider, err := NewProvider(Config{APIKey: "key"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := provider.(*AnthropicProvider); !ok {
		t.Errorf("expected *AnthropicProvider, got %T", provider)
	}
}

func TestNewProvider_OpenAI(t *testing.T) {
	provider, err := NewProvider(Config{Provider: "openai", APIKey: "test-key", BaseURL: "https://llm.example.test/v1/"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	openAIProvider, ok := provider.(*OpenAIProvider)
	if !ok {
		t.Fatalf("expected *OpenAIProvider, got %T", provider)
	}
	if openAIProvider.baseURL != "https://llm.example.test/v1" {
		t.Errorf("expected trimmed baseURL, got %s", openAIProvider.baseURL)
	}
}

func TestNewProvider_Unsupported(t *testing.T) {
	_, err := NewProvider(Config{Provider: "codex"})
	var unsupported ErrUnsupportedProvider
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	if unsupported.Provider != "codex" {
		t.Errorf("expected provider codex, got %s", unsupported.Provider)
	}
}
