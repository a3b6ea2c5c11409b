package llm

import (
	"context"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/conversation"
)

// Request is one completion call. Turns alternate user and assistant and
// never carry system entries; the system prompt travels separately.
type Request struct {
	Model       string
	MaxTokens   int
	Temperature float64
	System      string
	Turns       []conversation.Turn
}

type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic", "":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		}), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		}), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}
