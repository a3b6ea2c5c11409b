package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/secrets"
)

var ErrMissingCredentials = errors.New("missing required credentials")

type Config struct {
	Port                 string
	StoreBackend         string
	StoreURL             string
	StoreAPIKey          string
	StoreTable           string
	PostgresURL          string
	LLMProvider          string
	LLMModel             string
	LLMBaseURL           string
	AnthropicAPIKey      string
	OpenAIAPIKey         string
	LLMMaxTokens         int
	LLMTemperature       float64
	LLMTimeout           time.Duration
	ContentPackMaxPasses int
	ContentPackBatchSize int
	PromptSnippetLimit   int
	WriteRetryDelay      time.Duration
	ExportTokenURL       string
	ExportClientID       string
	ExportClientSecret   string
	ExportRefreshToken   string
	ExportAPIURL         string
	LogLevel             string
	LogFormat            string
	PersonalityFile      string
	SecretsKey           string
}

func Load() Config {
	provider := strings.ToLower(getEnv("LLM_PROVIDER", "anthropic"))
	return Config{
		Port:                 getEnv("PORT", "8080"),
		StoreBackend:         strings.ToLower(getEnv("STORE_BACKEND", "postgrest")),
		StoreURL:             getEnv("STORE_URL", ""),
		StoreAPIKey:          getEnv("STORE_API_KEY", ""),
		StoreTable:           getEnv("STORE_TABLE", "conversations"),
		PostgresURL:          getEnv("POSTGRES_URL", ""),
		LLMProvider:          provider,
		LLMModel:             getEnv("LLM_MODEL", defaultModel(provider)),
		LLMBaseURL:           getEnv("LLM_BASE_URL", ""),
		AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		LLMMaxTokens:         getEnvInt("LLM_MAX_TOKENS", 4096),
		LLMTemperature:       getEnvFloat("LLM_TEMPERATURE", 0.4),
		LLMTimeout:           getEnvMillis("LLM_TIMEOUT_MS", 90*time.Second),
		ContentPackMaxPasses: getEnvInt("CONTENT_PACK_MAX_PASSES", 12),
		ContentPackBatchSize: getEnvInt("CONTENT_PACK_BATCH_SIZE", 6),
		PromptSnippetLimit:   getEnvInt("PROMPT_SNIPPET_LIMIT", 0),
		WriteRetryDelay:      getEnvMillis("WRITE_RETRY_DELAY_MS", 400*time.Millisecond),
		ExportTokenURL:       getEnv("EXPORT_TOKEN_URL", ""),
		ExportClientID:       getEnv("EXPORT_CLIENT_ID", ""),
		ExportClientSecret:   getEnv("EXPORT_CLIENT_SECRET", ""),
		ExportRefreshToken:   getEnv("EXPORT_REFRESH_TOKEN", ""),
		ExportAPIURL:         getEnv("EXPORT_API_URL", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "console"),
		PersonalityFile:      getEnv("PERSONALITY_FILE", ""),
		SecretsKey:           getEnv("SECRETS_KEY", ""),
	}
}

// ModelAPIKey returns the credential for the configured provider.
func (c Config) ModelAPIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

func (c Config) ModelConfigured() error {
	if strings.TrimSpace(c.ModelAPIKey()) == "" {
		return fmt.Errorf("%w: API key for %s provider is not set", ErrMissingCredentials, c.LLMProvider)
	}
	if strings.TrimSpace(c.LLMModel) == "" {
		return fmt.Errorf("%w: LLM_MODEL is not set", ErrMissingCredentials)
	}
	return nil
}

func (c Config) ExportConfigured() error {
	missing := []string{}
	for key, value := range map[string]string{
		"EXPORT_TOKEN_URL":     c.ExportTokenURL,
		"EXPORT_CLIENT_ID":     c.ExportClientID,
		"EXPORT_CLIENT_SECRET": c.ExportClientSecret,
		"EXPORT_REFRESH_TOKEN": c.ExportRefreshToken,
		"EXPORT_API_URL":       c.ExportAPIURL,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s not set", ErrMissingCredentials, strings.Join(missing, ", "))
}

func (c Config) StoreConfigured() error {
	switch c.StoreBackend {
	case "memory":
		return nil
	case "postgres":
		if strings.TrimSpace(c.PostgresURL) == "" {
			return fmt.Errorf("%w: POSTGRES_URL is not set", ErrMissingCredentials)
		}
		return nil
	case "postgrest":
		if strings.TrimSpace(c.StoreURL) == "" || strings.TrimSpace(c.StoreAPIKey) == "" {
			return fmt.Errorf("%w: STORE_URL and STORE_API_KEY are required", ErrMissingCredentials)
		}
		return nil
	default:
		return fmt.Errorf("unsupported store backend: %s", c.StoreBackend)
	}
}

// OpenSecrets decrypts credential fields stored in sealed form.
func (c Config) OpenSecrets() (Config, error) {
	fields := map[string]*string{
		"STORE_API_KEY":        &c.StoreAPIKey,
		"POSTGRES_URL":         &c.PostgresURL,
		"ANTHROPIC_API_KEY":    &c.AnthropicAPIKey,
		"OPENAI_API_KEY":       &c.OpenAIAPIKey,
		"EXPORT_CLIENT_SECRET": &c.ExportClientSecret,
		"EXPORT_REFRESH_TOKEN": &c.ExportRefreshToken,
	}
	var key []byte
	for name, field := range fields {
		if !secrets.IsSealed(*field) {
			continue
		}
		if key == nil && strings.TrimSpace(c.SecretsKey) != "" {
			parsed, err := secrets.ParseKey(c.SecretsKey)
			if err != nil {
				return c, err
			}
			key = parsed
		}
		opened, err := secrets.Open(key, *field)
		if err != nil {
			return c, fmt.Errorf("%s: %w", name, err)
		}
		*field = opened
	}
	return c, nil
}

func defaultModel(provider string) string {
	if provider == "openai" {
		return "gpt-4o-mini"
	}
	return "claude-sonnet-4-5"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return fallback
}
