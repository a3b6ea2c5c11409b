package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/api"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/chat"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/export"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/logger"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/personality"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store/memory"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store/postgres"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store/postgrest"
)

const storeTimeout = 15 * time.Second

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig = func() (config.Config, error) {
		// A missing .env file is normal outside local development.
		_ = godotenv.Load()
		return config.Load().OpenSecrets()
	}
	newLogger   = logger.New
	newStore    = openStore
	newProvider = llm.NewProvider
	newServer   = func(st store.Store, chatService api.ChatService, exporter api.Exporter, cfg config.Config, logger zerolog.Logger) server {
		return api.NewServer(st, chatService, exporter, cfg, logger)
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("company chat stopped")
	}
}

// openStore builds the configured backend. The returned func releases it.
func openStore(cfg config.Config, logger zerolog.Logger) (store.Store, func() error, error) {
	switch cfg.StoreBackend {
	case "memory":
		return memory.New(), func() error { return nil }, nil
	case "postgres":
		st, err := postgres.New(cfg.PostgresURL, cfg.StoreTable)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "postgrest":
		return postgrest.New(cfg.StoreURL, cfg.StoreAPIKey, cfg.StoreTable, storeTimeout, logger), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	if err := cfg.StoreConfigured(); err != nil {
		return err
	}
	if err := cfg.ModelConfigured(); err != nil {
		logger.Warn().Err(err).Msg("model is not configured; chat requests will be rejected")
	}

	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, closeStore, err := newStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn().Err(err).Msg("closing store")
		}
	}()

	provider, err := newProvider(llm.Config{
		Provider: cfg.LLMProvider,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.ModelAPIKey(),
	})
	if err != nil {
		return err
	}
	chatService := chat.NewService(st, llm.NewClient(provider, cfg.LLMTimeout, logger), chat.Options{
		Persona:      personality.Load(cfg.PersonalityFile),
		Model:        cfg.LLMModel,
		MaxTokens:    cfg.LLMMaxTokens,
		Temperature:  cfg.LLMTemperature,
		SnippetLimit: cfg.PromptSnippetLimit,
		MaxPasses:    cfg.ContentPackMaxPasses,
		BatchSize:    cfg.ContentPackBatchSize,
		RetryDelay:   cfg.WriteRetryDelay,
		Configured:   cfg.ModelConfigured,
	}, logger)
	exporter := export.New(export.Config{
		TokenURL:     cfg.ExportTokenURL,
		ClientID:     cfg.ExportClientID,
		ClientSecret: cfg.ExportClientSecret,
		RefreshToken: cfg.ExportRefreshToken,
		APIURL:       cfg.ExportAPIURL,
	}, logger)

	server := newServer(st, chatService, exporter, cfg, logger)

	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info().
		Str("addr", addr).
		Str("store", cfg.StoreBackend).
		Str("provider", cfg.LLMProvider).
		Str("model", cfg.LLMModel).
		Msg("company chat listening")
	if err := server.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
