package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/contentpack"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/prompt"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/resolver"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store"
)

var ErrInvalidPayload = errors.New("invalid payload")

type Invoker interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
}

type Options struct {
	Persona      string
	Model        string
	MaxTokens    int
	Temperature  float64
	SnippetLimit int
	MaxPasses    int
	BatchSize    int
	RetryDelay   time.Duration
	// Configured reports whether the model can be called at all.
	Configured func() error
}

type Service struct {
	store    store.Store
	resolver *resolver.Resolver
	invoker  Invoker
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(s store.Store, invoker Invoker, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		store:    s,
		resolver: resolver.New(s, logger),
		invoker:  invoker,
		opts:     opts,
		logger:   logger.With().Str("component", "chat").Logger(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

type TurnRequest struct {
	ConversationID string
	Message        string
	Messages       json.RawMessage
}

type Meta struct {
	Coverage      *contentpack.Coverage `json:"coverage,omitempty"`
	IDSource      string                `json:"id_source,omitempty"`
	ProviderError string                `json:"provider_error,omitempty"`
	Passes        int                   `json:"passes"`
	Fallback      bool                  `json:"fallback"`
}

type TurnResult struct {
	Reply    string                 `json:"reply"`
	Messages []conversation.Message `json:"messages"`
	Meta     Meta                   `json:"meta"`
}

// Chat runs one conversation turn: merge and persist the history, resolve
// the company data, call the model and enforce content-pack coverage.
func (s *Service) Chat(ctx context.Context, req TurnRequest) (TurnResult, error) {
	now := s.now()
	message := strings.TrimSpace(req.Message)
	incoming := conversation.Sanitize(req.Messages, req.ConversationID, now)
	if strings.TrimSpace(req.ConversationID) == "" || (message == "" && len(incoming) == 0) {
		return TurnResult{}, ErrInvalidPayload
	}
	if s.opts.Configured != nil {
		if err := s.opts.Configured(); err != nil {
			return TurnResult{}, err
		}
	}

	record, err := s.store.Get(ctx, req.ConversationID)
	if err != nil {
		return TurnResult{}, err
	}
	stored := conversation.Sanitize(record.Messages, record.ID, record.CreatedAt)
	history := conversation.MergeHistory(stored, incoming)
	if message != "" {
		history = conversation.AppendUserMessage(history, conversation.Message{
			ID:        "user:" + s.newID(),
			Role:      conversation.RoleUser,
			Content:   message,
			Timestamp: now.UnixMilli(),
		})
	}
	if record, err = s.persist(ctx, record, history); err != nil {
		return TurnResult{}, err
	}

	resolution, err := s.resolve(ctx, req.ConversationID)
	if err != nil {
		return TurnResult{}, err
	}
	results := resolution.ResultSnippets()
	contexts := resolution.ContextSnippets()
	controller := contentpack.NewController(results)
	system := prompt.Build(prompt.Input{
		Persona:      s.opts.Persona,
		Title:        record.Title,
		Company:      resolution.Company,
		SocialEntry:  record.SocialEntry,
		Context:      record.Context,
		Results:      results,
		Contexts:     contexts,
		Controller:   controller,
		SnippetLimit: s.opts.SnippetLimit,
	})
	normalized := conversation.NormalizeMessages(record.ID, record.SocialEntry, history, record.CreatedAt.UnixMilli())
	turns := leadingUserTurns(conversation.ModelTurns(normalized))
	request := llm.Request{
		Model:       s.opts.Model,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
		System:      system,
		Turns:       turns,
	}

	result := TurnResult{}
	first := s.firstReply(ctx, request)
	if reply, err := first.Get(); err != nil {
		result.Meta.Fallback = true
		result.Meta.ProviderError = err.Error()
		result.Reply = FallbackReply(FallbackInput{
			Title:         record.Title,
			Company:       resolution.Company,
			LatestRequest: latestUserRequest(history),
			Results:       results,
			Contexts:      contexts,
			ProviderError: err.Error(),
		})
	} else {
		engine := contentpack.Engine{MaxPasses: s.opts.MaxPasses, BatchSize: s.opts.BatchSize, Logger: s.logger}
		outcome := engine.Complete(ctx, controller, turns, reply, func(ctx context.Context, turns []conversation.Turn) (string, error) {
			repair := request
			repair.Turns = turns
			return s.invoker.Invoke(ctx, repair)
		})
		result.Reply = outcome.Reply
		result.Meta.Passes = outcome.Passes
		if controller.Enabled {
			coverage := outcome.Coverage
			result.Meta.Coverage = &coverage
			result.Meta.IDSource = string(controller.IDSource)
		}
	}

	history = append(history, conversation.Message{
		ID:        "assistant:" + s.newID(),
		Role:      conversation.RoleAssistant,
		Content:   result.Reply,
		Timestamp: s.now().UnixMilli(),
	})
	if _, err := s.persist(ctx, record, history); err != nil {
		return TurnResult{}, err
	}
	result.Messages = history

	s.logger.Info().
		Str("conversation_id", req.ConversationID).
		Int("results", len(results)).
		Int("contexts", len(contexts)).
		Bool("content_pack", controller.Enabled).
		Bool("fallback", result.Meta.Fallback).
		Int("passes", result.Meta.Passes).
		Msg("chat turn completed")
	return result, nil
}

func (s *Service) firstReply(ctx context.Context, request llm.Request) mo.Result[string] {
	return mo.TupleToResult(s.invoker.Invoke(ctx, request))
}

func (s *Service) persist(ctx context.Context, record store.Record, history []conversation.Message) (store.Record, error) {
	encoded, err := json.Marshal(history)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode messages: %w", err)
	}
	record.Messages = encoded
	saved, err := s.store.Upsert(ctx, record)
	if err != nil {
		return store.Record{}, fmt.Errorf("persist conversation: %w", err)
	}
	return saved, nil
}

// resolve retries once after RetryDelay when the row is not visible yet,
// which happens right after a write on eventually consistent stores.
func (s *Service) resolve(ctx context.Context, conversationID string) (resolver.Resolution, error) {
	var resolution resolver.Resolution
	operation := func() error {
		resolved, err := s.resolver.Resolve(ctx, conversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return err
			}
			return backoff.Permanent(err)
		}
		resolution = resolved
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.opts.RetryDelay), 1), ctx)
	notify := func(err error, wait time.Duration) {
		s.logger.Debug().Str("conversation_id", conversationID).Dur("wait", wait).Msg("conversation not visible yet, retrying")
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return resolver.Resolution{}, err
	}
	return resolution, nil
}

// leadingUserTurns drops assistant turns before the first user turn; the
// model API requires the conversation to open with the user.
func leadingUserTurns(turns []conversation.Turn) []conversation.Turn {
	for i, turn := range turns {
		if turn.Role == conversation.RoleUser {
			return turns[i:]
		}
	}
	return []conversation.Turn{}
}

func latestUserRequest(history []conversation.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == conversation.RoleUser && strings.TrimSpace(history[i].Content) != "" {
			return history[i].Content
		}
	}
	return ""
}
