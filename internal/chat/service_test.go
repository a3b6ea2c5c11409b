package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store/memory"
)

var base = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

type scriptedInvoker struct {
	mu       sync.Mutex
	requests []llm.Request
	replies  []string
	errs     []error
}

func (s *scriptedInvoker) Invoke(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := len(s.requests)
	s.requests = append(s.requests, req)
	var err error
	if index < len(s.errs) {
		err = s.errs[index]
	}
	reply := ""
	if index < len(s.replies) {
		reply = s.replies[index]
	}
	return reply, err
}

// flakyStore hides the parent row from the first n reads after the initial one.
type flakyStore struct {
	*memory.MemoryStore
	mu     sync.Mutex
	reads  int
	misses int
}

func (f *flakyStore) Get(ctx context.Context, id string) (store.Record, error) {
	f.mu.Lock()
	f.reads++
	miss := f.reads > 1 && f.misses > 0
	if miss {
		f.misses--
	}
	f.mu.Unlock()
	if miss {
		return store.Record{}, store.ErrNotFound
	}
	return f.MemoryStore.Get(ctx, id)
}

func newService(t *testing.T, s store.Store, invoker Invoker) *Service {
	t.Helper()
	svc := NewService(s, invoker, Options{
		Model:       "claude-test",
		MaxTokens:   1024,
		Temperature: 0.4,
		MaxPasses:   4,
		BatchSize:   6,
		Configured:  func() error { return nil },
	}, zerolog.Nop())
	svc.now = func() time.Time { return base }
	counter := 0
	svc.newID = func() string {
		counter++
		return "id-" + string(rune('0'+counter))
	}
	return svc
}

func seedAcme(t *testing.T, s store.Store, results ...store.Record) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Upsert(ctx, store.Record{
		ID:          "c1",
		Company:     "https://acme.com/",
		Type:        store.TypeResults,
		SocialEntry: "https://acme.com/",
		Title:       "Acme",
		CreatedAt:   base,
	})
	require.NoError(t, err)
	for _, record := range results {
		_, err := s.Upsert(ctx, record)
		require.NoError(t, err)
	}
}

func TestChatRejectsEmptyPayload(t *testing.T) {
	svc := newService(t, memory.New(), &scriptedInvoker{})
	_, err := svc.Chat(context.Background(), TurnRequest{ConversationID: "c1", Message: "  "})
	require.True(t, errors.Is(err, ErrInvalidPayload))

	_, err = svc.Chat(context.Background(), TurnRequest{Message: "hi"})
	require.True(t, errors.Is(err, ErrInvalidPayload))
}

func TestChatChecksConfigurationBeforeStore(t *testing.T) {
	invoker := &scriptedInvoker{}
	svc := newService(t, memory.New(), invoker)
	svc.opts.Configured = config.Config{LLMProvider: "anthropic", LLMModel: "m"}.ModelConfigured

	_, err := svc.Chat(context.Background(), TurnRequest{ConversationID: "missing", Message: "hi"})
	require.True(t, errors.Is(err, config.ErrMissingCredentials))
	require.Empty(t, invoker.requests)
}

func TestChatNotFound(t *testing.T) {
	svc := newService(t, memory.New(), &scriptedInvoker{})
	_, err := svc.Chat(context.Background(), TurnRequest{ConversationID: "missing", Message: "hi"})
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestChatHappyPath(t *testing.T) {
	mem := memory.New()
	seedAcme(t, mem, store.Record{ID: "s1", Company: "https://acme.com", Type: store.TypeResults, Title: "Launch post", SocialEntry: "We launched a new plan", CreatedAt: base})
	invoker := &scriptedInvoker{replies: []string{"Here is the summary."}}
	svc := newService(t, mem, invoker)

	result, err := svc.Chat(context.Background(), TurnRequest{ConversationID: "c1", Message: "Summarize the posts"})
	require.NoError(t, err)

	require.Equal(t, "Here is the summary.", result.Reply)
	require.False(t, result.Meta.Fallback)
	require.Nil(t, result.Meta.Coverage)
	require.Len(t, result.Messages, 2)
	require.Equal(t, conversation.RoleUser, result.Messages[0].Role)
	require.Equal(t, "user:id-1", result.Messages[0].ID)
	require.Equal(t, conversation.RoleAssistant, result.Messages[1].Role)

	require.Len(t, invoker.requests, 1)
	request := invoker.requests[0]
	require.Equal(t, "claude-test", request.Model)
	require.Contains(t, request.System, "Launch post")
	require.Equal(t, []conversation.Turn{{Role: conversation.RoleUser, Content: "Summarize the posts"}}, request.Turns)

	saved, err := mem.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, base, saved.CreatedAt)
	persisted := conversation.Sanitize(saved.Messages, "c1", base)
	require.Len(t, persisted, 2)
	require.Equal(t, "Here is the summary.", persisted[1].Content)
}

func TestChatMergesClientHistory(t *testing.T) {
	mem := memory.New()
	seedAcme(t, mem)
	invoker := &scriptedInvoker{replies: []string{"second answer"}}
	svc := newService(t, mem, invoker)

	client, err := json.Marshal([]conversation.Message{
		{ID: "u1", Role: conversation.RoleUser, Content: "first", Timestamp: 1},
		{ID: "a1", Role: conversation.RoleAssistant, Content: "first answer", Timestamp: 2},
	})
	require.NoError(t, err)

	result, err := svc.Chat(context.Background(), TurnRequest{ConversationID: "c1", Message: "second", Messages: client})
	require.NoError(t, err)
	require.Len(t, result.Messages, 4)
	require.Equal(t, []conversation.Turn{
		{Role: conversation.RoleUser, Content: "first"},
		{Role: conversation.RoleAssistant, Content: "first answer"},
		{Role: conversation.RoleUser, Content: "second"},
	}, invoker.requests[0].Turns)
}

func TestChatFallbackOnProviderError(t *testing.T) {
	mem := memory.New()
	seedAcme(t, mem,
		store.Record{ID: "s1", Company: "https://acme.com", Type: store.TypeResults, Title: "Launch post", SocialEntry: "launch text", CreatedAt: base},
		store.Record{ID: "x1", Company: "https://acme.com", Type: store.TypeContext, Title: "Brand voice", Context: "calm and clear", CreatedAt: base},
	)
	invoker := &scriptedInvoker{errs: []error{&llm.ProviderError{Message: `{"error":{"message":"Your credit balance is too low"}}`, Status: 400}}}
	svc := newService(t, mem, invoker)

	result, err := svc.Chat(context.Background(), TurnRequest{ConversationID: "c1", Message: "Draft a post"})
	require.NoError(t, err)
	require.True(t, result.Meta.Fallback)
	require.Contains(t, result.Meta.ProviderError, "credit balance is too low")
	require.Contains(t, result.Reply, "could not be reached")
	require.Contains(t, result.Reply, "Add credits")
	require.Contains(t, result.Reply, "Launch post")
	require.Contains(t, result.Reply, "Brand voice")
	require.Contains(t, result.Reply, "Latest request: Draft a post")
	require.Len(t, invoker.requests, 1)
}

func TestChatRepairsContentPacks(t *testing.T) {
	mem := memory.New()
	pack := "Content pack\nHook / CTA / Final Post / Variants / Asset Brief\n"
	seedAcme(t, mem,
		store.Record{ID: "s1", Company: "https://acme.com", Type: store.TypeResults, Context: pack + "ID: abc-1", CreatedAt: base},
		store.Record{ID: "s2", Company: "https://acme.com", Type: store.TypeResults, Context: pack + "ID: abc-2", CreatedAt: base.Add(time.Second)},
	)
	invoker := &scriptedInvoker{replies: []string{"ID: abc-1\nHook: a", "ID: abc-2\nHook: b"}}
	svc := newService(t, mem, invoker)

	result, err := svc.Chat(context.Background(), TurnRequest{ConversationID: "c1", Message: "Write the packs"})
	require.NoError(t, err)
	require.NotNil(t, result.Meta.Coverage)
	require.Empty(t, result.Meta.Coverage.MissingIDs)
	require.Equal(t, "content_pack_id", result.Meta.IDSource)
	require.Equal(t, 1, result.Meta.Passes)
	require.Equal(t, "ID: abc-1\nHook: a\n\nID: abc-2\nHook: b", result.Reply)

	require.Len(t, invoker.requests, 2)
	require.Contains(t, invoker.requests[0].System, "MANDATORY OUTPUT FORMAT")
	repairTurns := invoker.requests[1].Turns
	require.Contains(t, repairTurns[len(repairTurns)-1].Content, "exactly these IDs now: abc-2")
}

func TestChatRetriesResolveOnce(t *testing.T) {
	flaky := &flakyStore{MemoryStore: memory.New(), misses: 1}
	seedAcme(t, flaky)
	invoker := &scriptedInvoker{replies: []string{"ok"}}
	svc := newService(t, flaky, invoker)
	svc.opts.RetryDelay = time.Millisecond

	result, err := svc.Chat(context.Background(), TurnRequest{ConversationID: "c1", Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, "ok", result.Reply)
	require.Equal(t, 3, flaky.reads)
}

func TestChatGivesUpAfterOneRetry(t *testing.T) {
	flaky := &flakyStore{MemoryStore: memory.New(), misses: 5}
	seedAcme(t, flaky)
	svc := newService(t, flaky, &scriptedInvoker{})
	svc.opts.RetryDelay = time.Millisecond

	_, err := svc.Chat(context.Background(), TurnRequest{ConversationID: "c1", Message: "hi"})
	require.True(t, errors.Is(err, store.ErrNotFound))
	require.Equal(t, 3, flaky.reads)
}

func TestLeadingUserTurns(t *testing.T) {
	turns := leadingUserTurns([]conversation.Turn{
		{Role: conversation.RoleAssistant, Content: "welcome"},
		{Role: conversation.RoleUser, Content: "hi"},
	})
	require.Equal(t, []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}}, turns)
	require.Empty(t, leadingUserTurns([]conversation.Turn{{Role: conversation.RoleAssistant, Content: "x"}}))
}

func TestLatestUserRequest(t *testing.T) {
	history := []conversation.Message{
		{Role: conversation.RoleUser, Content: "first"},
		{Role: conversation.RoleUser, Content: "second"},
		{Role: conversation.RoleAssistant, Content: "answer"},
		{Role: conversation.RoleUser, Content: "  "},
	}
	require.Equal(t, "second", latestUserRequest(history))
	require.Equal(t, "", latestUserRequest(nil))
}
