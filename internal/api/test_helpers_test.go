package api

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/chat"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store"
)

var testNow = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, id string) (store.Record, error) {
	args := m.Called(ctx, id)
	var result store.Record
	if value := args.Get(0); value != nil {
		result = value.(store.Record)
	}
	return result, args.Error(1)
}

func (m *MockStore) List(ctx context.Context, query store.Query) ([]store.Record, error) {
	args := m.Called(ctx, query)
	var result []store.Record
	if value := args.Get(0); value != nil {
		result = value.([]store.Record)
	}
	return result, args.Error(1)
}

func (m *MockStore) Upsert(ctx context.Context, record store.Record) (store.Record, error) {
	args := m.Called(ctx, record)
	var result store.Record
	if value := args.Get(0); value != nil {
		result = value.(store.Record)
	}
	return result, args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) DeleteContexts(ctx context.Context, companyVariants []string) error {
	args := m.Called(ctx, companyVariants)
	return args.Error(0)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Chat(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error) {
	args := m.Called(ctx, req)
	var result chat.TurnResult
	if value := args.Get(0); value != nil {
		result = value.(chat.TurnResult)
	}
	return result, args.Error(1)
}

type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Export(ctx context.Context, title, text string) (string, error) {
	args := m.Called(ctx, title, text)
	return args.String(0), args.Error(1)
}

func newServer(s store.Store, chatService ChatService, exporter Exporter, cfg config.Config) *Server {
	server := NewServer(s, chatService, exporter, cfg, zerolog.Nop())
	server.now = func() time.Time { return testNow }
	server.newID = func() string { return "new-id" }
	return server
}

func newTestServer(t *testing.T, s store.Store, chatService ChatService, exporter Exporter, cfg config.Config) *httptest.Server {
	t.Helper()
	return httptest.NewServer(newServer(s, chatService, exporter, cfg).Router())
}

func exportConfig() config.Config {
	return config.Config{
		ExportTokenURL:     "https://auth.example.test/token",
		ExportClientID:     "client",
		ExportClientSecret: "secret",
		ExportRefreshToken: "refresh",
		ExportAPIURL:       "https://docs.example.test",
	}
}
