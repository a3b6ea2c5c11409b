package export

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/conversation"
)

func tokenServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(tokenURL, apiURL string) *Client {
	return New(Config{
		TokenURL:     tokenURL,
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: "refresh-1",
		APIURL:       apiURL,
	}, zerolog.Nop())
}

func TestExportReturnsDocumentURL(t *testing.T) {
	tokens := tokenServer(t, http.StatusOK)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/documents", r.URL.Path)
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		var body documentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Acme", body.Title)
		require.Equal(t, "User: hi", body.Content)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"doc-1","url":"https://docs.example.test/d/doc-1"}`))
	}))
	defer api.Close()

	url, err := newClient(tokens.URL, api.URL).Export(context.Background(), "Acme", "User: hi")
	require.NoError(t, err)
	require.Equal(t, "https://docs.example.test/d/doc-1", url)
}

func TestExportBuildsURLFromID(t *testing.T) {
	tokens := tokenServer(t, http.StatusOK)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"doc-9"}`))
	}))
	defer api.Close()

	url, err := newClient(tokens.URL, api.URL+"/").Export(context.Background(), "t", "x")
	require.NoError(t, err)
	require.Equal(t, api.URL+"/documents/doc-9", url)
}

func TestExportUpstreamFailure(t *testing.T) {
	tokens := tokenServer(t, http.StatusOK)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("quota exceeded"))
	}))
	defer api.Close()

	_, err := newClient(tokens.URL, api.URL).Export(context.Background(), "t", "x")
	require.True(t, errors.Is(err, ErrUpstream))
	require.Contains(t, err.Error(), "status 403")
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestExportTokenFailure(t *testing.T) {
	tokens := tokenServer(t, http.StatusBadRequest)
	called := false
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer api.Close()

	_, err := newClient(tokens.URL, api.URL).Export(context.Background(), "t", "x")
	require.True(t, errors.Is(err, ErrUpstream))
	require.False(t, called)
}

func TestTranscript(t *testing.T) {
	text := Transcript("Acme", "https://acme.com/", []conversation.Message{
		{Role: conversation.RoleSystem, Content: "https://acme.com/"},
		{Role: conversation.RoleUser, Content: " Draft a post "},
		{Role: conversation.RoleAssistant, Content: "Here it is"},
	})
	require.Equal(t, "Conversation: Acme\nCompany: https://acme.com/\n\nUser: Draft a post\n\nAssistant: Here it is", text)
	require.Equal(t, "User: hi", Transcript("", "", []conversation.Message{{Role: conversation.RoleUser, Content: "hi"}}))
}
