package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/conversation"
)

// ErrUpstream marks failures of the token endpoint or the document API.
var ErrUpstream = errors.New("document export failed")

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	APIURL       string
	Timeout      time.Duration
}

type Client struct {
	oauth        oauth2.Config
	refreshToken string
	apiURL       string
	http         *resty.Client
	logger       zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
		refreshToken: cfg.RefreshToken,
		apiURL:       apiURL,
		http: resty.New().
			SetBaseURL(apiURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
		logger: logger.With().Str("component", "export").Logger(),
	}
}

type documentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type documentResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Export creates a document from text and returns its shareable URL.
func (c *Client) Export(ctx context.Context, title, text string) (string, error) {
	token, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: c.refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("%w: refresh access token: %v", ErrUpstream, err)
	}

	var created documentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetBody(documentRequest{Title: title, Content: text}).
		SetResult(&created).
		Post("/documents")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.IsError() {
		c.logger.Warn().Int("status", resp.StatusCode()).Msg("document api rejected export")
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	if created.URL != "" {
		return created.URL, nil
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: response carried neither url nor id", ErrUpstream)
	}
	return c.apiURL + "/documents/" + created.ID, nil
}

// Transcript renders a conversation as plain text, one block per
// non-system message.
func Transcript(title, company string, messages []conversation.Message) string {
	blocks := []string{}
	header := []string{}
	if strings.TrimSpace(title) != "" {
		header = append(header, "Conversation: "+strings.TrimSpace(title))
	}
	if strings.TrimSpace(company) != "" {
		header = append(header, "Company: "+strings.TrimSpace(company))
	}
	if len(header) > 0 {
		blocks = append(blocks, strings.Join(header, "\n"))
	}
	for _, message := range messages {
		if message.Role == conversation.RoleSystem {
			continue
		}
		blocks = append(blocks, roleLabel(message.Role)+": "+strings.TrimSpace(message.Content))
	}
	return strings.Join(blocks, "\n\n")
}

func roleLabel(role conversation.Role) string {
	if role == conversation.RoleAssistant {
		return "Assistant"
	}
	return "User"
}
