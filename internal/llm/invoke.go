package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const emptyResponse = "Empty model response"

// Client applies the request timeout and folds every failure into a
// *ProviderError.
type Client struct {
	provider Provider
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewClient(provider Provider, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		provider: provider,
		timeout:  timeout,
		logger:   logger.With().Str("component", "llm").Logger(),
	}
}

func (c *Client) Invoke(ctx context.Context, req Request) (string, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	text, err := c.provider.Generate(callCtx, req)
	if err != nil {
		providerErr := c.providerError(callCtx, err)
		c.logger.Warn().
			Err(providerErr).
			Int("status", providerErr.Status).
			Bool("timeout", providerErr.Timeout).
			Dur("elapsed", time.Since(started)).
			Msg("model request failed")
		return "", providerErr
	}
	if strings.TrimSpace(text) == "" {
		return "", &ProviderError{Message: emptyResponse}
	}
	c.logger.Debug().Dur("elapsed", time.Since(started)).Int("chars", len(text)).Msg("model request finished")
	return text, nil
}

func (c *Client) providerError(ctx context.Context, err error) *ProviderError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderError{
			Message: fmt.Sprintf("Model request timed out after %dms", c.timeout.Milliseconds()),
			Timeout: true,
		}
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr
	}
	return &ProviderError{Message: err.Error()}
}
