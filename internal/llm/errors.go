package llm

import (
	"fmt"
	"strings"
)

// maxErrorBody caps, in runes, how much of an upstream error body reaches callers.
const maxErrorBody = 2000

type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported LLM provider: %s", e.Provider)
}

// ProviderError is any failure of the model collaborator: a non-2xx answer,
// an unreadable body, a timeout or an empty reply.
type ProviderError struct {
	Message string
	Status  int
	Timeout bool
}

func (e *ProviderError) Error() string {
	return e.Message
}

func statusError(status int, body string) *ProviderError {
	body = strings.TrimSpace(body)
	if runes := []rune(body); len(runes) > maxErrorBody {
		body = string(runes[:maxErrorBody]) + "…"
	}
	if body == "" {
		body = fmt.Sprintf("model request failed with status %d", status)
	}
	return &ProviderError{Message: body, Status: status}
}
