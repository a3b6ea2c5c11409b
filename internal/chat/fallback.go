package chat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/resolver"
)

const fallbackSnippetLimit = 320

var lowCreditPattern = regexp.MustCompile(`(?i)credit balance (is )?too low`)

// FallbackInput is what the offline reply is assembled from.
type FallbackInput struct {
	Title         string
	Company       string
	LatestRequest string
	Results       []resolver.Snippet
	Contexts      []resolver.Snippet
	ProviderError string
}

// FallbackReply builds a data-only answer for when the model cannot be
// reached. Equal inputs give equal text.
func FallbackReply(in FallbackInput) string {
	var b strings.Builder
	b.WriteString("The language model could not be reached, so this reply only lists the data loaded for this conversation.\n")
	if lowCreditPattern.MatchString(in.ProviderError) {
		b.WriteString("The model provider reports that the account's credit balance is too low. Add credits to the provider account to restore generated answers.\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Conversation: %s\n", valueOr(in.Title, "untitled"))
	fmt.Fprintf(&b, "Company: %s\n", valueOr(in.Company, "unknown"))
	fmt.Fprintf(&b, "Latest request: %s\n", valueOr(in.LatestRequest, "none"))
	writeSnippets(&b, "Results", "Row", in.Results)
	writeSnippets(&b, "Context", "Context", in.Contexts)
	return strings.TrimRight(b.String(), "\n")
}

func writeSnippets(b *strings.Builder, heading, label string, snippets []resolver.Snippet) {
	fmt.Fprintf(b, "\n%s loaded (%d):\n", heading, len(snippets))
	if len(snippets) == 0 {
		b.WriteString("- none\n")
		return
	}
	for i, snippet := range snippets {
		title := snippet.Title
		if title == "" {
			title = fmt.Sprintf("%s %d", label, i+1)
		}
		fmt.Fprintf(b, "%d. %s: %s\n", i+1, title, clip(snippet.Content, fallbackSnippetLimit))
	}
}

func clip(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}

func valueOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
