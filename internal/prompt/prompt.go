package prompt

import (
	"fmt"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/contentpack"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/personality"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/resolver"
)

// Preamble follows the persona in every prompt, whatever the persona says.
const Preamble = "RESULTS are the primary data for this conversation. CONTEXT is background only.\n" +
	"Use every loaded row, not just the most recent one, and say so when the data does not answer the question."

const (
	indexLineLimit = 140
	dateLayout     = "2006-01-02"
	separator      = "\n---\n"
)

// Input is everything the system prompt is built from.
type Input struct {
	// Persona opens the prompt; empty means personality.Default.
	Persona     string
	Title       string
	Company     string
	SocialEntry string
	Context     string
	Results     []resolver.Snippet
	Contexts    []resolver.Snippet
	Controller  contentpack.Controller
	// SnippetLimit caps each full-text snippet in runes. Zero keeps bodies whole.
	SnippetLimit int
}

// Build renders the system prompt. Equal inputs give byte-identical output.
func Build(in Input) string {
	persona := strings.TrimSpace(in.Persona)
	if persona == "" {
		persona = personality.Default
	}
	sections := []string{persona, Preamble}
	if in.Controller.Enabled {
		sections = append(sections, FormatBlock(in.Controller))
	}

	sections = append(sections, fmt.Sprintf("Conversation title: %s\nCompany URL: %s", orNone(in.Title), orNone(in.Company)))

	if len(in.Results) == 0 && len(in.Contexts) == 0 && strings.TrimSpace(in.SocialEntry) != "" {
		sections = append(sections, "Social entry: "+strings.TrimSpace(in.SocialEntry))
	}
	if context := strings.TrimSpace(in.Context); context != "" {
		sections = append(sections, "Conversation context:\n"+context)
	}
	if len(in.Results) > 0 {
		sections = append(sections, snippetSection("RESULTS", "ROW", in.Results, in.SnippetLimit))
	}
	if len(in.Contexts) > 0 {
		sections = append(sections, snippetSection("CONTEXT", "CONTEXT", in.Contexts, in.SnippetLimit))
	}
	return strings.Join(sections, "\n\n")
}

// FormatBlock is the strict output contract injected for content packs.
func FormatBlock(controller contentpack.Controller) string {
	ids := controller.ExpectedIDs
	lines := []string{
		"MANDATORY OUTPUT FORMAT (content packs)",
		"- Do not ask clarifying questions. Produce the packs now.",
		fmt.Sprintf("- Process every ID. Input count: %d. Your output must contain exactly %d packs.", len(ids), len(ids)),
		"- Keep placeholder tokens such as [LINK], {name} or <PRODUCT> exactly as written.",
		"- Start each pack with its own line in the exact form `ID: <id>`.",
		"- Inside each pack use these sections in this order: " + strings.Join(contentpack.Sections, ", ") + ".",
		fmt.Sprintf("- If you cannot finish every pack in one response, stop after the last complete pack and end with a line `%s<next id>`.", contentpack.ContinueToken),
		"- End the response with this block, using these exact field names:",
		"Coverage Check",
		"Input IDs: <comma separated ids>",
		"Output IDs: <comma separated ids you wrote>",
		"Missing IDs: <comma separated ids you did not write, or none>",
		"Expected IDs: " + strings.Join(ids, ", "),
	}
	if controller.IDSource == contentpack.SourceResultRowIndex {
		lines = append(lines, "The rows carry no explicit IDs. Use these row IDs:")
		for _, id := range ids {
			lines = append(lines, fmt.Sprintf("- %s = %s", id, controller.RowLabels[id]))
		}
	}
	return strings.Join(lines, "\n")
}

func snippetSection(name, label string, snippets []resolver.Snippet, limit int) string {
	index := make([]string, 0, len(snippets))
	bodies := make([]string, 0, len(snippets))
	for i, snippet := range snippets {
		tag := fmt.Sprintf("%s-%d", label, i+1)
		heading := tag
		if snippet.Title != "" {
			heading = tag + " " + snippet.Title
		}
		index = append(index, fmt.Sprintf("- [%s] %s: %s", date(snippet), heading, truncate(firstLine(snippet.Content), indexLineLimit)))
		bodies = append(bodies, fmt.Sprintf("[%s]\n%s", heading, truncate(snippet.Content, limit)))
	}
	return fmt.Sprintf("%s INDEX (%d rows):\n%s\n\n%s:\n%s", name, len(snippets), strings.Join(index, "\n"), name, strings.Join(bodies, separator))
}

func date(snippet resolver.Snippet) string {
	if snippet.CreatedAt.IsZero() {
		return "undated"
	}
	return snippet.CreatedAt.UTC().Format(dateLayout)
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}

func orNone(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return "(none)"
}
