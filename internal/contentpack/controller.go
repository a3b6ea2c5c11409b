package contentpack

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/resolver"
)

type IDSource string

const (
	SourceContentPackID  IDSource = "content_pack_id"
	SourceResultRowIndex IDSource = "result_row_index"
	SourceNone           IDSource = "none"
)

const ContinueToken = "CONTINUE_FROM:"

// Sections lists the parts of a pack in the order they must appear.
var Sections = []string{
	"Hook",
	"CTA",
	"Final Post",
	"Variants (Curiosity-first, Story-first, Minimalist)",
	"Engagement Add-ons",
	"Asset Brief",
}

const (
	tokenPattern = `([A-Za-z0-9][A-Za-z0-9._:-]{1,120})(?:[^A-Za-z0-9._:-]|$)`
	idLinePrefix = `^[ \t]*(?:[-*•>#]+[ \t]*)?(?:\*\*|__)?[ \t]*id[ \t]*(?:\*\*|__)?[ \t]*:[ \t]*(?:\*\*|__)?[ \t]*`
	jsonIDPrefix = `"id"\s*:\s*"`
)

var (
	idLinePattern   = regexp.MustCompile(`(?im)` + idLinePrefix + tokenPattern)
	singleIDPattern = regexp.MustCompile(`(?i)` + idLinePrefix + tokenPattern)
	jsonIDPattern   = regexp.MustCompile(jsonIDPrefix + tokenPattern)
)

// Controller carries the per-request output contract.
type Controller struct {
	Enabled     bool
	ExpectedIDs []string
	IDSource    IDSource
	// RowLabels maps synthetic ROW-n ids to a readable label for the row.
	RowLabels map[string]string
}

// cleanToken drops sentence punctuation that the token grammar would
// otherwise swallow, as in "ID: abc-1.".
func cleanToken(token string) (string, bool) {
	token = strings.TrimRight(token, ".:")
	return token, len(token) >= 2
}

// lineID returns the token of an id line such as "**ID:** abc-1".
func lineID(line string) (string, bool) {
	m := singleIDPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return cleanToken(m[1])
}

func normalize(text string) string {
	return strings.ToLower(norm.NFKC.String(text))
}

// Detect reports whether a results snippet reads like a content pack.
func Detect(text string) bool {
	normalized := normalize(text)
	hasPack := strings.Contains(normalized, "content pack") || strings.Contains(normalized, "final post")
	hasVariants := strings.Contains(normalized, "variants") || strings.Contains(normalized, "asset brief")
	return hasPack && hasVariants && strings.Contains(normalized, "hook") && strings.Contains(normalized, "cta")
}

// ExtractIDs collects `ID: x` lines and JSON "id" fields in order of
// appearance, dropping case-insensitive duplicates.
func ExtractIDs(texts []string) []string {
	ids := []string{}
	seen := map[string]struct{}{}
	for _, text := range texts {
		type hit struct {
			pos int
			id  string
		}
		hits := []hit{}
		for _, pattern := range []*regexp.Regexp{idLinePattern, jsonIDPattern} {
			for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
				if id, ok := cleanToken(text[m[2]:m[3]]); ok {
					hits = append(hits, hit{pos: m[2], id: id})
				}
			}
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
		for _, h := range hits {
			key := strings.ToLower(h.id)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			ids = append(ids, h.id)
		}
	}
	return ids
}

// NewController enables the pack contract when any results snippet looks
// like a content pack. Without explicit ids every results row gets a
// synthetic ROW-n id.
func NewController(results []resolver.Snippet) Controller {
	enabled := false
	texts := make([]string, 0, len(results))
	for _, snippet := range results {
		texts = append(texts, snippet.Content)
		if Detect(snippet.Content) {
			enabled = true
		}
	}
	if !enabled {
		return Controller{IDSource: SourceNone}
	}
	if ids := ExtractIDs(texts); len(ids) > 0 {
		return Controller{Enabled: true, ExpectedIDs: ids, IDSource: SourceContentPackID}
	}
	ids := make([]string, 0, len(results))
	labels := make(map[string]string, len(results))
	for i, snippet := range results {
		id := fmt.Sprintf("ROW-%d", i+1)
		ids = append(ids, id)
		labels[id] = rowLabel(snippet, i)
	}
	return Controller{Enabled: true, ExpectedIDs: ids, IDSource: SourceResultRowIndex, RowLabels: labels}
}

func rowLabel(snippet resolver.Snippet, index int) string {
	if snippet.Title != "" {
		return snippet.Title
	}
	line := strings.TrimSpace(strings.SplitN(snippet.Content, "\n", 2)[0])
	if line == "" {
		return fmt.Sprintf("Row %d", index+1)
	}
	return truncateRunes(line, 80)
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
