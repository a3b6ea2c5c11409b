package conversation

import (
	"sort"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/companyurl"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store"
)

// Summary is one logical conversation in the listing.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Company      string    `json:"company"`
	SocialEntry  string    `json:"social_entry"`
	MessageCount int       `json:"message_count"`
	CreatedAt    string    `json:"created_at"`
	Messages     []Message `json:"-"`
}

type candidate struct {
	record   store.Record
	company  string
	messages []Message
}

// better applies the listing tie-break: more messages, then a resolvable
// company, then the newer row.
func (c candidate) better(other candidate) bool {
	if len(c.messages) != len(other.messages) {
		return len(c.messages) > len(other.messages)
	}
	if (c.company != "") != (other.company != "") {
		return c.company != ""
	}
	return c.record.CreatedAt.After(other.record.CreatedAt)
}

// Group collapses results rows into one entry per company, falling back to
// the title and then to the row id for rows that only carry messages. Rows
// with none of these are left out. Entries come back newest first.
func Group(records []store.Record) []Summary {
	best := map[string]candidate{}
	for _, record := range records {
		if record.Type != "" && record.Type != store.TypeResults {
			continue
		}
		c := candidate{record: record, messages: Sanitize(record.Messages, record.ID, record.CreatedAt)}
		if company, ok := companyurl.Resolve(record.Company, record.SocialEntry); ok {
			c.company = company
		}
		key := groupKey(c)
		if key == "" {
			continue
		}
		if current, ok := best[key]; !ok || c.better(current) {
			best[key] = c
		}
	}

	chosen := make([]candidate, 0, len(best))
	for _, c := range best {
		chosen = append(chosen, c)
	}
	sort.Slice(chosen, func(i, j int) bool {
		a, b := chosen[i].record, chosen[j].record
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	summaries := make([]Summary, 0, len(chosen))
	for _, c := range chosen {
		summaries = append(summaries, Summary{
			ID:           c.record.ID,
			Title:        c.record.Title,
			Company:      c.company,
			SocialEntry:  c.record.SocialEntry,
			MessageCount: len(c.messages),
			CreatedAt:    c.record.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Messages:     c.messages,
		})
	}
	return summaries
}

func groupKey(c candidate) string {
	if c.company != "" {
		if canonical, ok := companyurl.Canonicalize(c.company); ok {
			return "company:" + canonical
		}
		return "company:" + c.company
	}
	if title := strings.TrimSpace(c.record.Title); title != "" {
		return "title:" + title
	}
	if len(c.messages) > 0 {
		return "id:" + c.record.ID
	}
	return ""
}
