package conversation

import (
	"fmt"
	"strings"
)

// Turn is the provider-facing shape of a message.
type Turn struct {
	Role    Role
	Content string
}

func sameTurn(a, b Message) bool {
	return a.Role == b.Role && strings.TrimSpace(a.Content) == strings.TrimSpace(b.Content)
}

// MergeHistory reconciles the stored history with what a client sent. A
// client that holds at least as many messages is trusted wholesale. A shorter
// client list is treated as a resend of the newest turns and only entries
// that differ from the running last entry are appended.
func MergeHistory(stored, incoming []Message) []Message {
	if len(stored) == 0 {
		return cloneMessages(incoming)
	}
	if len(incoming) == 0 {
		return cloneMessages(stored)
	}
	if len(incoming) >= len(stored) {
		return cloneMessages(incoming)
	}
	merged := cloneMessages(stored)
	for _, msg := range incoming {
		if sameTurn(merged[len(merged)-1], msg) {
			continue
		}
		merged = append(merged, msg)
	}
	return merged
}

// AppendUserMessage adds the new user turn unless the history already ends
// with it.
func AppendUserMessage(history []Message, msg Message) []Message {
	if len(history) > 0 && sameTurn(history[len(history)-1], msg) {
		return history
	}
	return append(history, msg)
}

// MergeConsecutive collapses runs of same-role turns into one turn whose
// content is joined by a blank line.
func MergeConsecutive(turns []Turn) []Turn {
	merged := make([]Turn, 0, len(turns))
	for _, turn := range turns {
		if n := len(merged); n > 0 && merged[n-1].Role == turn.Role {
			merged[n-1].Content = merged[n-1].Content + "\n\n" + turn.Content
			continue
		}
		merged = append(merged, turn)
	}
	return merged
}

// ModelTurns drops system entries and collapses same-role runs, producing the
// alternating sequence providers expect.
func ModelTurns(messages []Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			continue
		}
		turns = append(turns, Turn{Role: msg.Role, Content: msg.Content})
	}
	return MergeConsecutive(turns)
}

// NormalizeMessages makes sure the social entry opens the history as a
// system message. Histories that already carry it are returned unchanged.
func NormalizeMessages(conversationID, socialEntry string, messages []Message, fallback int64) []Message {
	social := strings.TrimSpace(socialEntry)
	if social == "" {
		return messages
	}
	for _, msg := range messages {
		if msg.Role == RoleSystem && strings.TrimSpace(msg.Content) == social {
			return messages
		}
	}
	if len(messages) > 0 && messages[0].Role != RoleAssistant && strings.TrimSpace(messages[0].Content) == social {
		normalized := cloneMessages(messages)
		normalized[0].Role = RoleSystem
		return normalized
	}
	timestamp := fallback
	if len(messages) > 0 {
		timestamp = messages[0].Timestamp
	}
	normalized := make([]Message, 0, len(messages)+1)
	normalized = append(normalized, Message{
		ID:        fmt.Sprintf("%s:%s:social_entry", RoleSystem, conversationID),
		Role:      RoleSystem,
		Content:   social,
		Timestamp: timestamp,
	})
	return append(normalized, messages...)
}

// PickMostCompleteMessages chooses between the stored and the incoming copy
// of a history. The longer list wins; on equal length the one whose last
// message is newer wins, and incoming wins a full tie.
func PickMostCompleteMessages(existing, incoming []Message) []Message {
	switch {
	case len(incoming) > len(existing):
		return incoming
	case len(existing) > len(incoming):
		return existing
	case len(existing) == 0:
		return incoming
	}
	if existing[len(existing)-1].Timestamp > incoming[len(incoming)-1].Timestamp {
		return existing
	}
	return incoming
}

func cloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
