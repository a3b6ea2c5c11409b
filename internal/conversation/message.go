package conversation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/tidwall/gjson"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type RejectReason string

const (
	ReasonNotObject   RejectReason = "not_object"
	ReasonInvalidRole RejectReason = "invalid_role"
)

// RejectedError describes why one element of a stored history was skipped.
type RejectedError struct {
	Index  int
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("message %d rejected: %s", e.Index, e.Reason)
}

// ParseMessage validates one history element. Shape problems come back as a
// *RejectedError inside the result, never as a panic.
func ParseMessage(value gjson.Result, conversationID string, index int, fallback int64) mo.Result[Message] {
	if !value.IsObject() {
		return mo.Err[Message](&RejectedError{Index: index, Reason: ReasonNotObject})
	}
	roleValue := value.Get("role")
	role := Role(roleValue.Str)
	if roleValue.Type != gjson.String || !role.Valid() {
		return mo.Err[Message](&RejectedError{Index: index, Reason: ReasonInvalidRole})
	}

	id := ""
	if idValue := value.Get("id"); idValue.Type == gjson.String {
		id = strings.TrimSpace(idValue.Str)
	}
	if id == "" {
		id = fmt.Sprintf("%s:%s:%d", role, conversationID, index)
	}

	return mo.Ok(Message{
		ID:        id,
		Role:      role,
		Content:   contentString(value.Get("content")),
		Timestamp: timestampMillis(value.Get("timestamp"), fallback),
	})
}

// Sanitize turns an untrusted history payload (JSON text, raw bytes or an
// already decoded value) into messages, keeping input order. Malformed input
// yields an empty slice.
func Sanitize(raw any, conversationID string, createdAtFallback time.Time) []Message {
	messages := []Message{}
	parsed, ok := parseHistory(raw)
	if !ok {
		return messages
	}
	fallback := createdAtFallback.UnixMilli()
	index := 0
	parsed.ForEach(func(_, value gjson.Result) bool {
		result := ParseMessage(value, conversationID, index, fallback)
		if msg, err := result.Get(); err == nil {
			messages = append(messages, msg)
		}
		index++
		return true
	})
	return messages
}

func parseHistory(raw any) (gjson.Result, bool) {
	var text string
	switch v := raw.(type) {
	case nil:
		return gjson.Result{}, false
	case string:
		text = v
	case []byte:
		text = string(v)
	case json.RawMessage:
		text = string(v)
	case gjson.Result:
		text = v.Raw
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return gjson.Result{}, false
		}
		text = string(encoded)
	}
	if !gjson.Valid(text) {
		return gjson.Result{}, false
	}
	parsed := gjson.Parse(text)
	// Some rows hold the array double-encoded as a JSON string.
	if parsed.Type == gjson.String && gjson.Valid(parsed.Str) {
		parsed = gjson.Parse(parsed.Str)
	}
	if !parsed.IsArray() {
		return gjson.Result{}, false
	}
	return parsed, true
}

func contentString(value gjson.Result) string {
	switch value.Type {
	case gjson.String:
		return value.Str
	case gjson.Null:
		return ""
	default:
		if !value.Exists() {
			return ""
		}
		return value.Raw
	}
}

func timestampMillis(value gjson.Result, fallback int64) int64 {
	switch value.Type {
	case gjson.Number:
		if math.IsNaN(value.Num) || math.IsInf(value.Num, 0) {
			return fallback
		}
		return int64(value.Num)
	case gjson.String:
		text := strings.TrimSpace(value.Str)
		if parsed, err := strconv.ParseInt(text, 10, 64); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339Nano, text); err == nil {
			return parsed.UnixMilli()
		}
	}
	return fallback
}
