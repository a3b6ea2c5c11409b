package conversation

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var createdAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSanitizeKeepsValidMessagesInOrder(t *testing.T) {
	raw := `[
		{"id":"m1","role":"user","content":"hello","timestamp":1700000000000},
		{"role":"robot","content":"skip me"},
		"not an object",
		{"role":"assistant","content":"hi there"}
	]`

	messages := Sanitize(raw, "conv-1", createdAt)

	require.Len(t, messages, 2)
	require.Equal(t, Message{ID: "m1", Role: RoleUser, Content: "hello", Timestamp: 1700000000000}, messages[0])
	require.Equal(t, "assistant:conv-1:3", messages[1].ID)
	require.Equal(t, createdAt.UnixMilli(), messages[1].Timestamp)
}

func TestSanitizeMalformedInputYieldsEmpty(t *testing.T) {
	inputs := []any{nil, "", "{not json", `{"role":"user"}`, 42, make(chan int)}
	for _, input := range inputs {
		messages := Sanitize(input, "conv", createdAt)
		require.NotNil(t, messages)
		require.Empty(t, messages)
	}
}

func TestSanitizeAcceptsDecodedAndDoubleEncodedValues(t *testing.T) {
	decoded := []map[string]any{{"role": "user", "content": "from slice"}}
	require.Equal(t, "from slice", Sanitize(decoded, "c", createdAt)[0].Content)

	inner := `[{"role":"assistant","content":"nested"}]`
	doubled, err := json.Marshal(inner)
	require.NoError(t, err)
	messages := Sanitize(json.RawMessage(doubled), "c", createdAt)
	require.Len(t, messages, 1)
	require.Equal(t, "nested", messages[0].Content)
}

func TestSanitizeContentAndTimestampCoercion(t *testing.T) {
	raw := `[
		{"role":"user","content":null,"timestamp":"2025-01-02T03:04:05Z"},
		{"role":"user","content":{"text":"obj"},"timestamp":"1234"},
		{"role":"user","timestamp":true},
		{"role":"system","content":7,"id":""}
	]`

	messages := Sanitize(raw, "c", createdAt)

	require.Len(t, messages, 4)
	require.Equal(t, "", messages[0].Content)
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(), messages[0].Timestamp)
	require.Equal(t, `{"text":"obj"}`, messages[1].Content)
	require.Equal(t, int64(1234), messages[1].Timestamp)
	require.Equal(t, "", messages[2].Content)
	require.Equal(t, createdAt.UnixMilli(), messages[2].Timestamp)
	require.Equal(t, "7", messages[3].Content)
	require.Equal(t, "system:c:3", messages[3].ID)
}

func TestParseMessageRejections(t *testing.T) {
	result := ParseMessage(gjson.Parse(`[1]`), "c", 2, 0)
	require.True(t, result.IsError())
	var rejected *RejectedError
	require.True(t, errors.As(result.Error(), &rejected))
	require.Equal(t, ReasonNotObject, rejected.Reason)
	require.Equal(t, 2, rejected.Index)

	result = ParseMessage(gjson.Parse(`{"role":1}`), "c", 0, 0)
	require.True(t, errors.As(result.Error(), &rejected))
	require.Equal(t, ReasonInvalidRole, rejected.Reason)
}
