package chat

import (
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/orionlabs/orion-go/internal/store"
)

func historyOf(n int) []store.Message {
	msgs := make([]store.Message, 0, n)
	for i := 0; i < n; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		msgs = append(msgs, store.Message{ID: int64(i + 1), Role: role, Content: fmt.Sprintf("msg %d", i+1)})
	}
	return msgs
}

func TestAssembleWindow_SystemFirstAndBounded(t *testing.T) {
	limit := 12
	window := AssembleWindow("sys", historyOf(50), "new question", false, limit)

	require.LessOrEqual(t, len(window), limit+2)
	require.Equal(t, openai.ChatMessageRoleSystem, window[0].Role)
	require.Equal(t, "sys", window[0].Content)
	require.Equal(t, openai.ChatMessageRoleUser, window[len(window)-1].Role)
	require.Equal(t, "new question", window[len(window)-1].Content)
}

func TestAssembleWindow_TruncationDropsOldest(t *testing.T) {
	window := AssembleWindow("sys", historyOf(20), "q", false, 4)

	// system + last 4 of 20 + new user
	require.Len(t, window, 6)
	require.Equal(t, "msg 17", window[1].Content)
	require.Equal(t, "msg 20", window[4].Content)
}

func TestAssembleWindow_ShortHistoryKeptWhole(t *testing.T) {
	window := AssembleWindow("sys", historyOf(2), "q", false, 12)
	require.Len(t, window, 4)
	require.Equal(t, "msg 1", window[1].Content)
}

func TestAssembleWindow_RegenerateAppendsNothing(t *testing.T) {
	history := []store.Message{
		{ID: 1, Role: store.RoleUser, Content: "hi"},
	}
	window := AssembleWindow("sys", history, "", true, 12)

	require.Len(t, window, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, window[0].Role)
	require.Equal(t, openai.ChatMessageRoleUser, window[1].Role)
	require.Equal(t, "hi", window[1].Content)
}

func TestAssembleWindow_EmptyHistory(t *testing.T) {
	window := AssembleWindow("sys", nil, "first message", false, 12)
	require.Len(t, window, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, window[0].Role)
	require.Equal(t, "first message", window[1].Content)
}
