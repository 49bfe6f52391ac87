package chat

import (
	"github.com/sashabaranov/go-openai"

	"github.com/orionlabs/orion-go/internal/store"
)

// AssembleWindow produces the bounded ordered conversation handed to the
// completion provider: one system entry first, at most limit history messages
// in chronological order (oldest dropped), then the new user entry unless
// regenerating. When regenerating, the history already ends with the user
// message being resubmitted.
func AssembleWindow(systemPrompt string, history []store.Message, userText string, regenerating bool, limit int) []openai.ChatCompletionMessage {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	out := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if !regenerating {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: userText,
		})
	}
	return out
}
