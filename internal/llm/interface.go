package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Completer is the minimal completion surface the turn pipeline depends on;
// it is easy to mock in tests.
type Completer interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage, opts Options) (Result, error)
}

// Options are the per-call completion parameters.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Result is a successful completion.
type Result struct {
	Reply      string
	TokensUsed int
}

// api is the subset of openai.Client the completion client uses.
type api interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}
