package llm

import (
	"context"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

// mockAPI mirrors the api interface; responses are consumed in order.
type mockAPI struct {
	calls     int
	responses []func() (openai.ChatCompletionResponse, error)
}

func (m *mockAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	idx := m.calls
	m.calls++
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx]()
}

func newTestClient(api api) *Client {
	return &Client{
		api:      api,
		attempts: 3,
		backoff:  time.Millisecond,
		timeout:  time.Second,
	}
}

func successResponse(content string, tokens int) func() (openai.ChatCompletionResponse, error) {
	return func() (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
			Usage:   openai.Usage{TotalTokens: tokens},
		}, nil
	}
}

func statusFailure() func() (openai.ChatCompletionResponse, error) {
	return func() (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: 503, Message: "upstream overloaded"}
	}
}

func timeoutFailure() func() (openai.ChatCompletionResponse, error) {
	return func() (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, context.DeadlineExceeded
	}
}

func TestComplete_Success(t *testing.T) {
	api := &mockAPI{responses: []func() (openai.ChatCompletionResponse, error){
		successResponse("  hello there  ", 42),
	}}
	res, err := newTestClient(api).Complete(context.Background(), nil, Options{Model: "m"})
	require.NoError(t, err)
	require.Equal(t, "hello there", res.Reply)
	require.Equal(t, 42, res.TokensUsed)
	require.Equal(t, 1, api.calls)
}

func TestComplete_SucceedsOnThirdAttempt(t *testing.T) {
	api := &mockAPI{responses: []func() (openai.ChatCompletionResponse, error){
		statusFailure(),
		statusFailure(),
		successResponse("finally", 7),
	}}
	res, err := newTestClient(api).Complete(context.Background(), nil, Options{Model: "m"})
	require.NoError(t, err)
	require.Equal(t, "finally", res.Reply)
	require.Equal(t, 3, api.calls)
}

func TestComplete_ExhaustsAttemptsOnStatus(t *testing.T) {
	api := &mockAPI{responses: []func() (openai.ChatCompletionResponse, error){statusFailure()}}
	_, err := newTestClient(api).Complete(context.Background(), nil, Options{Model: "m"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, 3, api.calls, "must retry exactly up to the cap and no more")
}

func TestComplete_ExhaustsAttemptsOnTimeout(t *testing.T) {
	api := &mockAPI{responses: []func() (openai.ChatCompletionResponse, error){timeoutFailure()}}
	_, err := newTestClient(api).Complete(context.Background(), nil, Options{Model: "m"})
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, 3, api.calls)
}

func TestComplete_MissingChoicesYieldsPlaceholder(t *testing.T) {
	api := &mockAPI{responses: []func() (openai.ChatCompletionResponse, error){
		func() (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{Usage: openai.Usage{TotalTokens: 3}}, nil
		},
	}}
	res, err := newTestClient(api).Complete(context.Background(), nil, Options{Model: "m"})
	require.NoError(t, err)
	require.Equal(t, placeholderReply, res.Reply)
	require.Equal(t, 3, res.TokensUsed)
}

func TestComplete_BlankContentYieldsPlaceholder(t *testing.T) {
	api := &mockAPI{responses: []func() (openai.ChatCompletionResponse, error){
		successResponse("   ", 0),
	}}
	res, err := newTestClient(api).Complete(context.Background(), nil, Options{Model: "m"})
	require.NoError(t, err)
	require.Equal(t, placeholderReply, res.Reply)
}
