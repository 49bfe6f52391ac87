// Package llm wraps the outbound call to the completion provider with the
// bounded retry and timeout policy of the turn pipeline.
package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/orionlabs/orion-go/internal/config"
	"github.com/orionlabs/orion-go/internal/logger"
	"github.com/orionlabs/orion-go/internal/metrics"
)

var (
	// ErrUnavailable means the provider kept returning a non-success status
	// until the attempt cap was exhausted.
	ErrUnavailable = errors.New("completion provider unavailable")
	// ErrTimeout means every attempt timed out.
	ErrTimeout = errors.New("completion provider timed out")
)

// placeholderReply is returned when the provider answers without a usable
// choice; a malformed choice list does not fail the turn.
const placeholderReply = "No response."

// Client calls the completion provider with a fixed attempt cap, a fixed
// backoff between attempts and a per-attempt timeout. No exponential backoff,
// no jitter.
type Client struct {
	api      api
	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

// NewClient creates a completion client from provider configuration.
func NewClient(cfg config.ProviderConfig) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:      openai.NewClientWithConfig(clientConfig),
		attempts: cfg.MaxAttempts,
		backoff:  cfg.Backoff(),
		timeout:  cfg.Timeout(),
	}
}

// Complete issues the assembled conversation to the provider. Failed attempts
// are retried up to the cap; exhaustion yields ErrTimeout when the final
// failure was a timeout and ErrUnavailable otherwise.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessage, opts Options) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Result{}, errors.Join(ErrTimeout, ctx.Err())
			case <-time.After(c.backoff):
			}
		}

		metrics.ProviderAttempts.Inc()
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.api.CreateChatCompletion(attemptCtx, openai.ChatCompletionRequest{
			Model:       opts.Model,
			Messages:    messages,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		cancel()
		if err != nil {
			lastErr = err
			kind := "status"
			if isTimeout(err) {
				kind = "timeout"
			}
			metrics.ProviderErrors.WithLabelValues(kind).Inc()
			logger.L.Warn("completion attempt failed", "attempt", attempt, "kind", kind, "error", err)
			continue
		}
		return extract(resp), nil
	}

	if isTimeout(lastErr) {
		return Result{}, errors.Join(ErrTimeout, lastErr)
	}
	return Result{}, errors.Join(ErrUnavailable, lastErr)
}

func extract(resp openai.ChatCompletionResponse) Result {
	res := Result{TokensUsed: resp.Usage.TotalTokens}
	if len(resp.Choices) == 0 {
		res.Reply = placeholderReply
		return res
	}
	res.Reply = strings.TrimSpace(resp.Choices[0].Message.Content)
	if res.Reply == "" {
		res.Reply = placeholderReply
	}
	return res
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
