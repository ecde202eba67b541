package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// LLMClient is the slice of the OpenAI-compatible client the agent needs.
// Tests swap in MockClient.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func NewClient(APIKey, URL, timeout string) *openai.Client {
	if APIKey == "" {
		APIKey = "sk-xxx"
	}
	config := openai.DefaultConfig(APIKey)
	config.BaseURL = URL

	dur, err := time.ParseDuration(timeout)
	if err != nil {
		dur = 150 * time.Second
	}

	// The client timeout is the provider-level bound: no model call may
	// block indefinitely, a timed-out call surfaces as ErrProviderTimeout.
	config.HTTPClient = &http.Client{
		Timeout: dur,
	}
	return openai.NewClientWithConfig(config)
}

// ClassifyError maps raw provider errors onto the session error taxonomy.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", types.ErrProviderTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", types.ErrProviderRateLimited, err)
		case apiErr.HTTPStatusCode == http.StatusRequestTimeout,
			apiErr.HTTPStatusCode == http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", types.ErrProviderTimeout, err)
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %v", types.ErrProviderRateLimited, err)
		}
	}
	return err
}

// IsTransient reports whether an error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, types.ErrProviderTimeout) || errors.Is(err, types.ErrProviderRateLimited)
}

// Chat calls the completion endpoint, retrying transient provider failures
// with exponential backoff. Retrying lives here at the collaborator
// boundary; the research loop itself never retries.
func Chat(ctx context.Context, client LLMClient, req openai.ChatCompletionRequest, maxRetries int) (openai.ChatCompletionResponse, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) != 1 {
				lastErr = fmt.Errorf("no choices: %d", len(resp.Choices))
				continue
			}
			return resp, nil
		}

		lastErr = ClassifyError(err)
		if !IsTransient(lastErr) {
			return openai.ChatCompletionResponse{}, lastErr
		}

		xlog.Warn("Transient model failure, backing off", "attempt", attempt+1, "backoff", backoff, "error", lastErr)
		select {
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return openai.ChatCompletionResponse{}, lastErr
}
