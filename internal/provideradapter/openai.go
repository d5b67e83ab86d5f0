// Package provideradapter implements C5: polymorphic streaming
// capability over concrete upstream LLM APIs. A circuit breaker guards
// stream setup, and a goroutine converts the SDK's native chunk type
// into the shared ports.ProviderChunk over a buffered channel, exiting
// promptly on ctx.Done() without leaking the goroutine.
package provideradapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/corvidlabs/streamchat/internal/adapters/circuitbreaker"
	"github.com/corvidlabs/streamchat/internal/domain"
	"github.com/corvidlabs/streamchat/internal/ports"
)

// StreamTimeout bounds a single provider stream's total lifetime.
const StreamTimeout = 2 * time.Minute

const chunkBufferSize = 10

type OpenAIAdapter struct {
	client  *openai.Client
	breaker *circuitbreaker.CircuitBreaker
}

func NewOpenAIAdapter(apiKey, baseURL string) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAdapter{
		client:  openai.NewClientWithConfig(cfg),
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) Stream(ctx context.Context, model string, messages []domain.Message) (<-chan ports.ProviderChunk, <-chan error) {
	out := make(chan ports.ProviderChunk, chunkBufferSize)
	errCh := make(chan error, 1)

	ctx, cancel := context.WithTimeout(ctx, StreamTimeout)

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}

	var stream *openai.ChatCompletionStream
	err := a.breaker.Execute(func() error {
		s, err := a.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		cancel()
		close(out)
		errCh <- mapOpenAIError(err)
		close(errCh)
		return out, errCh
	}

	go func() {
		defer cancel()
		defer close(out)
		defer close(errCh)
		defer stream.Close()

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case out <- ports.ProviderChunk{IsComplete: true}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				errCh <- mapOpenAIError(err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- ports.ProviderChunk{Delta: delta}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

func toOpenAIMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func mapOpenAIError(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return domain.NewError(domain.KindProviderUnavailable, domain.ErrProviderUnavailable, "openai circuit open")
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return domain.NewError(domain.KindAuthInvalid, domain.ErrAuthInvalid, "openai rejected credentials")
		case 404:
			return domain.NewError(domain.KindModelNotFound, domain.ErrModelNotFound, "openai model not found")
		case 429:
			return domain.NewError(domain.KindRateLimited, domain.ErrRateLimited, "openai rate limited")
		case 402:
			return domain.NewError(domain.KindQuotaExceeded, domain.ErrQuotaExceeded, "openai quota exceeded")
		default:
			if apiErr.HTTPStatusCode >= 500 {
				return domain.NewError(domain.KindProviderUnavailable, domain.ErrProviderUnavailable, fmt.Sprintf("openai %d", apiErr.HTTPStatusCode))
			}
		}
	}
	return domain.NewError(domain.KindInternal, err, "openai stream error")
}
