package provideradapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/corvidlabs/streamchat/internal/adapters/circuitbreaker"
	"github.com/corvidlabs/streamchat/internal/domain"
	"github.com/corvidlabs/streamchat/internal/ports"
)

type AnthropicAdapter struct {
	client  anthropic.Client
	breaker *circuitbreaker.CircuitBreaker
}

func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	return &AnthropicAdapter{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) Stream(ctx context.Context, model string, messages []domain.Message) (<-chan ports.ProviderChunk, <-chan error) {
	out := make(chan ports.ProviderChunk, chunkBufferSize)
	errCh := make(chan error, 1)

	ctx, cancel := context.WithTimeout(ctx, StreamTimeout)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		Messages:  toAnthropicMessages(messages),
	}

	var stream *anthropic.Stream[anthropic.MessageStreamEventUnion]
	err := a.breaker.Execute(func() error {
		s := a.client.Messages.NewStreaming(ctx, params)
		if s == nil {
			return fmt.Errorf("anthropic: nil stream")
		}
		stream = s
		return nil
	})
	if err != nil {
		cancel()
		close(out)
		errCh <- mapAnthropicError(err)
		close(errCh)
		return out, errCh
	}

	go func() {
		defer cancel()
		defer close(out)
		defer close(errCh)

		for stream.Next() {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text := delta.Delta.Text
			if text == "" {
				continue
			}
			select {
			case out <- ports.ProviderChunk{Delta: text}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := stream.Err(); err != nil {
			errCh <- mapAnthropicError(err)
			return
		}
		select {
		case out <- ports.ProviderChunk{IsComplete: true}:
		case <-ctx.Done():
		}
	}()

	return out, errCh
}

func toAnthropicMessages(messages []domain.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == domain.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func mapAnthropicError(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return domain.NewError(domain.KindProviderUnavailable, domain.ErrProviderUnavailable, "anthropic circuit open")
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return domain.NewError(domain.KindAuthInvalid, domain.ErrAuthInvalid, "anthropic rejected credentials")
		case 404:
			return domain.NewError(domain.KindModelNotFound, domain.ErrModelNotFound, "anthropic model not found")
		case 429:
			return domain.NewError(domain.KindRateLimited, domain.ErrRateLimited, "anthropic rate limited")
		case 402:
			return domain.NewError(domain.KindQuotaExceeded, domain.ErrQuotaExceeded, "anthropic quota exceeded")
		default:
			if apiErr.StatusCode >= 500 {
				return domain.NewError(domain.KindProviderUnavailable, domain.ErrProviderUnavailable, fmt.Sprintf("anthropic %d", apiErr.StatusCode))
			}
		}
	}
	return domain.NewError(domain.KindInternal, err, "anthropic stream error")
}
