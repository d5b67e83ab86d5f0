// Package producer implements C6: it drives a single Message through
// Started -> Streaming -> {Completed, Aborted, Failed}, fanning out
// StreamEvents to both the durable Event Log (via the Batched Writer)
// and the Isolated Stream Bridge serving the originating client. The
// goroutine/channel plumbing uses a ctx.Done()-vs-chunk select loop,
// and the per-conversation stream lifecycle does a conflict check up
// front and cleanup on terminal state.
package producer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/corvidlabs/streamchat/internal/adapters/metrics"
	"github.com/corvidlabs/streamchat/internal/bridge"
	"github.com/corvidlabs/streamchat/internal/domain"
	"github.com/corvidlabs/streamchat/internal/ports"
)

// upstreamTimeout bounds the detached generation goroutine, the same
// role upstreamReadTimeout plays for enchanted-proxy's StreamSession.
const upstreamTimeout = 10 * time.Minute

// stopPollInterval is how often, in chunks, the streaming loop checks
// the Stop Registry for a cross-node abort request. The contract
// requires checking at least once per chunk, so this is 1; it stays a
// named constant in case a future batched-polling variant needs it.
const stopPollInterval = 1

type Producer struct {
	convs          ports.ConversationRepository
	messages       ports.MessageRepository
	events         ports.BatchedWriter
	stops          ports.StopRegistry
	limiter        ports.RateLimiter
	providers      map[string]ports.ProviderAdapter
	ids            ports.IDGenerator
	defaultModelID string
	logger         *slog.Logger
}

func New(
	convs ports.ConversationRepository,
	messages ports.MessageRepository,
	events ports.BatchedWriter,
	stops ports.StopRegistry,
	limiter ports.RateLimiter,
	providers map[string]ports.ProviderAdapter,
	ids ports.IDGenerator,
	defaultModelID string,
	logger *slog.Logger,
) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		convs: convs, messages: messages, events: events,
		stops: stops, limiter: limiter, providers: providers,
		ids: ids, defaultModelID: defaultModelID, logger: logger,
	}
}

// Start validates and admits a sendWithStream request, persists the
// user turn and an assistant placeholder, and returns a Bridge the
// caller can immediately range over for this connection's lifetime.
// The actual generation runs in a detached goroutine so a client
// disconnect never interrupts it.
func (p *Producer) Start(ctx context.Context, conversationID, ownerID, content, providerName, model string) (*domain.Message, *bridge.Bridge, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, domain.NewError(domain.KindInvalidInput, domain.ErrInvalidInput, "message content is required")
	}

	var conv *domain.Conversation
	if conversationID == "" {
		conv = &domain.Conversation{
			ID:             p.ids.NewConversationID(),
			OwnerID:        ownerID,
			DefaultModelID: p.defaultModelID,
		}
		if err := p.convs.Create(ctx, conv); err != nil {
			return nil, nil, err
		}
	} else {
		var err error
		conv, err = p.convs.Get(ctx, conversationID, ownerID)
		if err != nil {
			return nil, nil, err
		}
	}

	if existing, err := p.messages.StreamingMessage(ctx, conv.ID); err != nil {
		return nil, nil, err
	} else if existing != nil {
		return nil, nil, domain.NewError(domain.KindConflict, domain.ErrStreamConflict, "a message is already streaming on this conversation")
	}

	provider, ok := p.providers[providerName]
	if !ok {
		return nil, nil, domain.NewError(domain.KindModelNotFound, domain.ErrModelNotFound, "unknown provider "+providerName)
	}

	allowed, retryAfter, err := p.limiter.Allow(ctx, ownerID, providerName)
	if err != nil {
		return nil, nil, err
	}
	if !allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues(providerName).Inc()
		return nil, nil, domain.NewRateLimitError(retryAfter)
	}

	if model == "" {
		model = conv.DefaultModelID
	}

	userFinishedAt := time.Now().UTC()
	userMsg := &domain.Message{
		ID: p.ids.NewMessageID(), ConversationID: conv.ID,
		Role: domain.RoleUser, Content: content, Status: domain.MessageCompleted,
		FinishedAt: &userFinishedAt,
	}
	if err := p.messages.Create(ctx, userMsg); err != nil {
		return nil, nil, err
	}

	history, _, err := p.messages.ListPage(ctx, conv.ID, "", 50, true)
	if err != nil {
		return nil, nil, err
	}

	assistantMsg := &domain.Message{
		ID: p.ids.NewMessageID(), ConversationID: conv.ID, PreviousID: userMsg.ID,
		Role: domain.RoleAssistant, Status: domain.MessageStarted,
		Provider: providerName, Model: model,
	}
	if err := p.messages.Create(ctx, assistantMsg); err != nil {
		return nil, nil, err
	}

	br := bridge.New(64)
	metrics.ProducersActive.Inc()
	go p.run(conv.ID, assistantMsg, userMsg.Content, provider, history, br)

	return assistantMsg, br, nil
}

func (p *Producer) run(conversationID string, msg *domain.Message, userContent string, provider ports.ProviderAdapter, history []*domain.Message, br *bridge.Bridge) {
	defer metrics.ProducersActive.Dec()
	defer br.Close()
	defer p.stops.Unregister(conversationID)

	ctx, cancel := context.WithTimeout(context.Background(), upstreamTimeout)
	defer cancel()

	if err := p.stops.Register(ctx, conversationID, cancel); err != nil {
		p.logger.Error("producer: register stop token failed", "conversation_id", conversationID, "error", err)
	}

	start := time.Now()
	p.emit(ctx, br, conversationID, &domain.StreamEvent{
		Type: domain.EventMessageStart, ConversationID: conversationID, MessageID: msg.ID, Status: domain.MessageStarted,
		Snapshot: &domain.MessageSnapshot{
			ID: msg.ID, ConversationID: conversationID, UserContent: userContent,
			Status: domain.MessageStarted, CreatedAt: msg.CreatedAt,
		},
	})
	msg.Status = domain.MessageStreaming
	if err := p.messages.Update(ctx, msg); err != nil {
		p.logger.Error("producer: mark streaming failed", "message_id", msg.ID, "error", err)
	}

	chunks, errs := provider.Stream(ctx, msg.Model, toMessages(history))

	var content strings.Builder
	var streamErr error
	chunkCount := 0

loop:
	for {
		select {
		case <-ctx.Done():
			streamErr = ctx.Err()
			break loop
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				if errs == nil {
					break loop
				}
				continue
			}
			if chunk.IsComplete {
				break loop
			}
			content.WriteString(chunk.Delta)
			chunkCount++
			metrics.ChunksEmittedTotal.WithLabelValues(provider.Name()).Inc()
			p.emit(ctx, br, conversationID, &domain.StreamEvent{
				Type: domain.EventAgentChunk, ConversationID: conversationID, MessageID: msg.ID, Delta: chunk.Delta,
			})

			if chunkCount%stopPollInterval == 0 {
				if stopped, err := p.stops.IsStopped(ctx, conversationID); err == nil && stopped {
					cancel()
				}
			}
		case err, ok := <-errs:
			// Providers close errs before chunks, so an error (or the
			// close) can arrive while deltas are still buffered: keep
			// draining chunks until both channels are done, so content
			// holds every delta the provider sent.
			if ok && err != nil {
				streamErr = err
			}
			errs = nil
			if chunks == nil {
				break loop
			}
		}
	}

	msg.Content = content.String()
	status := domain.MessageCompleted
	errMsg := ""
	switch {
	case errors.Is(streamErr, context.Canceled):
		// Stop flag observed (locally or cross-node): the message is
		// Aborted regardless of how much content was accumulated,
		// including none at all if the stop landed before the first
		// chunk arrived.
		status = domain.MessageAborted
	case streamErr != nil:
		status = domain.MessageFailed
		errMsg = streamErr.Error()
	}
	msg.Status = status
	msg.Error = errMsg
	finishedAt := time.Now().UTC()
	msg.FinishedAt = &finishedAt

	if err := p.messages.Update(context.Background(), msg); err != nil {
		p.logger.Error("producer: persist final message failed", "message_id", msg.ID, "error", err)
	}

	metrics.ProviderRequestDuration.WithLabelValues(provider.Name(), msg.Model).Observe(time.Since(start).Seconds())
	metrics.ProviderRequestsTotal.WithLabelValues(provider.Name(), msg.Model, string(status)).Inc()

	agentContent := msg.Content
	p.emit(ctx, br, conversationID, &domain.StreamEvent{
		Type: domain.EventMessageComplete, ConversationID: conversationID, MessageID: msg.ID,
		Status: status, Error: errMsg,
		Snapshot: &domain.MessageSnapshot{
			ID: msg.ID, ConversationID: conversationID, UserContent: userContent,
			AgentContent: &agentContent, Status: status,
			CreatedAt: msg.CreatedAt, FinishedAt: msg.FinishedAt,
		},
	})

	if err := p.events.Flush(context.Background(), conversationID); err != nil {
		p.logger.Error("producer: final flush failed", "conversation_id", conversationID, "error", err)
	}
}

// emit fans an event out to both the durable log (via the batched
// writer) and this message's own live subscriber. The durable side
// always uses a background context: a stop-flag cancellation or
// client disconnect must not cut short a size-triggered flush that
// would otherwise lose events the spec requires to survive.
func (p *Producer) emit(_ context.Context, br *bridge.Bridge, conversationID string, ev *domain.StreamEvent) {
	if err := p.events.Enqueue(context.Background(), conversationID, ev); err != nil {
		p.logger.Error("producer: enqueue event failed", "conversation_id", conversationID, "error", err)
	}
	br.Publish(ev)
}

func toMessages(history []*domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		out = append(out, *m)
	}
	return out
}
