// Package ports declares the dependency-injection seams between the
// streaming pipeline and its storage/transport collaborators.
package ports

import (
	"context"
	"time"

	"github.com/corvidlabs/streamchat/internal/domain"
)

// ConversationRepository is the read/write surface over the
// conversations table (part of C9).
type ConversationRepository interface {
	Create(ctx context.Context, c *domain.Conversation) error
	Get(ctx context.Context, id, ownerID string) (*domain.Conversation, error)
	SoftDelete(ctx context.Context, id, ownerID string) error
}

// MessageRepository is the read/write surface over the messages table
// (part of C9), including the "currently streaming" query.
type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	Update(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	ListPage(ctx context.Context, conversationID, cursor string, limit int, newestFirst bool) ([]*domain.Message, string, error)
	StreamingMessage(ctx context.Context, conversationID string) (*domain.Message, error)
}

// EventLog is C1: a durable, replayable append log of StreamEvents
// shared by every subscriber of a conversation's active (or recently
// completed) message.
type EventLog interface {
	Append(ctx context.Context, conversationID string, ev *domain.StreamEvent) (cursor string, err error)
	// AppendBatch appends every event in evs to the conversation's
	// stream as one pipelined round trip (one XAdd per event, but a
	// single network exchange), per spec.md §4.2's "single round-trip
	// per flush (pipelined appends)". evs must be non-empty.
	AppendBatch(ctx context.Context, conversationID string, evs []*domain.StreamEvent) (cursors []string, err error)
	Range(ctx context.Context, conversationID, fromCursor string) ([]*domain.StreamEvent, error)
	Read(ctx context.Context, conversationID, afterCursor string, block time.Duration) ([]*domain.StreamEvent, error)
	GetMeta(ctx context.Context, conversationID string) (*domain.StreamMeta, error)
	SetMeta(ctx context.Context, conversationID string, meta *domain.StreamMeta) error
	BumpTTL(ctx context.Context, conversationID string, ttl time.Duration) error
	Purge(ctx context.Context, conversationID string) error
}

// BatchedWriter is C2: coalesces EventLog.Append calls for a single
// conversation so the durable log takes one round trip per batch
// instead of one per token.
type BatchedWriter interface {
	Enqueue(ctx context.Context, conversationID string, ev *domain.StreamEvent) error
	Flush(ctx context.Context, conversationID string) error
	Close() error
}

// StopRegistry is C3: cross-node + in-process cancellation signaling
// for a conversation's in-flight message, keyed by conversation id
// since abortStream never carries a message id.
type StopRegistry interface {
	Register(ctx context.Context, conversationID string, cancel context.CancelFunc) error
	Unregister(conversationID string)
	RequestStop(ctx context.Context, conversationID string) error
	IsStopped(ctx context.Context, conversationID string) (bool, error)
}

// RateLimiter is C4: a fixed-window counter over (ownerID, provider).
type RateLimiter interface {
	Allow(ctx context.Context, ownerID, provider string) (allowed bool, retryAfter time.Duration, err error)
}

// ProviderChunk is the normalized unit a ProviderAdapter streams back
// to the Producer.
type ProviderChunk struct {
	Delta      string
	IsComplete bool
}

// ProviderAdapter is C5: a polymorphic streaming capability over a
// concrete upstream LLM API, with errors already mapped onto the
// shared domain.Kind taxonomy.
type ProviderAdapter interface {
	Name() string
	Stream(ctx context.Context, model string, messages []domain.Message) (<-chan ProviderChunk, <-chan error)
}

// IDGenerator mints prefixed, collision-resistant identifiers.
type IDGenerator interface {
	NewConversationID() string
	NewMessageID() string
}
