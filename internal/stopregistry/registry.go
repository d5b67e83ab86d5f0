// Package stopregistry implements C3: cross-node and in-process
// cancellation for an in-flight message. The cross-node half is a
// short-TTL Redis key (grounded on the Shannon orchestrator's sequence
// counter key idiom), keyed by conversation id per the wire contract's
// `stop-stream:{convId}` name since abortStream only ever carries a
// conversation id, never the message id of whichever turn happens to
// be streaming; the in-process half is a cancel-token map grounded on
// the enchanted-proxy StreamSession's stopCtx/stopCancel pair.
package stopregistry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

func stopKey(conversationID string) string {
	return fmt.Sprintf("stop-stream:%s", conversationID)
}

type Registry struct {
	client *redis.Client
	ttl    time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(client *redis.Client, ttl time.Duration) *Registry {
	return &Registry{client: client, ttl: ttl, cancels: make(map[string]context.CancelFunc)}
}

// Register records the in-process cancel func a Producer should call
// when this conversation's active stream is asked to stop. The
// Producer is responsible for calling Unregister once the message
// reaches a terminal state.
func (r *Registry) Register(_ context.Context, conversationID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[conversationID] = cancel
	return nil
}

func (r *Registry) Unregister(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, conversationID)
}

// RequestStop sets the cross-node flag and, if the producing message
// happens to be local to this process, invokes its cancel func
// immediately rather than waiting on the next poll.
func (r *Registry) RequestStop(ctx context.Context, conversationID string) error {
	if err := r.client.Set(ctx, stopKey(conversationID), "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("stopregistry: set stop flag: %w", err)
	}

	r.mu.Lock()
	cancel, ok := r.cancels[conversationID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// IsStopped is polled by the Producer's streaming loop on every chunk
// to catch a stop request issued from another node.
func (r *Registry) IsStopped(ctx context.Context, conversationID string) (bool, error) {
	n, err := r.client.Exists(ctx, stopKey(conversationID)).Result()
	if err != nil {
		return false, fmt.Errorf("stopregistry: check stop flag: %w", err)
	}
	return n > 0, nil
}
