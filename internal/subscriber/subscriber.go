// Package subscriber implements C7: replay-then-follow delivery of a
// conversation's StreamEvents to any client, not just the one that
// started the generation. It is grounded on Shannon's streaming
// manager, specifically SubscribeFrom's replay-from-cursor contract and
// streamReaderFrom's XRead-BLOCK-plus-exponential-backoff reader loop;
// unlike Shannon's in-process channel map, every subscriber here reads
// straight from the Event Log (C1) so there is nothing to register or
// unregister on the write side.
package subscriber

import (
	"context"
	"log/slog"
	"time"

	"github.com/corvidlabs/streamchat/internal/domain"
	"github.com/corvidlabs/streamchat/internal/ports"
)

// blockDuration and the 500-event read count (enforced inside the
// EventLog implementation) are spec.md's subscriber defaults: a single
// unfulfilled block is the signal to close, not a cue to poll again.
const (
	blockDuration    = 30 * time.Second
	minRetryDelay    = time.Second
	maxRetryDelay    = 30 * time.Second
	deliverySendWait = 200 * time.Millisecond
)

type Subscriber struct {
	log    ports.EventLog
	logger *slog.Logger
}

func New(log ports.EventLog, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{log: log, logger: logger}
}

// Follow replays every event recorded after fromCursor and then keeps
// delivering new events until ctx is cancelled or the log produces a
// terminal messageComplete event, whichever comes first. The returned
// channel is closed when Follow returns; callers must drain it by
// ranging rather than reading a fixed count, since replay length is
// not known up front.
func (s *Subscriber) Follow(ctx context.Context, conversationID, fromCursor string) <-chan *domain.StreamEvent {
	out := make(chan *domain.StreamEvent, 32)
	go s.run(ctx, conversationID, fromCursor, out)
	return out
}

func (s *Subscriber) run(ctx context.Context, conversationID, fromCursor string, out chan *domain.StreamEvent) {
	defer close(out)

	meta, err := s.log.GetMeta(ctx, conversationID)
	if err != nil {
		s.logger.Error("subscriber: get meta failed", "conversation_id", conversationID, "error", err)
		return
	}
	if meta == nil {
		// Nothing has ever been appended for this conversation, so
		// there is no history to replay and nothing to follow.
		return
	}

	cursor := fromCursor
	replay, err := s.log.Range(ctx, conversationID, cursor)
	if err != nil {
		s.logger.Error("subscriber: replay failed", "conversation_id", conversationID, "error", err)
		return
	}
	for _, ev := range replay {
		if !s.deliver(ctx, out, ev) {
			return
		}
		cursor = ev.Cursor
		if ev.Type == domain.EventMessageComplete {
			return
		}
	}

	if meta.Status == domain.StreamCompleted {
		// The stream finished before this subscriber attached and the
		// replay above already delivered everything up to and
		// including messageComplete, or the caller's cursor was
		// already past it; either way nothing will ever follow.
		return
	}

	retryDelay := minRetryDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, err := s.log.Read(ctx, conversationID, cursor, blockDuration)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("subscriber: read failed, backing off", "conversation_id", conversationID, "retry_in", retryDelay, "error", err)
			select {
			case <-time.After(retryDelay):
				retryDelay = minDuration(retryDelay*2, maxRetryDelay)
			case <-ctx.Done():
				return
			}
			continue
		}
		retryDelay = minRetryDelay

		if len(events) == 0 {
			// A full block elapsed with nothing new. Re-check meta:
			// if the producer has gone quiet since we started this
			// block, there is nothing left to follow and we close
			// per spec.md's 30s-idle-timeout contract rather than
			// polling forever against a dead stream.
			latest, err := s.log.GetMeta(ctx, conversationID)
			if err != nil {
				s.logger.Error("subscriber: get meta failed", "conversation_id", conversationID, "error", err)
				return
			}
			if latest == nil || !latest.LastActivity.After(meta.LastActivity) {
				return
			}
			meta = latest
			continue
		}
		for _, ev := range events {
			if !s.deliver(ctx, out, ev) {
				return
			}
			cursor = ev.Cursor
			if ev.Type == domain.EventMessageComplete {
				return
			}
		}
	}
}

// deliver is a bounded-blocking send: a subscriber that stalls for
// longer than deliverySendWait is assumed gone, and the follow loop
// exits rather than leaking goroutines against a dead consumer.
func (s *Subscriber) deliver(ctx context.Context, out chan *domain.StreamEvent, ev *domain.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-time.After(deliverySendWait):
		return false
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
