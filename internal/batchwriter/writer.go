// Package batchwriter implements C2: it coalesces StreamEvent writes
// for a single conversation so the durable Event Log takes one
// pipelined round trip per batch instead of one per token, grounded on
// the Shannon orchestrator's persistWorker (size + interval triggered
// flush of a buffered channel).
package batchwriter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corvidlabs/streamchat/internal/adapters/metrics"
	"github.com/corvidlabs/streamchat/internal/adapters/retry"
	"github.com/corvidlabs/streamchat/internal/domain"
	"github.com/corvidlabs/streamchat/internal/ports"
)

// Writer batches Enqueue calls per conversation and flushes them to an
// EventLog either when MaxBatchSize is reached or FlushEvery elapses,
// whichever comes first.
type Writer struct {
	log          ports.EventLog
	maxBatchSize int
	flushEvery   time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	bufs  map[string]*conversationBuffer
	closed bool
}

type conversationBuffer struct {
	mu      sync.Mutex
	pending []*domain.StreamEvent
	timer   *time.Timer
}

func New(log ports.EventLog, maxBatchSize int, flushEvery time.Duration, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		log:          log,
		maxBatchSize: maxBatchSize,
		flushEvery:   flushEvery,
		logger:       logger,
		bufs:         make(map[string]*conversationBuffer),
	}
}

func (w *Writer) bufferFor(conversationID string) *conversationBuffer {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bufs[conversationID]
	if !ok {
		b = &conversationBuffer{}
		w.bufs[conversationID] = b
	}
	return b
}

func (w *Writer) Enqueue(ctx context.Context, conversationID string, ev *domain.StreamEvent) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("batchwriter: closed")
	}
	w.mu.Unlock()

	b := w.bufferFor(conversationID)

	b.mu.Lock()
	b.pending = append(b.pending, ev)
	full := len(b.pending) >= w.maxBatchSize
	if b.timer == nil {
		b.timer = time.AfterFunc(w.flushEvery, func() {
			if err := w.Flush(context.Background(), conversationID); err != nil {
				w.logger.Error("batchwriter: timed flush failed", "conversation_id", conversationID, "error", err)
			}
		})
	}
	b.mu.Unlock()

	if full {
		return w.Flush(ctx, conversationID)
	}
	return nil
}

func (w *Writer) Flush(ctx context.Context, conversationID string) error {
	b := w.bufferFor(conversationID)

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	metrics.BatchFlushSize.Observe(float64(len(batch)))

	cfg := retry.BackoffConfig{InitialInterval: 100 * time.Millisecond, MaxInterval: 2 * time.Second, MaxRetries: 3, Multiplier: 2.0}
	err := retry.WithBackoff(ctx, cfg, func() error {
		_, err := w.log.AppendBatch(ctx, conversationID, batch)
		return err
	})
	if err != nil {
		// Put the batch back in front of whatever arrived while this
		// flush was in flight, so the next tick retries it instead of
		// silently dropping it.
		b.mu.Lock()
		b.pending = append(batch, b.pending...)
		if b.timer == nil {
			b.timer = time.AfterFunc(w.flushEvery, func() {
				if ferr := w.Flush(context.Background(), conversationID); ferr != nil {
					w.logger.Error("batchwriter: timed flush failed", "conversation_id", conversationID, "error", ferr)
				}
			})
		}
		b.mu.Unlock()
	}
	return err
}

// Close flushes every buffered conversation and stops accepting new
// enqueues.
func (w *Writer) Close() error {
	w.mu.Lock()
	w.closed = true
	ids := make([]string, 0, len(w.bufs))
	for id := range w.bufs {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := w.Flush(context.Background(), id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
