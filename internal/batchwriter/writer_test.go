package batchwriter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/corvidlabs/streamchat/internal/domain"
)

type fakeLog struct {
	mu    sync.Mutex
	calls int
	items []*domain.StreamEvent
}

func (f *fakeLog) Append(_ context.Context, _ string, ev *domain.StreamEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.items = append(f.items, ev)
	return "0-1", nil
}

func (f *fakeLog) AppendBatch(_ context.Context, _ string, evs []*domain.StreamEvent) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.items = append(f.items, evs...)
	cursors := make([]string, len(evs))
	for i := range evs {
		cursors[i] = "0-1"
	}
	return cursors, nil
}

func (f *fakeLog) Range(context.Context, string, string) ([]*domain.StreamEvent, error) {
	return nil, nil
}

func (f *fakeLog) Read(context.Context, string, string, time.Duration) ([]*domain.StreamEvent, error) {
	return nil, nil
}

func (f *fakeLog) GetMeta(context.Context, string) (*domain.StreamMeta, error) { return nil, nil }
func (f *fakeLog) SetMeta(context.Context, string, *domain.StreamMeta) error   { return nil }
func (f *fakeLog) BumpTTL(context.Context, string, time.Duration) error       { return nil }
func (f *fakeLog) Purge(context.Context, string) error                       { return nil }

func TestEnqueueFlushesOnSize(t *testing.T) {
	log := &fakeLog{}
	w := New(log, 3, time.Hour, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := w.Enqueue(ctx, "conv1", &domain.StreamEvent{Type: domain.EventAgentChunk, Delta: "x"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.items) != 3 {
		t.Fatalf("expected 3 flushed events, got %d", len(log.items))
	}
}

func TestEnqueueFlushesOnTimer(t *testing.T) {
	log := &fakeLog{}
	w := New(log, 100, 20*time.Millisecond, nil)

	ctx := context.Background()
	if err := w.Enqueue(ctx, "conv1", &domain.StreamEvent{Type: domain.EventAgentChunk, Delta: "x"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.items) != 1 {
		t.Fatalf("expected timer-triggered flush of 1 event, got %d", len(log.items))
	}
}

func TestCloseFlushesAllConversations(t *testing.T) {
	log := &fakeLog{}
	w := New(log, 100, time.Hour, nil)

	ctx := context.Background()
	_ = w.Enqueue(ctx, "conv1", &domain.StreamEvent{Type: domain.EventAgentChunk, Delta: "a"})
	_ = w.Enqueue(ctx, "conv2", &domain.StreamEvent{Type: domain.EventAgentChunk, Delta: "b"})

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.items) != 2 {
		t.Fatalf("expected 2 events flushed on close, got %d", len(log.items))
	}

	if err := w.Enqueue(ctx, "conv1", &domain.StreamEvent{Type: domain.EventAgentChunk}); err == nil {
		t.Fatalf("expected enqueue after close to fail")
	}
}
