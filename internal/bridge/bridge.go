// Package bridge implements C8, the Isolated Stream Bridge: a
// single-producer/single-consumer channel that feeds the originating
// client's live connection without letting that consumer's
// disconnection reach back and cancel the Producer. This is grounded
// directly on the enchanted-proxy streaming-session's invariant that
// stopCtx/stopCancel are derived from context.Background(), never from
// the inbound request context, "to allow user-initiated stop while
// ensuring upstream reading completes regardless of client
// disconnects."
package bridge

import (
	"sync"
	"time"

	"github.com/corvidlabs/streamchat/internal/domain"
)

const sendTimeout = 100 * time.Millisecond

// Bridge decouples a Producer's event emission from whatever HTTP
// connection happens to be reading it. Publish is called from the
// Producer's goroutine; Events is ranged over by the handler serving
// the client. Closing the bridge is the Producer's responsibility and
// happens exactly once, when the message reaches a terminal state.
type Bridge struct {
	events chan *domain.StreamEvent
	once   sync.Once
}

func New(buffer int) *Bridge {
	return &Bridge{events: make(chan *domain.StreamEvent, buffer)}
}

// Publish waits at most sendTimeout for room in the buffer and then
// drops the event, so a slow or gone consumer stalls the Producer by no
// more than that per event. A dropped event here is not a correctness problem because
// the Event Log (C1) is the durable record a Subscriber can always
// replay from; the bridge only serves the fast path for the message's
// own originator.
func (b *Bridge) Publish(ev *domain.StreamEvent) {
	select {
	case b.events <- ev:
	case <-time.After(sendTimeout):
	}
}

func (b *Bridge) Events() <-chan *domain.StreamEvent {
	return b.events
}

func (b *Bridge) Close() {
	b.once.Do(func() {
		close(b.events)
	})
}
