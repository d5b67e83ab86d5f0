package httpapi

import (
	"time"

	"github.com/corvidlabs/streamchat/internal/domain"
)

// wireMessage is the message object embedded in messageStart and
// messageComplete events, per spec.md §6's event wire schema. It is a
// deliberately separate shape from domain.MessageSnapshot: the wire
// protocol names the conversation field convId, not conversationId.
type wireMessage struct {
	ID           string     `json:"id"`
	ConvID       string     `json:"convId"`
	UserContent  string     `json:"userContent"`
	AgentContent *string    `json:"agentContent"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	FinishedAt   *time.Time `json:"finishedAt"`
	ErrorReason  string     `json:"errorReason,omitempty"`
}

// wireEvent is the externally documented shape of a StreamEvent.
// agentChunk carries messageId/chunk/convId; messageStart and
// messageComplete carry a nested message object plus convId.
type wireEvent struct {
	Type      domain.EventType `json:"type"`
	MessageID string           `json:"messageId,omitempty"`
	Chunk     string           `json:"chunk,omitempty"`
	Message   *wireMessage     `json:"message,omitempty"`
	ConvID    string           `json:"convId"`
}

func toWireEvent(ev *domain.StreamEvent) wireEvent {
	w := wireEvent{Type: ev.Type, ConvID: ev.ConversationID}
	switch ev.Type {
	case domain.EventAgentChunk:
		w.MessageID = ev.MessageID
		w.Chunk = ev.Delta
	case domain.EventMessageStart, domain.EventMessageComplete:
		if ev.Snapshot != nil {
			w.Message = &wireMessage{
				ID:           ev.Snapshot.ID,
				ConvID:       ev.Snapshot.ConversationID,
				UserContent:  ev.Snapshot.UserContent,
				AgentContent: ev.Snapshot.AgentContent,
				Status:       string(ev.Snapshot.Status),
				CreatedAt:    ev.Snapshot.CreatedAt,
				FinishedAt:   ev.Snapshot.FinishedAt,
				ErrorReason:  ev.Error,
			}
		}
	}
	return w
}
