package domain

import "time"

// MessageStatus is the terminal state machine of a streamed message:
// Started -> Streaming -> {Completed, Aborted, Failed}.
type MessageStatus string

const (
	MessageStarted   MessageStatus = "started"
	MessageStreaming MessageStatus = "streaming"
	MessageCompleted MessageStatus = "completed"
	MessageAborted   MessageStatus = "aborted"
	MessageFailed    MessageStatus = "failed"
)

func (s MessageStatus) Terminal() bool {
	return s == MessageCompleted || s == MessageAborted || s == MessageFailed
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is the parent container for a sequence of messages.
// Deleted is the only hard-to-undo mutation the core ever performs on
// a conversation; it is administrative and never triggered by the
// streaming pipeline itself.
type Conversation struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	Title          string    `json:"title,omitempty"`
	DefaultModelID string    `json:"defaultModelId,omitempty"`
	Deleted        bool      `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Message is a single turn, authoritative once written through the
// Message Store Gateway. Content accumulates as streaming progresses
// and is retained even when the message ends Aborted or Failed.
// FinishedAt is nil while Status is non-terminal and is set exactly
// once, in the same write that transitions Status to a terminal value.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	PreviousID     string        `json:"previousId,omitempty"`
	Role           Role          `json:"role"`
	Content        string        `json:"content"`
	Status         MessageStatus `json:"status"`
	Provider       string        `json:"provider,omitempty"`
	Model          string        `json:"model,omitempty"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	FinishedAt     *time.Time    `json:"finishedAt"`
}

// EventType enumerates the three StreamEvent variants of the wire
// protocol. messageStart must be the first event of a stream and
// messageComplete must be the last; no event follows it.
type EventType string

const (
	EventMessageStart    EventType = "messageStart"
	EventAgentChunk      EventType = "agentChunk"
	EventMessageComplete EventType = "messageComplete"
)

// MessageSnapshot is the message-shaped payload spec.md §3 requires on
// both messageStart and messageComplete events, so a subscriber
// replaying purely from the Event Log can reconstruct prompt/response
// content and terminal timing without a side trip to the Message Store
// Gateway. AgentContent is nil on messageStart (streaming has not
// produced anything yet) and is the full concatenation of emitted
// chunks by messageComplete, including on Aborted/Failed termination.
type MessageSnapshot struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	UserContent    string        `json:"userContent"`
	AgentContent   *string       `json:"agentContent"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	FinishedAt     *time.Time    `json:"finishedAt"`
}

// StreamEvent is the unit of data appended to the Event Log (C1) and
// delivered to both the Isolated Stream Bridge (C8) and any number of
// Subscribers (C7). Snapshot is populated on messageStart and
// messageComplete only; agentChunk carries just Delta and MessageID.
type StreamEvent struct {
	Type           EventType        `json:"type"`
	ConversationID string           `json:"conversationId"`
	MessageID      string           `json:"messageId"`
	Delta          string           `json:"delta,omitempty"`
	Status         MessageStatus    `json:"status,omitempty"`
	Error          string           `json:"error,omitempty"`
	Snapshot       *MessageSnapshot `json:"snapshot,omitempty"`
	Seq            int64            `json:"seq"`
	Cursor         string           `json:"cursor,omitempty"`
}

// StreamStatus is the lifecycle of a conversation's event stream, not
// to be confused with the Message's own status: a stream is "active"
// from its first event until the messageComplete that closes it.
type StreamStatus string

const (
	StreamActive    StreamStatus = "active"
	StreamCompleted StreamStatus = "completed"
)

// StreamMeta carries the shared TTL bookkeeping for a conversation's
// event stream; it is the Meta value living alongside the Event Log,
// created lazily by the first Append and sharing one TTL horizon with
// the stream's entries.
type StreamMeta struct {
	ConversationID string
	StartedAt      time.Time
	LastActivity   time.Time
	Status         StreamStatus
}

// Page is a cursor-paginated slice of messages returned by
// getMessages, newest-first by default.
type Page struct {
	Messages         []*Message `json:"messages"`
	NextCursor       string     `json:"nextCursor,omitempty"`
	SyncDate         time.Time  `json:"syncDate"`
	StreamingMessage *Message   `json:"streamingMessage,omitempty"`
}
