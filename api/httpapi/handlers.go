package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corvidlabs/streamchat/internal/domain"
	"github.com/corvidlabs/streamchat/internal/ports"
	"github.com/corvidlabs/streamchat/internal/producer"
	"github.com/corvidlabs/streamchat/internal/subscriber"
)

// Handlers binds the streaming pipeline's four RPC operations to HTTP.
// It depends on the concrete pipeline types rather than narrow ports
// interfaces, since it needs producer/subscriber behavior beyond what
// the port contracts expose.
type Handlers struct {
	producer *producer.Producer
	sub      *subscriber.Subscriber
	stops    ports.StopRegistry
	convs    ports.ConversationRepository
	messages ports.MessageRepository
}

func NewHandlers(
	p *producer.Producer,
	sub *subscriber.Subscriber,
	stops ports.StopRegistry,
	convs ports.ConversationRepository,
	messages ports.MessageRepository,
) *Handlers {
	return &Handlers{producer: p, sub: sub, stops: stops, convs: convs, messages: messages}
}

type sendMessageRequest struct {
	Content  string `json:"content"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// SendWithStream binds sendWithStream: POST /conversations/{id}/messages,
// where id may be the literal "new" to start a conversation.
func (h *Handlers) SendWithStream(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerIDFromContext(r.Context())
	convID := chi.URLParam(r, "id")
	if convID == "new" {
		convID = ""
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Provider == "" {
		respondError(w, "provider is required", http.StatusBadRequest)
		return
	}

	_, br, err := h.producer.Start(r.Context(), convID, ownerID, req.Content, req.Provider, req.Model)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	writeEventStream(w, r, br.Events())
}

// AbortStream binds abortStream: POST /conversations/{id}/abort.
func (h *Handlers) AbortStream(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerIDFromContext(r.Context())
	convID := chi.URLParam(r, "id")

	if _, err := h.convs.Get(r.Context(), convID, ownerID); err != nil {
		respondDomainError(w, err)
		return
	}

	if err := h.stops.RequestStop(r.Context(), convID); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, map[string]bool{"success": true}, http.StatusOK)
}

// ListenToMessageChunkStream binds listenToMessageChunkStream:
// GET /conversations/{id}/stream?cursor=.
func (h *Handlers) ListenToMessageChunkStream(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerIDFromContext(r.Context())
	convID := chi.URLParam(r, "id")
	cursor := r.URL.Query().Get("cursor")

	if _, err := h.convs.Get(r.Context(), convID, ownerID); err != nil {
		respondDomainError(w, err)
		return
	}

	events := h.sub.Follow(r.Context(), convID, cursor)
	writeEventStream(w, r, events)
}

// GetMessages binds getMessages:
// GET /conversations/{id}/messages?cursor=&limit=&direction=.
func (h *Handlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerIDFromContext(r.Context())
	convID := chi.URLParam(r, "id")

	if _, err := h.convs.Get(r.Context(), convID, ownerID); err != nil {
		respondDomainError(w, err)
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limit := parseIntQuery(r, "limit", 50)
	newestFirst := r.URL.Query().Get("direction") != "asc"

	msgs, nextCursor, err := h.messages.ListPage(r.Context(), convID, cursor, limit, newestFirst)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	streaming, err := h.messages.StreamingMessage(r.Context(), convID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// syncDate is the resume cursor clients are told to use on their
	// next pageOlder/pageNewer call: the finishedAt of the boundary
	// message of this page (its last element, regardless of
	// direction), falling back to now when the page is empty.
	syncDate := time.Now().UTC()
	if len(msgs) > 0 {
		if last := msgs[len(msgs)-1]; last.FinishedAt != nil {
			syncDate = *last.FinishedAt
		}
	}

	respondJSON(w, &domain.Page{
		Messages:         msgs,
		NextCursor:       nextCursor,
		SyncDate:         syncDate,
		StreamingMessage: streaming,
	}, http.StatusOK)
}
