package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corvidlabs/streamchat/internal/domain"
)

// writeEventStream drains events onto w as Server-Sent Events, one JSON
// StreamEvent per data: line, flushing after every write so a slow
// network doesn't buffer a fast model's tokens. It returns once events
// closes or the request context is done, whichever comes first —
// mirroring the stream operator's push-until-unsubscribed contract.
func writeEventStream(w http.ResponseWriter, r *http.Request, events <-chan *domain.StreamEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(toWireEvent(ev))
			if err != nil {
				slog.Error("httpapi: marshal stream event failed", "error", err)
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
