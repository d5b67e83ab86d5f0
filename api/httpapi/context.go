// Package httpapi exposes the four streaming RPC operations over HTTP,
// chi-routed: sendWithStream and listenToMessageChunkStream answer with
// text/event-stream, abortStream and getMessages answer with JSON.
package httpapi

import "context"

type contextKey string

const ownerIDKey contextKey = "owner_id"

func OwnerIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ownerIDKey).(string); ok {
		return id
	}
	return ""
}

func setOwnerIDInContext(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}
