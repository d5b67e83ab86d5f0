// Package eventlog implements C1, the durable Event Log, over Redis
// Streams. The wire layout and the XAdd/XRange/XRead-BLOCK usage are
// grounded on the Shannon orchestrator's streaming manager: a
// per-conversation stream keyed by conversation ID, with the stream's
// shared TTL refreshed only on writer activity (Append), never on a
// subscriber's read.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corvidlabs/streamchat/internal/domain"
)

func streamKey(conversationID string) string {
	return fmt.Sprintf("message-stream-%s:stream", conversationID)
}

func metaKey(conversationID string) string {
	return fmt.Sprintf("message-stream-%s:meta", conversationID)
}

// RedisLog implements ports.EventLog. Writer and reader hold distinct
// *redis.Client handles per the concurrency model's pooling guidance,
// even though in this deployment they point at the same Redis.
type RedisLog struct {
	writer *redis.Client
	reader *redis.Client
	ttl    time.Duration
}

func NewRedisLog(writer, reader *redis.Client, ttl time.Duration) *RedisLog {
	return &RedisLog{writer: writer, reader: reader, ttl: ttl}
}

// Append appends ev to the conversation's stream and refreshes the
// shared TTL horizon for both the stream and its meta record in the
// same round trip via a pipeline, so the two keys' expirations never
// drift by more than the network latency between this call and the
// next. Meta is created lazily on the first Append and flipped to
// StreamCompleted the instant a messageComplete is written, which is
// what lets Subscriber.Follow skip a 30s block on a stream that has
// already finished.
func (l *RedisLog) Append(ctx context.Context, conversationID string, ev *domain.StreamEvent) (string, error) {
	cursors, err := l.AppendBatch(ctx, conversationID, []*domain.StreamEvent{ev})
	if err != nil {
		return "", err
	}
	return cursors[0], nil
}

// AppendBatch appends every event in evs in one pipelined round trip:
// one XADD per event, then a single Expire/HSetNX/HSet/Expire tail
// shared by the whole batch, matching §4.2's "single round-trip per
// flush" contract for the Batched Writer's coalesced appends.
func (l *RedisLog) AppendBatch(ctx context.Context, conversationID string, evs []*domain.StreamEvent) ([]string, error) {
	if len(evs) == 0 {
		return nil, nil
	}

	key := streamKey(conversationID)
	mkey := metaKey(conversationID)
	now := time.Now().UTC()

	status := string(domain.StreamActive)
	for _, ev := range evs {
		if ev.Type == domain.EventMessageComplete {
			status = string(domain.StreamCompleted)
		}
	}

	pipe := l.writer.TxPipeline()
	addCmds := make([]*redis.StringCmd, len(evs))
	for i, ev := range evs {
		var snapshot string
		if ev.Snapshot != nil {
			b, err := json.Marshal(ev.Snapshot)
			if err != nil {
				return nil, fmt.Errorf("eventlog: marshal snapshot: %w", err)
			}
			snapshot = string(b)
		}
		addCmds[i] = pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: key,
			MaxLen: 10000,
			Approx: true,
			Values: map[string]any{
				"type":      string(ev.Type),
				"messageId": ev.MessageID,
				"delta":     ev.Delta,
				"status":    string(ev.Status),
				"error":     ev.Error,
				"snapshot":  snapshot,
			},
		})
	}
	pipe.Expire(ctx, key, l.ttl)
	pipe.HSetNX(ctx, mkey, "started_at", now.Format(time.RFC3339Nano))
	pipe.HSet(ctx, mkey, "last_activity", now.Format(time.RFC3339Nano), "status", status)
	pipe.Expire(ctx, mkey, l.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("eventlog: append batch: %w", err)
	}

	cursors := make([]string, len(addCmds))
	for i, cmd := range addCmds {
		cursors[i] = cmd.Val()
	}
	return cursors, nil
}

func (l *RedisLog) GetMeta(ctx context.Context, conversationID string) (*domain.StreamMeta, error) {
	res, err := l.reader.HGetAll(ctx, metaKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("eventlog: get meta: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	meta := &domain.StreamMeta{ConversationID: conversationID, Status: domain.StreamStatus(res["status"])}
	if t, err := time.Parse(time.RFC3339Nano, res["started_at"]); err == nil {
		meta.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, res["last_activity"]); err == nil {
		meta.LastActivity = t
	}
	return meta, nil
}

func (l *RedisLog) SetMeta(ctx context.Context, conversationID string, meta *domain.StreamMeta) error {
	mkey := metaKey(conversationID)
	err := l.writer.HSet(ctx, mkey,
		"started_at", meta.StartedAt.Format(time.RFC3339Nano),
		"last_activity", meta.LastActivity.Format(time.RFC3339Nano),
		"status", string(meta.Status),
	).Err()
	if err != nil {
		return fmt.Errorf("eventlog: set meta: %w", err)
	}
	return l.writer.Expire(ctx, mkey, l.ttl).Err()
}

// BumpTTL refreshes both halves of the shared TTL horizon at once;
// callers outside Append use this for maintenance, not the normal
// write path.
func (l *RedisLog) BumpTTL(ctx context.Context, conversationID string, ttl time.Duration) error {
	pipe := l.writer.TxPipeline()
	pipe.Expire(ctx, streamKey(conversationID), ttl)
	pipe.Expire(ctx, metaKey(conversationID), ttl)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("eventlog: bump ttl: %w", err)
	}
	return nil
}

// Purge deletes a conversation's stream and meta outright. The core
// never calls this on its own; it exists for operator maintenance
// (e.g. the streamchat CLI's purge command) ahead of the TTL horizon.
func (l *RedisLog) Purge(ctx context.Context, conversationID string) error {
	if err := l.writer.Del(ctx, streamKey(conversationID), metaKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("eventlog: purge: %w", err)
	}
	return nil
}

// Range replays everything after fromCursor (exclusive), or the whole
// stream when fromCursor is empty.
func (l *RedisLog) Range(ctx context.Context, conversationID, fromCursor string) ([]*domain.StreamEvent, error) {
	key := streamKey(conversationID)
	start := "-"
	if fromCursor != "" {
		start = "(" + fromCursor
	}

	msgs, err := l.reader.XRange(ctx, key, start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("eventlog: range: %w", err)
	}
	return decodeMessages(conversationID, msgs), nil
}

// Read blocks for up to block waiting for events after afterCursor. An
// empty afterCursor means "only events appended from now on" ("$").
func (l *RedisLog) Read(ctx context.Context, conversationID, afterCursor string, block time.Duration) ([]*domain.StreamEvent, error) {
	key := streamKey(conversationID)
	after := afterCursor
	if after == "" {
		after = "$"
	}

	res, err := l.reader.XRead(ctx, &redis.XReadArgs{
		Streams: []string{key, after},
		Count:   500,
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eventlog: read: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return decodeMessages(conversationID, res[0].Messages), nil
}

func decodeMessages(conversationID string, msgs []redis.XMessage) []*domain.StreamEvent {
	out := make([]*domain.StreamEvent, 0, len(msgs))
	for _, m := range msgs {
		ev := &domain.StreamEvent{
			Type:           domain.EventType(fmt.Sprint(m.Values["type"])),
			ConversationID: conversationID,
			MessageID:      fmt.Sprint(m.Values["messageId"]),
			Delta:          fmt.Sprint(m.Values["delta"]),
			Status:         domain.MessageStatus(fmt.Sprint(m.Values["status"])),
			Error:          fmt.Sprint(m.Values["error"]),
			Cursor:         m.ID,
		}
		if raw := fmt.Sprint(m.Values["snapshot"]); raw != "" {
			var snap domain.MessageSnapshot
			if err := json.Unmarshal([]byte(raw), &snap); err == nil {
				ev.Snapshot = &snap
			}
		}
		out = append(out, ev)
	}
	return out
}
