package eventlog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corvidlabs/streamchat/internal/domain"
)

var testLog *RedisLog

func TestMain(m *testing.M) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		panic("failed to ping redis: " + err.Error())
	}
	defer client.Close()

	testLog = NewRedisLog(client, client, time.Minute)
	os.Exit(m.Run())
}

func TestAppendAndRangeRoundTrip(t *testing.T) {
	ctx := context.Background()
	convID := "conv-" + time.Now().Format("150405.000000000")
	defer testLog.Purge(ctx, convID)

	start := &domain.StreamEvent{Type: domain.EventMessageStart, MessageID: "m1", Status: domain.MessageStarted}
	if _, err := testLog.Append(ctx, convID, start); err != nil {
		t.Fatalf("append start: %v", err)
	}
	chunk := &domain.StreamEvent{Type: domain.EventAgentChunk, MessageID: "m1", Delta: "hi"}
	if _, err := testLog.Append(ctx, convID, chunk); err != nil {
		t.Fatalf("append chunk: %v", err)
	}
	complete := &domain.StreamEvent{Type: domain.EventMessageComplete, MessageID: "m1", Status: domain.MessageCompleted}
	if _, err := testLog.Append(ctx, convID, complete); err != nil {
		t.Fatalf("append complete: %v", err)
	}

	events, err := testLog.Range(ctx, convID, "")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != domain.EventMessageStart || events[2].Type != domain.EventMessageComplete {
		t.Fatalf("expected insertion order preserved, got %+v", events)
	}

	fromSecond, err := testLog.Range(ctx, convID, events[0].Cursor)
	if err != nil {
		t.Fatalf("range from cursor: %v", err)
	}
	if len(fromSecond) != 2 {
		t.Fatalf("expected 2 events after the first cursor, got %d", len(fromSecond))
	}
}

func TestMetaTracksStreamLifecycle(t *testing.T) {
	ctx := context.Background()
	convID := "conv-meta-" + time.Now().Format("150405.000000000")
	defer testLog.Purge(ctx, convID)

	if meta, err := testLog.GetMeta(ctx, convID); err != nil {
		t.Fatalf("get meta before any append: %v", err)
	} else if meta != nil {
		t.Fatalf("expected no meta before the first append, got %+v", meta)
	}

	if _, err := testLog.Append(ctx, convID, &domain.StreamEvent{Type: domain.EventMessageStart, MessageID: "m1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	meta, err := testLog.GetMeta(ctx, convID)
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if meta == nil || meta.Status != domain.StreamActive {
		t.Fatalf("expected an active meta record, got %+v", meta)
	}

	if _, err := testLog.Append(ctx, convID, &domain.StreamEvent{Type: domain.EventMessageComplete, MessageID: "m1", Status: domain.MessageCompleted}); err != nil {
		t.Fatalf("append complete: %v", err)
	}

	meta, err = testLog.GetMeta(ctx, convID)
	if err != nil {
		t.Fatalf("get meta after complete: %v", err)
	}
	if meta == nil || meta.Status != domain.StreamCompleted {
		t.Fatalf("expected a completed meta record, got %+v", meta)
	}
}

func TestReadBlocksThenReturnsEmptyOnTimeout(t *testing.T) {
	ctx := context.Background()
	convID := "conv-block-" + time.Now().Format("150405.000000000")
	defer testLog.Purge(ctx, convID)

	if _, err := testLog.Append(ctx, convID, &domain.StreamEvent{Type: domain.EventMessageStart, MessageID: "m1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	meta, err := testLog.GetMeta(ctx, convID)
	if err != nil || meta == nil {
		t.Fatalf("get meta: %v", err)
	}

	events, err := testLog.Range(ctx, convID, "")
	if err != nil || len(events) != 1 {
		t.Fatalf("range: %v %+v", err, events)
	}

	start := time.Now()
	got, err := testLog.Read(ctx, convID, events[0].Cursor, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no new events, got %d", len(got))
	}
	if time.Since(start) < 150*time.Millisecond {
		t.Fatalf("expected Read to block close to the requested duration")
	}
}

func TestAppendBatchRoundTripsEveryEvent(t *testing.T) {
	ctx := context.Background()
	convID := "conv-batch-" + time.Now().Format("150405.000000000")
	defer testLog.Purge(ctx, convID)

	agent := "hi there"
	batch := []*domain.StreamEvent{
		{Type: domain.EventMessageStart, MessageID: "m1", Snapshot: &domain.MessageSnapshot{ID: "m1", ConversationID: convID, UserContent: "hi", Status: domain.MessageStarted}},
		{Type: domain.EventAgentChunk, MessageID: "m1", Delta: "hi "},
		{Type: domain.EventAgentChunk, MessageID: "m1", Delta: "there"},
		{Type: domain.EventMessageComplete, MessageID: "m1", Status: domain.MessageCompleted, Snapshot: &domain.MessageSnapshot{ID: "m1", ConversationID: convID, UserContent: "hi", AgentContent: &agent, Status: domain.MessageCompleted}},
	}

	cursors, err := testLog.AppendBatch(ctx, convID, batch)
	if err != nil {
		t.Fatalf("append batch: %v", err)
	}
	if len(cursors) != len(batch) {
		t.Fatalf("expected %d cursors, got %d", len(batch), len(cursors))
	}

	events, err := testLog.Range(ctx, convID, "")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(events) != len(batch) {
		t.Fatalf("expected %d events, got %d", len(batch), len(events))
	}
	if events[0].Snapshot == nil || events[0].Snapshot.UserContent != "hi" {
		t.Fatalf("expected messageStart snapshot to round-trip, got %+v", events[0].Snapshot)
	}
	last := events[len(events)-1]
	if last.Snapshot == nil || last.Snapshot.AgentContent == nil || *last.Snapshot.AgentContent != "hi there" {
		t.Fatalf("expected messageComplete snapshot to carry agentContent, got %+v", last.Snapshot)
	}
}

func TestPurgeRemovesStreamAndMeta(t *testing.T) {
	ctx := context.Background()
	convID := "conv-purge-" + time.Now().Format("150405.000000000")

	if _, err := testLog.Append(ctx, convID, &domain.StreamEvent{Type: domain.EventMessageStart, MessageID: "m1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := testLog.Purge(ctx, convID); err != nil {
		t.Fatalf("purge: %v", err)
	}

	events, err := testLog.Range(ctx, convID, "")
	if err != nil {
		t.Fatalf("range after purge: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events after purge, got %d", len(events))
	}
	meta, err := testLog.GetMeta(ctx, convID)
	if err != nil {
		t.Fatalf("get meta after purge: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected no meta after purge, got %+v", meta)
	}
}
