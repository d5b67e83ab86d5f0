package stopregistry

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

var testClient *redis.Client

func TestMain(m *testing.M) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	testClient = redis.NewClient(&redis.Options{Addr: addr})
	if err := testClient.Ping(context.Background()).Err(); err != nil {
		panic("failed to ping redis: " + err.Error())
	}
	defer testClient.Close()
	os.Exit(m.Run())
}

func TestRequestStopInvokesLocalCancel(t *testing.T) {
	ctx := context.Background()
	convID := "conv-local-" + time.Now().Format("150405.000000000")
	defer testClient.Del(ctx, stopKey(convID))

	r := New(testClient, time.Minute)

	canceled := false
	cancel := func() { canceled = true }
	if err := r.Register(ctx, convID, cancel); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := r.RequestStop(ctx, convID); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if !canceled {
		t.Fatalf("expected the local cancel func to run synchronously")
	}

	stopped, err := r.IsStopped(ctx, convID)
	if err != nil {
		t.Fatalf("is stopped: %v", err)
	}
	if !stopped {
		t.Fatalf("expected the cross-node flag to be set")
	}
}

func TestRequestStopAcrossNodesWithoutLocalCancel(t *testing.T) {
	ctx := context.Background()
	convID := "conv-remote-" + time.Now().Format("150405.000000000")
	defer testClient.Del(ctx, stopKey(convID))

	writer := New(testClient, time.Minute)
	reader := New(testClient, time.Minute)

	if stopped, err := reader.IsStopped(ctx, convID); err != nil || stopped {
		t.Fatalf("expected not stopped before any request, err=%v stopped=%v", err, stopped)
	}

	if err := writer.RequestStop(ctx, convID); err != nil {
		t.Fatalf("request stop: %v", err)
	}

	stopped, err := reader.IsStopped(ctx, convID)
	if err != nil {
		t.Fatalf("is stopped: %v", err)
	}
	if !stopped {
		t.Fatalf("expected a node with no local registration to observe the cross-node flag")
	}
}

func TestUnregisterDropsTheCancelFunc(t *testing.T) {
	ctx := context.Background()
	convID := "conv-unreg-" + time.Now().Format("150405.000000000")
	defer testClient.Del(ctx, stopKey(convID))

	r := New(testClient, time.Minute)

	called := false
	if err := r.Register(ctx, convID, func() { called = true }); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Unregister(convID)

	if err := r.RequestStop(ctx, convID); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if called {
		t.Fatalf("expected no cancel invocation once unregistered")
	}
}
