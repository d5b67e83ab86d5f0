package ratelimit

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

func TestAllowPermitsUpToLimitThenBlocks(t *testing.T) {
	ctx := context.Background()
	owner := "owner-" + time.Now().Format("150405.000000000")
	l := New(testClient, 2, time.Minute)
	defer testClient.Del(ctx, windowKey(owner, "openai", time.Minute, time.Now()))

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, owner, "openai")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected request %d to be allowed under the limit", i)
		}
	}

	ok, retryAfter, err := l.Allow(ctx, owner, "openai")
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if ok {
		t.Fatalf("expected the third request in the same window to be denied")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a positive retry-after, got %v", retryAfter)
	}
}

func TestAllowIsScopedPerProvider(t *testing.T) {
	ctx := context.Background()
	owner := "owner-" + time.Now().Format("150405.000000000")
	l := New(testClient, 1, time.Minute)
	defer func() {
		testClient.Del(ctx, windowKey(owner, "openai", time.Minute, time.Now()))
		testClient.Del(ctx, windowKey(owner, "anthropic", time.Minute, time.Now()))
	}()

	if ok, _, err := l.Allow(ctx, owner, "openai"); err != nil || !ok {
		t.Fatalf("expected openai request to be allowed, ok=%v err=%v", ok, err)
	}
	if ok, _, err := l.Allow(ctx, owner, "openai"); err != nil || ok {
		t.Fatalf("expected a second openai request in the same window to be denied, ok=%v err=%v", ok, err)
	}
	if ok, _, err := l.Allow(ctx, owner, "anthropic"); err != nil || !ok {
		t.Fatalf("expected the anthropic counter to be independent, ok=%v err=%v", ok, err)
	}
}
