package alias

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisCacheKey(t *testing.T) {
	c := NewRedisCache(nil, "", 0)
	if got, want := c.key("app-a", "h1"), "passkeyd:alias:app-a:h1"; got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("PASSKEYD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PASSKEYD_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	prefix := "passkeyd-test:" + time.Now().Format("150405.000000") + ":"
	c := NewRedisCache(client, prefix, time.Minute)
	if _, ok, err := c.Get(ctx, "a", "h1"); err != nil || ok {
		t.Fatalf("get empty = %v, %v; want miss", ok, err)
	}
	if err := c.Set(ctx, "a", "h1", "u1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, "a", "h1")
	if err != nil || !ok || got != "u1" {
		t.Fatalf("get = %q, %v, %v; want u1", got, ok, err)
	}
	_ = client.Del(ctx, c.key("a", "h1")).Err()
}
