package story

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storyforge/internal/config"
	"storyforge/internal/models"
	"storyforge/internal/redis"
)

func TestCacheStoreLoadAndInvalidate(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	writer := NewCache(client, "writer", zerolog.Nop())
	reader := NewCache(client, "reader", zerolog.Nop())

	list := []models.StorySummary{{ID: 7, Title: "cached", Genre: "mystery", WordCount: 3}}
	writer.store(ctx, writer.generation(), list)

	got, ok := reader.load(ctx)
	if !ok || len(got) != 1 || got[0].Title != "cached" {
		t.Fatalf("expected shared history, got %+v (ok=%v)", got, ok)
	}

	writer.invalidate(ctx)
	if _, err := client.Get(ctx, historyKey); err != redis.ErrCacheMiss {
		t.Fatalf("expected key removed, got %v", err)
	}
}

func TestCacheRemoteInvalidationDropsLocalCopy(t *testing.T) {
	client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := NewCache(client, "reader", zerolog.Nop())
	if err := reader.Listen(ctx); err != nil {
		t.Fatalf("listen: %v", err)
	}
	reader.setLocal(reader.generation(), []models.StorySummary{{ID: 1, Title: "stale"}})

	writer := NewCache(client, "writer", zerolog.Nop())
	writer.invalidate(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		reader.mu.Lock()
		valid := reader.valid
		reader.mu.Unlock()
		if !valid {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("did not receive invalidation")
}

func TestCacheSkipsListReadBeforeInvalidation(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(nil, "local", zerolog.Nop())

	gen := cache.generation()
	cache.invalidate(ctx)
	cache.store(ctx, gen, []models.StorySummary{{ID: 1, Title: "before write"}})
	if _, ok := cache.load(ctx); ok {
		t.Fatalf("list read before the invalidation must not be cached")
	}

	cache.store(ctx, cache.generation(), []models.StorySummary{{ID: 2, Title: "after write"}})
	got, ok := cache.load(ctx)
	if !ok || len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("expected current list cached, got %+v (ok=%v)", got, ok)
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed cache tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	client, err := redis.NewRedisClient(context.Background(), config.RedisConfig{
		Enabled: true,
		Host:    host,
		Port:    port,
		DB:      db,
	})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Raw().FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush db: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
