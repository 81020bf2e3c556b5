package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/flowmint/txfabric/logger"
	"github.com/flowmint/txfabric/redis"
)

var _ Store = (*RedisStore)(nil)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() { mini.Close() })

	client, err := redis.New(redis.Config{Enabled: true, Addr: mini.Addr()}, logger.NewDefault("store-test"))
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, 0), mini
}

func TestRedisStore_PutAndGet(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	rec := Record{Table: "notifications", ID: "ntf-1", Data: map[string]any{"channel": "email"}}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := store.Get(ctx, "notifications", "ntf-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || got.Data["channel"] != "email" {
		t.Errorf("unexpected record: %v found=%v", got.Data, found)
	}
}

func TestRedisStore_GetMiss(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, found, err := store.Get(context.Background(), "notifications", "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("expected miss")
	}
}

func TestRedisStore_TTLApplied(t *testing.T) {
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() { mini.Close() })

	client, err := redis.New(redis.Config{Enabled: true, Addr: mini.Addr()}, logger.NewDefault("store-test"))
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, Record{Table: "payments", ID: "pay-1", Data: map[string]any{"x": 1}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mini.FastForward(2 * time.Minute)

	_, found, err := store.Get(ctx, "payments", "pay-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("expected record expired")
	}
}
