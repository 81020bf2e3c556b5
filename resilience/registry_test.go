package resilience

import (
	"context"
	"testing"
	"time"
)

func newTestRegistry() *Registry {
	return NewRegistry(RegistryConfig{
		DefaultPool: PoolConfig{Capacity: 4, QueueTimeout: time.Second},
		DefaultBreaker: CircuitBreakerConfig{
			Timeout:               time.Second,
			ErrorThresholdPercent: 50,
			ResetTimeout:          30 * time.Second,
			MonitoringPeriod:      time.Hour,
		},
	})
}

func TestRegistry_CreatePoolIdempotent(t *testing.T) {
	reg := newTestRegistry()
	defer reg.Close()

	first := reg.CreatePool("payments", 8)
	second := reg.CreatePool("payments", 16)

	if first != second {
		t.Error("CreatePool must return the existing pool for a known name")
	}
	if first.Stats().Capacity != 8 {
		t.Errorf("expected first capacity kept, got %d", first.Stats().Capacity)
	}
}

func TestRegistry_PoolUsesDefaultCapacity(t *testing.T) {
	reg := newTestRegistry()
	defer reg.Close()

	pool := reg.Pool("notifications")
	if pool.Stats().Capacity != 4 {
		t.Errorf("expected default capacity 4, got %d", pool.Stats().Capacity)
	}
}

func TestRegistry_BreakerLazyAndShared(t *testing.T) {
	reg := newTestRegistry()
	defer reg.Close()

	first := reg.Breaker("kafka")
	second := reg.Breaker("kafka")
	if first != second {
		t.Error("Breaker must return the same instance per name")
	}
	if first.State() != StateClosed {
		t.Errorf("new breaker should start closed, got %s", first.State())
	}
}

func TestRegistry_AggregateStats(t *testing.T) {
	reg := newTestRegistry()
	defer reg.Close()

	a := reg.CreatePool("a", 2)
	b := reg.CreatePool("b", 3)
	ctx := context.Background()

	_ = a.Execute(ctx, func() error { return nil }, 0)
	_ = b.Execute(ctx, func() error { return nil }, 0)
	_ = b.Execute(ctx, func() error { return nil }, 0)

	agg := reg.AggregateStats()
	if agg.Capacity != 5 {
		t.Errorf("expected aggregate capacity 5, got %d", agg.Capacity)
	}
	if agg.TotalRequests != 3 || agg.CompletedRequests != 3 {
		t.Errorf("unexpected aggregate counters: %+v", agg)
	}

	perPool := reg.PoolStats()
	if len(perPool) != 2 {
		t.Fatalf("expected stats for 2 pools, got %d", len(perPool))
	}
	if perPool["b"].TotalRequests != 2 {
		t.Errorf("expected pool b total 2, got %d", perPool["b"].TotalRequests)
	}
}

func TestRegistry_TrackExternalPrimitives(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	defer reg.Close()

	pool := NewPool(PoolConfig{Name: "external", Capacity: 3})
	reg.TrackPool("external", pool)

	stats := reg.PoolStats()
	if stats["external"].Capacity != 3 {
		t.Errorf("expected tracked pool in stats, got %+v", stats)
	}

	existing := reg.CreatePool("shared", 2)
	reg.TrackPool("shared", NewPool(PoolConfig{Name: "shared", Capacity: 9}))
	if got := reg.Pool("shared"); got != existing {
		t.Error("tracking must not replace an existing pool")
	}

	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("external"))
	reg.TrackBreaker("external", cb)
	if reg.Breaker("external") != cb {
		t.Error("expected tracked breaker to be shared")
	}
}
