package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newLimiterClient(t *testing.T) (goredis.Cmdable, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() { mini.Close() })

	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mini
}

func TestFixedWindowLimiter_AllowsUpToMax(t *testing.T) {
	client, _ := newLimiterClient(t)
	l := NewFixedWindowLimiter(client, RateLimiterConfig{
		Name:        "test",
		MaxRequests: 3,
		Window:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := l.Allow(ctx, "client-a", 1)
		if !d.Allowed {
			t.Fatalf("request %d should have been allowed", i)
		}
		if d.Remaining != 3-i-1 {
			t.Errorf("request %d: expected remaining %d, got %d", i, 3-i-1, d.Remaining)
		}
	}

	d := l.Allow(ctx, "client-a", 1)
	if d.Allowed {
		t.Error("request over quota should have been rejected")
	}
	if d.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", d.Remaining)
	}
	if d.ResetAt.IsZero() {
		t.Error("rejection should carry the window reset time")
	}
}

func TestFixedWindowLimiter_KeysAreIndependent(t *testing.T) {
	client, _ := newLimiterClient(t)
	l := NewFixedWindowLimiter(client, RateLimiterConfig{
		Name:        "test",
		MaxRequests: 1,
		Window:      time.Minute,
	})
	ctx := context.Background()

	if d := l.Allow(ctx, "client-a", 1); !d.Allowed {
		t.Fatal("client-a should have been allowed")
	}
	if d := l.Allow(ctx, "client-a", 1); d.Allowed {
		t.Error("client-a second request should have been rejected")
	}
	if d := l.Allow(ctx, "client-b", 1); !d.Allowed {
		t.Error("client-b must not be affected by client-a's quota")
	}
}

func TestFixedWindowLimiter_RecoversAfterWindowBoundary(t *testing.T) {
	client, _ := newLimiterClient(t)
	l := NewFixedWindowLimiter(client, RateLimiterConfig{
		Name:        "test",
		MaxRequests: 1,
		Window:      time.Minute,
	})
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	if d := l.Allow(ctx, "client-a", 1); !d.Allowed {
		t.Fatal("first request should have been allowed")
	}
	if d := l.Allow(ctx, "client-a", 1); d.Allowed {
		t.Fatal("second request should have been rejected")
	}

	// Cross into the next window: quota starts fresh.
	l.now = func() time.Time { return base.Add(time.Minute + time.Second) }
	if d := l.Allow(ctx, "client-a", 1); !d.Allowed {
		t.Error("request in new window should have been allowed")
	}
}

func TestFixedWindowLimiter_CostConsumesQuota(t *testing.T) {
	client, _ := newLimiterClient(t)
	l := NewFixedWindowLimiter(client, RateLimiterConfig{
		Name:        "test",
		MaxRequests: 5,
		Window:      time.Minute,
	})
	ctx := context.Background()

	d := l.Allow(ctx, "client-a", 3)
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("expected allowed with remaining 2, got %+v", d)
	}

	// Cost 3 no longer fits; the rejected reservation is undone.
	if d := l.Allow(ctx, "client-a", 3); d.Allowed {
		t.Error("over-quota bulk request should have been rejected")
	}
	if d := l.Allow(ctx, "client-a", 2); !d.Allowed {
		t.Error("rejected request must not consume quota")
	}
}

func TestFixedWindowLimiter_FailsOpen(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { client.Close() })

	var failOpenKey string
	l := NewFixedWindowLimiter(client, RateLimiterConfig{
		Name:        "test",
		MaxRequests: 1,
		Window:      time.Minute,
		OnFailOpen:  func(key string, err error) { failOpenKey = key },
	})

	d := l.Allow(context.Background(), "client-a", 1)
	if !d.Allowed {
		t.Error("unreachable store must admit the request")
	}
	if !d.FailedOpen {
		t.Error("decision should be marked failed-open")
	}
	if failOpenKey != "client-a" {
		t.Errorf("expected OnFailOpen for client-a, got %q", failOpenKey)
	}
}

func TestFixedWindowLimiter_SubMillisecondWindowIsFloored(t *testing.T) {
	client, _ := newLimiterClient(t)
	l := NewFixedWindowLimiter(client, RateLimiterConfig{
		Name:        "micro",
		MaxRequests: 5,
		Window:      100 * time.Microsecond,
	})

	if l.config.Window < time.Millisecond {
		t.Fatalf("expected window floored to 1ms, got %v", l.config.Window)
	}

	// The window index divides by the window length in milliseconds; a
	// sub-millisecond window must still admit instead of panicking.
	d := l.Allow(context.Background(), "client-a", 1)
	if !d.Allowed {
		t.Errorf("expected admission, got %+v", d)
	}
}

func TestSlidingLogLimiter_AllowsUpToMax(t *testing.T) {
	client, _ := newLimiterClient(t)
	l := NewSlidingLogLimiter(client, RateLimiterConfig{
		Name:        "test",
		MaxRequests: 3,
		Window:      time.Minute,
	})
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		// Distinct timestamps keep the log members unique.
		tick := base.Add(time.Duration(i) * time.Millisecond)
		l.now = func() time.Time { return tick }
		if d := l.Allow(ctx, "client-a", 1); !d.Allowed {
			t.Fatalf("request %d should have been allowed", i)
		}
	}

	if d := l.Allow(ctx, "client-a", 1); d.Allowed {
		t.Error("request over quota should have been rejected")
	}
}

func TestSlidingLogLimiter_TrailingWindowSlides(t *testing.T) {
	client, _ := newLimiterClient(t)
	l := NewSlidingLogLimiter(client, RateLimiterConfig{
		Name:        "test",
		MaxRequests: 2,
		Window:      time.Minute,
	})
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }
	if d := l.Allow(ctx, "client-a", 1); !d.Allowed {
		t.Fatal("first request should have been allowed")
	}

	l.now = func() time.Time { return base.Add(30 * time.Second) }
	if d := l.Allow(ctx, "client-a", 1); !d.Allowed {
		t.Fatal("second request should have been allowed")
	}
	if d := l.Allow(ctx, "client-a", 1); d.Allowed {
		t.Fatal("third request within the window should have been rejected")
	}

	// 65s after the first request it has aged out, freeing one slot. The
	// second request (35s old) still counts.
	l.now = func() time.Time { return base.Add(65 * time.Second) }
	if d := l.Allow(ctx, "client-a", 1); !d.Allowed {
		t.Error("request should have been allowed after oldest entry aged out")
	}
	if d := l.Allow(ctx, "client-a", 1); d.Allowed {
		t.Error("window is full again, request should have been rejected")
	}
}

func TestSlidingLogLimiter_FailsOpen(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { client.Close() })

	l := NewSlidingLogLimiter(client, RateLimiterConfig{
		Name:        "test",
		MaxRequests: 1,
		Window:      time.Minute,
	})

	d := l.Allow(context.Background(), "client-a", 1)
	if !d.Allowed || !d.FailedOpen {
		t.Errorf("expected failed-open admission, got %+v", d)
	}
}

func TestRateLimiter_OnLimitHook(t *testing.T) {
	client, _ := newLimiterClient(t)
	var limited []string
	l := NewFixedWindowLimiter(client, RateLimiterConfig{
		Name:        "test",
		MaxRequests: 1,
		Window:      time.Minute,
		OnLimit:     func(key string) { limited = append(limited, key) },
	})
	ctx := context.Background()

	l.Allow(ctx, "client-a", 1)
	l.Allow(ctx, "client-a", 1)

	if len(limited) != 1 || limited[0] != "client-a" {
		t.Errorf("expected one OnLimit callback for client-a, got %v", limited)
	}
}
