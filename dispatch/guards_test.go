package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/flowmint/txfabric/errors"
	"github.com/flowmint/txfabric/resilience"
)

func TestGuard_PassthroughWhenEmpty(t *testing.T) {
	g := NewGuard("stores", GuardConfig{})

	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("expected one passthrough call, got calls=%d err=%v", calls, err)
	}
}

func TestGuard_BreakerMapsToAppError(t *testing.T) {
	g := NewGuard("events", GuardConfig{
		Breaker: &resilience.CircuitBreakerConfig{
			Timeout:               time.Second,
			ErrorThresholdPercent: 50,
			ResetTimeout:          time.Minute,
			MonitoringPeriod:      time.Hour,
		},
	})
	defer g.Stop()

	boom := errors.New("downstream failed")
	if err := g.Do(context.Background(), func(ctx context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected the call error, got %v", err)
	}

	// The single 100% failure trips the breaker; the next call is rejected
	// before the function runs.
	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Error("open breaker must not invoke the function")
	}
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeBreakerOpen {
		t.Errorf("expected BREAKER_OPEN, got %v", err)
	}
	if dep := appErr.Details["dependency"]; dep != "events" {
		t.Errorf("expected guard name in details, got %v", dep)
	}
}

func TestGuard_BulkheadTimeoutMapsToAppError(t *testing.T) {
	g := NewGuard("stores", GuardConfig{
		Pool: &resilience.PoolConfig{
			Capacity:     1,
			QueueTimeout: 20 * time.Millisecond,
		},
	})

	occupied := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), func(ctx context.Context) error {
			close(occupied)
			<-release
			return nil
		})
	}()
	<-occupied
	defer close(release)

	err := g.Do(context.Background(), func(ctx context.Context) error { return nil })
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeBulkheadTimeout {
		t.Errorf("expected BULKHEAD_TIMEOUT, got %v", err)
	}
}

func TestGuard_RetryReattempts(t *testing.T) {
	g := NewGuard("broker", GuardConfig{
		Retry: &resilience.RetryConfig{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			MaxDelay:   2 * time.Millisecond,
			JitterMax:  time.Millisecond,
		},
	})

	calls := 0
	boom := errors.New("flaky")
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return boom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery on the third attempt: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestBuildGuards(t *testing.T) {
	g := BuildGuards(GuardsConfig{})
	defer g.Stop()

	if g.Stores == nil || g.Events == nil || g.Broker == nil {
		t.Fatal("every call site must get a guard")
	}
	if err := g.Stores.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("empty guards must pass through: %v", err)
	}
}

func TestGuard_NilIsPassthrough(t *testing.T) {
	var g *Guard
	called := false
	if err := g.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}); err != nil || !called {
		t.Errorf("nil guard must pass through, called=%v err=%v", called, err)
	}
	g.Stop()
}
