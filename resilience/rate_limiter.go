package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Common rate limiter errors.
var (
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request was admitted.
	Allowed bool
	// Remaining is the quota left in the current window after this request.
	Remaining int
	// ResetAt is when the current window expires (fixed window only).
	ResetAt time.Time
	// FailedOpen is set when the backing store was unreachable and the
	// request was admitted by the fail-open policy.
	FailedOpen bool
}

// Limiter is the shared interface of the two interchangeable algorithms.
// Decisions are key-scoped, never global. Both implementations fail open:
// if the counter store is unreachable the request is admitted with full
// remaining quota, availability over strict enforcement.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int) Decision
}

// RateLimiterConfig configures a keyed rate limiter.
type RateLimiterConfig struct {
	// Name identifies this limiter and prefixes its keys.
	Name string
	// MaxRequests is the admission quota per window.
	MaxRequests int
	// Window is the length of the admission window.
	Window time.Duration
	// OnLimit is called when a request is rejected.
	OnLimit func(key string)
	// OnFailOpen is called when the counter store is unreachable and the
	// request is admitted anyway.
	OnFailOpen func(key string, err error)
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig(name string) RateLimiterConfig {
	return RateLimiterConfig{
		Name:        name,
		MaxRequests: 100,
		Window:      time.Minute,
	}
}

func (c *RateLimiterConfig) applyDefaults() {
	if c.MaxRequests <= 0 {
		c.MaxRequests = 100
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	// The window math works in milliseconds; anything shorter would divide
	// by zero.
	if c.Window < time.Millisecond {
		c.Window = time.Millisecond
	}
}

// FixedWindowLimiter counts requests in fixed time buckets. Counters for
// past windows are never read back, which admits short bursts at window
// boundaries, an accepted trade-off.
type FixedWindowLimiter struct {
	client goredis.Cmdable
	config RateLimiterConfig
	now    func() time.Time
}

// NewFixedWindowLimiter creates a fixed-window limiter over the given
// redis client.
func NewFixedWindowLimiter(client goredis.Cmdable, config RateLimiterConfig) *FixedWindowLimiter {
	config.applyDefaults()
	return &FixedWindowLimiter{client: client, config: config, now: time.Now}
}

// Allow checks admission for key with the given cost.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string, cost int) Decision {
	if cost <= 0 {
		cost = 1
	}

	windowMs := l.config.Window.Milliseconds()
	nowMs := l.now().UnixMilli()
	window := nowMs / windowMs
	resetAt := time.UnixMilli((window + 1) * windowMs)
	counterKey := fmt.Sprintf("ratelimit:%s:%s:%d", l.config.Name, key, window)

	count, err := l.client.IncrBy(ctx, counterKey, int64(cost)).Result()
	if err != nil {
		return l.failOpen(key, err)
	}
	// Expiry equals the window length; first increment sets it.
	if count == int64(cost) {
		l.client.PExpire(ctx, counterKey, l.config.Window)
	}

	if count > int64(l.config.MaxRequests) {
		// Undo the reservation so rejected traffic does not consume quota.
		l.client.DecrBy(ctx, counterKey, int64(cost))
		if l.config.OnLimit != nil {
			l.config.OnLimit(key)
		}
		remaining := l.config.MaxRequests - int(count) + cost
		if remaining < 0 {
			remaining = 0
		}
		return Decision{Allowed: false, Remaining: remaining, ResetAt: resetAt}
	}

	return Decision{
		Allowed:   true,
		Remaining: l.config.MaxRequests - int(count),
		ResetAt:   resetAt,
	}
}

func (l *FixedWindowLimiter) failOpen(key string, err error) Decision {
	if l.config.OnFailOpen != nil {
		l.config.OnFailOpen(key, err)
	}
	return Decision{Allowed: true, Remaining: l.config.MaxRequests, FailedOpen: true}
}

// SlidingLogLimiter keeps a per-key ordered set of request timestamps
// pruned to the trailing window. Tighter than the fixed window at the cost
// of one set entry per admitted request.
type SlidingLogLimiter struct {
	client goredis.Cmdable
	config RateLimiterConfig
	now    func() time.Time
}

// NewSlidingLogLimiter creates a sliding-window-log limiter over the given
// redis client.
func NewSlidingLogLimiter(client goredis.Cmdable, config RateLimiterConfig) *SlidingLogLimiter {
	config.applyDefaults()
	return &SlidingLogLimiter{client: client, config: config, now: time.Now}
}

// Allow checks admission for key with the given cost.
func (l *SlidingLogLimiter) Allow(ctx context.Context, key string, cost int) Decision {
	if cost <= 0 {
		cost = 1
	}

	now := l.now()
	logKey := fmt.Sprintf("ratelimit:%s:%s:log", l.config.Name, key)
	cutoff := now.Add(-l.config.Window).UnixNano()

	if err := l.client.ZRemRangeByScore(ctx, logKey, "-inf", fmt.Sprintf("%d", cutoff)).Err(); err != nil {
		return l.failOpen(key, err)
	}

	count, err := l.client.ZCard(ctx, logKey).Result()
	if err != nil {
		return l.failOpen(key, err)
	}

	if count+int64(cost) > int64(l.config.MaxRequests) {
		if l.config.OnLimit != nil {
			l.config.OnLimit(key)
		}
		remaining := l.config.MaxRequests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		return Decision{Allowed: false, Remaining: remaining}
	}

	members := make([]goredis.Z, cost)
	for i := 0; i < cost; i++ {
		members[i] = goredis.Z{
			Score:  float64(now.UnixNano()),
			Member: fmt.Sprintf("%d-%d", now.UnixNano(), i),
		}
	}
	if err := l.client.ZAdd(ctx, logKey, members...).Err(); err != nil {
		return l.failOpen(key, err)
	}
	l.client.PExpire(ctx, logKey, l.config.Window)

	return Decision{
		Allowed:   true,
		Remaining: l.config.MaxRequests - int(count) - cost,
	}
}

func (l *SlidingLogLimiter) failOpen(key string, err error) Decision {
	if l.config.OnFailOpen != nil {
		l.config.OnFailOpen(key, err)
	}
	return Decision{Allowed: true, Remaining: l.config.MaxRequests, FailedOpen: true}
}
