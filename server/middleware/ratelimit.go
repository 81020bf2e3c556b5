package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/flowmint/txfabric/errors"
	"github.com/flowmint/txfabric/resilience"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limiter makes the keyed admission decision.
	Limiter resilience.Limiter
	// KeyFunc extracts the rate limit key from a request. Defaults to client IP.
	KeyFunc func(*gin.Context) string
}

// RateLimit returns a Gin middleware that applies keyed admission control
// through the given limiter. Decisions are per key, never global; the
// limiter's fail-open policy applies when its backing store is unreachable.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPBasedKey
	}

	return func(c *gin.Context) {
		if cfg.Limiter == nil {
			c.Next()
			return
		}

		key := cfg.KeyFunc(c)
		decision := cfg.Limiter.Allow(c.Request.Context(), key, 1)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			appErr := apperrors.RateLimited(key)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, appErr.ToResponse())
			return
		}
		c.Next()
	}
}

// IPBasedKey extracts the client IP for use as a rate limit key.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}

// PathBasedKey combines the client IP and route path so one hot endpoint
// cannot exhaust a client's quota everywhere.
func PathBasedKey(c *gin.Context) string {
	return c.ClientIP() + ":" + c.FullPath()
}
