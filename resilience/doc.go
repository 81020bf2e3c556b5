// Package resilience provides the concurrency-control toolkit protecting the
// command pipeline's infrastructure calls.
//
// This package includes:
//   - CircuitBreaker: trips on error percentage, probes recovery half-open
//   - Pool: bulkhead with named pools and a FIFO wait queue
//   - FixedWindowLimiter / SlidingLogLimiter: keyed rate limiting over Redis
//   - Retry: retries failed operations with jittered exponential backoff
//
// The primitives know nothing about commands; callers compose them around
// pipeline steps:
//
//	reg := resilience.NewRegistry(resilience.RegistryConfig{
//	    DefaultBreaker: resilience.DefaultCircuitBreakerConfig("default"),
//	    DefaultPool:    resilience.DefaultPoolConfig("default"),
//	})
//	defer reg.Close()
//
//	pool := reg.CreatePool("payments", 16)
//	err := pool.Execute(ctx, func() error {
//	    return reg.Breaker("kafka").Execute(ctx, publish)
//	}, 0)
package resilience
