package resilience

import (
	"sync"
)

// Registry owns the named pools and breakers of one service process. It is
// constructed at startup and passed to every call site; there are no hidden
// package-level singletons.
type Registry struct {
	mu       sync.Mutex
	pools    map[string]*Pool
	breakers map[string]*CircuitBreaker

	defaultPool    PoolConfig
	defaultBreaker CircuitBreakerConfig
}

// RegistryConfig sets the defaults applied to pools and breakers created
// without explicit configuration.
type RegistryConfig struct {
	DefaultPool    PoolConfig
	DefaultBreaker CircuitBreakerConfig
}

// NewRegistry creates a registry with the given defaults.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		pools:          make(map[string]*Pool),
		breakers:       make(map[string]*CircuitBreaker),
		defaultPool:    cfg.DefaultPool,
		defaultBreaker: cfg.DefaultBreaker,
	}
}

// CreatePool creates a named pool with the given capacity. Idempotent: the
// existing pool is returned if one was already created under the name.
func (r *Registry) CreatePool(name string, capacity int) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pool, ok := r.pools[name]; ok {
		return pool
	}

	cfg := r.defaultPool
	cfg.Name = name
	if capacity > 0 {
		cfg.Capacity = capacity
	}
	pool := NewPool(cfg)
	r.pools[name] = pool
	return pool
}

// Pool returns the named pool, creating it with default capacity on first use.
func (r *Registry) Pool(name string) *Pool {
	return r.CreatePool(name, 0)
}

// Breaker returns the breaker guarding the named dependency, creating it
// lazily from the registry defaults.
func (r *Registry) Breaker(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg := r.defaultBreaker
	cfg.Name = name
	cb := NewCircuitBreaker(cfg)
	r.breakers[name] = cb
	return cb
}

// TrackPool places an externally constructed pool under the registry so its
// stats are reported centrally. An existing pool under the name is kept.
func (r *Registry) TrackPool(name string, pool *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[name]; !ok {
		r.pools[name] = pool
	}
}

// TrackBreaker places an externally constructed breaker under the registry
// so Close stops its decay loop. An existing breaker under the name is kept.
func (r *Registry) TrackBreaker(name string, cb *CircuitBreaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.breakers[name]; !ok {
		r.breakers[name] = cb
	}
}

// PoolStats returns per-pool snapshots keyed by pool name.
func (r *Registry) PoolStats() map[string]PoolStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]PoolStats, len(r.pools))
	for name, pool := range r.pools {
		stats[name] = pool.Stats()
	}
	return stats
}

// AggregateStats sums the counters of every pool.
func (r *Registry) AggregateStats() PoolStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg := PoolStats{Name: "aggregate"}
	for _, pool := range r.pools {
		s := pool.Stats()
		agg.Capacity += s.Capacity
		agg.Active += s.Active
		agg.Queued += s.Queued
		agg.TotalRequests += s.TotalRequests
		agg.CompletedRequests += s.CompletedRequests
		agg.FailedRequests += s.FailedRequests
		agg.QueuedRequests += s.QueuedRequests
		agg.RejectedRequests += s.RejectedRequests
	}
	if agg.Capacity > 0 {
		agg.Utilization = float64(agg.Active) / float64(agg.Capacity)
	}
	return agg
}

// Close stops every breaker's decay loop.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cb := range r.breakers {
		cb.Stop()
	}
}
