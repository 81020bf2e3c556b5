package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Common bulkhead errors.
var (
	ErrBulkheadTimeout = errors.New("bulkhead wait timeout")
)

// PoolConfig configures a bulkhead pool.
type PoolConfig struct {
	// Name identifies this pool for metrics/logging.
	Name string
	// Capacity is the maximum number of concurrently running tasks.
	Capacity int
	// QueueTimeout is how long a queued task waits for a slot before being
	// rejected. Applied when Execute is called without an explicit timeout.
	QueueTimeout time.Duration
	// OnReject is called when a queued task times out or is cancelled.
	OnReject func(name string)
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig(name string) PoolConfig {
	return PoolConfig{
		Name:         name,
		Capacity:     10,
		QueueTimeout: 5 * time.Second,
	}
}

// PoolStats is a snapshot of a pool's counters.
type PoolStats struct {
	Name              string  `json:"name"`
	Capacity          int     `json:"capacity"`
	Active            int     `json:"active"`
	Queued            int     `json:"queued"`
	TotalRequests     int64   `json:"total_requests"`
	CompletedRequests int64   `json:"completed_requests"`
	FailedRequests    int64   `json:"failed_requests"`
	QueuedRequests    int64   `json:"queued_requests"`
	RejectedRequests  int64   `json:"rejected_requests"`
	Utilization       float64 `json:"utilization"`
}

// waiter is a task queued for a pool slot. A waiter that times out is
// removed from the queue before it could ever be started.
type waiter struct {
	ready chan struct{}
}

// Pool bounds concurrent in-flight operations for one named resource and
// queues overflow in FIFO order. Active never exceeds Capacity; a rejected
// or timed-out task is guaranteed to have never run.
type Pool struct {
	config PoolConfig

	mu        sync.Mutex
	active    int
	queue     []*waiter
	total     int64
	completed int64
	failed    int64
	queuedN   int64
	rejectedN int64
}

// NewPool creates a bulkhead pool.
func NewPool(config PoolConfig) *Pool {
	if config.Capacity <= 0 {
		config.Capacity = 10
	}
	if config.QueueTimeout <= 0 {
		config.QueueTimeout = 5 * time.Second
	}
	return &Pool{config: config}
}

// Execute runs fn inside the pool, queueing it when the pool is saturated.
// A zero timeout uses the pool's configured QueueTimeout.
func (p *Pool) Execute(ctx context.Context, fn func() error, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.config.QueueTimeout
	}

	if err := p.acquire(ctx, timeout); err != nil {
		return err
	}

	err := fn()
	p.release(err)
	return err
}

// ExecuteWithResult runs a function that returns a value inside the pool.
func ExecuteWithResult[T any](p *Pool, ctx context.Context, fn func() (T, error), timeout time.Duration) (T, error) {
	var result T
	err := p.Execute(ctx, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	}, timeout)
	return result, err
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Name:              p.config.Name,
		Capacity:          p.config.Capacity,
		Active:            p.active,
		Queued:            len(p.queue),
		TotalRequests:     p.total,
		CompletedRequests: p.completed,
		FailedRequests:    p.failed,
		QueuedRequests:    p.queuedN,
		RejectedRequests:  p.rejectedN,
		Utilization:       float64(p.active) / float64(p.config.Capacity),
	}
}

// acquire claims a slot, waiting in the FIFO queue when the pool is full.
func (p *Pool) acquire(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	p.total++

	if p.active < p.config.Capacity {
		p.active++
		p.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	p.queue = append(p.queue, w)
	p.queuedN++
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		return nil
	case <-timer.C:
		if p.reject(w) {
			if p.config.OnReject != nil {
				p.config.OnReject(p.config.Name)
			}
			return ErrBulkheadTimeout
		}
		// Lost the race: a slot was granted between the timer firing and
		// the queue removal. Take the slot.
		<-w.ready
		return nil
	case <-ctx.Done():
		if p.reject(w) {
			if p.config.OnReject != nil {
				p.config.OnReject(p.config.Name)
			}
			return ctx.Err()
		}
		<-w.ready
		return nil
	}
}

// reject removes a waiter from the queue. Returns false if the waiter was
// already granted a slot, in which case the caller must run.
func (p *Pool) reject(w *waiter) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, queued := range p.queue {
		if queued == w {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			p.rejectedN++
			return true
		}
	}
	return false
}

// release returns a slot to the pool and starts the next queued task, FIFO.
func (p *Pool) release(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.failed++
	} else {
		p.completed++
	}

	if len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]
		close(next.ready)
		return
	}
	p.active--
}
