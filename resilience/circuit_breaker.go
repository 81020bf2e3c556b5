package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen blocks all requests until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits a single probe to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Common errors.
var (
	ErrCircuitOpen   = errors.New("circuit breaker is open")
	ErrCallTimeout   = errors.New("operation timed out")
	ErrProbeRejected = errors.New("half-open probe already in flight")
)

// decayFactor is applied to all counters every monitoring period so stale
// history does not permanently bias the failure ratio.
const decayFactor = 0.9

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the guarded dependency for metrics/logging.
	Name string
	// Timeout is the per-call deadline. A call exceeding it counts as a failure.
	Timeout time.Duration
	// ErrorThresholdPercent is the failure percentage (0-100) that trips the
	// breaker while closed.
	ErrorThresholdPercent int
	// ResetTimeout is how long the breaker stays open before a probe is allowed.
	ResetTimeout time.Duration
	// MonitoringPeriod is the counter decay interval.
	MonitoringPeriod time.Duration
	// OnStateChange is called when state changes.
	OnStateChange func(name string, from, to State)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                  name,
		Timeout:               3 * time.Second,
		ErrorThresholdPercent: 50,
		ResetTimeout:          30 * time.Second,
		MonitoringPeriod:      60 * time.Second,
	}
}

// CircuitBreaker guards a single logical downstream dependency. It decides
// admit-or-reject only; it never retries internally. Combine with Retry for
// actual recovery attempts.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	requestCount int
	nextAttempt  time.Time
	probeActive  bool

	probeTimer *time.Timer
	decayStop  chan struct{}
	decayOnce  sync.Once

	now func() time.Time
}

// NewCircuitBreaker creates a circuit breaker and starts its counter decay
// loop. Call Stop when the breaker is no longer needed.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if config.ErrorThresholdPercent <= 0 || config.ErrorThresholdPercent > 100 {
		config.ErrorThresholdPercent = 50
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.MonitoringPeriod <= 0 {
		config.MonitoringPeriod = 60 * time.Second
	}

	cb := &CircuitBreaker{
		config:    config,
		state:     StateClosed,
		decayStop: make(chan struct{}),
		now:       time.Now,
	}
	go cb.decayLoop()
	return cb
}

// Execute runs the given operation through the circuit breaker, racing it
// against the configured per-call timeout. Returns ErrCircuitOpen without
// invoking the operation when the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allowRequest(); err != nil {
		return err
	}

	err := cb.invoke(ctx, fn)
	cb.recordResult(err)
	return err
}

// invoke runs fn with the per-call deadline. The losing side of the race is
// cancelled via context and its eventual result discarded.
func (cb *CircuitBreaker) invoke(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, cb.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return ErrCallTimeout
		}
		return callCtx.Err()
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// Counts returns the current failure, success, and request counters.
func (cb *CircuitBreaker) Counts() (failures, successes, requests int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount, cb.successCount, cb.requestCount
}

// Stop terminates the decay loop and cancels any pending probe timer.
func (cb *CircuitBreaker) Stop() {
	cb.decayOnce.Do(func() { close(cb.decayStop) })
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.probeTimer != nil {
		cb.probeTimer.Stop()
		cb.probeTimer = nil
	}
}

// allowRequest checks if a request should be admitted.
func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateClosed:
		return nil
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.probeActive {
			return ErrProbeRejected
		}
		cb.probeActive = true
		return nil
	default:
		return ErrCircuitOpen
	}
}

// recordResult records the outcome of an admitted request.
func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++
	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

// onSuccess handles a successful request.
func (cb *CircuitBreaker) onSuccess() {
	cb.successCount++
	if cb.currentState() == StateHalfOpen {
		cb.failureCount = 0
		cb.toState(StateClosed)
	}
}

// onFailure handles a failed request.
func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++

	switch cb.currentState() {
	case StateHalfOpen:
		cb.trip()
	case StateClosed:
		if cb.requestCount > 0 &&
			cb.failureCount*100/cb.requestCount >= cb.config.ErrorThresholdPercent {
			cb.trip()
		}
	}
}

// trip opens the breaker and schedules the autonomous transition to
// half-open, so a probe becomes available even without new traffic.
func (cb *CircuitBreaker) trip() {
	cb.nextAttempt = cb.now().Add(cb.config.ResetTimeout)
	cb.toState(StateOpen)

	if cb.probeTimer != nil {
		cb.probeTimer.Stop()
	}
	cb.probeTimer = time.AfterFunc(cb.config.ResetTimeout, func() {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		if cb.state == StateOpen && !cb.now().Before(cb.nextAttempt) {
			cb.toState(StateHalfOpen)
		}
	})
}

// currentState returns the state, handling the open -> half-open transition
// when the reset timeout has elapsed but the timer has not fired yet.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && !cb.now().Before(cb.nextAttempt) {
		cb.toState(StateHalfOpen)
	}
	return cb.state
}

// toState transitions to a new state.
func (cb *CircuitBreaker) toState(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to

	cb.probeActive = false

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// decayLoop multiplies all counters by decayFactor every monitoring period.
func (cb *CircuitBreaker) decayLoop() {
	ticker := time.NewTicker(cb.config.MonitoringPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cb.decay()
		case <-cb.decayStop:
			return
		}
	}
}

// decay applies one round of counter decay, flooring to integers.
func (cb *CircuitBreaker) decay() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = int(float64(cb.failureCount) * decayFactor)
	cb.successCount = int(float64(cb.successCount) * decayFactor)
	cb.requestCount = int(float64(cb.requestCount) * decayFactor)
}
