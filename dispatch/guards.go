package dispatch

import (
	"context"
	"errors"

	apperrors "github.com/flowmint/txfabric/errors"
	"github.com/flowmint/txfabric/resilience"
)

// GuardConfig bundles optional resilience policies for one external call
// site. Nil fields are skipped; zero config means pure passthrough.
type GuardConfig struct {
	// Breaker trips the call site after repeated failures.
	Breaker *resilience.CircuitBreakerConfig
	// Pool bounds concurrent calls to the dependency.
	Pool *resilience.PoolConfig
	// Retry re-attempts failed calls with exponential backoff.
	Retry *resilience.RetryConfig
}

// IsEmpty returns true if no policies are configured.
func (c GuardConfig) IsEmpty() bool {
	return c.Breaker == nil && c.Pool == nil && c.Retry == nil
}

// Guard wraps one call site (stores, event append, broker publish) with the
// configured primitives. Admission rejections come back as AppErrors so the
// pipeline and the HTTP layer need no knowledge of the raw sentinels.
type Guard struct {
	name     string
	breaker  *resilience.CircuitBreaker
	pool     *resilience.Pool
	retryCfg *resilience.RetryConfig
}

// NewGuard builds a guard from config. Returns a passthrough guard when the
// config is empty.
func NewGuard(name string, cfg GuardConfig) *Guard {
	g := &Guard{name: name, retryCfg: cfg.Retry}
	if cfg.Breaker != nil {
		bc := *cfg.Breaker
		if bc.Name == "" {
			bc.Name = name
		}
		g.breaker = resilience.NewCircuitBreaker(bc)
	}
	if cfg.Pool != nil {
		pc := *cfg.Pool
		if pc.Name == "" {
			pc.Name = name
		}
		g.pool = resilience.NewPool(pc)
	}
	return g
}

// Do runs fn through the configured primitives: pool outermost, then
// breaker, then retry, innermost fn.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}

	call := fn
	if g.retryCfg != nil {
		retryCfg := *g.retryCfg
		inner := call
		call = func(ctx context.Context) error {
			return resilience.RetryFunc(ctx, retryCfg, func() error {
				return inner(ctx)
			})
		}
	}

	if g.breaker != nil {
		inner := call
		call = func(ctx context.Context) error {
			return g.breaker.Execute(ctx, inner)
		}
	}

	var err error
	if g.pool != nil {
		err = g.pool.Execute(ctx, func() error {
			return call(ctx)
		}, 0)
	} else {
		err = call(ctx)
	}

	return g.mapError(err)
}

// mapError converts resilience sentinels into typed application errors.
func (g *Guard) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrProbeRejected):
		return apperrors.BreakerOpen(g.name)
	case errors.Is(err, resilience.ErrBulkheadTimeout):
		return apperrors.BulkheadTimeout(g.name)
	case errors.Is(err, resilience.ErrCallTimeout):
		return apperrors.Timeout(g.name)
	}
	return err
}

// Stop releases the guard's breaker resources.
func (g *Guard) Stop() {
	if g != nil && g.breaker != nil {
		g.breaker.Stop()
	}
}

// Guards holds the per-call-site guards of one pipeline. Which primitive
// wraps which call is deployment configuration, not pipeline logic.
type Guards struct {
	// Stores wraps the dual record write.
	Stores *Guard
	// Events wraps the event store append.
	Events *Guard
	// Broker wraps the publish.
	Broker *Guard
}

// GuardsConfig configures every call site of the pipeline. When Registry is
// set, the created pools and breakers are tracked there so the process can
// report their stats centrally.
type GuardsConfig struct {
	Stores GuardConfig
	Events GuardConfig
	Broker GuardConfig

	Registry *resilience.Registry
}

// BuildGuards creates the pipeline guards from config.
func BuildGuards(cfg GuardsConfig) *Guards {
	g := &Guards{
		Stores: NewGuard("stores", cfg.Stores),
		Events: NewGuard("events", cfg.Events),
		Broker: NewGuard("broker", cfg.Broker),
	}
	if cfg.Registry != nil {
		g.Stores.track(cfg.Registry)
		g.Events.track(cfg.Registry)
		g.Broker.track(cfg.Registry)
	}
	return g
}

func (g *Guard) track(reg *resilience.Registry) {
	if g.pool != nil {
		reg.TrackPool(g.name, g.pool)
	}
	if g.breaker != nil {
		reg.TrackBreaker(g.name, g.breaker)
	}
}

// Stop releases all guard resources.
func (g *Guards) Stop() {
	if g == nil {
		return
	}
	g.Stores.Stop()
	g.Events.Stop()
	g.Broker.Stop()
}
