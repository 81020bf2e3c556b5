// Command txfabricd runs the transaction platform's write-side service: the
// command pipeline over the dual record stores, the event log, and the Kafka
// publisher, exposed through an HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/sqlite"

	"github.com/flowmint/txfabric/broker"
	"github.com/flowmint/txfabric/component"
	"github.com/flowmint/txfabric/config"
	"github.com/flowmint/txfabric/database"
	"github.com/flowmint/txfabric/dispatch"
	"github.com/flowmint/txfabric/event"
	"github.com/flowmint/txfabric/logger"
	"github.com/flowmint/txfabric/observability"
	"github.com/flowmint/txfabric/query"
	"github.com/flowmint/txfabric/redis"
	"github.com/flowmint/txfabric/resilience"
	"github.com/flowmint/txfabric/server"
	"github.com/flowmint/txfabric/server/endpoint"
	"github.com/flowmint/txfabric/server/middleware"
	"github.com/flowmint/txfabric/store"
	"github.com/flowmint/txfabric/version"
)

const serviceName = "txfabricd"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg appConfig
	if err := config.LoadConfig(serviceName, &cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	log := logger.New(&cfg.Logging, cfg.Name)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, telemetryShutdown, err := initTelemetry(ctx, &cfg, log)
	if err != nil {
		return err
	}
	defer telemetryShutdown()

	// Infrastructure components start in registration order and stop in
	// reverse.
	registry := component.NewRegistry()

	dbComponent := database.NewComponent(cfg.Database, log, sqlite.Open(cfg.Database.DSN))
	if err := registry.Register(dbComponent); err != nil {
		return err
	}
	redisComponent := redis.NewComponent(cfg.Redis, log)
	if err := registry.Register(redisComponent); err != nil {
		return err
	}

	var brokerComponent *broker.Component
	if cfg.Broker.Enabled {
		brokerComponent = broker.NewComponent(cfg.Broker, log)
		if err := registry.Register(brokerComponent); err != nil {
			return err
		}
	}

	if err := registry.StartAll(ctx); err != nil {
		return fmt.Errorf("starting components: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := registry.StopAll(stopCtx); err != nil {
			log.Error("Component shutdown failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	relational := store.NewGormStore(dbComponent.DB())
	if err := relational.Migrate(); err != nil {
		return fmt.Errorf("migrating record store: %w", err)
	}
	events := event.NewGormStore(dbComponent.DB())
	if err := events.Migrate(); err != nil {
		return fmt.Errorf("migrating event store: %w", err)
	}
	document := store.NewRedisStore(redisComponent.Client(), cfg.Pipeline.recordTTL())

	var publisher broker.Publisher
	if brokerComponent != nil {
		publisher = brokerComponent.Publisher()
	}

	guardRegistry := resilience.NewRegistry(resilience.RegistryConfig{})
	defer guardRegistry.Close()
	guardsCfg := cfg.Pipeline.guardsConfig()
	guardsCfg.Registry = guardRegistry

	pipeline := dispatch.NewPipeline(dispatch.PipelineConfig{
		Writer:     store.NewDualWriter(relational, document, log),
		Reader:     store.NewFallbackReader(relational, document, log),
		Events:     events,
		Publisher:  publisher,
		Guards:     dispatch.BuildGuards(guardsCfg),
		Tasks:      dispatch.NewTaskQueue(cfg.Pipeline.taskQueueConfig(), log),
		Metrics:    metrics,
		Log:        log,
		Topic:      cfg.Pipeline.Topic,
		RequireAll: cfg.Pipeline.RequireAll,
	})
	defer pipeline.Close()

	var limiter resilience.Limiter
	if cfg.Pipeline.RateLimit.Enabled {
		limiter = newLimiter(cfg.Pipeline.RateLimit, redisComponent, log)
	}
	dispatcher := dispatch.NewDispatcher(pipeline, limiter, log)
	queries := query.NewService(relational, events, log)

	// Routes and middleware are fully mounted before the listener opens.
	srv := server.New(cfg.Server, log)
	srv.ApplyDefaults(cfg.Name, registry.HealthAll)
	srv.GinEngine().GET("/stats", endpoint.Stats(guardRegistry))
	if limiter != nil {
		srv.GinEngine().Use(middleware.RateLimit(middleware.RateLimitConfig{Limiter: limiter}))
	}
	server.NewHandlers(dispatcher, queries, log).Register(srv.GinEngine())

	if err := registry.Register(server.NewComponent(srv)); err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting http server: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(stopCtx); err != nil {
			log.Error("Server shutdown failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	log.Info("Service started", logger.Fields(
		"service", cfg.Name,
		"version", version.GetShortVersion(),
		"addr", srv.Addr(),
		"environment", cfg.Environment,
	))

	<-ctx.Done()
	log.Info("Shutdown signal received")
	return nil
}

// newLimiter builds the keyed admission limiter over the shared redis client.
func newLimiter(cfg rateLimitConfig, redisComponent *redis.Component, log *logger.Logger) resilience.Limiter {
	limiterCfg := resilience.RateLimiterConfig{
		Name:        "dispatch",
		MaxRequests: cfg.MaxRequests,
		Window:      cfg.window(),
		OnLimit: func(key string) {
			log.Warn("Admission rejected", logger.Fields(logger.FieldLimiterKey, key))
		},
	}
	client := redisComponent.Client().Unwrap()
	if cfg.Algorithm == "sliding_log" {
		return resilience.NewSlidingLogLimiter(client, limiterCfg)
	}
	return resilience.NewFixedWindowLimiter(client, limiterCfg)
}

// initTelemetry starts the meter and tracer providers when telemetry is
// enabled. The returned shutdown flushes both.
func initTelemetry(ctx context.Context, cfg *appConfig, log *logger.Logger) (*observability.PipelineMetrics, func(), error) {
	if !cfg.Telemetry.Enabled {
		return nil, func() {}, nil
	}

	meterCfg := observability.DefaultMeterConfig(cfg.Name)
	tracerCfg := observability.DefaultTracerConfig(cfg.Name)
	meterCfg.Environment = cfg.Environment
	tracerCfg.Environment = cfg.Environment
	if cfg.Telemetry.Endpoint != "" {
		meterCfg.Endpoint = cfg.Telemetry.Endpoint
		tracerCfg.Endpoint = cfg.Telemetry.Endpoint
	}

	mp, err := observability.InitMeter(ctx, &meterCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing meter: %w", err)
	}
	tp, err := observability.InitTracer(ctx, tracerCfg)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, nil, fmt.Errorf("initializing tracer: %w", err)
	}

	metrics, err := observability.NewPipelineMetrics(observability.Meter(serviceName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, fmt.Errorf("creating pipeline metrics: %w", err)
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Tracer shutdown failed", logger.Fields(logger.FieldError, err.Error()))
		}
		if err := mp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Meter shutdown failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}
	return metrics, shutdown, nil
}
