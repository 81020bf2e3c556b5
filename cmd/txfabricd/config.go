package main

import (
	"fmt"
	"time"

	"github.com/flowmint/txfabric/broker"
	"github.com/flowmint/txfabric/config"
	"github.com/flowmint/txfabric/database"
	"github.com/flowmint/txfabric/dispatch"
	"github.com/flowmint/txfabric/redis"
	"github.com/flowmint/txfabric/resilience"
	"github.com/flowmint/txfabric/server"
)

// appConfig is the full service configuration, loaded from config.yml and
// environment overrides.
type appConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server    server.Config   `yaml:"server" mapstructure:"server"`
	Database  database.Config `yaml:"database" mapstructure:"database"`
	Redis     redis.Config    `yaml:"redis" mapstructure:"redis"`
	Broker    broker.Config   `yaml:"broker" mapstructure:"broker"`
	Pipeline  pipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Telemetry telemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

func (c *appConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Name == "" {
		c.Name = serviceName
	}
	c.Server.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Broker.ApplyDefaults()
	c.Pipeline.applyDefaults()
}

func (c *appConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if !c.Database.Enabled {
		return fmt.Errorf("database: must be enabled, it is the authoritative record store")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if !c.Redis.Enabled {
		return fmt.Errorf("redis: must be enabled, it backs the document store")
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if c.Broker.Enabled {
		if err := c.Broker.Validate(); err != nil {
			return fmt.Errorf("broker: %w", err)
		}
	}
	return c.Pipeline.validate()
}

// telemetryConfig controls the OTLP meter and tracer exporters.
type telemetryConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// pipelineConfig tunes the command pipeline: the event topic, the dual-write
// policy, admission control, async continuations, and the dependency guards.
type pipelineConfig struct {
	Topic      string        `yaml:"topic" mapstructure:"topic"`
	RequireAll bool          `yaml:"require_all" mapstructure:"require_all"`
	RecordTTL  time.Duration `yaml:"record_ttl" mapstructure:"record_ttl"`

	RateLimit rateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Tasks     taskConfig      `yaml:"tasks" mapstructure:"tasks"`
	Guards    guardsSettings  `yaml:"guards" mapstructure:"guards"`
}

func (p *pipelineConfig) applyDefaults() {
	if p.Topic == "" {
		p.Topic = "txfabric.events"
	}
	p.RateLimit.applyDefaults()
	p.Tasks.applyDefaults()
}

func (p *pipelineConfig) validate() error {
	if err := p.RateLimit.validate(); err != nil {
		return fmt.Errorf("pipeline.rate_limit: %w", err)
	}
	if p.Tasks.QueueSize < 0 || p.Tasks.Workers < 0 {
		return fmt.Errorf("pipeline.tasks: queue_size and workers must not be negative")
	}
	return nil
}

func (p *pipelineConfig) recordTTL() time.Duration {
	return p.RecordTTL
}

func (p *pipelineConfig) taskQueueConfig() dispatch.TaskQueueConfig {
	return dispatch.TaskQueueConfig{
		QueueSize:   p.Tasks.QueueSize,
		Workers:     p.Tasks.Workers,
		TaskTimeout: p.Tasks.TaskTimeout,
	}
}

func (p *pipelineConfig) guardsConfig() dispatch.GuardsConfig {
	return dispatch.GuardsConfig{
		Stores: p.Guards.Stores.guardConfig("stores"),
		Events: p.Guards.Events.guardConfig("events"),
		Broker: p.Guards.Broker.guardConfig("broker"),
	}
}

// rateLimitConfig controls keyed admission over redis. Algorithm selects
// between "fixed_window" and "sliding_log".
type rateLimitConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Algorithm   string        `yaml:"algorithm" mapstructure:"algorithm"`
	MaxRequests int           `yaml:"max_requests" mapstructure:"max_requests"`
	Window      time.Duration `yaml:"window" mapstructure:"window"`
}

func (r *rateLimitConfig) applyDefaults() {
	if r.Algorithm == "" {
		r.Algorithm = "fixed_window"
	}
	if r.MaxRequests == 0 {
		r.MaxRequests = 100
	}
	if r.Window == 0 {
		r.Window = time.Minute
	}
}

func (r *rateLimitConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Algorithm != "fixed_window" && r.Algorithm != "sliding_log" {
		return fmt.Errorf("unknown algorithm %q", r.Algorithm)
	}
	if r.MaxRequests <= 0 {
		return fmt.Errorf("max_requests must be positive")
	}
	return nil
}

func (r *rateLimitConfig) window() time.Duration {
	return r.Window
}

// taskConfig bounds the continuation worker queue.
type taskConfig struct {
	QueueSize   int           `yaml:"queue_size" mapstructure:"queue_size"`
	Workers     int           `yaml:"workers" mapstructure:"workers"`
	TaskTimeout time.Duration `yaml:"task_timeout" mapstructure:"task_timeout"`
}

func (t *taskConfig) applyDefaults() {
	if t.QueueSize == 0 {
		t.QueueSize = 256
	}
	if t.Workers == 0 {
		t.Workers = 4
	}
	if t.TaskTimeout == 0 {
		t.TaskTimeout = 30 * time.Second
	}
}

// guardsSettings configures one guard per pipeline dependency.
type guardsSettings struct {
	Stores guardSettings `yaml:"stores" mapstructure:"stores"`
	Events guardSettings `yaml:"events" mapstructure:"events"`
	Broker guardSettings `yaml:"broker" mapstructure:"broker"`
}

// guardSettings is the file-level shape of one dependency guard. Zero
// settings leave that protection off.
type guardSettings struct {
	BreakerEnabled        bool          `yaml:"breaker_enabled" mapstructure:"breaker_enabled"`
	ErrorThresholdPercent int           `yaml:"error_threshold_percent" mapstructure:"error_threshold_percent"`
	ResetTimeout          time.Duration `yaml:"reset_timeout" mapstructure:"reset_timeout"`
	CallTimeout           time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`

	PoolCapacity int           `yaml:"pool_capacity" mapstructure:"pool_capacity"`
	QueueTimeout time.Duration `yaml:"queue_timeout" mapstructure:"queue_timeout"`

	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" mapstructure:"retry_base_delay"`
}

func (g guardSettings) guardConfig(name string) dispatch.GuardConfig {
	var cfg dispatch.GuardConfig
	if g.BreakerEnabled {
		cfg.Breaker = &resilience.CircuitBreakerConfig{
			Name:                  name,
			Timeout:               g.CallTimeout,
			ErrorThresholdPercent: g.ErrorThresholdPercent,
			ResetTimeout:          g.ResetTimeout,
		}
	}
	if g.PoolCapacity > 0 {
		cfg.Pool = &resilience.PoolConfig{
			Name:         name,
			Capacity:     g.PoolCapacity,
			QueueTimeout: g.QueueTimeout,
		}
	}
	if g.MaxRetries > 0 {
		cfg.Retry = &resilience.RetryConfig{
			MaxRetries: g.MaxRetries,
			BaseDelay:  g.RetryBaseDelay,
		}
	}
	return cfg
}
