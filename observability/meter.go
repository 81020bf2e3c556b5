package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/flowmint/txfabric/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// PipelineMetrics holds the instruments for the command pipeline.
type PipelineMetrics struct {
	commandTotal       metric.Int64Counter
	commandDuration    metric.Float64Histogram
	admissionRejected  metric.Int64Counter
	storeWriteFailures metric.Int64Counter
	eventsAppended     metric.Int64Counter
	publishFailures    metric.Int64Counter
	tasksQueued        metric.Int64UpDownCounter
}

// NewPipelineMetrics creates the pipeline instruments on the given meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	commandTotal, err := meter.Int64Counter("command.total",
		metric.WithDescription("Commands dispatched, by kind and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.total counter: %w", err)
	}

	commandDuration, err := meter.Float64Histogram("command.duration",
		metric.WithDescription("Command handling duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.duration histogram: %w", err)
	}

	admissionRejected, err := meter.Int64Counter("admission.rejected",
		metric.WithDescription("Calls rejected by a resilience primitive"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating admission.rejected counter: %w", err)
	}

	storeWriteFailures, err := meter.Int64Counter("store.write_failures",
		metric.WithDescription("Record write failures, by store"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating store.write_failures counter: %w", err)
	}

	eventsAppended, err := meter.Int64Counter("event.appended",
		metric.WithDescription("Events appended to the event store"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating event.appended counter: %w", err)
	}

	publishFailures, err := meter.Int64Counter("broker.publish_failures",
		metric.WithDescription("Broker publishes that failed after retries"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating broker.publish_failures counter: %w", err)
	}

	tasksQueued, err := meter.Int64UpDownCounter("tasks.queued",
		metric.WithDescription("Background continuation tasks currently queued"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tasks.queued gauge: %w", err)
	}

	return &PipelineMetrics{
		commandTotal:       commandTotal,
		commandDuration:    commandDuration,
		admissionRejected:  admissionRejected,
		storeWriteFailures: storeWriteFailures,
		eventsAppended:     eventsAppended,
		publishFailures:    publishFailures,
		tasksQueued:        tasksQueued,
	}, nil
}

// RecordCommand records one handled command.
func (m *PipelineMetrics) RecordCommand(ctx context.Context, kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commandTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	m.commandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordAdmissionRejected records a rejection by the named primitive.
func (m *PipelineMetrics) RecordAdmissionRejected(ctx context.Context, primitive string) {
	if m == nil {
		return
	}
	m.admissionRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("primitive", primitive),
	))
}

// RecordStoreWriteFailure records a failed write to the named store.
func (m *PipelineMetrics) RecordStoreWriteFailure(ctx context.Context, store string) {
	if m == nil {
		return
	}
	m.storeWriteFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store", store),
	))
}

// RecordEventAppended records a durable event append.
func (m *PipelineMetrics) RecordEventAppended(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.eventsAppended.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordPublishFailure records a publish that failed after retries.
func (m *PipelineMetrics) RecordPublishFailure(ctx context.Context, topic string) {
	if m == nil {
		return
	}
	m.publishFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
	))
}

// TaskQueued adjusts the queued-task gauge.
func (m *PipelineMetrics) TaskQueued(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.tasksQueued.Add(ctx, delta)
}
