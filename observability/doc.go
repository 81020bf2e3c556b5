// Package observability initializes OpenTelemetry metrics and tracing and
// defines the pipeline's instrument bundle. All PipelineMetrics methods are
// nil-safe so wiring metrics stays optional in tests and the dev profile.
package observability
