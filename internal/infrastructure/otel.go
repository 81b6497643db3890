package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	// semconv must match the schema of the SDK's default resource or the
	// resource merge fails with a schema conflict.
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "event-study-pipeline"
	ServiceVersion = "1.0.0"
	MeterName      = "eventstudy"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	EnableMetrics  bool
	EnableTracing  bool
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	logger         *slog.Logger
}

// DefaultOTelConfig returns a default OpenTelemetry configuration
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		EnableMetrics:  true,
		EnableTracing:  true,
	}
}

// InitializeOTel wires the meter and tracer providers. Metrics are
// exported through the Prometheus bridge and served by the /metrics
// handler; traces go to stdout.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create otel resource: %w", err)
	}

	providers := &OTelProviders{logger: logger}

	if cfg.EnableMetrics {
		// A dedicated registry keeps repeated initialization (tests,
		// embedded use) from colliding on the global one.
		registry := promclient.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		providers.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExporter),
		)
		otel.SetMeterProvider(providers.MeterProvider)
		providers.Meter = providers.MeterProvider.Meter(MeterName)
		providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	if cfg.EnableTracing {
		traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		providers.TracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(traceExporter),
		)
		otel.SetTracerProvider(providers.TracerProvider)
		providers.Tracer = providers.TracerProvider.Tracer(MeterName)
	}

	logger.Info("OpenTelemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.Bool("metrics_enabled", cfg.EnableMetrics),
		slog.Bool("tracing_enabled", cfg.EnableTracing))

	return providers, nil
}

// Shutdown flushes and stops the providers.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var firstErr error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PipelineMetrics bundles the instruments recorded during a run.
type PipelineMetrics struct {
	CacheHits          metric.Int64Counter
	CacheMisses        metric.Int64Counter
	CachePartialMisses metric.Int64Counter
	CacheRefreshes     metric.Int64Counter
	FetchErrors        metric.Int64Counter
	FetchDuration      metric.Float64Histogram
	EventsProcessed    metric.Int64Counter
}

// NewPipelineMetrics registers the pipeline instruments on the meter.
// A nil meter yields nil metrics, which all record sites tolerate.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	if meter == nil {
		return nil, nil
	}

	m := &PipelineMetrics{}
	var err error

	if m.CacheHits, err = meter.Int64Counter("price_cache_hits_total",
		metric.WithDescription("Price cache hits with full range coverage")); err != nil {
		return nil, err
	}
	if m.CacheMisses, err = meter.Int64Counter("price_cache_misses_total",
		metric.WithDescription("Price cache misses for absent tickers")); err != nil {
		return nil, err
	}
	if m.CachePartialMisses, err = meter.Int64Counter("price_cache_partial_misses_total",
		metric.WithDescription("Cache entries present but not covering the requested range")); err != nil {
		return nil, err
	}
	if m.CacheRefreshes, err = meter.Int64Counter("price_cache_refreshes_total",
		metric.WithDescription("Forced cache refreshes")); err != nil {
		return nil, err
	}
	if m.FetchErrors, err = meter.Int64Counter("price_fetch_errors_total",
		metric.WithDescription("Failed price source fetches")); err != nil {
		return nil, err
	}
	if m.FetchDuration, err = meter.Float64Histogram("price_fetch_duration_seconds",
		metric.WithDescription("Price source fetch latency"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.EventsProcessed, err = meter.Int64Counter("events_processed_total",
		metric.WithDescription("Events enriched by the returns engine")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordFetch records one price source call outcome.
func (m *PipelineMetrics) RecordFetch(ctx context.Context, ticker string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("ticker", ticker))
	m.FetchDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.FetchErrors.Add(ctx, 1, attrs)
	}
}
