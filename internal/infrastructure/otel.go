package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"datapulse/internal/config"
	apperrors "datapulse/internal/errors"
)

// InstrumentationName names the tracer and meter
const InstrumentationName = "datapulse"

// Telemetry bundles the tracer, meter and business instruments. With
// exporters disabled the tracer and meter are no-ops, so callers never
// need nil checks.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *Metrics

	// MetricsHandler serves the Prometheus registry, nil when metrics are off
	MetricsHandler http.Handler

	logger *slog.Logger
}

// InitializeOTel sets up tracing (stdout exporter) and metrics (Prometheus
// exporter on a private registry) according to cfg.
func InitializeOTel(cfg config.TelemetryConfig, version string, traceOut io.Writer, logger *slog.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "telemetry"))
	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
		attribute.String("service.instance.id", generateInstanceID()),
	)

	t := &Telemetry{logger: logger}
	var err error

	if cfg.TracesEnabled {
		if traceOut == nil {
			traceOut = os.Stderr
		}
		exporter, expErr := stdouttrace.New(stdouttrace.WithWriter(traceOut))
		if expErr != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", expErr)
		}
		t.TracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		t.Tracer = t.TracerProvider.Tracer(InstrumentationName, trace.WithInstrumentationVersion(version))
		otel.SetTracerProvider(t.TracerProvider)
	} else {
		t.Tracer = tracenoop.NewTracerProvider().Tracer(InstrumentationName)
	}

	if cfg.MetricsEnabled {
		registry := promclient.NewRegistry()
		exporter, expErr := prometheus.New(prometheus.WithRegisterer(registry))
		if expErr != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", expErr)
		}
		t.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		t.Meter = t.MeterProvider.Meter(InstrumentationName, metric.WithInstrumentationVersion(version))
		t.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		otel.SetMeterProvider(t.MeterProvider)

		if err := registerRuntimeMetrics(t.Meter); err != nil {
			return nil, fmt.Errorf("failed to register runtime metrics: %w", err)
		}
	} else {
		t.Meter = metricnoop.NewMeterProvider().Meter(InstrumentationName)
	}

	t.Metrics, err = NewMetrics(t.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "telemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.Bool("tracing_enabled", cfg.TracesEnabled),
		slog.Bool("metrics_enabled", cfg.MetricsEnabled))

	return t, nil
}

// NewNoopTelemetry returns telemetry that records nothing
func NewNoopTelemetry() *Telemetry {
	meter := metricnoop.NewMeterProvider().Meter(InstrumentationName)
	// noop instruments never fail to construct
	m, _ := NewMetrics(meter)
	return &Telemetry{
		Tracer:  tracenoop.NewTracerProvider().Tracer(InstrumentationName),
		Meter:   meter,
		Metrics: m,
		logger:  slog.Default(),
	}
}

// Shutdown flushes and stops the providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.TracerProvider != nil {
		if err := t.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if t.MeterProvider != nil {
		if err := t.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}
	if t.TracerProvider != nil || t.MeterProvider != nil {
		t.logger.InfoContext(ctx, "telemetry shutdown complete")
	}
	return nil
}

// Metrics holds the DataPulse business instruments
type Metrics struct {
	FilesIngested      metric.Int64Counter
	RowsIngested       metric.Int64Counter
	IngestFailures     metric.Int64Counter
	PhaseRuns          metric.Int64Counter
	PhaseDuration      metric.Float64Histogram
	ValidationFailures metric.Int64Counter
	ActiveSessions     metric.Int64UpDownCounter
}

// NewMetrics creates the business instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	filesIngested, err := meter.Int64Counter(
		"datapulse_files_ingested",
		metric.WithDescription("Spreadsheet files accepted by ingestion"),
	)
	if err != nil {
		return nil, err
	}

	rowsIngested, err := meter.Int64Counter(
		"datapulse_rows_ingested",
		metric.WithDescription("Result rows accepted by ingestion"),
	)
	if err != nil {
		return nil, err
	}

	ingestFailures, err := meter.Int64Counter(
		"datapulse_ingest_failures",
		metric.WithDescription("Rejected ingestion batches"),
	)
	if err != nil {
		return nil, err
	}

	phaseRuns, err := meter.Int64Counter(
		"datapulse_phase_runs",
		metric.WithDescription("Grade-point phase executions"),
	)
	if err != nil {
		return nil, err
	}

	phaseDuration, err := meter.Float64Histogram(
		"datapulse_phase_duration",
		metric.WithDescription("Grade-point phase execution time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	validationFailures, err := meter.Int64Counter(
		"datapulse_credit_validation_failures",
		metric.WithDescription("Credit assignment problems reported"),
	)
	if err != nil {
		return nil, err
	}

	activeSessions, err := meter.Int64UpDownCounter(
		"datapulse_active_sessions",
		metric.WithDescription("Analysis sessions currently held in memory"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		FilesIngested:      filesIngested,
		RowsIngested:       rowsIngested,
		IngestFailures:     ingestFailures,
		PhaseRuns:          phaseRuns,
		PhaseDuration:      phaseDuration,
		ValidationFailures: validationFailures,
		ActiveSessions:     activeSessions,
	}, nil
}

// RecordIngest counts one ingestion batch
func (m *Metrics) RecordIngest(ctx context.Context, files, rows int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.IngestFailures.Add(ctx, 1, metric.WithAttributes(errorTypeAttr(err)))
		return
	}
	m.FilesIngested.Add(ctx, int64(files))
	m.RowsIngested.Add(ctx, int64(rows))
}

// RecordPhase records one grade-point phase execution
func (m *Metrics) RecordPhase(ctx context.Context, phase string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("status", status),
	)
	m.PhaseRuns.Add(ctx, 1, attrs)
	m.PhaseDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordValidationFailure counts one credit assignment problem by code
func (m *Metrics) RecordValidationFailure(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.ValidationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// SessionOpened and SessionClosed track live sessions
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m != nil {
		m.ActiveSessions.Add(ctx, 1)
	}
}

func (m *Metrics) SessionClosed(ctx context.Context) {
	if m != nil {
		m.ActiveSessions.Add(ctx, -1)
	}
}

func errorTypeAttr(err error) attribute.KeyValue {
	errType := string(apperrors.TypeOf(err))
	if errType == "" {
		errType = "UNKNOWN"
	}
	return attribute.String("error.type", errType)
}

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext returns the active span's trace ID, or ""
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// RecordError marks the span in ctx as failed
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
