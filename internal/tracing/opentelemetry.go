// Package tracing wires OpenTelemetry and carries per-request ids.
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/mariovalmir/chatwoot/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every span in the service starts from.
const TracerName = "waingest"

const (
	defaultServiceName = "waingest"
	defaultSampleRate  = 0.1
	shutdownTimeout    = 5 * time.Second
)

// Manager owns the tracer provider between Initialize and Shutdown.
type Manager struct {
	config   models.TracingConfig
	version  string
	logger   *logrus.Logger
	provider *sdktrace.TracerProvider
}

func NewManager(config models.TracingConfig, version string, logger *logrus.Logger) *Manager {
	if config.ServiceName == "" {
		config.ServiceName = defaultServiceName
	}
	if config.SampleRate <= 0 || config.SampleRate > 1 {
		config.SampleRate = defaultSampleRate
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{config: config, version: version, logger: logger}
}

// Initialize installs the global tracer provider. Disabled tracing leaves
// the no-op provider in place.
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.Info("OpenTelemetry tracing is disabled")
		return nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", m.config.ServiceName),
		attribute.String("service.version", m.version),
	))
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch {
	case m.config.UseStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		m.logger.Info("Using stdout trace exporter")
	case m.config.OTLPEndpoint != "":
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(m.config.OTLPEndpoint))
		if err != nil {
			return fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
		}
		m.logger.WithField("endpoint", m.config.OTLPEndpoint).Info("Using OTLP HTTP trace exporter")
	default:
		return fmt.Errorf("tracing is enabled but neither use_stdout nor otlp_endpoint is set")
	}

	m.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(m.config.SampleRate))),
	)
	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	m.logger.WithFields(logrus.Fields{
		"service":     m.config.ServiceName,
		"sample_rate": m.config.SampleRate,
	}).Info("OpenTelemetry tracing initialized")
	return nil
}

// Shutdown flushes pending spans.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := m.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	m.logger.Info("OpenTelemetry tracing shutdown completed")
	return nil
}

// StartSpan starts a span on the service tracer.
func StartSpan(ctx context.Context, spanName string, attributes ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName, oteltrace.WithAttributes(attributes...))
}

// RecordError marks the span in ctx as failed.
func RecordError(ctx context.Context, err error) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the trace id of the span in ctx, or "" without one.
func TraceID(ctx context.Context) string {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
