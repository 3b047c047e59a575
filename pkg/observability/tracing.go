// Package observability wires OpenTelemetry tracing for recordflow streams.
//
// Init installs a global tracer provider; until it is called every span is
// a no-op, so components can start spans unconditionally.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/recordflow/pkg/errors"
)

const instrumentationName = "github.com/ajitpratap0/recordflow"

// Exporter types accepted by TracingConfig.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	ExporterType   string
	// Output receives stdout exporter spans; os.Stderr when nil
	Output         io.Writer
	PrettyPrint    bool
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
}

// DefaultTracingConfig samples every trace and writes spans to stderr.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    "recordflow",
		ServiceVersion: "dev",
		Environment:    "development",
		SamplingRate:   1.0,
		ExporterType:   ExporterStdout,
		BatchTimeout:   5 * time.Second,
		MaxExportBatch: 512,
		MaxQueueSize:   2048,
	}
}

// ShutdownFunc flushes and stops the provider installed by Init.
type ShutdownFunc func(ctx context.Context) error

// Init builds a tracer provider from cfg and installs it globally together
// with the W3C trace context propagator.
func Init(cfg TracingConfig) (ShutdownFunc, error) {
	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}
	tp, err := NewTracerProvider(cfg, exporter)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func newExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case "", ExporterStdout:
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		opts := []stdouttrace.Option{stdouttrace.WithWriter(out)}
		if cfg.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		exporter, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInitialization, "failed to create stdout exporter")
		}
		return exporter, nil
	case ExporterNone:
		return nil, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown trace exporter %q", cfg.ExporterType)
	}
}

// NewTracerProvider creates a provider exporting to exporter in batches. A
// nil exporter yields a provider that samples but exports nothing.
func NewTracerProvider(cfg TracingConfig, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
	))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInitialization, "failed to create resource")
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SamplingRate))),
	}
	if exporter != nil {
		var batch []sdktrace.BatchSpanProcessorOption
		if cfg.BatchTimeout > 0 {
			batch = append(batch, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
		}
		if cfg.MaxExportBatch > 0 {
			batch = append(batch, sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatch))
		}
		if cfg.MaxQueueSize > 0 {
			batch = append(batch, sdktrace.WithMaxQueueSize(cfg.MaxQueueSize))
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, batch...))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the recordflow tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Span wraps an otel span with the attribute helpers used by streams.
type Span struct {
	span   trace.Span
	failed bool
}

// StartSpan starts a span named operation.
func StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, operation, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// StartStreamSpan starts the span covering one batch of a stream.
func StartStreamSpan(ctx context.Context, stream string, batchSize int) (context.Context, *Span) {
	return StartSpan(ctx, "stream."+stream,
		attribute.String("recordflow.stream", stream),
		attribute.Int("recordflow.batch.size", batchSize),
	)
}

// StartProcessorSpan starts the span covering one Process call.
func StartProcessorSpan(ctx context.Context, stream, processor, class string) (context.Context, *Span) {
	return StartSpan(ctx, fmt.Sprintf("processor.%s", processor),
		attribute.String("recordflow.stream", stream),
		attribute.String("recordflow.processor", processor),
		attribute.String("recordflow.processor.class", class),
	)
}

// SetAttribute adds an attribute to the span.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue
	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}
	s.span.SetAttributes(attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Fail records err and marks the span as failed.
func (s *Span) Fail(err error) {
	if err == nil {
		return
	}
	s.failed = true
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End ends the span. Spans that were not failed are marked ok.
func (s *Span) End() {
	if !s.failed {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// InjectHeaders writes the trace context of ctx into headers.
func InjectHeaders(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// ExtractHeaders returns ctx carrying the trace context found in headers.
func ExtractHeaders(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
