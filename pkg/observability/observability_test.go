package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/recordflow/pkg/errors"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestProcessorSpanNesting(t *testing.T) {
	recorder := installRecorder(t)

	ctx, stream := StartStreamSpan(context.Background(), "main", 3)
	_, proc := StartProcessorSpan(ctx, "main", "tagger", "processor.add_fields")
	proc.SetAttribute("recordflow.records.out", 3)
	proc.End()
	stream.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "processor.tagger", spans[0].Name())
	assert.Equal(t, "stream.main", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	v, ok := attr(spans[0].Attributes(), "recordflow.processor.class")
	require.True(t, ok)
	assert.Equal(t, "processor.add_fields", v.AsString())
	v, ok = attr(spans[0].Attributes(), "recordflow.records.out")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.AsInt64())
}

func TestSpanFail(t *testing.T) {
	recorder := installRecorder(t)

	_, span := StartSpan(context.Background(), "op")
	span.Fail(nil)
	span.Fail(errors.New(errors.ErrorTypeInternal, "boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "internal: boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestInitStdoutExporter(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Output = &out

	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	shutdown, err := Init(cfg)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "exported")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, out.String(), `"Name":"exported"`)
	assert.Contains(t, out.String(), "recordflow")
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.ExporterType = "jaeger"
	_, err := Init(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), sampler(0.25).Description())
}

func TestHeaderPropagation(t *testing.T) {
	installRecorder(t)
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	ctx, span := StartSpan(context.Background(), "publish")
	defer span.End()

	headers := map[string]string{}
	InjectHeaders(ctx, headers)
	require.Contains(t, headers, "traceparent")

	extracted := ExtractHeaders(context.Background(), headers)
	assert.Equal(t, trace.SpanContextFromContext(ctx).TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}
