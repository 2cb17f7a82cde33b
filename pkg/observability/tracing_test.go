package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
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

func TestTraceRecordsStatus(t *testing.T) {
	recorder := installRecorder(t)
	tracer := NewTracer("orchestrator")

	require.NoError(t, tracer.Trace(context.Background(), "domain", func(ctx context.Context) error {
		return nil
	}))
	boom := errors.New("boom")
	assert.ErrorIs(t, tracer.Trace(context.Background(), "domain", func(ctx context.Context) error {
		return boom
	}), boom)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "orchestrator.domain", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestSpanAttributes(t *testing.T) {
	recorder := installRecorder(t)

	_, span := NewTracer("client").StartSpan(context.Background(), "request")
	span.SetAttribute("http.path", "/contacts/")
	span.SetAttribute("attempt", 2)
	span.SetAttribute("retry", true)
	span.Finish(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "client", attrs["component"])
	assert.Equal(t, "/contacts/", attrs["http.path"])
	assert.Equal(t, "2", attrs["attempt"])
	assert.Equal(t, "true", attrs["retry"])
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracingExportsToWriter(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:      true,
		ServiceName:  "ghlexport-test",
		SamplingRate: 1,
		Writer:       &buf,
	})
	require.NoError(t, err)

	_, span := NewTracer("run").StartSpan(context.Background(), "extract")
	span.Finish(nil)
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "run.extract")
}
