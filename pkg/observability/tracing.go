// Package observability provides OpenTelemetry tracing for extraction runs:
// one span per run, per domain and per upstream call.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/ghlexport"

// Span wraps an OpenTelemetry span with attribute helpers.
type Span struct {
	span trace.Span
}

// Tracer starts spans named "<component>.<operation>". The underlying
// tracer is resolved from the global provider on every call so that
// InitTracing may run after components are constructed.
type Tracer struct {
	component string
}

// NewTracer creates a tracer for one component (client, paginator, orchestrator).
func NewTracer(component string) *Tracer {
	return &Tracer{component: component}
}

// StartSpan starts a component span.
func (t *Tracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, t.component+"."+operation)
	span.SetAttributes(attribute.String("component", t.component))
	return ctx, &Span{span: span}
}

// Trace runs fn inside a span and records its error.
func (t *Tracer) Trace(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := t.StartSpan(ctx, operation)
	err := fn(ctx)
	span.Finish(err)
	return err
}

// SetAttribute adds an attribute to the span
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

// Finish sets the span status from err and ends it.
func (s *Span) Finish(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
