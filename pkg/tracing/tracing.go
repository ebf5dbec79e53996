// Package tracing wraps the process-wide tracer. Until SetTracer is called
// every StartSpan is a no-op, so tests and tracing-disabled deployments need
// no setup.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer used by StartSpan.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a span named after the calling method.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// GetActiveSpan returns the span recording on ctx, or nil when none is.
func GetActiveSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}

func carrier(ctx context.Context) propagation.MapCarrier {
	mc := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, mc)
	return mc
}

// GetTraceParent returns the W3C traceparent header value for ctx, empty when
// no span is active. Outgoing messages carry it so consumers join the trace.
func GetTraceParent(ctx context.Context) string {
	if GetActiveSpan(ctx) == nil {
		return ""
	}
	return carrier(ctx).Get("traceparent")
}

// GetTraceState returns the W3C tracestate header value for ctx.
func GetTraceState(ctx context.Context) string {
	if GetActiveSpan(ctx) == nil {
		return ""
	}
	return carrier(ctx).Get("tracestate")
}

// GetTraceID returns the active trace id, empty when no span is recording.
func GetTraceID(ctx context.Context) string {
	span := GetActiveSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the active span id, empty when no span is recording.
func GetSpanID(ctx context.Context) string {
	span := GetActiveSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().SpanID().String()
}
