package exporters

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleExporter prints one line per finished span. Local development only.
type ConsoleExporter struct{}

func (c *ConsoleExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	for _, span := range spans {
		fmt.Fprintf(os.Stdout, "span=%s duration=%s trace_id=%s\n",
			span.Name(), span.EndTime().Sub(span.StartTime()), span.SpanContext().TraceID())
	}
	return nil
}

func (c *ConsoleExporter) Shutdown(ctx context.Context) error {
	return nil
}
