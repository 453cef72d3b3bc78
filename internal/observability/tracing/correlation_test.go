package tracing

import (
	"context"
	"testing"

	"github.com/smallbiznis/payrecon/pkg/telemetry/correlation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCorrelationSpanProcessorStampsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(correlationSpanProcessor{}),
		sdktrace.WithSpanProcessor(recorder),
	)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx := correlation.ContextWithCorrelationID(context.Background(), "req-1")
	_, span := provider.Tracer("test").Start(ctx, "webhook")
	span.End()
	_, bare := provider.Tracer("test").Start(context.Background(), "bare")
	bare.End()

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected two spans, got %d", len(ended))
	}
	found := false
	for _, attr := range ended[0].Attributes() {
		if attr.Key == "correlation_id" && attr.Value.AsString() == "req-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected correlation_id on span, got %v", ended[0].Attributes())
	}
	for _, attr := range ended[1].Attributes() {
		if attr.Key == "correlation_id" {
			t.Fatalf("span without correlation must not be stamped")
		}
	}
}
