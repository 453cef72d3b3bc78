package correlation

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestInjectExtractRoundTrip(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = ContextWithCorrelationID(ctx, "cid-1")

	md := Inject(ctx, nil)
	if md["correlation_id"] != "cid-1" || md["trace_id"] != traceID.String() {
		t.Fatalf("unexpected metadata %v", md)
	}

	restored := Extract(context.Background(), md)
	if got := ExtractCorrelationID(restored); got != "cid-1" {
		t.Fatalf("expected cid-1, got %q", got)
	}
	if sc := trace.SpanContextFromContext(restored); sc.TraceID() != traceID || !sc.IsRemote() {
		t.Fatalf("expected remote span with trace %s, got %v", traceID, sc)
	}
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	if cid == "" || ExtractCorrelationID(ctx) != cid {
		t.Fatalf("expected generated correlation id")
	}
}
