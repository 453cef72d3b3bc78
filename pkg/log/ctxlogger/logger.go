package ctxlogger

import (
	"context"
	"sync/atomic"

	"github.com/smallbiznis/payrecon/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type commandKey struct{}

type intentKey struct{}

var serviceName atomic.Pointer[string]

// SetServiceName configures the service name added to every log entry.
func SetServiceName(name string) {
	serviceName.Store(&name)
}

// WithCommand tags entries with the CLI command that produced them.
func WithCommand(ctx context.Context, command string) context.Context {
	if command == "" {
		return ctx
	}
	return context.WithValue(ctx, commandKey{}, command)
}

// WithIntent tags entries with the processor intent being worked on.
func WithIntent(ctx context.Context, intentID string) context.Context {
	if intentID == "" {
		return ctx
	}
	return context.WithValue(ctx, intentKey{}, intentID)
}

// FromContext returns the global logger enriched from ctx.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}

	name := "payrecon"
	if p := serviceName.Load(); p != nil && *p != "" {
		name = *p
	}
	fields := []zap.Field{zap.String("service", name)}

	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if command, ok := ctx.Value(commandKey{}).(string); ok {
		fields = append(fields, zap.String("command", command))
	}
	if intentID, ok := ctx.Value(intentKey{}).(string); ok {
		fields = append(fields, zap.String("intent_id", intentID))
	}
	return base.With(fields...)
}
