package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/payments"),
		attribute.String("stripe.signature", "t=1,v1=abc"),
		attribute.String("user.email", "a@b.c"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestSafeErrorRedactsClientSecret(t *testing.T) {
	err := SafeError(errors.New("insert failed: client_secret=pi_1_secret_abc"))
	if err.Error() != "insert failed: [redacted]" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}
