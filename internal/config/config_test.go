package config

import (
	"testing"
	"time"
)

func TestLoadReadsStripeAndDispatchSettings(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", " sk_test_123 ")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_abc")
	t.Setenv("STRIPE_SIGNATURE_TOLERANCE", "90s")
	t.Setenv("DISPATCH_TRANSPORT", "SQS")
	t.Setenv("DISPATCH_WORKERS", "8")
	t.Setenv("PAYMENT_LOCK_TIMEOUT", "not-a-duration")

	cfg := Load()

	if cfg.Stripe.SecretKey != "sk_test_123" {
		t.Fatalf("expected trimmed secret key, got %q", cfg.Stripe.SecretKey)
	}
	if cfg.Stripe.SignatureTolerance != 90*time.Second {
		t.Fatalf("expected tolerance 90s, got %s", cfg.Stripe.SignatureTolerance)
	}
	if cfg.Dispatch.Transport != DispatchTransportSQS {
		t.Fatalf("expected sqs transport, got %q", cfg.Dispatch.Transport)
	}
	if cfg.Dispatch.Workers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Dispatch.Workers)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Fatalf("expected default lock timeout on bad input, got %s", cfg.LockTimeout)
	}
}

func TestLoadPrefersStandardOTLPVariables(t *testing.T) {
	t.Setenv("OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()

	if cfg.Telemetry.OTLPEndpoint != "otel:4318" {
		t.Fatalf("expected the standard endpoint to win, got %q", cfg.Telemetry.OTLPEndpoint)
	}
	if cfg.Telemetry.OTLPProtocol != "http" || cfg.Telemetry.LogLevel != "debug" {
		t.Fatalf("expected lowercased protocol and level, got %+v", cfg.Telemetry)
	}
}

func TestGetenvBool(t *testing.T) {
	cases := map[string]bool{"yes": true, "off": false, "garbage": true}
	for raw, want := range cases {
		t.Setenv("PAYRECON_TEST_BOOL", raw)
		if got := getenvBool("PAYRECON_TEST_BOOL", true); got != want {
			t.Fatalf("getenvBool(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestValidateAlertingConfig(t *testing.T) {
	if err := validateAlertingConfig(DefaultAlertingConfig("ops@example.com")); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	if err := validateAlertingConfig(AlertingConfig{AdminEmails: []string{"nope"}}); err == nil {
		t.Fatalf("expected invalid email to be rejected")
	}
	if err := validateAlertingConfig(AlertingConfig{SlackChannel: "payments"}); err == nil {
		t.Fatalf("expected bare channel name to be rejected")
	}
}

func TestLoadSchedulerJobs(t *testing.T) {
	t.Setenv("SCHEDULER_ENABLED_JOBS", " order_sync, ,stale_intents")
	t.Setenv("SCHEDULER_STALE_INTENT_AGE", "30m")

	cfg := Load()

	if got := cfg.Scheduler.EnabledJobs; len(got) != 2 || got[0] != "order_sync" || got[1] != "stale_intents" {
		t.Fatalf("unexpected jobs %v", got)
	}
	if cfg.Scheduler.StaleIntentAge != 30*time.Minute {
		t.Fatalf("expected 30m, got %s", cfg.Scheduler.StaleIntentAge)
	}
	if cfg.Scheduler.RunInterval != time.Minute {
		t.Fatalf("expected default interval, got %s", cfg.Scheduler.RunInterval)
	}
}
