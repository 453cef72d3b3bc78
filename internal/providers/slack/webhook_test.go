package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookPostMessage(t *testing.T) {
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhook(srv.URL, srv.Client())
	if err := p.PostMessage(context.Background(), "", "Amount mismatch - Payment ID 1"); err != nil {
		t.Fatalf("post: %v", err)
	}
	if got.Text != "Amount mismatch - Payment ID 1" || got.Channel != "" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestWebhookPostMessageStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewWebhook(srv.URL, srv.Client())
	if err := p.PostMessage(context.Background(), "#ops", "hi"); err == nil {
		t.Fatalf("expected error on 403")
	}
}
