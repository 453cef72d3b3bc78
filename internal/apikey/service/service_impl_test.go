package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	apikeydomain "github.com/smallbiznis/payrecon/internal/apikey/domain"
	"github.com/smallbiznis/payrecon/internal/apikey/repository"
	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/payment/paymenttest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (apikeydomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	conn := paymenttest.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Clock: clk,
		GenID: paymenttest.Node(),
		Repo:  repository.Provide(),
	})
	return svc, conn, clk
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, conn, clk := newTestService(t)
	ctx := context.Background()

	secret, err := svc.Create(ctx, apikeydomain.CreateRequest{UserID: 11, Name: "mobile"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(secret.APIKey, apiKeyPrefix) {
		t.Fatalf("unexpected key format %q", secret.APIKey)
	}

	var stored string
	if err := conn.Raw(`SELECT key_hash FROM api_keys WHERE id = ?`, secret.ID).Scan(&stored).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored == secret.APIKey || stored != apikeydomain.HashAPIKey(secret.APIKey) {
		t.Fatalf("expected hashed key at rest, got %q", stored)
	}

	clk.Advance(time.Minute)
	principal, err := svc.Authenticate(ctx, secret.APIKey)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.UserID != 11 || principal.Role != apikeydomain.RoleUser || principal.KeyID != secret.ID {
		t.Fatalf("unexpected principal %+v", principal)
	}

	var touched int64
	if err := conn.Raw(`SELECT COUNT(*) FROM api_keys WHERE id = ? AND last_used_at IS NOT NULL`, secret.ID).Scan(&touched).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if touched != 1 {
		t.Fatalf("expected last_used_at to be set")
	}
}

func TestAuthenticateRejectsUnknownAndRevokedKeys(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, "pr_live_nope"); !errors.Is(err, apikeydomain.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "  "); !errors.Is(err, apikeydomain.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for blank key, got %v", err)
	}

	secret, err := svc.Create(ctx, apikeydomain.CreateRequest{UserID: 3, Role: "admin", Name: "ops"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Revoke(ctx, secret.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Authenticate(ctx, secret.APIKey); !errors.Is(err, apikeydomain.ErrInvalidKey) {
		t.Fatalf("expected revoked key to fail, got %v", err)
	}
	if err := svc.Revoke(ctx, secret.ID); !errors.Is(err, apikeydomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second revoke, got %v", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  apikeydomain.CreateRequest
		want error
	}{
		{name: "missing user", req: apikeydomain.CreateRequest{Name: "x"}, want: apikeydomain.ErrInvalidUser},
		{name: "blank name", req: apikeydomain.CreateRequest{UserID: 1, Name: " "}, want: apikeydomain.ErrInvalidName},
		{name: "unknown role", req: apikeydomain.CreateRequest{UserID: 1, Name: "x", Role: "root"}, want: apikeydomain.ErrInvalidRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
