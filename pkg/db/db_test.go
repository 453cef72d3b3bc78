package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/payrecon/internal/config"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{&pgconn.PgError{Code: "23505"}, true},
		{fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{errors.New("UNIQUE constraint failed: payment_event_ledger.event_id"), true},
		{errors.New("Error 1062: Duplicate entry"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsDuplicateKeyErr(tc.err); got != tc.want {
			t.Fatalf("IsDuplicateKeyErr(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsLockTimeoutErr(t *testing.T) {
	if !IsLockTimeoutErr(&pgconn.PgError{Code: "55P03"}) {
		t.Fatalf("expected lock_not_available to be a lock timeout")
	}
	if !IsLockTimeoutErr(fmt.Errorf("lock: %w", context.DeadlineExceeded)) {
		t.Fatalf("expected deadline to be a lock timeout")
	}
	if IsLockTimeoutErr(gorm.ErrRecordNotFound) {
		t.Fatalf("record not found is not a lock timeout")
	}
}

func TestLockClausesOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if ForUpdate(conn) != "" || ForUpdateSkipLocked(conn) != "" {
		t.Fatalf("expected no lock suffix on sqlite")
	}
	if err := SetLocalLockTimeout(context.Background(), conn, 0); err != nil {
		t.Fatalf("expected no-op lock timeout, got %v", err)
	}
	if IsPostgres(conn) {
		t.Fatalf("sqlite reported as postgres")
	}
}

func TestDialectRejectsUnknownType(t *testing.T) {
	if _, err := Dialect(config.Config{DBType: "oracle"}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	d, err := Dialect(config.Config{DBType: "Postgres", DBHost: "localhost"})
	if err != nil {
		t.Fatalf("dialect: %v", err)
	}
	if d.Name() != "postgres" {
		t.Fatalf("expected postgres dialector, got %s", d.Name())
	}
}
