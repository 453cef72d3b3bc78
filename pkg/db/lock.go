package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ForUpdate returns the row-lock suffix for the connection's dialect. SQLite
// serializes writers at the database level and has no row locks.
func ForUpdate(conn *gorm.DB) string {
	if isSQLite(conn) {
		return ""
	}
	return " FOR UPDATE"
}

// ForUpdateSkipLocked is ForUpdate for batch claimers that must not wait.
func ForUpdateSkipLocked(conn *gorm.DB) string {
	if isSQLite(conn) {
		return ""
	}
	return " FOR UPDATE SKIP LOCKED"
}

// SetLocalLockTimeout bounds lock waits for the rest of the transaction on
// postgres. It is a no-op elsewhere; the context deadline still applies.
func SetLocalLockTimeout(ctx context.Context, tx *gorm.DB, timeout time.Duration) error {
	if timeout <= 0 || !IsPostgres(tx) {
		return nil
	}
	return tx.WithContext(ctx).Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())).Error
}
