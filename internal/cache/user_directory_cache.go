package cache

import (
	"context"
	"time"

	"github.com/smallbiznis/payrecon/internal/payment/domain"
)

const defaultUserTTL = 5 * time.Minute

// UserDirectory memoizes user lookups for the dispatcher, which resolves the
// same buyer several times per reconciliation.
type UserDirectory struct {
	next  domain.UserDirectory
	users Cache[int64, domain.User]
	ttl   time.Duration
}

func NewUserDirectory(next domain.UserDirectory) *UserDirectory {
	return &UserDirectory{
		next:  next,
		users: NewTTLCache[int64, domain.User](),
		ttl:   defaultUserTTL,
	}
}

func (d *UserDirectory) Lookup(ctx context.Context, userID int64) (domain.User, error) {
	if u, ok := d.users.Get(userID); ok {
		return u, nil
	}
	u, err := d.next.Lookup(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	d.users.Set(userID, u, d.ttl)
	return u, nil
}
