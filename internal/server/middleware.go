package server

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/payrecon/internal/apikey/domain"
	obscontext "github.com/smallbiznis/payrecon/internal/observability/context"
)

type principalKey struct{}

// withPrincipal also marks the caller as the actor for logs and audit entries.
func withPrincipal(ctx context.Context, p apikeydomain.Principal) context.Context {
	ctx = obscontext.WithActor(ctx, p.Role, strconv.FormatInt(p.UserID, 10))
	ctx = obscontext.WithUserID(ctx, strconv.FormatInt(p.UserID, 10))
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (apikeydomain.Principal, bool) {
	if ctx == nil {
		return apikeydomain.Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(apikeydomain.Principal)
	if !ok || p.UserID == 0 {
		return apikeydomain.Principal{}, false
	}
	return p, true
}

// currentUserID aborts with 401 when no principal is attached.
func currentUserID(c *gin.Context) (int64, bool) {
	p, ok := principalFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return 0, false
	}
	return p.UserID, true
}

func subjectOf(p apikeydomain.Principal) string {
	return fmt.Sprintf("user:%d", p.UserID)
}
