package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/payrecon/internal/apikey/domain"
	obscontext "github.com/smallbiznis/payrecon/internal/observability/context"
)

// APIKeyRequired authenticates requests with a bearer API key. The caller's
// user id comes from the key record only, never from the request.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.apiKeySvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if principal.UserID == 0 {
			AbortWithError(c, apikeydomain.ErrInvalidKey)
			return
		}

		ctx := obscontext.WithClient(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(withPrincipal(ctx, principal))
		c.Next()
	}
}
