package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/payrecon/internal/audit/domain"
)

// ListAuditLogs is admin-only; the route carries the authorization check.
func (s *Server) ListAuditLogs(c *gin.Context) {
	if s.auditSvc == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req auditdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	var ok bool
	if req.StartAt, ok = parseTimeQuery(c, "start_at"); !ok {
		AbortWithError(c, newValidationError("start_at", "invalid_time", "start_at must be RFC3339"))
		return
	}
	if req.EndAt, ok = parseTimeQuery(c, "end_at"); !ok {
		AbortWithError(c, newValidationError("end_at", "invalid_time", "end_at must be RFC3339"))
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}
