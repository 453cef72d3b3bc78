package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// idParam parses the :id path segment. Malformed ids are reported as not
// found, like ids of other users.
func idParam(c *gin.Context) (snowflake.ID, bool) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || parsed <= 0 {
		AbortWithError(c, ErrNotFound)
		return 0, false
	}
	return parsed, true
}
