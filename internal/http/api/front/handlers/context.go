package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/models"
)

// Context keys set by the auth middleware.
const (
	ContextUserID = "userID"
	ContextUser   = "user"
)

// CurrentUserID returns the authenticated user id, or 0 for anonymous requests.
func CurrentUserID(c *gin.Context) uint64 {
	value, ok := c.Get(ContextUserID)
	if !ok {
		return 0
	}
	id, _ := value.(uint64)
	return id
}

// CurrentUser returns the authenticated user, or nil for anonymous requests.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// ParseID reads a positive integer path parameter. It writes a 400 and returns false on failure.
func ParseID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		apperr.Write(c, apperr.BadRequest("invalid "+name))
		return 0, false
	}
	return id, true
}

// BindJSON decodes the request body into dst. It writes a 400 and returns false on failure.
func BindJSON(c *gin.Context, dst any) bool {
	if errBind := c.ShouldBindJSON(dst); errBind != nil {
		apperr.Write(c, apperr.Validation("invalid json"))
		return false
	}
	return true
}

// QueryLimit reads the limit query parameter. Malformed values fall back to 0.
func QueryLimit(c *gin.Context) int {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0
	}
	limit, errParse := strconv.Atoi(raw)
	if errParse != nil || limit < 0 {
		return 0
	}
	return limit
}
