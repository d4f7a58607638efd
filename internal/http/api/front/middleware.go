package front

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/auth"
	"github.com/router-for-me/marketplace-core/internal/http/api/front/handlers"
)

// AuthMiddleware requires a valid bearer session and loads the user into the context.
func AuthMiddleware(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, errToken := bearerToken(c.GetHeader("Authorization"))
		if errToken != nil {
			apperr.Write(c, errToken)
			return
		}
		if !authenticate(c, authService, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware loads the user when a bearer token is present and lets anonymous requests through.
func OptionalAuthMiddleware(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader("Authorization")) == "" {
			c.Next()
			return
		}
		token, errToken := bearerToken(c.GetHeader("Authorization"))
		if errToken != nil {
			apperr.Write(c, errToken)
			return
		}
		if !authenticate(c, authService, token) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, authService *auth.Service, token string) bool {
	user, errAuth := authService.Authenticate(c.Request.Context(), token)
	if errAuth != nil {
		apperr.Write(c, errAuth)
		return false
	}
	c.Set(handlers.ContextUserID, user.ID)
	c.Set(handlers.ContextUser, user)
	return true
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.Unauthorized("missing authorization header")
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return "", apperr.Unauthorized("invalid authorization format")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.Unauthorized("empty token")
	}
	return token, nil
}
