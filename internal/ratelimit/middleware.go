package ratelimit

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/fingerprint"
)

// Middleware enforces rule for the matched route, keyed by device fingerprint.
func Middleware(m *Manager, rule Rule, salt string) gin.HandlerFunc {
	return func(c *gin.Context) {
		device := fingerprint.FromRequest(salt, c.Request)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		result, errAllow := m.Allow(c.Request.Context(), Key(c.Request.Method, route, device.Hash), rule)
		if errAllow != nil {
			if errors.Is(errAllow, ErrUnavailable) {
				apperr.Write(c, apperr.Unavailable("rate limiter unavailable, retry shortly", errAllow))
				return
			}
			apperr.Write(c, errAllow)
			return
		}
		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
		}
		if !result.Allowed {
			retryAfter := int(time.Until(result.Reset).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			apperr.Write(c, apperr.New(apperr.KindRateLimited, "", "too many requests"))
			return
		}
		c.Next()
	}
}
