// Package api holds the services shared by the public and admin route groups.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/auth"
	"github.com/router-for-me/marketplace-core/internal/chat"
	"github.com/router-for-me/marketplace-core/internal/featureflag"
	"github.com/router-for-me/marketplace-core/internal/listing"
	"github.com/router-for-me/marketplace-core/internal/media"
	"github.com/router-for-me/marketplace-core/internal/moderation"
	"github.com/router-for-me/marketplace-core/internal/notify"
	"github.com/router-for-me/marketplace-core/internal/ratelimit"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
	"github.com/router-for-me/marketplace-core/internal/trust"
	"gorm.io/gorm"
)

// Services are the wired domain services the HTTP layer dispatches to.
type Services struct {
	DB            *gorm.DB
	Auth          *auth.Service
	Listings      *listing.Service
	Chat          *chat.Service
	Moderation    *moderation.Service
	Trust         *trust.Calculator
	Flags         *featureflag.Service
	Notifications *notify.Dispatcher
	Media         *media.Service

	Limiter         *ratelimit.Manager        // Nil disables rate limiting.
	Rules           map[string]ratelimit.Rule // Per-route rules keyed by route name.
	FingerprintSalt string
	AdminEmails     []string
}

// RateLimit returns the limiter for the named route. Unknown names use the default rule.
func (s Services) RateLimit(name string) gin.HandlerFunc {
	if s.Limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	rule, ok := s.Rules[name]
	if !ok {
		rule, ok = s.Rules[internalsettings.RouteDefault]
	}
	if !ok {
		rule = ratelimit.DefaultRules()[internalsettings.RouteDefault]
	}
	return ratelimit.Middleware(s.Limiter, rule, s.FingerprintSalt)
}
