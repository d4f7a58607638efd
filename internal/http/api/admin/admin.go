// Package admin registers the moderation and back-office API.
package admin

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/http/api"
	handlers "github.com/router-for-me/marketplace-core/internal/http/api/admin/handlers"
	"github.com/router-for-me/marketplace-core/internal/http/api/front"
	fronthandlers "github.com/router-for-me/marketplace-core/internal/http/api/front/handlers"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
)

// RegisterAdminRoutes registers report, moderation, category, listing, user, audit and flag routes.
func RegisterAdminRoutes(r *gin.Engine, services api.Services) {
	if r == nil || services.DB == nil || services.Auth == nil || services.Moderation == nil {
		return
	}

	chain := []gin.HandlerFunc{
		services.RateLimit(internalsettings.RouteDefault),
		front.AuthMiddleware(services.Auth),
		adminMiddleware(services.AdminEmails),
	}

	moderationHandler := handlers.NewModerationHandler(services.Moderation)
	reports := r.Group("/reports", chain...)
	reports.GET("", moderationHandler.Queue)
	reports.GET("/queue", moderationHandler.Queue)
	reports.PATCH("/:id/action", moderationHandler.Action)
	reports.PATCH("/users/:id/suspend", moderationHandler.Suspend)
	reports.PATCH("/users/:id/shadow-ban", moderationHandler.ShadowBan)
	reports.PATCH("/listings/:id/deactivate", moderationHandler.DeactivateListing)
	reports.PATCH("/threads/:id/close", moderationHandler.CloseThread)

	adminGroup := r.Group("/admin", chain...)
	adminGroup.GET("/users", moderationHandler.Users)

	if services.Listings != nil {
		listingHandler := handlers.NewListingHandler(services.Listings, services.Moderation)
		adminGroup.GET("/categories", listingHandler.Categories)
		adminGroup.POST("/categories", listingHandler.CreateCategory)
		adminGroup.PUT("/categories/:id", listingHandler.UpdateCategory)
		adminGroup.PATCH("/categories/:id", listingHandler.UpdateCategory)
		adminGroup.GET("/listings", listingHandler.List)
		adminGroup.DELETE("/listings/:id", listingHandler.Remove)
	}

	if services.Flags != nil {
		settingHandler := handlers.NewSettingHandler(services.DB, services.Flags)
		adminGroup.GET("/feature-flags", settingHandler.ListFlags)
		adminGroup.PATCH("/feature-flags/:key", settingHandler.UpdateFlag)
		adminGroup.GET("/audit-logs", settingHandler.AuditLogs)
	}
}

// adminMiddleware admits authenticated users whose email is on the allow-list.
func adminMiddleware(emails []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			allowed[email] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		user := fronthandlers.CurrentUser(c)
		if user == nil {
			apperr.Write(c, apperr.Unauthorized("authentication required"))
			return
		}
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(user.Email))]; !ok {
			apperr.Write(c, apperr.Forbidden("admin access required"))
			return
		}
		c.Set("adminID", user.ID)
		c.Next()
	}
}
