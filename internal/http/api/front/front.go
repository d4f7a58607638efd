// Package front registers the public marketplace API.
package front

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/http/api"
	"github.com/router-for-me/marketplace-core/internal/http/api/front/handlers"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
)

// RegisterFrontRoutes registers health, auth, listing, chat, report, trust, notification and media routes.
func RegisterFrontRoutes(r *gin.Engine, services api.Services) {
	if r == nil || services.DB == nil || services.Auth == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(services.DB)
	r.GET("/healthz", healthHandler.Check)
	r.GET("/health", healthHandler.Check)

	// Routes without a named rule share the default one. Health probes are exempt.
	limited := services.RateLimit(internalsettings.RouteDefault)
	requireUser := AuthMiddleware(services.Auth)

	authHandler := handlers.NewAuthHandler(services.Auth, services.Trust, services.FingerprintSalt)
	authGroup := r.Group("/auth")
	authGroup.POST("/otp/request", services.RateLimit(internalsettings.RouteOTPRequest), authHandler.RequestOTP)
	authGroup.POST("/otp/verify", services.RateLimit(internalsettings.RouteOTPVerify), authHandler.VerifyOTP)
	authGroup.POST("/signup", services.RateLimit(internalsettings.RouteSignup), authHandler.Signup)
	authGroup.POST("/login", services.RateLimit(internalsettings.RouteLogin), authHandler.Login)
	authGroup.GET("/me", limited, requireUser, authHandler.Me)
	authGroup.GET("/devices", limited, requireUser, authHandler.Devices)

	if services.Listings != nil {
		listingHandler := handlers.NewListingHandler(services.Listings)
		r.GET("/categories", limited, listingHandler.Categories)

		listings := r.Group("/listings")
		listings.GET("/feed", limited, listingHandler.Feed)
		listings.GET("/search", limited, listingHandler.Search)
		listings.POST("", limited, requireUser, listingHandler.Create)
		listings.GET("/mine", limited, requireUser, listingHandler.Mine)
		listings.GET("/me", limited, requireUser, listingHandler.Mine)
		listings.GET("/:id", limited, OptionalAuthMiddleware(services.Auth), listingHandler.Get)
		listings.POST("/:id/activate", limited, requireUser, listingHandler.Activate)
		listings.POST("/:id/mark-sold", limited, requireUser, listingHandler.MarkSold)
		listings.POST("/:id/deactivate", limited, requireUser, listingHandler.Deactivate)
	}

	if services.Chat != nil {
		chatHandler := handlers.NewChatHandler(services.Chat)
		threads := r.Group("/chat/threads")
		threads.POST("", limited, requireUser, chatHandler.UpsertThread)
		threads.GET("", limited, requireUser, chatHandler.ListThreads)
		threads.GET("/:id/messages", limited, requireUser, chatHandler.ListMessages)
		threads.POST("/:id/messages", services.RateLimit(internalsettings.RouteChatMessage), requireUser, chatHandler.SendMessage)
	}

	if services.Moderation != nil {
		reportHandler := handlers.NewReportHandler(services.Moderation)
		r.POST("/reports", services.RateLimit(internalsettings.RouteReports), requireUser, reportHandler.Create)
	}

	if services.Trust != nil {
		trustHandler := handlers.NewTrustHandler(services.Trust)
		r.GET("/users/:id/trust-score", limited, trustHandler.Get("id"))
		r.GET("/trust-score/:userId", limited, trustHandler.Get("userId"))
	}

	if services.Notifications != nil {
		notificationHandler := handlers.NewNotificationHandler(services.Notifications)
		r.GET("/notifications", limited, requireUser, notificationHandler.List)
		r.POST("/notifications/device-tokens", limited, requireUser, notificationHandler.RegisterDeviceToken)
	}

	if services.Media != nil {
		mediaHandler := handlers.NewMediaHandler(services.Media)
		r.POST("/media/sign-url", services.RateLimit(internalsettings.RouteMediaSign), requireUser, mediaHandler.SignURL)
		r.GET("/media/verify", limited, mediaHandler.Verify)
	}
}
