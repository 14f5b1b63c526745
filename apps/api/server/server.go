package server

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/labrinth-gg/labrinth/apps/api/handlers"
	"github.com/labrinth-gg/labrinth/libs/go/billing"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/middleware"
	"github.com/labrinth-gg/labrinth/libs/go/projects"
	"github.com/labrinth-gg/labrinth/libs/go/sharedinstance"
	"github.com/labrinth-gg/labrinth/libs/go/teams"
)

// Services bundles the wired subsystems New needs to
// construct handlers; cmd/local builds one of these at startup.
type Services struct {
	Store          *db.Store
	Billing        *billing.Engine
	Teams          *teams.Engine
	Projects       *projects.Reader
	SharedInstance *sharedinstance.Service
	Auth           *middleware.Authenticator
}

// New builds the gin engine and registers every route, mirroring the
// teacher's InitializeRoutes shape: global middleware, a public v1
// group, then a protected group behind bearer auth.
func New(svc Services) *gin.Engine {
	router := gin.New()
	// No proxy is trusted by default, so ClientIP() falls back to the
	// TCP peer address instead of an arbitrary client-supplied
	// X-Forwarded-For/X-Real-IP header.
	if err := router.SetTrustedProxies(nil); err != nil {
		panic(err)
	}
	router.Use(gin.Recovery())
	router.Use(configureCORS())
	router.Use(middleware.CorrelationIDMiddleware())
	router.Use(middleware.DefaultRateLimiter.Middleware())

	isDevelopment := os.Getenv("GIN_MODE") != "release"
	router.Use(middleware.EnhancedLoggingMiddleware(isDevelopment))
	if !isDevelopment {
		router.Use(middleware.RequestLoggingMiddleware())
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	billingHandler := handlers.NewBillingHandler(svc.Billing)
	teamsHandler := handlers.NewTeamsHandler(svc.Teams)
	projectsHandler := handlers.NewProjectsHandler(svc.Projects)
	notificationsHandler := handlers.NewNotificationsHandler(svc.Store)
	sharedInstanceHandler := handlers.NewSharedInstanceHandler(svc.SharedInstance)

	v1 := router.Group("/api/v1")
	{
		// Public: aggregate project reads need no caller identity.
		v1.GET("/projects", projectsHandler.GetMany)
	}

	protected := v1.Group("/")
	protected.Use(svc.Auth.RequireAuth())
	{
		charges := protected.Group("/charges")
		charges.POST("/:id/refund", billingHandler.Refund)

		teamRoutes := protected.Group("/teams")
		teamRoutes.POST("/:id/members", teamsHandler.Invite)
		teamRoutes.POST("/:id/join", teamsHandler.Accept)
		teamRoutes.DELETE("/:id/members/:user_id", teamsHandler.Remove)
		teamRoutes.POST("/:id/transfer", teamsHandler.TransferOwnership)

		notif := protected.Group("/notifications")
		notif.GET("", notificationsHandler.List)
		notif.POST("/:id/read", notificationsHandler.MarkRead)

		shared := protected.Group("/shared-instances")
		shared.POST("", sharedInstanceHandler.Create)
		shared.POST("/:id/sync/inbound", sharedInstanceHandler.InboundSync)
		shared.POST("/:id/sync/outbound", sharedInstanceHandler.OutboundSync)
	}

	return router
}

// configureCORS mirrors the teacher's environment-driven CORS setup.
func configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		list := strings.Split(origins, ",")
		for i, o := range list {
			list[i] = strings.TrimSpace(o)
		}
		corsConfig.AllowOrigins = list
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}

	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Correlation-ID"}
	corsConfig.ExposeHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", "X-Correlation-ID"}
	corsConfig.AllowCredentials = os.Getenv("CORS_ALLOW_CREDENTIALS") == "true"

	return cors.New(corsConfig)
}
