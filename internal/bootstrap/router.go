package bootstrap

import (
	"log"
	"net/http"
	"strings"

	"github.com/scribehub/scribegate/internal/config"
	"github.com/scribehub/scribegate/internal/metrics"
	"github.com/scribehub/scribegate/internal/middleware"
	"github.com/scribehub/scribegate/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	h handlerSet,
	recorder metrics.Recorder,
	rateLimitRedisClient *redis.Client,
) *gin.Engine {
	r := gin.New()

	r.Use(metrics.HTTPMetricsMiddleware(recorder))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.IPMiddleware())

	setupSessionMiddleware(r, cfg)

	// Health check endpoint
	r.GET("/healthz", createHealthCheckHandler(db))

	setupMetricsEndpoint(r, cfg)

	rateLimiters := setupRateLimiting(cfg, rateLimitRedisClient)

	setupAllRoutes(r, h, rateLimiters)

	logServerStartup(cfg)

	return r
}

// setupSessionMiddleware configures session handling middleware. The session
// cookie is issued by the first-party web app's login flow; the authorization
// server only reads it, so the store secret and cookie name must match.
func setupSessionMiddleware(r *gin.Engine, cfg *config.Config) {
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   strings.HasPrefix(cfg.BaseURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(cfg.SessionName, sessionStore))
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	if !cfg.MetricsEnabled {
		log.Printf("Prometheus metrics disabled")
		return
	}
	log.Printf("Prometheus metrics enabled at /metrics")
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// setupAllRoutes configures all application routes
func setupAllRoutes(r *gin.Engine, h handlerSet, rateLimiters rateLimitMiddlewares) {
	// OAuth API routes (public, authenticated with client credentials)
	oauth := r.Group("/oauth")
	{
		oauth.POST("/token", rateLimiters.token, h.token.Token)
		oauth.POST("/revoke", rateLimiters.revoke, h.token.Revoke)
		oauth.GET("/tokeninfo", h.token.TokenInfo)
	}

	// Authorization endpoint (browser, requires a logged-in session)
	oauthProtected := r.Group("/oauth")
	oauthProtected.Use(middleware.RequireAuth())
	{
		oauthProtected.GET("/authorize", rateLimiters.authorize, h.authorization.ShowAuthorize)
		oauthProtected.POST("/authorize", rateLimiters.authorize, h.authorization.HandleAuthorize)
	}

	// Client management API (requires a logged-in session, scoped to the
	// session's team)
	api := r.Group("/api")
	api.Use(middleware.RequireAuthJSON())
	{
		api.POST("/clients", h.client.Create)
		api.GET("/clients", h.client.List)
		api.GET("/clients/:client_id", h.client.Get)
		api.PUT("/clients/:client_id", h.client.Update)
		api.DELETE("/clients/:client_id", h.client.Delete)
		api.POST("/clients/:client_id/rotate-secret", h.client.RotateSecret)
	}
}

// createHealthCheckHandler creates health check endpoint handler
func createHealthCheckHandler(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch err := db.Health(); err {
		case nil:
			c.JSON(http.StatusOK, gin.H{
				"status":   "healthy",
				"database": "connected",
			})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "disconnected",
			})
		}
	}
}

// logServerStartup logs server startup information
func logServerStartup(cfg *config.Config) {
	log.Printf("OAuth authorization server starting on %s", cfg.ServerAddr)
	log.Printf("Issuer: %s", cfg.BaseURL)
	log.Printf("Database driver: %s", cfg.DatabaseDriver)
}
