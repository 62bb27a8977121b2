package bootstrap

import (
	"log"

	"github.com/scribehub/scribegate/internal/config"
	"github.com/scribehub/scribegate/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// rateLimitMiddlewares holds rate limiting middlewares for different endpoints
type rateLimitMiddlewares struct {
	authorize gin.HandlerFunc
	token     gin.HandlerFunc
	revoke    gin.HandlerFunc
}

// setupRateLimiting configures rate limiting middlewares based on configuration.
// Accepts an optional go-redis client shared between the per-endpoint stores.
func setupRateLimiting(cfg *config.Config, redisClient *redis.Client) rateLimitMiddlewares {
	noOpMiddleware := func(c *gin.Context) { c.Next() }

	if !cfg.RateLimitEnabled {
		return rateLimitMiddlewares{
			authorize: noOpMiddleware,
			token:     noOpMiddleware,
			revoke:    noOpMiddleware,
		}
	}

	return createRateLimiters(cfg, redisClient)
}

// createRateLimiters creates rate limiting middlewares for all endpoints
func createRateLimiters(cfg *config.Config, redisClient *redis.Client) rateLimitMiddlewares {
	log.Printf("Rate limiting enabled (store: %s)", cfg.RateLimitStore)

	storeType := middleware.RateLimitStoreType(cfg.RateLimitStore)

	if storeType == middleware.RateLimitStoreRedis {
		log.Printf("Using shared Redis client for rate limiting (provided externally)")
	} else {
		log.Printf("In-memory rate limiting configured (single instance only)")
	}

	createLimiter := func(rate, endpoint string) gin.HandlerFunc {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			Rate:        rate,
			StoreType:   storeType,
			RedisClient: redisClient, // nil for memory store
		})
		if err != nil {
			log.Fatalf("Failed to create rate limiter for %s: %v", endpoint, err)
		}
		return limiter
	}

	return rateLimitMiddlewares{
		authorize: createLimiter(cfg.RateLimitAuthorize, "/oauth/authorize"),
		token:     createLimiter(cfg.RateLimitToken, "/oauth/token"),
		revoke:    createLimiter(cfg.RateLimitRevoke, "/oauth/revoke"),
	}
}
