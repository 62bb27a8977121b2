package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/scribehub/scribegate/internal/config"
	"github.com/scribehub/scribegate/internal/metrics"
	"github.com/scribehub/scribegate/internal/models"
	"github.com/scribehub/scribegate/internal/services"
	"github.com/scribehub/scribegate/internal/store"

	"github.com/appleboy/graceful"
	"github.com/redis/go-redis/v9"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addRedisClientShutdownJob adds Redis client shutdown handler
func addRedisClientShutdownJob(m *graceful.Manager, redisClient *redis.Client) {
	if redisClient == nil {
		return
	}

	m.AddShutdownJob(func() error {
		log.Println("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
			return err
		}
		log.Println("Redis connection closed")
		return nil
	})
}

// addAuditServiceShutdownJob adds audit service shutdown handler
func addAuditServiceShutdownJob(m *graceful.Manager, auditService *services.AuditService) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down audit service...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := auditService.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down audit service: %v", err)
			return err
		}
		return nil
	})
}

// addStorageCleanupJob adds the periodic expiry sweep. Expired authorization
// codes (consumed tombstones included) and token pairs whose refresh window
// has passed are hard-deleted; old audit logs follow when a retention period
// is configured.
func addStorageCleanupJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	auditService *services.AuditService,
	recorder metrics.Recorder,
) {
	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()

		// Run a sweep immediately on startup
		runStorageCleanup(cfg, db, auditService, recorder)

		for {
			select {
			case <-ticker.C:
				runStorageCleanup(cfg, db, auditService, recorder)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

func runStorageCleanup(
	cfg *config.Config,
	db *store.Store,
	auditService *services.AuditService,
	recorder metrics.Recorder,
) {
	now := time.Now()

	if deleted, err := db.DeleteExpiredAuthorizationCodes(now); err != nil {
		recorder.RecordDatabaseQueryError("cleanup_authorization_codes")
		log.Printf("Failed to delete expired authorization codes: %v", err)
	} else if deleted > 0 {
		log.Printf("Deleted %d expired authorization codes", deleted)
	}

	if deleted, err := db.DeleteExpiredTokenPairs(now); err != nil {
		recorder.RecordDatabaseQueryError("cleanup_token_pairs")
		log.Printf("Failed to delete expired token pairs: %v", err)
	} else if deleted > 0 {
		log.Printf("Deleted %d expired token pairs", deleted)
	}

	if cfg.AuditEnabled && cfg.AuditRetention > 0 {
		if deleted, err := auditService.CleanupOldLogs(cfg.AuditRetention); err != nil {
			log.Printf("Failed to cleanup old audit logs: %v", err)
		} else if deleted > 0 {
			log.Printf("Cleaned up %d old audit logs", deleted)
		}
	}
}

// addMetricsGaugeUpdateJob adds periodic metrics gauge update job
func addMetricsGaugeUpdateJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	recorder metrics.Recorder,
) {
	if !cfg.MetricsEnabled {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()

		// Update immediately on startup
		updateGaugeMetrics(db, recorder)

		for {
			select {
			case <-ticker.C:
				updateGaugeMetrics(db, recorder)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// errorLogger handles rate-limited error logging
type errorLogger struct {
	lastErrorTimes  map[string]time.Time
	rateLimitWindow time.Duration
}

func newErrorLogger() *errorLogger {
	return &errorLogger{
		lastErrorTimes:  make(map[string]time.Time),
		rateLimitWindow: 5 * time.Minute,
	}
}

// logIfNeeded logs an error only if rate limit allows
func (e *errorLogger) logIfNeeded(operation string, err error) {
	now := time.Now()
	lastTime, exists := e.lastErrorTimes[operation]

	if !exists || now.Sub(lastTime) >= e.rateLimitWindow {
		log.Printf("Database query failed for %s: %v (further errors will be suppressed for %v)",
			operation, err, e.rateLimitWindow)
		e.lastErrorTimes[operation] = now
	}
}

var gaugeErrorLogger = newErrorLogger()

// updateGaugeMetrics refreshes the active-pairs and pending-codes gauges
func updateGaugeMetrics(db *store.Store, recorder metrics.Recorder) {
	activePairs, err := db.CountTokenPairsByStatus(models.TokenStatusActive)
	if err != nil {
		recorder.RecordDatabaseQueryError("count_active_token_pairs")
		gaugeErrorLogger.logIfNeeded("count_active_token_pairs", err)
	} else {
		recorder.SetActiveTokenPairsCount(int(activePairs))
	}

	pendingCodes, err := db.CountPendingAuthorizationCodes()
	if err != nil {
		recorder.RecordDatabaseQueryError("count_pending_authorization_codes")
		gaugeErrorLogger.logIfNeeded("count_pending_authorization_codes", err)
	} else {
		recorder.SetPendingCodesCount(int(pendingCodes))
	}
}
