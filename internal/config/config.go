package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Rate limit store backend constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// maxAuthCodeExpiration is the ceiling on authorization code lifetime.
const maxAuthCodeExpiration = 10 * time.Minute

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string

	// Session settings (first-party login cookie, shared with the web app)
	SessionSecret string
	SessionName   string

	// Authorization code settings
	AuthCodeExpiration time.Duration

	// Token settings
	AccessTokenExpiration  time.Duration
	RefreshTokenExpiration time.Duration // sliding window, extended on each rotation
	MaxTokenPairsPerClient int           // 0 disables the cap

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string // connection string or sqlite path

	// Rate limiting
	RateLimitEnabled   bool
	RateLimitStore     string // "memory" or "redis"
	RateLimitAuthorize string // limiter format, e.g. "30-M"
	RateLimitToken     string
	RateLimitRevoke    string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	// Metrics
	MetricsEnabled bool

	// Audit logging
	AuditEnabled       bool
	AuditBufferSize    int
	AuditBatchSize     int
	AuditFlushInterval time.Duration
	AuditRetention     time.Duration // 0 keeps logs forever

	// Background cleanup of expired codes and token pairs
	CleanupInterval time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	// Determine database driver and DSN
	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "scribegate.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		BaseURL:       getEnv("BASE_URL", "http://localhost:8080"),
		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		SessionName:   getEnv("SESSION_NAME", "scribegate_session"),

		AuthCodeExpiration: getEnvDuration("AUTH_CODE_EXPIRATION", 10*time.Minute),

		AccessTokenExpiration: getEnvDuration("ACCESS_TOKEN_EXPIRATION", time.Hour),
		RefreshTokenExpiration: getEnvDuration(
			"REFRESH_TOKEN_EXPIRATION",
			1440*time.Hour,
		), // 60 days
		MaxTokenPairsPerClient: getEnvInt("MAX_TOKEN_PAIRS_PER_CLIENT", 0),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitStore:     getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		RateLimitAuthorize: getEnv("RATE_LIMIT_AUTHORIZE", "30-M"),
		RateLimitToken:     getEnv("RATE_LIMIT_TOKEN", "60-M"),
		RateLimitRevoke:    getEnv("RATE_LIMIT_REVOKE", "30-M"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),

		AuditEnabled:       getEnvBool("AUDIT_ENABLED", true),
		AuditBufferSize:    getEnvInt("AUDIT_BUFFER_SIZE", 1000),
		AuditBatchSize:     getEnvInt("AUDIT_BATCH_SIZE", 50),
		AuditFlushInterval: getEnvDuration("AUDIT_FLUSH_INTERVAL", 5*time.Second),
		AuditRetention:     getEnvDuration("AUDIT_RETENTION", 0),

		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 15*time.Minute),
	}
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("unsupported database driver: %q", c.DatabaseDriver)
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required for the postgres driver")
	}
	if c.RateLimitEnabled {
		switch c.RateLimitStore {
		case RateLimitStoreMemory, RateLimitStoreRedis:
		default:
			return fmt.Errorf("unsupported rate limit store: %q", c.RateLimitStore)
		}
	}
	if c.AuthCodeExpiration <= 0 {
		return fmt.Errorf("AUTH_CODE_EXPIRATION must be positive")
	}
	// Authorization codes are single-use bootstrap credentials; RFC 6749
	// §4.1.2 recommends a maximum lifetime of 10 minutes
	if c.AuthCodeExpiration > maxAuthCodeExpiration {
		return fmt.Errorf("AUTH_CODE_EXPIRATION must not exceed %s", maxAuthCodeExpiration)
	}
	if c.AccessTokenExpiration <= 0 || c.RefreshTokenExpiration <= 0 {
		return fmt.Errorf("token expirations must be positive")
	}
	if c.RefreshTokenExpiration < c.AccessTokenExpiration {
		return fmt.Errorf("REFRESH_TOKEN_EXPIRATION must not be shorter than ACCESS_TOKEN_EXPIRATION")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
