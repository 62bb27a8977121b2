package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DatabaseDriver:         "sqlite",
		DatabaseDSN:            "scribegate.db",
		RateLimitEnabled:       true,
		RateLimitStore:         RateLimitStoreMemory,
		AuthCodeExpiration:     10 * time.Minute,
		AccessTokenExpiration:  time.Hour,
		RefreshTokenExpiration: 1440 * time.Hour,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid sqlite config",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name: "valid postgres config",
			mutate: func(c *Config) {
				c.DatabaseDriver = "postgres"
				c.DatabaseDSN = "postgres://localhost/scribegate"
			},
			expectError: false,
		},
		{
			name: "valid redis rate limit store",
			mutate: func(c *Config) {
				c.RateLimitStore = RateLimitStoreRedis
			},
			expectError: false,
		},
		{
			name: "unknown database driver",
			mutate: func(c *Config) {
				c.DatabaseDriver = "mysql"
			},
			expectError: true,
			errorMsg:    `unsupported database driver: "mysql"`,
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.DatabaseDriver = "postgres"
				c.DatabaseDSN = ""
			},
			expectError: true,
			errorMsg:    "DATABASE_DSN is required",
		},
		{
			name: "unknown rate limit store",
			mutate: func(c *Config) {
				c.RateLimitStore = "memcache"
			},
			expectError: true,
			errorMsg:    `unsupported rate limit store: "memcache"`,
		},
		{
			name: "rate limit store ignored when disabled",
			mutate: func(c *Config) {
				c.RateLimitEnabled = false
				c.RateLimitStore = "memcache"
			},
			expectError: false,
		},
		{
			name: "zero code expiration",
			mutate: func(c *Config) {
				c.AuthCodeExpiration = 0
			},
			expectError: true,
			errorMsg:    "AUTH_CODE_EXPIRATION must be positive",
		},
		{
			name: "code expiration above ceiling",
			mutate: func(c *Config) {
				c.AuthCodeExpiration = 11 * time.Minute
			},
			expectError: true,
			errorMsg:    "AUTH_CODE_EXPIRATION must not exceed",
		},
		{
			name: "refresh shorter than access",
			mutate: func(c *Config) {
				c.RefreshTokenExpiration = 30 * time.Minute
			},
			expectError: true,
			errorMsg:    "must not be shorter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 10*time.Minute, cfg.AuthCodeExpiration)
	assert.Equal(t, time.Hour, cfg.AccessTokenExpiration)
	assert.Equal(t, 1440*time.Hour, cfg.RefreshTokenExpiration)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, RateLimitStoreMemory, cfg.RateLimitStore)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("ACCESS_TOKEN_EXPIRATION", "30m")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("METRICS_ENABLED", "true")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenExpiration)
	assert.False(t, cfg.RateLimitEnabled)
	assert.True(t, cfg.MetricsEnabled)
}
