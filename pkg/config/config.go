// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bridgehq/bridge-accounts/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Google   GoogleConfig
	LogLevel observability.LogLevel
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes)
	HealthPort string

	// BaseURL is the externally visible URL of this service
	BaseURL string
	// ClientURL is the frontend origin used for CORS and OAuth redirects
	ClientURL string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Timeout  time.Duration
}

// RedisConfig holds Redis configuration for the session store
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// AuthConfig holds token and session settings
type AuthConfig struct {
	JWTSecret     string
	SessionTTL    time.Duration
	RememberMeTTL time.Duration
	ResetTokenTTL time.Duration
	BcryptCost    int
	CookieName    string
	CookieSecure  bool
	// SessionCacheSize is the size of the in-process session read cache;
	// 0 disables it.
	SessionCacheSize int
}

// GoogleConfig holds Google OAuth settings
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether Google federation is configured
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("BRIDGE_HOST", "0.0.0.0"),
			Port:            getEnv("BRIDGE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("BRIDGE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("BRIDGE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("BRIDGE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("BRIDGE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("BRIDGE_HEALTH_PORT", "9090"),
			BaseURL:         getEnv("BRIDGE_BASE_URL", "http://localhost:8080"),
			ClientURL:       getEnv("BRIDGE_CLIENT_URL", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("BRIDGE_POSTGRES_URL", ""),
			MaxConns: getEnvInt("BRIDGE_POSTGRES_MAX_CONNS", 20),
			MinConns: getEnvInt("BRIDGE_POSTGRES_MIN_CONNS", 2),
			Timeout:  getEnvDuration("BRIDGE_POSTGRES_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("BRIDGE_REDIS_URL", ""),
			Password: getEnv("BRIDGE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("BRIDGE_REDIS_DB", 0),
			PoolSize: getEnvInt("BRIDGE_REDIS_POOL_SIZE", 10),
		},
		Auth: AuthConfig{
			JWTSecret:        getEnv("BRIDGE_JWT_SECRET", ""),
			SessionTTL:       getEnvDuration("BRIDGE_SESSION_TTL", 24*time.Hour),
			RememberMeTTL:    getEnvDuration("BRIDGE_REMEMBER_ME_TTL", 30*24*time.Hour),
			ResetTokenTTL:    getEnvDuration("BRIDGE_RESET_TOKEN_TTL", time.Hour),
			BcryptCost:       getEnvInt("BRIDGE_BCRYPT_COST", 12),
			CookieName:       getEnv("BRIDGE_COOKIE_NAME", "bridge_session"),
			CookieSecure:     getEnvBool("BRIDGE_COOKIE_SECURE", false),
			SessionCacheSize: getEnvInt("BRIDGE_SESSION_CACHE_SIZE", 1024),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("BRIDGE_GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("BRIDGE_GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("BRIDGE_GOOGLE_REDIRECT_URL", ""),
		},
		LogLevel: observability.ParseLogLevel(getEnv("BRIDGE_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Auth.BcryptCost < 12 {
		return fmt.Errorf("bcrypt cost must be at least 12")
	}
	if c.Google.Enabled() && c.Google.RedirectURL == "" {
		return fmt.Errorf("google redirect URL is required when google auth is configured")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
