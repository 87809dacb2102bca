package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BRIDGE_POSTGRES_URL", "postgres://localhost/accounts")
	t.Setenv("BRIDGE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("BRIDGE_JWT_SECRET", "test-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RememberMeTTL)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenTTL)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, "bridge_session", cfg.Auth.CookieName)
	assert.False(t, cfg.Google.Enabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BRIDGE_PORT", "3000")
	t.Setenv("BRIDGE_SESSION_TTL", "12h")
	t.Setenv("BRIDGE_BCRYPT_COST", "14")
	t.Setenv("BRIDGE_COOKIE_SECURE", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 14, cfg.Auth.BcryptCost)
	assert.True(t, cfg.Auth.CookieSecure)
}

func TestLoadConfigMissingRequirements(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BRIDGE_JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateRejectsWeakBcryptCost(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BRIDGE_BCRYPT_COST", "10")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "bcrypt cost")
}

func TestValidateRejectsSharedPorts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BRIDGE_PORT", "8080")
	t.Setenv("BRIDGE_HEALTH_PORT", "8080")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "must be different")
}

func TestValidateGoogleNeedsRedirectURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BRIDGE_GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("BRIDGE_GOOGLE_CLIENT_SECRET", "client-secret")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "redirect URL")

	t.Setenv("BRIDGE_GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/google/callback")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Google.Enabled())
}
