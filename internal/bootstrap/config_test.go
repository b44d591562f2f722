package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "pp:", cfg.KeyPrefix)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, time.Second, cfg.RateLimitWindow)
	assert.Zero(t, cfg.RingTimeout)
	assert.Equal(t, 256, cfg.WSSendBuffer)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://calls")
	t.Setenv("RING_TIMEOUT_SECONDS", "45")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "10")
	t.Setenv("CORS_ALLOWED_ORIGIN", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "loud")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "postgres://calls", cfg.DB.DSN)
	assert.Equal(t, 45*time.Second, cfg.RingTimeout)
	assert.Equal(t, 10*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestConfigFromEnv_Required(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("JWT_SECRET", "secret")
	_, err := ConfigFromEnv()
	assert.ErrorContains(t, err, "REDIS_ADDR")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "")
	_, err = ConfigFromEnv()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestConfigFromEnv_BadInteger(t *testing.T) {
	setRequired(t)
	t.Setenv("RING_TIMEOUT_SECONDS", "soon")

	_, err := ConfigFromEnv()
	assert.ErrorContains(t, err, "RING_TIMEOUT_SECONDS")
}
