package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"peacepad-signaling/internal/infra/setup"
)

// Config holds settings loaded from the environment or a .env file.
type Config struct {
	AppEnv     string
	LogLevel   string
	ServerPort string

	DB setup.DBOptions

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	JWTSecret      string
	AllowedOrigins []string

	RateLimitMax    int
	RateLimitWindow time.Duration

	// RingTimeout <= 0 leaves unanswered calls ringing until someone acts.
	RingTimeout  time.Duration
	WSSendBuffer int
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine
	return ConfigFromEnv()
}

// ConfigFromEnv builds a Config from environment variables only.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{
		AppEnv:     envOr("APP_ENV", "development"),
		LogLevel:   envOr("LOG_LEVEL", "info"),
		ServerPort: envOr("SERVER_PORT", "8080"),
		DB: setup.DBOptions{
			Driver:   os.Getenv("DB_DRIVER"),
			DSN:      os.Getenv("DB_DSN"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			Name:     os.Getenv("DB_NAME"),
		},
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:      envOr("REDIS_KEY_PREFIX", "pp:"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: splitList(envOr("CORS_ALLOWED_ORIGIN", "http://localhost:3000")),
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	windowSeconds, err := envInt("RATE_LIMIT_WINDOW_SECONDS", 1)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitWindow = time.Duration(windowSeconds) * time.Second
	ringSeconds, err := envInt("RING_TIMEOUT_SECONDS", 0)
	if err != nil {
		return nil, err
	}
	cfg.RingTimeout = time.Duration(ringSeconds) * time.Second
	if cfg.WSSendBuffer, err = envInt("WS_SEND_BUFFER", 256); err != nil {
		return nil, err
	}

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW_SECONDS must be positive")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
