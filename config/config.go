// Package config loads the static configuration layer (spec §4.G layer 1):
// environment variables first, then process defaults, validated once at
// startup. Changing any of these requires a restart; the runtime,
// DB-backed settings layer lives in internal/settings.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Execution engine / process pool
	FunctionsDir          string `env:"FUNCTIONS_DIR" envDefault:"./functions"`
	ExtensionsDir         string `env:"EXTENSIONS_DIR" envDefault:"./extensions"`
	PoolSize              int    `env:"POOL_SIZE" envDefault:"4" validate:"min=0,max=256"`
	ColdStartTTLSec       int    `env:"COLD_START_TTL_SEC" envDefault:"300" validate:"min=1"`
	SpawnCap              int    `env:"SPAWN_CAP" envDefault:"64" validate:"min=1"`
	FunctionTimeoutSec    int    `env:"FUNCTION_TIMEOUT_SEC" envDefault:"30" validate:"min=1,max=3600"`
	MaxConcurrentPerUser  int    `env:"MAX_CONCURRENT_FUNCTIONS_PER_USER" envDefault:"4" validate:"min=1"`
	MaxConcurrentGlobal   int    `env:"MAX_CONCURRENT_EXECUTIONS" envDefault:"64" validate:"min=1"`

	// Scheduler
	TickIntervalSec      int `env:"SCHEDULER_TICK_SEC" envDefault:"5" validate:"min=1,max=60"`
	MaxSchedulesPerTick  int `env:"MAX_SCHEDULES_PER_TICK" envDefault:"100" validate:"min=1"`

	// Rate limiting
	RateLimitBackend string `env:"RATE_LIMIT_BACKEND" envDefault:"memory" validate:"required,oneof=memory redis"`
	RedisURL         string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// Identity
	JWTSecret       string `env:"JWT_SECRET"`
	AccessTTLMin    int    `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"15" validate:"min=1"`
	RefreshTTLHours int    `env:"REFRESH_TOKEN_TTL_HOURS" envDefault:"720" validate:"min=1"`

	ResendAPIKey  string `env:"RESEND_API_KEY"      validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom    string `env:"RESEND_FROM"         validate:"required_if=Env production,required_if=Env staging"`
	MagicLinkBase string `env:"MAGIC_LINK_BASE_URL" envDefault:"http://localhost:8080"`

	CORSOrigins  string `env:"CORS_ORIGINS" envDefault:"*"`
	PublicDir    string `env:"PUBLIC_STATIC_DIR" envDefault:""`
	AdminDir     string `env:"ADMIN_STATIC_DIR" envDefault:""`
	StorageDir   string `env:"STORAGE_DIR" envDefault:"./storage"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.JWTSecret = secret
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// randomSecret auto-generates a JWT signing secret when none is configured,
// matching spec §4.G ("JWT secret (auto-generated if absent)").
func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
