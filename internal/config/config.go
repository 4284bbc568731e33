// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr        string `envconfig:"ADDR" default:":8080"`
	DatabaseDSN string `envconfig:"DB_DSN" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`

	RedisAddr    string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	UserCacheTTL time.Duration `envconfig:"USER_CACHE_TTL" default:"5m"`

	// SMTP_HOST empty means mail is logged instead of sent (dev mode).
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"no-reply@chat-relay.local"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads .env if present, then the process environment. A set-but-empty
// required variable is rejected the same as a missing one: booting with an
// empty JWT secret or DSN is never intended.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.DatabaseDSN == "" {
		return cfg, errors.New("DB_DSN must not be empty")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	return cfg, nil
}
