package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds all configuration for the auth client SDK.
type Config struct {
	// Remote auth service.
	BaseURL string `env:"AUTH_BASE_URL" envDefault:"http://localhost:8006" validate:"required,url"`

	// Client identity used in logs.
	ClientName string `env:"AUTH_CLIENT_NAME" envDefault:"authclient"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Transport behaviour.
	HTTPTimeout  time.Duration `env:"AUTH_HTTP_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	MaxRetries   int           `env:"AUTH_MAX_RETRIES" envDefault:"3" validate:"gte=0,lte=10"`
	RetryWaitMin time.Duration `env:"AUTH_RETRY_WAIT_MIN" envDefault:"1s"`
	RetryWaitMax time.Duration `env:"AUTH_RETRY_WAIT_MAX" envDefault:"5s"`

	// RefreshTimeout bounds the refresh network call; a timed-out refresh is
	// treated as a failed refresh.
	RefreshTimeout time.Duration `env:"AUTH_REFRESH_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	// Token persistence. "file" and "memory" need no connection settings.
	TokenStore string `env:"AUTH_TOKEN_STORE" envDefault:"file" validate:"oneof=file redis memory"`
	TokenFile  string `env:"AUTH_TOKEN_FILE" envDefault:""`

	RedisHost     string `env:"AUTH_REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"AUTH_REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"AUTH_REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"AUTH_REDIS_DB" envDefault:"0"`
	RedisKey      string `env:"AUTH_REDIS_KEY" envDefault:"authclient:tokens"`
}

// RedisAddr returns the Redis address string.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse auth client config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate auth client config: %w", err)
	}
	return cfg, nil
}
