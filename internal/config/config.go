package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY,required" validate:"required"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required" validate:"required"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	Currency                   string `env:"CURRENCY" envDefault:"mxn" validate:"len=3"`
	TaxRateBps                 int    `env:"TAX_RATE_BPS" envDefault:"1600" validate:"min=0,max=10000"`
	FreeShippingThresholdCents int    `env:"FREE_SHIPPING_THRESHOLD_CENTS" envDefault:"50000" validate:"min=0"`
	ShippingFlatCents          int    `env:"SHIPPING_FLAT_CENTS" envDefault:"5000" validate:"min=0"`

	SentryDSN string `env:"SENTRY_DSN"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := configValidator.Struct(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
