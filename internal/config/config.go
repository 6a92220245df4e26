package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all process configuration. It is loaded once at startup and
// treated as immutable for the process lifetime; the payment gateway
// credentials in particular are validated here instead of lazily at first use.
type Config struct {
	AppPort     string
	DatabaseDSN string
	DBDriver    string // "sqlite" or "postgres"

	JWTSecret string

	GatewayKeyID     string
	GatewayKeySecret string
	GatewayBaseURL   string
	GatewayTimeout   time.Duration

	RabbitMQURL string

	AdminEmail    string
	AdminPassword string

	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("DB_DRIVER", "sqlite")
	viper.SetDefault("DATABASE_DSN", "princo.db")
	viper.SetDefault("JWT_SECRET", "change-me-in-production")
	viper.SetDefault("GATEWAY_BASE_URL", "https://api.razorpay.com")
	viper.SetDefault("GATEWAY_TIMEOUT", "5s")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	viper.AutomaticEnv()

	return Config{
		AppPort:          viper.GetString("APP_PORT"),
		DatabaseDSN:      viper.GetString("DATABASE_DSN"),
		DBDriver:         viper.GetString("DB_DRIVER"),
		JWTSecret:        viper.GetString("JWT_SECRET"),
		GatewayKeyID:     viper.GetString("GATEWAY_KEY_ID"),
		GatewayKeySecret: viper.GetString("GATEWAY_KEY_SECRET"),
		GatewayBaseURL:   viper.GetString("GATEWAY_BASE_URL"),
		GatewayTimeout:   viper.GetDuration("GATEWAY_TIMEOUT"),
		RabbitMQURL:      viper.GetString("RABBITMQ_URL"),
		AdminEmail:       viper.GetString("ADMIN_EMAIL"),
		AdminPassword:    viper.GetString("ADMIN_PASSWORD"),
		AllowedOrigins:   strings.Split(viper.GetString("ALLOWED_ORIGINS"), ","),
	}
}

// Validate checks that the configuration is usable. Placeholder gateway
// credentials are rejected here so the process fails fast instead of
// returning 500s on the first payment request.
func (c Config) Validate() error {
	if c.GatewayKeyID == "" || c.GatewayKeySecret == "" {
		return fmt.Errorf("gateway credentials are not configured (GATEWAY_KEY_ID, GATEWAY_KEY_SECRET)")
	}
	if strings.Contains(c.GatewayKeySecret, "placeholder") {
		return fmt.Errorf("gateway key secret contains a placeholder value")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or postgres)", c.DBDriver)
	}
	return nil
}
