package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the checkout backend.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Geo      GeoConfig
	Checkout CheckoutConfig
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Port int
}

// GeoConfig holds the external geocoding and routing endpoints.
type GeoConfig struct {
	GeocoderBaseURL string
	RouterBaseURL   string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// RabbitMQConfig holds RabbitMQ connection configuration.
type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// RedisConfig holds the cache backend address. An empty Addr selects the
// in-memory cache instead of Redis.
type RedisConfig struct {
	Addr string
}

// CheckoutConfig holds tuning knobs for the checkout engine.
type CheckoutConfig struct {
	GeocodeSuccessTTL time.Duration
	GeocodeFailureTTL time.Duration
	PreviewTTL        time.Duration
	DigestDebounce    time.Duration
	ProviderTimeout   time.Duration
}

// Load reads configuration from the environment, optionally seeded from a
// .env file when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTP: HTTPConfig{
			Port: getIntEnv("HTTP_PORT", 3000),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getIntEnv("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "checkout"),
		},
		RabbitMQ: RabbitMQConfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getIntEnv("RABBITMQ_PORT", 5672),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", ""),
		},
		Geo: GeoConfig{
			GeocoderBaseURL: getEnv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
			RouterBaseURL:   getEnv("ROUTER_BASE_URL", "https://router.project-osrm.org"),
		},
		Checkout: CheckoutConfig{
			GeocodeSuccessTTL: getDurationEnv("GEOCODE_SUCCESS_TTL_SECONDS", 5),
			GeocodeFailureTTL: getDurationEnv("GEOCODE_FAILURE_TTL_SECONDS", 30),
			PreviewTTL:        getDurationEnv("PREVIEW_TTL_SECONDS", 10),
			DigestDebounce:    getDurationEnv("COURIER_DIGEST_DEBOUNCE_SECONDS", 30),
			ProviderTimeout:   getDurationEnv("PROVIDER_TIMEOUT_SECONDS", 10),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d", c.HTTP.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid DB_PORT: %d", c.Database.Port)
	}
	if c.RabbitMQ.Port < 1 || c.RabbitMQ.Port > 65535 {
		return fmt.Errorf("invalid RABBITMQ_PORT: %d", c.RabbitMQ.Port)
	}
	if c.Checkout.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection URL.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL.
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallbackSeconds int) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return time.Duration(fallbackSeconds) * time.Second
}
