// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Base URL for short links (e.g., https://sho.rt)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Record store
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	RedisURL     string `env:"REDIS_URL"`
	DatabaseURL  string `env:"DATABASE_URL"`
	StoreTable   string `env:"STORE_TABLE" envDefault:"kv_blobs"`
	StoreURLsKey string `env:"STORE_URLS_KEY" envDefault:"url_shortener_urls"`

	// Single-writer lock (Redis backends only)
	LockKey string        `env:"LOCK_KEY" envDefault:"shortclick:lock:urls"`
	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"10s"`

	// Shortening
	DefaultValidityMinutes int `env:"DEFAULT_VALIDITY_MINUTES" envDefault:"30"`
	MaxBatchSize           int `env:"MAX_BATCH_SIZE" envDefault:"5"`
	ShortCodeLength        int `env:"SHORT_CODE_LENGTH" envDefault:"6"`

	// Geolocation. An endpoint containing {ip} gets the visitor IP substituted.
	GeoEnabled  bool          `env:"GEO_ENABLED" envDefault:"true"`
	GeoEndpoint string        `env:"GEO_ENDPOINT" envDefault:"https://ipapi.co/json/"`
	GeoTimeout  time.Duration `env:"GEO_TIMEOUT" envDefault:"2s"`
	GeoCacheTTL time.Duration `env:"GEO_CACHE_TTL" envDefault:"10m"`

	// Remote telemetry. Empty token disables it.
	TelemetryURL     string        `env:"TELEMETRY_URL"`
	TelemetryToken   string        `env:"TELEMETRY_TOKEN"`
	TelemetryTimeout time.Duration `env:"TELEMETRY_TIMEOUT" envDefault:"2s"`

	// Expiry sweep
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	SweepOnStart  bool          `env:"SWEEP_ON_START" envDefault:"true"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting (per client IP)
	RateLimitRedirectEnabled bool `env:"RATE_LIMIT_REDIRECT_ENABLED" envDefault:"true"`
	RateLimitRedirectRPS     int  `env:"RATE_LIMIT_REDIRECT_RPS" envDefault:"100"`
	RateLimitRedirectBurst   int  `env:"RATE_LIMIT_REDIRECT_BURST" envDefault:"20"`
	RateLimitAPIEnabled      bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitAPIRPS          int  `env:"RATE_LIMIT_API_RPS" envDefault:"10"`
	RateLimitAPIBurst        int  `env:"RATE_LIMIT_API_BURST" envDefault:"20"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// TelemetryEnabled reports whether remote telemetry is configured.
func (c *Config) TelemetryEnabled() bool {
	return c.TelemetryURL != "" && c.TelemetryToken != ""
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of memory, redis, postgres", c.StoreBackend))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BASE_URL %q must be an absolute URL", c.BaseURL))
	}
	if c.StoreURLsKey == "" {
		errs = append(errs, errors.New("STORE_URLS_KEY must not be empty"))
	}
	if c.DefaultValidityMinutes <= 0 || c.DefaultValidityMinutes > 525600 {
		errs = append(errs, fmt.Errorf("DEFAULT_VALIDITY_MINUTES %d is out of range 1..525600", c.DefaultValidityMinutes))
	}
	if c.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("MAX_BATCH_SIZE must be positive"))
	}
	if c.ShortCodeLength < 4 || c.ShortCodeLength > 10 {
		errs = append(errs, fmt.Errorf("SHORT_CODE_LENGTH %d is out of range 4..10", c.ShortCodeLength))
	}
	if c.TelemetryToken != "" && c.TelemetryURL == "" {
		errs = append(errs, errors.New("TELEMETRY_URL is required when TELEMETRY_TOKEN is set"))
	}

	return errors.Join(errs...)
}

// Load reads an optional .env file, parses environment variables and
// validates the result.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
