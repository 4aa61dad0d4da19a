// Package config provides centralized configuration management for the service.
// Settings come from environment variables (optionally seeded from a .env file
// by the caller) and are validated on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Upload    UploadConfig
	Store     StoreConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 3001)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"3001"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining batch uploads.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// UploadConfig holds batch upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted CSV size in bytes (default: 5MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"5242880"`

	// MaxConcurrent is the number of batch uploads processed at once (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a request waits for a batch slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// ChunkSize is the number of rows upserted concurrently per chunk (default: 100)
	ChunkSize int `env:"BATCH_CHUNK_SIZE" default:"100"`

	// Timeout is the maximum duration of a single batch upload (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// StoreConfig holds record store settings.
type StoreConfig struct {
	// SeedCount is the number of synthetic records created at startup (0 disables)
	SeedCount int `env:"STORE_SEED_COUNT" default:"500"`

	// DefaultPageSize applies when a list request omits pageSize (default: 10)
	DefaultPageSize int `env:"PAGE_SIZE_DEFAULT" default:"10"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// AuthLimit is requests per minute for login/register (default: 10)
	AuthLimit int `env:"RATE_LIMIT_AUTH" default:"10"`
}

// SecurityConfig holds authentication and proxy settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// SessionSecret signs session tokens (required)
	SessionSecret string `env:"SESSION_SECRET" envAlt:"JWT_SECRET" required:"true"`

	// SessionTTL is how long an issued session stays valid (default: 24h)
	SessionTTL time.Duration `env:"SESSION_TTL" default:"24h"`

	// SecureCookies marks the session cookie Secure; enable behind TLS
	SecureCookies bool `env:"SESSION_SECURE_COOKIES" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" default:"false"`
	Stdout      bool   `env:"OTEL_STDOUT" default:"false"`
	ServiceName string `env:"OTEL_SERVICE_NAME" default:"constituents"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
