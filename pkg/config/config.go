package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/plumbline/plumbline/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration
	Redis RedisConfig `yaml:"redis"`

	// Session configuration
	Session SessionConfig `yaml:"session"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Invitation configuration
	Invitations InvitationConfig `yaml:"invitations"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	ReplicaURLs string        `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// SessionConfig holds session lifetime settings
type SessionConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RateLimitConfig holds request rate limiting settings
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
}

// InvitationConfig holds organization invitation settings
type InvitationConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel `yaml:"-"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// LoadConfig loads configuration from environment variables, then applies
// an optional YAML overlay file named by PLUMBLINE_CONFIG_FILE. Values set
// in the file override the environment defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Session:       loadSessionConfig(),
		RateLimit:     loadRateLimitConfig(),
		Invitations:   loadInvitationConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("PLUMBLINE_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PLUMBLINE_HOST", "0.0.0.0"),
		Port:            getEnv("PLUMBLINE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PLUMBLINE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PLUMBLINE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("PLUMBLINE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PLUMBLINE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("PLUMBLINE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("PLUMBLINE_POSTGRES_URL", "postgres://localhost:5432/plumbline?sslmode=disable"),
		ReplicaURLs: getEnv("PLUMBLINE_POSTGRES_REPLICA_URLS", ""),
		MaxConns:    getEnvInt("PLUMBLINE_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("PLUMBLINE_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("PLUMBLINE_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("PLUMBLINE_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("PLUMBLINE_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("PLUMBLINE_REDIS_URL", "localhost:6379"),
		Password:   getEnv("PLUMBLINE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("PLUMBLINE_REDIS_DB", 0),
		MaxRetries: getEnvInt("PLUMBLINE_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("PLUMBLINE_REDIS_POOL_SIZE", 10),
	}
}

// loadSessionConfig loads session configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:         getEnvDuration("PLUMBLINE_SESSION_TTL", 720*time.Hour),
		IdleTimeout: getEnvDuration("PLUMBLINE_SESSION_IDLE_TIMEOUT", 72*time.Hour),
	}
}

// loadRateLimitConfig loads rate limit configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("PLUMBLINE_RATE_LIMIT_ENABLED", true),
		RequestsPerWindow: getEnvInt("PLUMBLINE_RATE_LIMIT_REQUESTS", 300),
		Window:            getEnvDuration("PLUMBLINE_RATE_LIMIT_WINDOW", time.Minute),
	}
}

// loadInvitationConfig loads invitation configuration from environment
func loadInvitationConfig() InvitationConfig {
	return InvitationConfig{
		TTL: getEnvDuration("PLUMBLINE_INVITATION_TTL", 7*24*time.Hour),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("PLUMBLINE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("PLUMBLINE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("PLUMBLINE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("PLUMBLINE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("PLUMBLINE_OTEL_SERVICE_NAME", "plumbline"),
		OTelServiceVersion: getEnv("PLUMBLINE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("PLUMBLINE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive")
	}
	if c.Session.IdleTimeout > c.Session.TTL {
		return fmt.Errorf("session idle timeout must not exceed session TTL")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow <= 0 {
			return fmt.Errorf("rate limit requests per window must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	if c.Invitations.TTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
