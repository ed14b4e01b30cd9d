// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. An optional YAML file named by
// PLUMBLINE_CONFIG_FILE is applied on top of the environment values.
//
// # Configuration Structure
//
// Server settings:
//
//	PLUMBLINE_HOST="0.0.0.0"
//	PLUMBLINE_PORT="8080"
//	PLUMBLINE_HEALTH_PORT="9090"
//	PLUMBLINE_READ_TIMEOUT="15s"
//	PLUMBLINE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	PLUMBLINE_POSTGRES_URL="postgres://localhost/plumbline"
//	PLUMBLINE_POSTGRES_REPLICA_URLS="postgres://replica-1/plumbline,postgres://replica-2/plumbline"
//	PLUMBLINE_POSTGRES_MAX_CONNS="25"
//
// Redis and session settings:
//
//	PLUMBLINE_REDIS_URL="localhost:6379"
//	PLUMBLINE_REDIS_POOL_SIZE="10"
//	PLUMBLINE_SESSION_TTL="720h"
//	PLUMBLINE_SESSION_IDLE_TIMEOUT="72h"
//
// Observability settings:
//
//	PLUMBLINE_LOG_LEVEL="info"  # debug, info, warn, error
//	PLUMBLINE_METRICS_ENABLED="true"
//	PLUMBLINE_OTEL_ENABLED="true"
//	PLUMBLINE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %v\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage/postgres: Uses database configuration
//   - pkg/observability: Uses observability configuration
package config
