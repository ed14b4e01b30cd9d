// Package observability bundles the operational surface of the service:
// structured slog-based logging with context plumbing, Prometheus metrics,
// liveness/readiness probes over Postgres and Redis, OpenTelemetry setup,
// and graceful shutdown coordination.
package observability
