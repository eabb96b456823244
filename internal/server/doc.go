// Package server provides the dependency container shared by the tool
// handlers and the Prometheus metrics server that runs next to a session.
//
// ServerContext holds the configuration, the credential manager, metrics
// and audit logging, and creates Google service clients bound to a
// credential. Clients are cheap to create; only the credential-free search
// client is cached.
//
// MetricsServer exposes /metrics for Prometheus scraping on a dedicated
// address, separate from the conversation. With a HealthChecker it also
// serves /healthz (liveness) and /readyz, which reports the credential
// state and search mode and fails once shutdown has begun.
package server
