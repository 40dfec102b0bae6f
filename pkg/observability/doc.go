// Package observability provides structured logging, Prometheus metrics and health checks.
//
// # Overview
//
// This package centralizes observability infrastructure including JSON logging,
// metrics collection and the health endpoints served on the management port.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("port", 8080).Info("server started")
//
// Context-aware logging picks up the request slots the transport filled:
//
//	observability.FromContext(ctx).Warn("token rejected")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.EntityOperationsTotal.WithLabelValues("user", "create", "ok").Inc()
//	metrics.TokenVerdictsTotal.WithLabelValues("auth", "denied").Inc()
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	status := checker.Check(ctx)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/contextkeys: Request-local slots the logger annotates from
package observability
