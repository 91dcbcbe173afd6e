package baton

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arloliu/baton/internal/logging"
	"github.com/arloliu/baton/internal/metrics"
)

// NewPrometheusMetrics returns a MetricsCollector that exports baton metrics.
//
// Collectors are registered with reg on first use, so an idle Manager adds
// nothing to the registry.
//
// Parameters:
//   - reg: Prometheus registerer (prometheus.DefaultRegisterer if nil)
//   - namespace: Metric namespace (default "baton" if empty)
//
// Returns:
//   - MetricsCollector: Prometheus-backed collector
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}

// NewZapLogger adapts a zap logger to Logger.
func NewZapLogger(logger *zap.Logger) Logger {
	return logging.NewZap(logger)
}

// NewSlogLogger adapts a slog logger to Logger.
func NewSlogLogger(logger *slog.Logger) Logger {
	return logging.NewSlog(logger)
}
