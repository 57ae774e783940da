// Package observability provides logging and metrics for remedyd.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lvonguyen/remedyd/internal/config"
)

// NewLogger builds the service logger from logging config.
func NewLogger(cfg config.LoggingConfig, version string) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapCfg.InitialFields = map[string]interface{}{
		"service": "remedyd",
		"version": version,
	}

	return zapCfg.Build()
}

// Metrics holds Prometheus metrics for remedyd.
type Metrics struct {
	registry *prometheus.Registry

	AlertsReceived prometheus.Counter
	AlertOutcomes  *prometheus.CounterVec
	RecordsTotal   *prometheus.CounterVec
	RunningRecords prometheus.Gauge
	ActionDuration *prometheus.HistogramVec
	AuditExports   *prometheus.CounterVec
}

// NewMetrics creates and registers the remedyd metric set on its own
// registry.
func NewMetrics() *Metrics {
	namespace := "remedyd"
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		AlertsReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_received_total",
				Help:      "Total alerts received on the webhook",
			},
		),
		AlertOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alert_outcomes_total",
				Help:      "Alert processing outcomes",
			},
			[]string{"outcome"},
		),
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Completed remediation records by terminal status",
			},
			[]string{"rule", "status"},
		),
		RunningRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records_running",
				Help:      "Currently executing remediation records",
			},
		),
		ActionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Remediation action duration",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"rule", "action"},
		),
		AuditExports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_exports_total",
				Help:      "Audit export attempts by result",
			},
			[]string{"result"},
		),
	}
}

// Handler returns the Prometheus scrape handler for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
