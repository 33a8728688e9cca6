// Package metrics exposes engine counters on a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds engine counters. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchesTotal       *prometheus.CounterVec
	FetchDuration      *prometheus.HistogramVec
	EvaluationsTotal   *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	SkippedTasksTotal  prometheus.Counter
	PassDuration       prometheus.Histogram
	ActiveAlerts       prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratewatch_fetches_total",
				Help: "Rate source fetches by source kind and outcome",
			},
			[]string{"source", "outcome"},
		),

		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratewatch_fetch_duration_seconds",
				Help:    "Rate source fetch latency",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"source"},
		),

		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratewatch_evaluations_total",
				Help: "Alert checks by result",
			},
			[]string{"result"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratewatch_notifications_total",
				Help: "Notification dispatches by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),

		SkippedTasksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ratewatch_skipped_tasks_total",
				Help: "Alert checks skipped because the previous check was still running",
			},
		),

		PassDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ratewatch_pass_duration_seconds",
				Help:    "Wall time of a full evaluation pass",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),

		ActiveAlerts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratewatch_active_alerts",
				Help: "Alerts enabled at the start of the last pass",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordFetch counts one fetch and its latency.
func (m *Metrics) RecordFetch(source string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.FetchesTotal.WithLabelValues(source, outcome).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(seconds)
}

// RecordEvaluation counts one alert check: triggered, quiet or failed.
func (m *Metrics) RecordEvaluation(result string) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(result).Inc()
}

// RecordNotification counts one dispatch outcome on a channel.
func (m *Metrics) RecordNotification(channel, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordSkipped counts a check skipped because one was in flight.
func (m *Metrics) RecordSkipped() {
	if m == nil {
		return
	}
	m.SkippedTasksTotal.Inc()
}

// RecordPass observes a finished pass.
func (m *Metrics) RecordPass(active int, seconds float64) {
	if m == nil {
		return
	}
	m.ActiveAlerts.Set(float64(active))
	m.PassDuration.Observe(seconds)
}
