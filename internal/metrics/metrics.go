package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for battle orchestration.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	battlesRunning     prometheus.Gauge
	battlesLaunched    prometheus.Counter
	battlesCompleted   prometheus.Counter
	battlesFailed      prometheus.Counter
	broadcastsTotal    *prometheus.CounterVec
	broadcastFailures  prometheus.Counter
	autostartConflicts prometheus.Counter
}

// New creates and registers the battle metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battle_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battle_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		battlesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battle_running",
			Help: "Number of orchestrator loops currently running",
		}),
		battlesLaunched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battle_launched_total",
			Help: "Total number of orchestrator loops launched",
		}),
		battlesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battle_completed_total",
			Help: "Total number of battles marked Completed",
		}),
		battlesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battle_failed_total",
			Help: "Total number of orchestrator loops that ended on an error",
		}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "battle_broadcasts_total",
			Help: "Total number of events broadcast, by event type",
		}, []string{"event"}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battle_broadcast_failures_total",
			Help: "Total number of broadcasts that failed to publish",
		}),
		autostartConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battle_autostart_conflicts_total",
			Help: "Minute ticks skipped because several schedule rows matched",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.battlesRunning,
		m.battlesLaunched,
		m.battlesCompleted,
		m.battlesFailed,
		m.broadcastsTotal,
		m.broadcastFailures,
		m.autostartConflicts,
	)

	return m
}

func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// SetRunning sets the running orchestrators gauge.
func (m *Metrics) SetRunning(n int) {
	if m != nil {
		m.battlesRunning.Set(float64(n))
	}
}

func (m *Metrics) IncLaunched() {
	if m != nil {
		m.battlesLaunched.Inc()
	}
}

func (m *Metrics) IncCompleted() {
	if m != nil {
		m.battlesCompleted.Inc()
	}
}

func (m *Metrics) IncFailed() {
	if m != nil {
		m.battlesFailed.Inc()
	}
}

// IncBroadcast counts one broadcast attempt for event; failed marks a publish error.
func (m *Metrics) IncBroadcast(event string, failed bool) {
	if m == nil {
		return
	}
	m.broadcastsTotal.WithLabelValues(event).Inc()
	if failed {
		m.broadcastFailures.Inc()
	}
}

func (m *Metrics) IncAutostartConflicts() {
	if m != nil {
		m.autostartConflicts.Inc()
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. running battles).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
