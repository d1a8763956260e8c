package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	checks         *prometheus.CounterVec
	checkDuration  *prometheus.HistogramVec
	ticks          prometheus.Counter
	tickErrors     prometheus.Counter
	dueServices    prometheus.Gauge
	tickDuration   prometheus.Histogram
	droppedEvents  prometheus.Counter
	metricFailures *prometheus.CounterVec
	refreshRuns    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetcheck_checks_total",
			Help: "Completed checks by kind and outcome",
		}, []string{"kind", "outcome"}),
		checkDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetcheck_check_duration_seconds",
			Help:    "Wall time of a check including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetcheck_scheduler_ticks_total",
			Help: "Scheduler ticks",
		}),
		tickErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetcheck_scheduler_tick_errors_total",
			Help: "Ticks skipped because the due query failed",
		}),
		dueServices: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcheck_scheduler_due_services",
			Help: "Services due in the most recent tick",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetcheck_scheduler_tick_duration_seconds",
			Help:    "Time to process every due service of a tick",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		droppedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetcheck_notifications_dropped_total",
			Help: "Check events dropped because the notification buffer was full",
		}),
		metricFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetcheck_metric_recompute_failures_total",
			Help: "Failed daily metric recomputations by trigger",
		}, []string{"source"}),
		refreshRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetcheck_metrics_refresh_runs_total",
			Help: "Periodic metric refresh passes",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) CheckDone(kind string, success bool, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "down"
	if success {
		outcome = "up"
	}
	m.checks.WithLabelValues(kind, outcome).Inc()
	m.checkDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) Tick(due int, took time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.dueServices.Set(float64(due))
	m.tickDuration.Observe(took.Seconds())
}

func (m *Metrics) TickFailed() {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickErrors.Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}

func (m *Metrics) MetricFailed(source string) {
	if m == nil {
		return
	}
	m.metricFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) RefreshRan() {
	if m == nil {
		return
	}
	m.refreshRuns.Inc()
}
