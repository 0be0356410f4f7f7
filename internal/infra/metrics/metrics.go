// Package metrics exposes prometheus counters for passes, outcomes and
// presence samples. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	checks          *prometheus.CounterVec
	changes         *prometheus.CounterVec
	failures        *prometheus.CounterVec
	presenceSamples *prometheus.CounterVec
	passDuration    prometheus.Histogram
	tracked         prometheus.Gauge
	connected       prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "profilewatch_checks_total",
			Help: "Field checks by outcome",
		}, []string{"field", "outcome"}),
		changes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "profilewatch_changes_total",
			Help: "Persisted profile changes by kind",
		}, []string{"kind"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "profilewatch_pass_failures_total",
			Help: "Failed passes by stage",
		}, []string{"stage"}),
		presenceSamples: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "profilewatch_presence_samples_total",
			Help: "Presence ticks by signal",
		}, []string{"signal"}),
		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "profilewatch_pass_duration_seconds",
			Help:    "Time spent on one contact pass",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		tracked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "profilewatch_tracked_contacts",
			Help: "Number of tracked contacts",
		}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "profilewatch_connected",
			Help: "Whether the WhatsApp connection is up",
		}),
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCheck(field, outcome string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(field, outcome).Inc()
}

func (m *Metrics) ObserveChange(kind string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveFailure(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObservePresence(signal string) {
	if m == nil {
		return
	}
	m.presenceSamples.WithLabelValues(signal).Inc()
}

func (m *Metrics) ObservePass(d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.Observe(d.Seconds())
}

func (m *Metrics) SetTracked(n int) {
	if m == nil {
		return
	}
	m.tracked.Set(float64(n))
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
