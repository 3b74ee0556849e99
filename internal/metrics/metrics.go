// Package metrics provides Prometheus instrumentation for the payroll
// service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	// Calculation outcomes by country, year and status
	CalculationOutcome *prometheus.CounterVec

	// Calculation latency by country and year
	CalculateLatency *prometheus.HistogramVec

	// Rule set preparation outcomes by country, year and status
	PrepareOutcome *prometheus.CounterVec

	// Engines currently loaded in the registry
	EnginesLoaded prometheus.Gauge

	// HTTP request latency by route and status class
	RequestLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all collectors registered on the
// default registry.
func New() *Metrics {
	return &Metrics{
		CalculationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payroll_calculations_total",
			Help: "Total payroll calculations by country, year and status",
		}, []string{"country", "year", "status"}), // status: "ok", "eval_error", "not_found"

		CalculateLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payroll_calculate_duration_seconds",
			Help:    "Duration of payroll calculations",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}, []string{"country", "year"}),

		PrepareOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payroll_rule_set_prepares_total",
			Help: "Total rule set preparations by country, year and status",
		}, []string{"country", "year", "status"}), // status: "ok", "rejected"

		EnginesLoaded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "payroll_engines_loaded",
			Help: "Number of prepared engines currently in the registry",
		}),

		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payroll_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status class",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"route", "class"}),
	}
}

// IncrementCalculation records one calculation outcome.
func (m *Metrics) IncrementCalculation(country, year, status string) {
	if m != nil {
		m.CalculationOutcome.WithLabelValues(country, year, status).Inc()
	}
}

// ObserveCalculateLatency records the duration of one calculation.
func (m *Metrics) ObserveCalculateLatency(country, year string, d time.Duration) {
	if m != nil {
		m.CalculateLatency.WithLabelValues(country, year).Observe(d.Seconds())
	}
}

// IncrementPrepare records one rule set preparation outcome.
func (m *Metrics) IncrementPrepare(country, year, status string) {
	if m != nil {
		m.PrepareOutcome.WithLabelValues(country, year, status).Inc()
	}
}

// SetEnginesLoaded records the current registry size.
func (m *Metrics) SetEnginesLoaded(n int) {
	if m != nil {
		m.EnginesLoaded.Set(float64(n))
	}
}

// ObserveRequestLatency records the duration of one HTTP request.
func (m *Metrics) ObserveRequestLatency(route, class string, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(route, class).Observe(d.Seconds())
	}
}
