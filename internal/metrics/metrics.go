// Package metrics exposes Prometheus counters for the grievance service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	ComplaintsSubmitted prometheus.Counter
	StatusTransitions   *prometheus.CounterVec
	MessagesAppended    *prometheus.CounterVec
	SubmitDuration      prometheus.Histogram
}

// New creates a Metrics instance with all counters registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ComplaintsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "grievance_complaints_submitted_total",
			Help: "Total number of complaints accepted",
		}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grievance_status_transitions_total",
			Help: "Status change attempts by outcome and requested status",
		}, []string{"result", "target"}),
		MessagesAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grievance_messages_appended_total",
			Help: "Thread messages stored, by sender",
		}, []string{"sender"}),
		SubmitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "grievance_submit_duration_seconds",
			Help:    "Duration of Submit operations including the dual write",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementSubmitted records an accepted complaint.
func (m *Metrics) IncrementSubmitted() {
	m.ComplaintsSubmitted.Inc()
}

// ObserveTransition records a status change attempt. result is "allowed",
// "denied" or "conflict".
func (m *Metrics) ObserveTransition(result, target string) {
	m.StatusTransitions.WithLabelValues(result, target).Inc()
}

// IncrementMessages records a stored thread message.
func (m *Metrics) IncrementMessages(sender string) {
	m.MessagesAppended.WithLabelValues(sender).Inc()
}

// ObserveSubmit records the duration of a Submit call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSubmit(start time.Time) {
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
