// Package metrics exposes Prometheus counters for account operations and
// email notifications.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the service's counters on a private registry.
// A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	authOps       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
}

// New creates a registry with the Go and process collectors plus the
// service counters.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		authOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accountd_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accountd_notifications_published_total",
				Help: "Total number of account emails handed to the delivery channel",
			},
			[]string{"kind", "outcome"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accountd_mail_deliveries_total",
				Help: "Total number of account emails sent by the mailer",
			},
			[]string{"kind", "outcome"},
		),
	}
	registry.MustRegister(m.authOps, m.notifications, m.deliveries)
	return m
}

// AuthOperation counts one auth operation. outcome is OutcomeSuccess or an
// error kind such as "validation" or "auth".
func (m *Metrics) AuthOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.authOps.WithLabelValues(operation, outcome).Inc()
}

// Notification counts one publish attempt.
func (m *Metrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome(err)).Inc()
}

// Delivery counts one mailer send attempt.
func (m *Metrics) Delivery(kind string, err error) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, outcome(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
