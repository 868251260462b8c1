// Package metrics exposes Prometheus counters for redemptions, status checks,
// administrative actions and notifications. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keygate"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	redemptions        *prometheus.CounterVec
	statusChecks       *prometheus.CounterVec
	adminActions       *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	hardwareMismatches prometheus.Counter
}

// New registers the keygate collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Redemption attempts by verdict.",
		}, []string{"verdict"}),
		statusChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_checks_total",
			Help:      "Status checks by result.",
		}, []string{"result"}),
		adminActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_actions_total",
			Help:      "Administrative actions by action and outcome.",
		}, []string{"action", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by outcome.",
		}, []string{"outcome"}),
		hardwareMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_mismatches_total",
			Help:      "Redemptions that presented a hardware id different from the bound one.",
		}),
	}

	m.registry.MustRegister(
		m.redemptions,
		m.statusChecks,
		m.adminActions,
		m.notifications,
		m.hardwareMismatches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Redemption(verdict string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(verdict).Inc()
}

func (m *Metrics) StatusCheck(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.statusChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) AdminAction(action, outcome string) {
	if m == nil {
		return
	}
	m.adminActions.WithLabelValues(action, outcome).Inc()
}

// Notification records a delivery result; it matches the observe hook of
// notify.NewAsync.
func (m *Metrics) Notification(err error) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HardwareMismatch() {
	if m == nil {
		return
	}
	m.hardwareMismatches.Inc()
}
