// Package metrics exposes Prometheus counters for the transfer engine and the
// authorization resolver. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oprema"

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	transfersInitiated prometheus.Counter
	transfersResolved  *prometheus.CounterVec
	transferConflicts  *prometheus.CounterVec
	authzDecisions     *prometheus.CounterVec
	eventClients       prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		transfersInitiated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_initiated_total",
			Help:      "Transfer requests created.",
		}),
		transfersResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_resolved_total",
			Help:      "Transfer requests resolved, by action.",
		}, []string{"action"}),
		transferConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_conflicts_total",
			Help:      "Transfer commits aborted by a failed precondition, by operation.",
		}, []string{"op"}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_decisions_total",
			Help:      "Leader authorization decisions, by result and source.",
		}, []string{"result", "source"}),
		eventClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_clients",
			Help:      "Connected live feed clients.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transfersInitiated,
		m.transfersResolved,
		m.transferConflicts,
		m.authzDecisions,
		m.eventClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TransferInitiated counts a created transfer request.
func (m *Metrics) TransferInitiated() {
	if m == nil {
		return
	}
	m.transfersInitiated.Inc()
}

// TransferResolved counts an approved or rejected request.
func (m *Metrics) TransferResolved(action string) {
	if m == nil {
		return
	}
	m.transfersResolved.WithLabelValues(action).Inc()
}

// TransferConflict counts a commit lost to a concurrent writer.
func (m *Metrics) TransferConflict(op string) {
	if m == nil {
		return
	}
	m.transferConflicts.WithLabelValues(op).Inc()
}

// AuthzDecision counts a leader decision and whether it came from the cache.
func (m *Metrics) AuthzDecision(allowed, cached bool) {
	if m == nil {
		return
	}
	result, source := "deny", "store"
	if allowed {
		result = "allow"
	}
	if cached {
		source = "cache"
	}
	m.authzDecisions.WithLabelValues(result, source).Inc()
}

// EventClients adjusts the connected feed client gauge by delta.
func (m *Metrics) EventClients(delta int) {
	if m == nil {
		return
	}
	m.eventClients.Add(float64(delta))
}
