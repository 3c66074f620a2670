// Package metrics holds the portal's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Login outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Logins         *prometheus.CounterVec
	IdleLogouts    prometheus.Counter
	StoreErrors    *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	RosterSweeps   *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_logins_total",
			Help: "Login attempts by resolved role and outcome.",
		}, []string{"role", "outcome"}),
		IdleLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_idle_logouts_total",
			Help: "Sessions ended by the inactivity timer.",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_store_errors_total",
			Help: "Failed data store round-trips by collection.",
		}, []string{"collection"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_active_sessions",
			Help: "Sessions currently tracked by this process.",
		}),
		RosterSweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_roster_sweeps_total",
			Help: "Roster reconciliation runs by trigger.",
		}, []string{"trigger"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_roster_queue_depth",
			Help: "Roster events waiting to be consumed.",
		}),
	}
	reg.MustRegister(m.Logins, m.IdleLogouts, m.StoreErrors, m.ActiveSessions, m.RosterSweeps, m.QueueDepth)
	return m
}

func (m *Metrics) Login(role, outcome string) {
	if m == nil {
		return
	}
	if role == "" {
		role = "none"
	}
	m.Logins.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) IdleLogout() {
	if m == nil {
		return
	}
	m.IdleLogouts.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) StoreError(collection string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(collection).Inc()
}

func (m *Metrics) Sweep(trigger string) {
	if m == nil {
		return
	}
	m.RosterSweeps.WithLabelValues(trigger).Inc()
}

func (m *Metrics) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
