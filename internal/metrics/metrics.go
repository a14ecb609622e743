// Package metrics exposes Prometheus counters for session and guard activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dealergate counters. The zero value and a nil *Metrics
// are both no-ops.
type Metrics struct {
	enabled bool

	profileFetches *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	provisioning   *prometheus.CounterVec
	signIns        *prometheus.CounterVec
}

// New registers the counters on reg. A nil registerer returns a no-op instance.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{enabled: reg != nil}
	if !m.enabled {
		return m
	}
	f := promauto.With(reg)

	m.profileFetches = f.NewCounterVec(prometheus.CounterOpts{
		Name: "dealergate_profile_fetches_total",
		Help: "Profile+tenant fetches by outcome",
	}, []string{"result"})

	m.decisions = f.NewCounterVec(prometheus.CounterOpts{
		Name: "dealergate_guard_decisions_total",
		Help: "Route authorization decisions by policy and state",
	}, []string{"policy", "state"})

	m.provisioning = f.NewCounterVec(prometheus.CounterOpts{
		Name: "dealergate_provisioning_total",
		Help: "Account provisioning attempts by operation and result",
	}, []string{"op", "result"})

	m.signIns = f.NewCounterVec(prometheus.CounterOpts{
		Name: "dealergate_sign_ins_total",
		Help: "Sign-in attempts by result",
	}, []string{"result"})

	return m
}

func (m *Metrics) on() bool { return m != nil && m.enabled }

// ProfileFetch records a fetch outcome: ok, missing, error or timeout.
func (m *Metrics) ProfileFetch(result string) {
	if m.on() {
		m.profileFetches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Decision(policy, state string) {
	if m.on() {
		m.decisions.WithLabelValues(policy, state).Inc()
	}
}

func (m *Metrics) Provisioning(op, result string) {
	if m.on() {
		m.provisioning.WithLabelValues(op, result).Inc()
	}
}

func (m *Metrics) SignIn(result string) {
	if m.on() {
		m.signIns.WithLabelValues(result).Inc()
	}
}
