// Package metrics owns Huddle's Prometheus collectors.
//
// All methods are safe on a nil *Metrics so packages can run without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "huddle"

// Metrics groups the collectors exercised by the session and realtime layers.
type Metrics struct {
	verifications *prometheus.CounterVec
	rotations     prometheus.Counter
	logins        *prometheus.CounterVec
	connections   prometheus.Gauge
	broadcasts    *prometheus.CounterVec
}

// New registers collectors on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "verifications_total",
			Help:      "Session verifications by outcome.",
		}, []string{"outcome"}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_rotations_total",
			Help:      "Refresh credentials rotated.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Currently open realtime connections.",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "broadcasts_total",
			Help:      "Room broadcasts by event.",
		}, []string{"event"}),
	}

	reg.MustRegister(m.verifications, m.rotations, m.logins, m.connections, m.broadcasts)
	return m
}

// Verification counts one verifier outcome.
func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// Rotation counts one refresh rotation.
func (m *Metrics) Rotation() {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

// Login counts one login attempt.
func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// ConnectionOpened tracks a realtime connection entering the gateway.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed tracks a realtime connection leaving the gateway.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// Broadcast counts one fan-out of event.
func (m *Metrics) Broadcast(event string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(event).Inc()
}
