// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for xmpproxy.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session outcome labels.
const (
	StatusConnected = "connected"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
	StatusClosed    = "closed"
)

// Metrics holds all Prometheus metrics for xmpproxy.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Negotiation metrics
	NegotiationSteps    *prometheus.CounterVec
	NegotiationFailures *prometheus.CounterVec
	AuthAttempts        prometheus.Counter
	AuthFailures        *prometheus.CounterVec

	// Stanza metrics
	Stanzas          *prometheus.CounterVec
	StanzasRejected  *prometheus.CounterVec
	StanzasDropped   *prometheus.CounterVec
	MessagesBySender *prometheus.CounterVec

	// Stream metrics
	BytesRelayed      *prometheus.CounterVec
	IncompleteDecodes *prometheus.CounterVec
	BufferGrowth      *prometheus.CounterVec

	// Backend metrics
	BackendDialErrors prometheus.Counter
	BackendDuration   prometheus.Histogram
	BreakerState      prometheus.Gauge

	// Admin metrics
	AdminCommands *prometheus.CounterVec
}

// New creates a new Metrics instance registered with reg. A nil reg registers
// with the Prometheus default registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "xmpproxy"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	m := &Metrics{
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of currently open client sessions",
			},
		),
		SessionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of sessions by outcome",
			},
			[]string{"status"},
		),
		SessionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Session duration in seconds",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 600, 3600},
			},
		),
		NegotiationSteps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "negotiation_steps_total",
				Help:      "Total number of negotiation transitions by target state",
			},
			[]string{"state"},
		),
		NegotiationFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "negotiation_failures_total",
				Help:      "Total number of negotiation inputs that could not be handled",
			},
			[]string{"state", "reason"},
		),
		AuthAttempts: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Total number of SASL PLAIN exchanges observed",
			},
		),
		AuthFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),
		Stanzas: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stanzas_total",
				Help:      "Total number of stanzas decoded",
			},
			[]string{"kind", "direction"},
		),
		StanzasRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stanzas_rejected_total",
				Help:      "Total number of stanzas rejected by a filter",
			},
			[]string{"kind"},
		),
		StanzasDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stanzas_dropped_total",
				Help:      "Total number of stanzas that were not forwarded",
			},
			[]string{"reason"},
		),
		MessagesBySender: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_by_sender_total",
				Help:      "Total number of messages per sender address",
			},
			[]string{"sender"},
		),
		BytesRelayed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_relayed_total",
				Help:      "Total number of bytes written to each peer",
			},
			[]string{"peer"},
		),
		IncompleteDecodes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "incomplete_decodes_total",
				Help:      "Total number of decode attempts that needed more input",
			},
			[]string{"direction"},
		),
		BufferGrowth: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buffer_growth_total",
				Help:      "Total number of buffer capacity doublings",
			},
			[]string{"buffer"},
		),
		BackendDialErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_dial_errors_total",
				Help:      "Total number of failed backend dials",
			},
		),
		BackendDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_dial_duration_seconds",
				Help:      "Backend dial duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		BreakerState: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_breaker_state",
				Help:      "Backend circuit breaker state (0 closed, 1 half open, 2 open)",
			},
		),
		AdminCommands: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_commands_total",
				Help:      "Total number of admin commands processed",
			},
			[]string{"command", "status"},
		),
	}

	return m
}

// SessionOpened records a newly accepted client.
func (m *Metrics) SessionOpened() {
	m.ActiveSessions.Inc()
}

// SessionClosed records the end of a session that started at start.
func (m *Metrics) SessionClosed(status string, start time.Time) {
	m.ActiveSessions.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(time.Since(start).Seconds())
}

// ObserveDial tracks a backend dial.
func (m *Metrics) ObserveDial(f func() error) error {
	start := time.Now()
	err := f()
	m.BackendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.BackendDialErrors.Inc()
	}
	return err
}
