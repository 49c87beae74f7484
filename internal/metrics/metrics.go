// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveFormSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_form_sessions",
			Help: "Number of form-session gates currently held in memory.",
		})

	FormSessionEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "form_session_evict_total",
			Help: "Cumulative number of idle form-session gates evicted.",
		})

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_submissions_total",
			Help: "Form submissions by form and outcome.",
		}, []string{"form", "outcome"})

	GateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_gate_rejections_total",
			Help: "Submissions rejected by the security gate, by form and reason.",
		}, []string{"form", "reason"})

	TransmitErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_transmit_errors_total",
			Help: "Transport failures while forwarding to intake endpoints.",
		}, []string{"form"})

	CheckoutEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_events_total",
			Help: "Payment checkout lifecycle events (opened, paid, failed, dismissed).",
		}, []string{"event"})
)

func init() {
	prometheus.MustRegister(
		ActiveFormSessions,
		FormSessionEvictTotal,
		SubmissionsTotal,
		GateRejectionsTotal,
		TransmitErrorsTotal,
		CheckoutEventsTotal,
	)
}
