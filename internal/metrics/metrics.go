package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ApprovalMetrics tracks the approval engine. A nil *ApprovalMetrics is a
// valid no-op recorder.
type ApprovalMetrics struct {
	approvals     *prometheus.CounterVec
	evaluations   *prometheus.CounterVec
	registrations *prometheus.CounterVec
	regLatency    prometheus.Histogram
	transitions   *prometheus.CounterVec
}

func NewApprovalMetrics(reg prometheus.Registerer) *ApprovalMetrics {
	m := &ApprovalMetrics{
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_approvals_total",
			Help: "Approval requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_policy_evaluations_total",
			Help: "Policy evaluations by result.",
		}, []string{"result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_registrations_total",
			Help: "On-chain registration attempts by result.",
		}, []string{"result"}),
		regLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "escrow_registration_duration_seconds",
			Help:    "Latency of on-chain registration calls.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_status_transitions_total",
			Help: "Escrow status transitions.",
		}, []string{"from", "to"}),
	}
	if reg != nil {
		reg.MustRegister(m.approvals, m.evaluations, m.registrations, m.regLatency, m.transitions)
	}
	return m
}

func (m *ApprovalMetrics) ObserveApproval(op, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.approvals.WithLabelValues(op, outcome).Inc()
}

func (m *ApprovalMetrics) ObserveEvaluation(valid bool) {
	if m == nil {
		return
	}
	result := "unsatisfied"
	if valid {
		result = "satisfied"
	}
	m.evaluations.WithLabelValues(result).Inc()
}

func (m *ApprovalMetrics) ObserveRegistration(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
	m.regLatency.Observe(took.Seconds())
}

func (m *ApprovalMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}
