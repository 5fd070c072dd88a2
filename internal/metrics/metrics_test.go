package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestApprovalMetrics(t *testing.T) {
	m := NewApprovalMetrics(prometheus.NewRegistry())

	m.ObserveApproval("add", "ok")
	m.ObserveApproval("add", "ok")
	m.ObserveApproval("add", "")
	m.ObserveEvaluation(true)
	m.ObserveRegistration("fault", time.Second)
	m.ObserveTransition("submitted", "approved")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.approvals.WithLabelValues("add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.approvals.WithLabelValues("add", "unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("satisfied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.registrations.WithLabelValues("fault")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("submitted", "approved")))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *ApprovalMetrics
	m.ObserveApproval("add", "ok")
	m.ObserveEvaluation(false)
	m.ObserveRegistration("ok", 0)
	m.ObserveTransition("a", "b")
}
