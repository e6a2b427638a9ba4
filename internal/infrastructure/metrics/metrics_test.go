package metrics

import (
	"testing"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := New()

	m.OutboxDelivered("hybrid", true)
	m.OutboxDelivered("hybrid", true)
	m.OutboxDelivered("polling", false)
	m.OutboxBacklog(entity.OutboxSendFail, 3)
	m.Reconciled("canceled")
	m.AlertRaised(entity.SeverityCritical)

	assert.InDelta(t, 2, testutil.ToFloat64(m.outboxDelivered.WithLabelValues("hybrid", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.outboxDelivered.WithLabelValues("polling", "failure")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.outboxBacklog.WithLabelValues("SEND_FAIL")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.reconciled.WithLabelValues("canceled")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.alerts.WithLabelValues("CRITICAL")), 0)
}
