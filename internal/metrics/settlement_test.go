package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var _ services.Metrics = (*Settlement)(nil)

func delta(t *testing.T, collector prometheus.Collector, observe func()) float64 {
	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	after := testutil.ToFloat64(collector)
	return after - before
}

func TestSettlementRecordsBatches(t *testing.T) {
	m := NewSettlement()

	assert.Equal(t, 1.0, delta(t, batchesCreatedTotal.WithLabelValues("pending"), func() {
		m.ObserveBatchCreated("pending", 3)
	}))
	assert.Equal(t, 1.0, delta(t, batchesCreatedTotal.WithLabelValues("unknown"), func() {
		m.ObserveBatchCreated("", 1)
	}))
	assert.Equal(t, 1.0, delta(t, batchTransitionsTotal.WithLabelValues("sending", "completed"), func() {
		m.ObserveTransition(domain.BatchSending, domain.BatchCompleted)
	}))
}

func TestSettlementRecordsExternalCalls(t *testing.T) {
	m := NewSettlement()
	start := time.Now().Add(-200 * time.Millisecond)

	assert.Equal(t, 1.0, delta(t, externalCallsTotal.WithLabelValues("payment_gateway", "success"), func() {
		m.ObserveExternalCall("payment_gateway", nil, start)
	}))
	assert.Equal(t, 1.0, delta(t, externalCallsTotal.WithLabelValues("payment_gateway", "error"), func() {
		m.ObserveExternalCall("payment_gateway", errors.New("timeout"), start)
	}))
}

func TestSettlementRecordsMonitor(t *testing.T) {
	m := NewSettlement()
	start := time.Now().Add(-time.Second)

	assert.Equal(t, 4.0, delta(t, monitorCheckedTransactions, func() {
		m.ObserveMonitorPass(4, nil, start)
	}))
	assert.Equal(t, 1.0, delta(t, monitorPassesTotal.WithLabelValues("error"), func() {
		m.ObserveMonitorPass(0, errors.New("db down"), start)
	}))
	assert.Equal(t, 1.0, delta(t, receiptsTotal.WithLabelValues("confirmed"), func() {
		m.ObserveReceipt(domain.ReceiptConfirmed)
	}))
}
