package metrics

import (
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "d2c",
		Subsystem: "settlement",
		Name:      "batches_created_total",
		Help:      "Count of batches created, by origin.",
	}, []string{"source"})

	batchDonations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "d2c",
		Subsystem: "settlement",
		Name:      "batch_donations",
		Help:      "Number of donations claimed per batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"source"})

	batchTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "d2c",
		Subsystem: "settlement",
		Name:      "batch_transitions_total",
		Help:      "Count of committed batch status changes.",
	}, []string{"from", "to"})

	externalCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "d2c",
		Subsystem: "external",
		Name:      "calls_total",
		Help:      "Count of calls to payment, chain, bank and rate collaborators.",
	}, []string{"service", "status"})

	externalCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "d2c",
		Subsystem: "external",
		Name:      "call_duration_seconds",
		Help:      "Duration of calls to external collaborators.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "status"})

	monitorPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "d2c",
		Subsystem: "confirmation_monitor",
		Name:      "passes_total",
		Help:      "Count of confirmation monitor passes.",
	}, []string{"status"})

	monitorPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "d2c",
		Subsystem: "confirmation_monitor",
		Name:      "pass_duration_seconds",
		Help:      "Duration of a confirmation monitor pass.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	monitorCheckedTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "d2c",
		Subsystem: "confirmation_monitor",
		Name:      "checked_transactions_total",
		Help:      "Count of transactions looked up on chain.",
	})

	receiptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "d2c",
		Subsystem: "confirmation_monitor",
		Name:      "receipts_total",
		Help:      "Count of chain answers, by state.",
	}, []string{"state"})
)

// Settlement records the observations of the settlement services.
type Settlement struct{}

// NewSettlement constructs the settlement metrics collector.
func NewSettlement() *Settlement {
	return &Settlement{}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveBatchCreated records a new batch and its size.
func (Settlement) ObserveBatchCreated(source string, donations int) {
	if source == "" {
		source = "unknown"
	}
	batchesCreatedTotal.WithLabelValues(source).Inc()
	batchDonations.WithLabelValues(source).Observe(float64(donations))
}

// ObserveTransition records a committed status change.
func (Settlement) ObserveTransition(from, to domain.BatchStatus) {
	batchTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// ObserveExternalCall records a collaborator call outcome and duration.
func (Settlement) ObserveExternalCall(service string, err error, started time.Time) {
	s := status(err)
	externalCallsTotal.WithLabelValues(service, s).Inc()
	externalCallDuration.WithLabelValues(service, s).Observe(time.Since(started).Seconds())
}

// ObserveMonitorPass records one monitor pass.
func (Settlement) ObserveMonitorPass(checked int, err error, started time.Time) {
	s := status(err)
	monitorPassesTotal.WithLabelValues(s).Inc()
	monitorPassDuration.WithLabelValues(s).Observe(time.Since(started).Seconds())
	monitorCheckedTransactions.Add(float64(checked))
}

// ObserveReceipt records the chain's answer for one transaction.
func (Settlement) ObserveReceipt(state domain.ReceiptState) {
	receiptsTotal.WithLabelValues(string(state)).Inc()
}
