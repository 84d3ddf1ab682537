package services

import (
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
)

// Metrics receives the observations of the settlement services.
type Metrics interface {
	ObserveBatchCreated(source string, donations int)
	ObserveTransition(from, to domain.BatchStatus)
	ObserveExternalCall(service string, err error, started time.Time)
	ObserveMonitorPass(checked int, err error, started time.Time)
	ObserveReceipt(state domain.ReceiptState)
}

type noopMetrics struct{}

func (noopMetrics) ObserveBatchCreated(string, int) {}
func (noopMetrics) ObserveTransition(domain.BatchStatus, domain.BatchStatus) {}
func (noopMetrics) ObserveExternalCall(string, error, time.Time) {}
func (noopMetrics) ObserveMonitorPass(int, error, time.Time) {}
func (noopMetrics) ObserveReceipt(domain.ReceiptState) {}
