package services

import (
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/shopspring/decimal"
)

// FeeCalculatorSvc computes fee splits. It holds no state and performs no I/O.
type FeeCalculatorSvc interface {
	// CalculateFees applies the percentages to a gross amount.
	CalculateFees(amount decimal.Decimal, pct domain.FeePercentages) (*domain.FeeBreakdown, error)

	// CalculateBatchFees sums the stored amounts of the donations.
	CalculateBatchFees(donations []domain.Donation) (*domain.BatchFeeTotals, error)

	// DefaultPercentages returns the configured split.
	DefaultPercentages() domain.FeePercentages
}
