package services

import (
	"fmt"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/utils/accounting"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for a non-positive amount.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be greater than zero", apperrors.ErrValidation)
	// ErrEmptyInput is returned when an aggregate is requested over nothing.
	ErrEmptyInput = fmt.Errorf("%w: at least one donation is required", apperrors.ErrValidation)
)

// feeCalculator applies fixed percentage fees.
type feeCalculator struct {
	defaults domain.FeePercentages
}

// NewFeeCalculator creates a fee calculator with the given default split.
func NewFeeCalculator(defaults domain.FeePercentages) portssvc.FeeCalculatorSvc {
	return &feeCalculator{defaults: defaults}
}

var _ portssvc.FeeCalculatorSvc = (*feeCalculator)(nil)

func (f *feeCalculator) DefaultPercentages() domain.FeePercentages {
	return f.defaults
}

// CalculateFees rounds every component and the net amount to eight places independently,
// so the components always add up to gross − net within the allocation tolerance.
func (f *feeCalculator) CalculateFees(amount decimal.Decimal, pct domain.FeePercentages) (*domain.FeeBreakdown, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if pct.DebtPct.IsNegative() || pct.OperationalPct.IsNegative() || pct.TransactionPct.IsNegative() {
		return nil, fmt.Errorf("%w: fee percentages must not be negative", apperrors.ErrValidation)
	}
	if pct.Total().GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: fee percentages exceed 100%%", apperrors.ErrValidation)
	}

	debt := accounting.RoundFee(accounting.Percent(amount, pct.DebtPct))
	operational := accounting.RoundFee(accounting.Percent(amount, pct.OperationalPct))
	transaction := accounting.RoundFee(accounting.Percent(amount, pct.TransactionPct))
	total := accounting.Sum(debt, operational, transaction)

	return &domain.FeeBreakdown{
		GrossAmount:    amount,
		DebtFee:        debt,
		OperationalFee: operational,
		TransactionFee: transaction,
		TotalFees:      total,
		NetAmount:      accounting.RoundFee(amount.Sub(total)),
		Percentages:    pct,
	}, nil
}

// CalculateBatchFees sums the amounts stored on each donation. Nothing is recomputed.
func (f *feeCalculator) CalculateBatchFees(donations []domain.Donation) (*domain.BatchFeeTotals, error) {
	if len(donations) == 0 {
		return nil, ErrEmptyInput
	}

	totals := &domain.BatchFeeTotals{
		TotalGrossEur:       decimal.Zero,
		TotalNetEur:         decimal.Zero,
		TotalDebtFeeEur:     decimal.Zero,
		TotalOperationalEur: decimal.Zero,
		TotalTransactionEur: decimal.Zero,
		TotalFeesEur:        decimal.Zero,
	}
	for _, d := range donations {
		totals.DonationCount++
		totals.TotalGrossEur = totals.TotalGrossEur.Add(d.GrossAmountEur)
		totals.TotalNetEur = totals.TotalNetEur.Add(d.NetAmountEur)
		totals.TotalDebtFeeEur = totals.TotalDebtFeeEur.Add(d.DebtFeeEur)
		totals.TotalOperationalEur = totals.TotalOperationalEur.Add(d.OperationalFeeEur)
		totals.TotalTransactionEur = totals.TotalTransactionEur.Add(d.TransactionFeeEur)
		totals.TotalFeesEur = totals.TotalFeesEur.Add(d.TotalFeesEur())
	}
	return totals, nil
}

// buildFeeAllocations derives the per-type allocation rows of a donation from its stored amounts.
// It fails when the stored components drift from gross − net by more than the tolerance.
func buildFeeAllocations(d domain.Donation, batchID string, pct domain.FeePercentages, audit domain.AuditFields, newID func() string) ([]domain.FeeAllocation, error) {
	if !accounting.WithinTolerance(d.TotalFeesEur(), d.GrossAmountEur.Sub(d.NetAmountEur), domain.FeeAllocationTolerance) {
		return nil, fmt.Errorf("%w: donation %s fees %s do not match gross − net %s",
			apperrors.ErrValidation, d.DonationID, d.TotalFeesEur(), d.GrossAmountEur.Sub(d.NetAmountEur))
	}

	parts := []struct {
		feeType     domain.FeeType
		percent     decimal.Decimal
		amount      decimal.Decimal
		destination string
	}{
		{domain.FeeTypeDebt, pct.DebtPct, d.DebtFeeEur, domain.FeeDestinationDebt},
		{domain.FeeTypeOperational, pct.OperationalPct, d.OperationalFeeEur, domain.FeeDestinationOperational},
		{domain.FeeTypeTransaction, pct.TransactionPct, d.TransactionFeeEur, domain.FeeDestinationTransaction},
	}

	allocations := make([]domain.FeeAllocation, 0, len(parts))
	for _, p := range parts {
		allocations = append(allocations, domain.FeeAllocation{
			AllocationID: newID(),
			DonationID:   d.DonationID,
			BatchID:      batchID,
			FeeType:      p.feeType,
			Percent:      p.percent,
			AmountEur:    p.amount,
			Destination:  p.destination,
			AuditFields:  audit,
		})
	}
	return allocations, nil
}
