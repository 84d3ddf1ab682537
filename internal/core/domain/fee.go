package domain

import "github.com/shopspring/decimal"

// FeeType names one of the fixed-percentage deductions applied to a gross donation.
type FeeType string

const (
	FeeTypeDebt        FeeType = "debt"
	FeeTypeOperational FeeType = "operational"
	FeeTypeTransaction FeeType = "transaction"
)

// Destinations of withheld fee amounts.
const (
	FeeDestinationDebt        = "debt_settlement"
	FeeDestinationOperational = "operations"
	FeeDestinationTransaction = "transaction_costs"
)

// FeeAllocationTolerance bounds the drift allowed between Σfees and gross − net.
var FeeAllocationTolerance = decimal.New(1, -8)

// FeePercentages configures the fee split. Values are percentages, 10 means 10%.
type FeePercentages struct {
	DebtPct        decimal.Decimal `json:"debtPct"`
	OperationalPct decimal.Decimal `json:"operationalPct"`
	TransactionPct decimal.Decimal `json:"transactionPct"`
}

// DefaultFeePercentages is the 10/10/5 split used when nothing else is configured.
func DefaultFeePercentages() FeePercentages {
	return FeePercentages{
		DebtPct:        decimal.NewFromInt(10),
		OperationalPct: decimal.NewFromInt(10),
		TransactionPct: decimal.NewFromInt(5),
	}
}

// Total returns the combined fee percentage.
func (p FeePercentages) Total() decimal.Decimal {
	return p.DebtPct.Add(p.OperationalPct).Add(p.TransactionPct)
}

// FeeBreakdown is the result of applying FeePercentages to a gross amount.
type FeeBreakdown struct {
	GrossAmount    decimal.Decimal `json:"grossAmount"`
	DebtFee        decimal.Decimal `json:"debtFee"`
	OperationalFee decimal.Decimal `json:"operationalFee"`
	TransactionFee decimal.Decimal `json:"transactionFee"`
	TotalFees      decimal.Decimal `json:"totalFees"`
	NetAmount      decimal.Decimal `json:"netAmount"`
	Percentages    FeePercentages  `json:"percentages"`
}

// BatchFeeTotals aggregates the stored amounts of a set of donations.
type BatchFeeTotals struct {
	DonationCount       int             `json:"donationCount"`
	TotalGrossEur       decimal.Decimal `json:"totalGrossEur"`
	TotalNetEur         decimal.Decimal `json:"totalNetEur"`
	TotalDebtFeeEur     decimal.Decimal `json:"totalDebtFeeEur"`
	TotalOperationalEur decimal.Decimal `json:"totalOperationalFeeEur"`
	TotalTransactionEur decimal.Decimal `json:"totalTransactionFeeEur"`
	TotalFeesEur        decimal.Decimal `json:"totalFeesEur"`
}

// FeeAllocation records where one fee component of one donation is destined.
type FeeAllocation struct {
	AllocationID string          `json:"allocationID"`
	DonationID   string          `json:"donationID"`
	BatchID      string          `json:"batchID"`
	FeeType      FeeType         `json:"feeType"`
	Percent      decimal.Decimal `json:"percent"`
	AmountEur    decimal.Decimal `json:"amountEur"`
	Destination  string          `json:"destination"`
	Transferred  bool            `json:"transferred"`
	AuditFields
}
