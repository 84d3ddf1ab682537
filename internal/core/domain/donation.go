package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DonationStatus is the settlement state of a single donation.
type DonationStatus string

const (
	DonationPending DonationStatus = "pending"
	DonationBatched DonationStatus = "batched"
	DonationSent    DonationStatus = "sent"
	DonationFailed  DonationStatus = "failed"
)

// donationTransitions lists the forward moves a donation may make. Statuses never revert.
var donationTransitions = map[DonationStatus][]DonationStatus{
	DonationPending: {DonationBatched, DonationFailed},
	DonationBatched: {DonationSent, DonationFailed},
}

// IsValid reports whether s is a known donation status.
func (s DonationStatus) IsValid() bool {
	switch s {
	case DonationPending, DonationBatched, DonationSent, DonationFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a donation in status s may move to next.
func (s DonationStatus) CanTransitionTo(next DonationStatus) bool {
	for _, allowed := range donationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Donation is a fee-adjusted contribution waiting to be settled.
// Net and fee amounts are computed upstream at ingestion and are never recomputed here.
type Donation struct {
	DonationID        string          `json:"donationID"`
	CampaignID        *string         `json:"campaignID,omitempty"`
	CampaignWallet    string          `json:"campaignWallet,omitempty"` // joined from campaigns
	GrossAmount       decimal.Decimal `json:"grossAmount"`
	SourceCurrency    string          `json:"sourceCurrency"`
	GrossAmountEur    decimal.Decimal `json:"grossAmountEur"`
	NetAmountEur      decimal.Decimal `json:"netAmountEur"`
	DebtFeeEur        decimal.Decimal `json:"debtFeeEur"`
	OperationalFeeEur decimal.Decimal `json:"operationalFeeEur"`
	TransactionFeeEur decimal.Decimal `json:"transactionFeeEur"`
	Status            DonationStatus  `json:"status"`
	BatchID           *string         `json:"batchID,omitempty"`
	ProcessedAt       *time.Time      `json:"processedAt,omitempty"`
	AuditFields
}

// TotalFeesEur returns the sum of the three stored fee components.
func (d Donation) TotalFeesEur() decimal.Decimal {
	return d.DebtFeeEur.Add(d.OperationalFeeEur).Add(d.TransactionFeeEur)
}
