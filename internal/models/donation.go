package models

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// Donation is a row of the donations table joined with its campaign wallet.
type Donation struct {
	DonationID        string          `db:"donation_id"`
	CampaignID        sql.NullString  `db:"campaign_id"`
	CampaignWallet    sql.NullString  `db:"wallet_address"` // from campaigns
	GrossAmount       decimal.Decimal `db:"gross_amount"`
	SourceCurrency    string          `db:"source_currency"`
	GrossAmountEur    decimal.Decimal `db:"gross_amount_eur"`
	NetAmountEur      decimal.Decimal `db:"net_amount_eur"`
	DebtFeeEur        decimal.Decimal `db:"debt_fee_eur"`
	OperationalFeeEur decimal.Decimal `db:"operational_fee_eur"`
	TransactionFeeEur decimal.Decimal `db:"transaction_fee_eur"`
	Status            string          `db:"status"`
	BatchID           sql.NullString  `db:"batch_id"`
	ProcessedAt       sql.NullTime    `db:"processed_at"`
	AuditFields
}

// FeeAllocation is one fee component of one donation, written when the donation is claimed.
type FeeAllocation struct {
	AllocationID string          `db:"allocation_id"`
	DonationID   string          `db:"donation_id"`
	BatchID      string          `db:"batch_id"`
	FeeType      string          `db:"fee_type"`
	Percent      decimal.Decimal `db:"percent"`
	AmountEur    decimal.Decimal `db:"amount_eur"`
	Destination  string          `db:"destination"`
	Transferred  bool            `db:"transferred"`
	AuditFields
}
