package models

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// Batch is a row of the batches table. Metadata is the JSON encoding of domain.BatchMetadata.
type Batch struct {
	BatchID                string              `db:"batch_id"`
	CampaignID             sql.NullString      `db:"campaign_id"`
	DonationIDs            []string            `db:"donation_ids"`
	DonationCount          int                 `db:"donation_count"`
	TotalGrossEur          decimal.Decimal     `db:"total_gross_eur"`
	TotalNetEur            decimal.Decimal     `db:"total_net_eur"`
	TotalDebtFeeEur        decimal.Decimal     `db:"total_debt_fee_eur"`
	TotalOperationalFeeEur decimal.Decimal     `db:"total_operational_fee_eur"`
	TotalTransactionFeeEur decimal.Decimal     `db:"total_transaction_fee_eur"`
	TotalFeesEur           decimal.Decimal     `db:"total_fees_eur"`
	TargetCurrency         string              `db:"target_currency"`
	TargetAmount           decimal.NullDecimal `db:"target_amount"`
	ExchangeRate           decimal.NullDecimal `db:"exchange_rate"`
	RateSource             sql.NullString      `db:"rate_source"`
	RateSnapshotAt         sql.NullTime        `db:"rate_snapshot_at"`
	TargetWallet           string              `db:"target_wallet"`
	Network                string              `db:"network"`
	Status                 string              `db:"status"`
	Metadata               []byte              `db:"metadata"`
	InitiatedAt            sql.NullTime        `db:"initiated_at"`
	SentToBlockchainAt     sql.NullTime        `db:"sent_to_blockchain_at"`
	CompletedAt            sql.NullTime        `db:"completed_at"`
	Revision               int64               `db:"revision"`
	AuditFields
}
