package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// BlockchainTransaction is a row of the blockchain_transactions table.
type BlockchainTransaction struct {
	TransactionID string          `db:"transaction_id"`
	BatchID       string          `db:"batch_id"`
	TxHash        string          `db:"tx_hash"`
	Network       string          `db:"network"`
	AmountUsdt    decimal.Decimal `db:"amount_usdt"`
	Status        string          `db:"status"`
	Confirmations int             `db:"confirmations"`
	BlockNumber   sql.NullInt64   `db:"block_number"`
	ErrorMessage  sql.NullString  `db:"error_message"`
	LastCheckedAt sql.NullTime    `db:"last_checked_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}
