package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus is the local view of an on-chain transfer.
type TxStatus string

const (
	TxPending    TxStatus = "pending"
	TxProcessing TxStatus = "processing"
	TxConfirmed  TxStatus = "confirmed"
	TxFailed     TxStatus = "failed"
)

// BlockchainTransaction is an on-chain transfer waiting for, or holding, a receipt.
type BlockchainTransaction struct {
	TransactionID string          `json:"transactionID"`
	BatchID       string          `json:"batchID"`
	TxHash        string          `json:"txHash"`
	Network       string          `json:"network"`
	AmountUsdt    decimal.Decimal `json:"amountUsdt"`
	Status        TxStatus        `json:"status"`
	Confirmations int             `json:"confirmations"`
	BlockNumber   *int64          `json:"blockNumber,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	LastCheckedAt *time.Time      `json:"lastCheckedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ReceiptState is the chain's answer for a transaction hash.
type ReceiptState string

const (
	ReceiptPending   ReceiptState = "pending"
	ReceiptConfirmed ReceiptState = "confirmed"
	ReceiptFailed    ReceiptState = "failed"
)

// ChainReceipt is returned by the blockchain gateway for a hash lookup.
type ChainReceipt struct {
	TxHash      string       `json:"txHash"`
	State       ReceiptState `json:"state"`
	BlockNumber *int64       `json:"blockNumber,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// Confirmed reports whether the receipt is a success.
func (r ChainReceipt) Confirmed() bool {
	return r.State == ReceiptConfirmed
}

// SettlementEventType names a published lifecycle event.
type SettlementEventType string

const (
	EventBatchStatusChanged   SettlementEventType = "batch.status_changed"
	EventTransactionConfirmed SettlementEventType = "transaction.confirmed"
	EventTransactionFailed    SettlementEventType = "transaction.failed"
)

// SettlementEvent is emitted after a state change has been committed.
type SettlementEvent struct {
	EventID    string              `json:"eventId"`
	Type       SettlementEventType `json:"type"`
	BatchID    string              `json:"batchId"`
	Status     BatchStatus         `json:"status"`
	PrevStatus BatchStatus         `json:"previousStatus,omitempty"`
	TxHash     string              `json:"txHash,omitempty"`
	Message    string              `json:"message,omitempty"`
	OccurredAt time.Time           `json:"occurredAt"`
}
