package repositories

import (
	"context"
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
)

// BlockchainTransactionReader defines read operations for on-chain transfers
type BlockchainTransactionReader interface {
	// ListTransactionsByStatus retrieves up to limit transactions in the given statuses,
	// least recently checked first.
	ListTransactionsByStatus(ctx context.Context, statuses []domain.TxStatus, limit int) ([]domain.BlockchainTransaction, error)

	// ListTransactionsByBatch retrieves the transfers of a batch.
	ListTransactionsByBatch(ctx context.Context, batchID string) ([]domain.BlockchainTransaction, error)
}

// BlockchainTransactionWriter defines write operations for on-chain transfers
type BlockchainTransactionWriter interface {
	// MarkTransactionChecked records a lookup that returned no final answer.
	MarkTransactionChecked(ctx context.Context, transactionID string, status domain.TxStatus, checkedAt time.Time) error
}

// BlockchainTransactionRepositoryFacade combines all transfer-related repository interfaces
type BlockchainTransactionRepositoryFacade interface {
	BlockchainTransactionReader
	BlockchainTransactionWriter
}
