package pgsql

import (
	"context"
	"fmt"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	"github.com/Dours-d/D2C/internal/models"
	"github.com/Dours-d/D2C/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `
	transaction_id, batch_id, tx_hash, network, amount_usdt, status, confirmations,
	block_number, error_message, last_checked_at, created_at, updated_at`

// PgxBlockchainTransactionRepository reads and stamps on-chain transfers. Inserts and final
// status changes go through the batch transition so they commit with the batch row.
type PgxBlockchainTransactionRepository struct {
	BaseRepository
}

func newPgxBlockchainTransactionRepository(pool *pgxpool.Pool) portsrepo.BlockchainTransactionRepositoryFacade {
	return &PgxBlockchainTransactionRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.BlockchainTransactionRepositoryFacade = (*PgxBlockchainTransactionRepository)(nil)

// ListTransactionsByStatus retrieves up to limit transactions in the given statuses, those never
// checked first and then the least recently checked.
func (r *PgxBlockchainTransactionRepository) ListTransactionsByStatus(ctx context.Context, statuses []domain.TxStatus, limit int) ([]domain.BlockchainTransaction, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	query := `SELECT ` + transactionColumns + `
		FROM blockchain_transactions
		WHERE status = ANY($1)
		ORDER BY last_checked_at ASC NULLS FIRST, created_at ASC
		LIMIT $2`

	rows, err := r.Pool.Query(ctx, query, values, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by status: %w", err)
	}
	return collectTransactions(rows)
}

// ListTransactionsByBatch retrieves the transfers of a batch, oldest first.
func (r *PgxBlockchainTransactionRepository) ListTransactionsByBatch(ctx context.Context, batchID string) ([]domain.BlockchainTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM blockchain_transactions
		WHERE batch_id = $1
		ORDER BY created_at ASC`

	rows, err := r.Pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions of batch %s: %w", batchID, err)
	}
	return collectTransactions(rows)
}

// MarkTransactionChecked records a lookup that returned no final answer.
func (r *PgxBlockchainTransactionRepository) MarkTransactionChecked(ctx context.Context, transactionID string, status domain.TxStatus, checkedAt time.Time) error {
	tag, err := r.Pool.Exec(ctx, `
		UPDATE blockchain_transactions
		SET status = $1, last_checked_at = $2, updated_at = $2
		WHERE transaction_id = $3`,
		string(status), checkedAt, transactionID)
	if err != nil {
		return fmt.Errorf("failed to stamp transaction %s: %w", transactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, apperrors.ErrNotFound)
	}
	return nil
}

func collectTransactions(rows pgx.Rows) ([]domain.BlockchainTransaction, error) {
	defer rows.Close()

	txs := []domain.BlockchainTransaction{}
	for rows.Next() {
		var m models.BlockchainTransaction
		if err := rows.Scan(
			&m.TransactionID,
			&m.BatchID,
			&m.TxHash,
			&m.Network,
			&m.AmountUsdt,
			&m.Status,
			&m.Confirmations,
			&m.BlockNumber,
			&m.ErrorMessage,
			&m.LastCheckedAt,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txs = append(txs, mapping.ToDomainBlockchainTransaction(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txs, nil
}
