package pgsql

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	"github.com/Dours-d/D2C/internal/models"
	"github.com/Dours-d/D2C/internal/utils/mapping"
	"github.com/Dours-d/D2C/internal/utils/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const batchColumns = `
	batch_id, campaign_id, donation_ids, donation_count,
	total_gross_eur, total_net_eur, total_debt_fee_eur, total_operational_fee_eur, total_transaction_fee_eur, total_fees_eur,
	target_currency, target_amount, exchange_rate, rate_source, rate_snapshot_at,
	target_wallet, network, status, metadata,
	initiated_at, sent_to_blockchain_at, completed_at, revision,
	created_at, created_by, last_updated_at, last_updated_by`

const defaultBatchPageSize = 20

// PgxBatchRepository persists batches, their fee allocations and their lifecycle steps.
type PgxBatchRepository struct {
	BaseRepository
}

func newPgxBatchRepository(pool *pgxpool.Pool) portsrepo.BatchRepositoryFacade {
	return &PgxBatchRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.BatchRepositoryFacade = (*PgxBatchRepository)(nil)

// CreateBatchWithClaim claims the pending donations, builds the batch from the claimed rows and
// inserts it with its fee allocations in one database transaction.
func (r *PgxBatchRepository) CreateBatchWithClaim(ctx context.Context, batchID string, donationIDs []string, build portsrepo.BatchBuilder) (*domain.Batch, error) {
	tx, err := r.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Rollback(ctx, tx) // no-op after commit

	// The claim is a single conditional update, so two concurrent claims cannot both take a row.
	claimQuery := `
		WITH d AS (
			UPDATE donations
			SET status = $1, batch_id = $2
			WHERE donation_id = ANY($3) AND status = $4
			RETURNING *
		)
		SELECT ` + donationColumns + `
		FROM d
		LEFT JOIN campaigns c ON c.campaign_id = d.campaign_id
		ORDER BY d.created_at, d.donation_id`
	rows, err := tx.Query(ctx, claimQuery,
		string(domain.DonationBatched), batchID, donationIDs, string(domain.DonationPending))
	if err != nil {
		return nil, fmt.Errorf("failed to claim donations for batch %s: %w", batchID, err)
	}
	claimed, err := collectDonations(rows)
	if err != nil {
		return nil, err
	}
	if len(claimed) < len(donationIDs) {
		return nil, fmt.Errorf("claimed %d of %d donations: %w", len(claimed), len(donationIDs), apperrors.ErrNoPendingDonations)
	}

	batch, allocations, err := build(claimed)
	if err != nil {
		return nil, err
	}
	m, err := mapping.ToModelBatch(batch)
	if err != nil {
		return nil, err
	}

	insertQuery := `INSERT INTO batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26, $27)`
	queue := &pgx.Batch{}
	queue.Queue(insertQuery,
		m.BatchID,
		m.CampaignID,
		m.DonationIDs,
		m.DonationCount,
		m.TotalGrossEur,
		m.TotalNetEur,
		m.TotalDebtFeeEur,
		m.TotalOperationalFeeEur,
		m.TotalTransactionFeeEur,
		m.TotalFeesEur,
		m.TargetCurrency,
		m.TargetAmount,
		m.ExchangeRate,
		m.RateSource,
		m.RateSnapshotAt,
		m.TargetWallet,
		m.Network,
		m.Status,
		m.Metadata,
		m.InitiatedAt,
		m.SentToBlockchainAt,
		m.CompletedAt,
		m.Revision,
		m.CreatedAt,
		m.CreatedBy,
		m.LastUpdatedAt,
		m.LastUpdatedBy,
	)
	queue.Queue(`UPDATE donations SET last_updated_at = $1, last_updated_by = $2 WHERE batch_id = $3`,
		m.CreatedAt, m.CreatedBy, m.BatchID)

	allocationQuery := `
		INSERT INTO fee_allocations (
			allocation_id, donation_id, batch_id, fee_type, percent, amount_eur, destination, transferred,
			created_at, created_by, last_updated_at, last_updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	for _, a := range allocations {
		ma := mapping.ToModelFeeAllocation(a)
		queue.Queue(allocationQuery,
			ma.AllocationID,
			ma.DonationID,
			ma.BatchID,
			ma.FeeType,
			ma.Percent,
			ma.AmountEur,
			ma.Destination,
			ma.Transferred,
			ma.CreatedAt,
			ma.CreatedBy,
			ma.LastUpdatedAt,
			ma.LastUpdatedBy,
		)
	}

	if err := tx.SendBatch(ctx, queue).Close(); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("batch %s: %w", batchID, apperrors.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert batch %s: %w", batchID, err)
	}
	if err := r.Commit(ctx, tx); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ApplyTransition writes a lifecycle step. The batch update is conditional on the stored status
// and revision; a miss means another writer moved the batch first.
func (r *PgxBatchRepository) ApplyTransition(ctx context.Context, t portsrepo.BatchTransition) error {
	m, err := mapping.ToModelBatch(t.Batch)
	if err != nil {
		return err
	}

	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	updateQuery := `
		UPDATE batches SET
			campaign_id = $1, donation_ids = $2, donation_count = $3,
			total_gross_eur = $4, total_net_eur = $5, total_debt_fee_eur = $6,
			total_operational_fee_eur = $7, total_transaction_fee_eur = $8, total_fees_eur = $9,
			target_currency = $10, target_amount = $11, exchange_rate = $12, rate_source = $13, rate_snapshot_at = $14,
			target_wallet = $15, network = $16, status = $17, metadata = $18,
			initiated_at = $19, sent_to_blockchain_at = $20, completed_at = $21,
			last_updated_at = $22, last_updated_by = $23,
			revision = revision + 1
		WHERE batch_id = $24 AND status = $25 AND revision = $26`
	tag, err := tx.Exec(ctx, updateQuery,
		m.CampaignID,
		m.DonationIDs,
		m.DonationCount,
		m.TotalGrossEur,
		m.TotalNetEur,
		m.TotalDebtFeeEur,
		m.TotalOperationalFeeEur,
		m.TotalTransactionFeeEur,
		m.TotalFeesEur,
		m.TargetCurrency,
		m.TargetAmount,
		m.ExchangeRate,
		m.RateSource,
		m.RateSnapshotAt,
		m.TargetWallet,
		m.Network,
		m.Status,
		m.Metadata,
		m.InitiatedAt,
		m.SentToBlockchainAt,
		m.CompletedAt,
		m.LastUpdatedAt,
		m.LastUpdatedBy,
		m.BatchID,
		string(t.FromStatus),
		m.Revision,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch %s: %w", m.BatchID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM batches WHERE batch_id = $1)`, m.BatchID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check batch %s: %w", m.BatchID, err)
		}
		if !exists {
			return fmt.Errorf("batch %s: %w", m.BatchID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("batch %s is no longer %s at revision %d: %w", m.BatchID, t.FromStatus, m.Revision, apperrors.ErrInvalidState)
	}

	queue := &pgx.Batch{}
	if t.DonationStatus != "" {
		queue.Queue(`
			UPDATE donations SET
				status = $1,
				processed_at = CASE WHEN $1 = $2 THEN $3 ELSE processed_at END,
				last_updated_at = $3, last_updated_by = $4
			WHERE batch_id = $5 AND status = $6`,
			string(t.DonationStatus), string(domain.DonationSent), m.LastUpdatedAt, m.LastUpdatedBy,
			m.BatchID, string(domain.DonationBatched))
	}
	for _, bt := range t.NewTransactions {
		mt := mapping.ToModelBlockchainTransaction(bt)
		queue.Queue(`
			INSERT INTO blockchain_transactions (
				transaction_id, batch_id, tx_hash, network, amount_usdt, status, confirmations,
				block_number, error_message, last_checked_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			mt.TransactionID,
			mt.BatchID,
			mt.TxHash,
			mt.Network,
			mt.AmountUsdt,
			mt.Status,
			mt.Confirmations,
			mt.BlockNumber,
			mt.ErrorMessage,
			mt.LastCheckedAt,
			mt.CreatedAt,
			mt.UpdatedAt,
		)
	}
	if t.UpdatedTransaction != nil {
		mt := mapping.ToModelBlockchainTransaction(*t.UpdatedTransaction)
		queue.Queue(`
			UPDATE blockchain_transactions SET
				status = $1, confirmations = $2, block_number = $3, error_message = $4,
				last_checked_at = $5, updated_at = $6
			WHERE transaction_id = $7`,
			mt.Status,
			mt.Confirmations,
			mt.BlockNumber,
			mt.ErrorMessage,
			mt.LastCheckedAt,
			mt.UpdatedAt,
			mt.TransactionID,
		)
	}
	if queue.Len() > 0 {
		if err := tx.SendBatch(ctx, queue).Close(); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("transaction of batch %s: %w", m.BatchID, apperrors.ErrDuplicate)
			}
			return fmt.Errorf("failed to write transition side effects for batch %s: %w", m.BatchID, err)
		}
	}

	return r.Commit(ctx, tx)
}

// FindBatchByID retrieves a specific batch by its unique identifier.
func (r *PgxBatchRepository) FindBatchByID(ctx context.Context, batchID string) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE batch_id = $1`
	b, err := scanBatch(r.Pool.QueryRow(ctx, query, batchID))
	if err != nil {
		return nil, notFound(err, "batch "+batchID)
	}
	return b, nil
}

// FindBatchByQuoteID retrieves the batch whose metadata carries the settlement quote id, either
// as the batch quote or as the quote of one executed settlement group.
func (r *PgxBatchRepository) FindBatchByQuoteID(ctx context.Context, quoteID string) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches
		WHERE metadata->'externalRefs'->>'quoteId' = $1
		   OR metadata->'settlement'->'groups' @> jsonb_build_array(jsonb_build_object('quoteId', $1::text))
		ORDER BY created_at DESC
		LIMIT 1`
	b, err := scanBatch(r.Pool.QueryRow(ctx, query, quoteID))
	if err != nil {
		return nil, notFound(err, "batch for quote "+quoteID)
	}
	return b, nil
}

// ListBatches retrieves a page of batches, newest first, using token-based pagination.
// It returns the list of batches, a token for the next page (if any), and an error.
func (r *PgxBatchRepository) ListBatches(ctx context.Context, params portsrepo.ListBatchesParams) ([]domain.Batch, *string, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultBatchPageSize
	}
	// One extra row tells us whether there is a next page.
	fetchLimit := limit + 1

	query := `SELECT ` + batchColumns + ` FROM batches WHERE 1=1`
	args := []interface{}{}
	if params.Status != nil {
		args = append(args, string(*params.Status))
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	if params.CampaignID != nil {
		args = append(args, *params.CampaignID)
		query += " AND campaign_id = $" + strconv.Itoa(len(args))
	}
	if params.NextToken != nil && *params.NextToken != "" {
		cursor, err := pagination.DecodeToken(*params.NextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid nextToken: %v", apperrors.ErrValidation, err)
		}
		args = append(args, cursor.CreatedAt, cursor.ID)
		query += " AND (created_at, batch_id) < ($" + strconv.Itoa(len(args)-1) + ", $" + strconv.Itoa(len(args)) + ")"
	}
	args = append(args, fetchLimit)
	query += " ORDER BY created_at DESC, batch_id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, fetchLimit)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan batch row: %w", err)
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating batch rows: %w", err)
	}

	var nextToken *string
	if len(batches) > limit {
		last := batches[limit-1]
		token := pagination.EncodeToken(last.CreatedAt, last.BatchID)
		nextToken = &token
		batches = batches[:limit]
	}
	return batches, nextToken, nil
}

// ListFeeAllocationsByBatch retrieves the fee allocation rows written for a batch.
func (r *PgxBatchRepository) ListFeeAllocationsByBatch(ctx context.Context, batchID string) ([]domain.FeeAllocation, error) {
	query := `
		SELECT allocation_id, donation_id, batch_id, fee_type, percent, amount_eur, destination, transferred,
		       created_at, created_by, last_updated_at, last_updated_by
		FROM fee_allocations
		WHERE batch_id = $1
		ORDER BY donation_id, fee_type`

	rows, err := r.Pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee allocations of batch %s: %w", batchID, err)
	}
	defer rows.Close()

	allocations := []domain.FeeAllocation{}
	for rows.Next() {
		var m models.FeeAllocation
		if err := rows.Scan(
			&m.AllocationID,
			&m.DonationID,
			&m.BatchID,
			&m.FeeType,
			&m.Percent,
			&m.AmountEur,
			&m.Destination,
			&m.Transferred,
			&m.CreatedAt,
			&m.CreatedBy,
			&m.LastUpdatedAt,
			&m.LastUpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fee allocation row: %w", err)
		}
		allocations = append(allocations, mapping.ToDomainFeeAllocation(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fee allocation rows: %w", err)
	}
	return allocations, nil
}

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var m models.Batch
	if err := row.Scan(
		&m.BatchID,
		&m.CampaignID,
		&m.DonationIDs,
		&m.DonationCount,
		&m.TotalGrossEur,
		&m.TotalNetEur,
		&m.TotalDebtFeeEur,
		&m.TotalOperationalFeeEur,
		&m.TotalTransactionFeeEur,
		&m.TotalFeesEur,
		&m.TargetCurrency,
		&m.TargetAmount,
		&m.ExchangeRate,
		&m.RateSource,
		&m.RateSnapshotAt,
		&m.TargetWallet,
		&m.Network,
		&m.Status,
		&m.Metadata,
		&m.InitiatedAt,
		&m.SentToBlockchainAt,
		&m.CompletedAt,
		&m.Revision,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastUpdatedAt,
		&m.LastUpdatedBy,
	); err != nil {
		return nil, err
	}
	b, err := mapping.ToDomainBatch(m)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

