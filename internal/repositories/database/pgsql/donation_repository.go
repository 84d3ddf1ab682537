package pgsql

import (
	"context"
	"fmt"
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	"github.com/Dours-d/D2C/internal/models"
	"github.com/Dours-d/D2C/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// donationColumns selects a donation with its campaign wallet; callers alias donations as d
// and campaigns as c.
const donationColumns = `
	d.donation_id, d.campaign_id, c.wallet_address, d.gross_amount, d.source_currency,
	d.gross_amount_eur, d.net_amount_eur, d.debt_fee_eur, d.operational_fee_eur, d.transaction_fee_eur,
	d.status, d.batch_id, d.processed_at,
	d.created_at, d.created_by, d.last_updated_at, d.last_updated_by`

// PgxDonationRepository reads donations written by the ingestion system.
type PgxDonationRepository struct {
	BaseRepository
}

func newPgxDonationRepository(pool *pgxpool.Pool) portsrepo.DonationRepositoryFacade {
	return &PgxDonationRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.DonationRepositoryFacade = (*PgxDonationRepository)(nil)

// FindDonationsByIDs retrieves the donations with the given identifiers, in input order.
func (r *PgxDonationRepository) FindDonationsByIDs(ctx context.Context, donationIDs []string) ([]domain.Donation, error) {
	query := `SELECT ` + donationColumns + `
		FROM donations d
		LEFT JOIN campaigns c ON c.campaign_id = d.campaign_id
		WHERE d.donation_id = ANY($1)`

	rows, err := r.Pool.Query(ctx, query, donationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query donations by id: %w", err)
	}
	found, err := collectDonations(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Donation, len(found))
	for _, d := range found {
		byID[d.DonationID] = d
	}
	ordered := make([]domain.Donation, 0, len(found))
	for _, id := range donationIDs {
		if d, ok := byID[id]; ok {
			ordered = append(ordered, d)
		}
	}
	return ordered, nil
}

// ListPendingDonationsSince retrieves pending donations created at or after since.
func (r *PgxDonationRepository) ListPendingDonationsSince(ctx context.Context, since time.Time) ([]domain.Donation, error) {
	query := `SELECT ` + donationColumns + `
		FROM donations d
		LEFT JOIN campaigns c ON c.campaign_id = d.campaign_id
		WHERE d.status = $1 AND d.created_at >= $2
		ORDER BY d.created_at, d.donation_id`

	rows, err := r.Pool.Query(ctx, query, string(domain.DonationPending), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending donations: %w", err)
	}
	return collectDonations(rows)
}

// ListDonationsByBatch retrieves the donations claimed by a batch.
func (r *PgxDonationRepository) ListDonationsByBatch(ctx context.Context, batchID string) ([]domain.Donation, error) {
	query := `SELECT ` + donationColumns + `
		FROM donations d
		LEFT JOIN campaigns c ON c.campaign_id = d.campaign_id
		WHERE d.batch_id = $1
		ORDER BY d.created_at, d.donation_id`

	rows, err := r.Pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query donations of batch %s: %w", batchID, err)
	}
	return collectDonations(rows)
}

func collectDonations(rows pgx.Rows) ([]domain.Donation, error) {
	defer rows.Close()

	donations := []domain.Donation{}
	for rows.Next() {
		var m models.Donation
		if err := rows.Scan(
			&m.DonationID,
			&m.CampaignID,
			&m.CampaignWallet,
			&m.GrossAmount,
			&m.SourceCurrency,
			&m.GrossAmountEur,
			&m.NetAmountEur,
			&m.DebtFeeEur,
			&m.OperationalFeeEur,
			&m.TransactionFeeEur,
			&m.Status,
			&m.BatchID,
			&m.ProcessedAt,
			&m.CreatedAt,
			&m.CreatedBy,
			&m.LastUpdatedAt,
			&m.LastUpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan donation row: %w", err)
		}
		donations = append(donations, mapping.ToDomainDonation(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating donation rows: %w", err)
	}
	return donations, nil
}
