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

const cycleColumns = `
	cycle_id, cycle_type, effective_from, previous_cycle, trigger_on_chain, trigger_banking,
	minimum_amount_eur, changed_by, reason, last_run_at, superseded_at, created_at`

// PgxCycleRepository stores the append-only processing cycle history.
type PgxCycleRepository struct {
	BaseRepository
}

func newPgxCycleRepository(pool *pgxpool.Pool) portsrepo.CycleRepositoryFacade {
	return &PgxCycleRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.CycleRepositoryFacade = (*PgxCycleRepository)(nil)

// FindActiveCycle retrieves the entry that has not been superseded.
func (r *PgxCycleRepository) FindActiveCycle(ctx context.Context) (*domain.ProcessingCycle, error) {
	query := `SELECT ` + cycleColumns + `
		FROM processing_cycles
		WHERE superseded_at IS NULL
		ORDER BY effective_from DESC
		LIMIT 1`

	c, err := scanCycle(r.Pool.QueryRow(ctx, query))
	if err != nil {
		return nil, notFound(err, "active processing cycle")
	}
	return c, nil
}

// ListCycles retrieves the history, newest first.
func (r *PgxCycleRepository) ListCycles(ctx context.Context, limit int) ([]domain.ProcessingCycle, error) {
	query := `SELECT ` + cycleColumns + `
		FROM processing_cycles
		ORDER BY effective_from DESC, created_at DESC
		LIMIT $1`

	rows, err := r.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query processing cycles: %w", err)
	}
	defer rows.Close()

	cycles := []domain.ProcessingCycle{}
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processing cycle row: %w", err)
		}
		cycles = append(cycles, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating processing cycle rows: %w", err)
	}
	return cycles, nil
}

// SaveCycle supersedes the active entry at cycle.EffectiveFrom and appends cycle, atomically.
func (r *PgxCycleRepository) SaveCycle(ctx context.Context, cycle domain.ProcessingCycle) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	m := mapping.ToModelProcessingCycle(cycle)
	if _, err := tx.Exec(ctx,
		`UPDATE processing_cycles SET superseded_at = $1 WHERE superseded_at IS NULL`,
		m.EffectiveFrom); err != nil {
		return fmt.Errorf("failed to supersede active cycle: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO processing_cycles (`+cycleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.CycleID,
		m.CycleType,
		m.EffectiveFrom,
		m.PreviousCycle,
		m.TriggerOnChain,
		m.TriggerBanking,
		m.MinimumAmountEur,
		m.ChangedBy,
		m.Reason,
		m.LastRunAt,
		m.SupersededAt,
		m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("processing cycle %s: %w", m.CycleID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert processing cycle %s: %w", m.CycleID, err)
	}

	return r.Commit(ctx, tx)
}

// MarkCycleRun stamps the time the cycle runner last swept the window.
func (r *PgxCycleRepository) MarkCycleRun(ctx context.Context, cycleID string, ranAt time.Time) error {
	tag, err := r.Pool.Exec(ctx, `UPDATE processing_cycles SET last_run_at = $1 WHERE cycle_id = $2`, ranAt, cycleID)
	if err != nil {
		return fmt.Errorf("failed to stamp processing cycle %s: %w", cycleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("processing cycle %s: %w", cycleID, apperrors.ErrNotFound)
	}
	return nil
}

func scanCycle(row pgx.Row) (*domain.ProcessingCycle, error) {
	var m models.ProcessingCycle
	if err := row.Scan(
		&m.CycleID,
		&m.CycleType,
		&m.EffectiveFrom,
		&m.PreviousCycle,
		&m.TriggerOnChain,
		&m.TriggerBanking,
		&m.MinimumAmountEur,
		&m.ChangedBy,
		&m.Reason,
		&m.LastRunAt,
		&m.SupersededAt,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	c := mapping.ToDomainProcessingCycle(m)
	return &c, nil
}
