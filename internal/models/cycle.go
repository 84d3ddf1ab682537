package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// ProcessingCycle is one entry of the append-only processing_cycles history.
type ProcessingCycle struct {
	CycleID          string          `db:"cycle_id"`
	CycleType        string          `db:"cycle_type"`
	EffectiveFrom    time.Time       `db:"effective_from"`
	PreviousCycle    sql.NullString  `db:"previous_cycle"`
	TriggerOnChain   bool            `db:"trigger_on_chain"`
	TriggerBanking   bool            `db:"trigger_banking"`
	MinimumAmountEur decimal.Decimal `db:"minimum_amount_eur"`
	ChangedBy        sql.NullString  `db:"changed_by"`
	Reason           string          `db:"reason"`
	LastRunAt        sql.NullTime    `db:"last_run_at"`
	SupersededAt     sql.NullTime    `db:"superseded_at"`
	CreatedAt        time.Time       `db:"created_at"`
}
