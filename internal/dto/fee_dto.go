package dto

import (
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CalculateFeesRequest previews the fee split of a gross amount.
// Omitted percentages fall back to the configured defaults.
type CalculateFeesRequest struct {
	Amount         decimal.Decimal  `json:"amount" binding:"required"`
	DebtPct        *decimal.Decimal `json:"debtPct"`
	OperationalPct *decimal.Decimal `json:"operationalPct"`
	TransactionPct *decimal.Decimal `json:"transactionPct"`
}

// Percentages overlays the request's percentages on defaults.
func (r CalculateFeesRequest) Percentages(defaults domain.FeePercentages) domain.FeePercentages {
	p := defaults
	if r.DebtPct != nil {
		p.DebtPct = *r.DebtPct
	}
	if r.OperationalPct != nil {
		p.OperationalPct = *r.OperationalPct
	}
	if r.TransactionPct != nil {
		p.TransactionPct = *r.TransactionPct
	}
	return p
}
