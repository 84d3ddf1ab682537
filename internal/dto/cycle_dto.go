package dto

import (
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/shopspring/decimal"
)

// UpdateCycleRequest changes the processing cadence. Omitted flags keep their current value.
type UpdateCycleRequest struct {
	CycleType        domain.CycleType `json:"cycleType" binding:"required,oneof=daily weekly biweekly monthly manual"`
	TriggerOnChain   *bool            `json:"triggerOnChain"`
	TriggerBanking   *bool            `json:"triggerBanking"`
	MinimumAmountEur *decimal.Decimal `json:"minimumAmountEur"`
	Reason           string           `json:"reason"`
}

// RecommendCycleRequest carries volume statistics. An empty body recommends from live data.
type RecommendCycleRequest struct {
	TotalAmount   *decimal.Decimal `json:"totalAmount"`
	DonationCount *int             `json:"donationCount"`
	AvgAmount     *decimal.Decimal `json:"avgAmount"`
}

// EstimateCostQuery defines the query parameters of the cost estimate.
type EstimateCostQuery struct {
	Cycle            string `form:"cycle" binding:"required"`
	MonthlyVolumeEur string `form:"monthlyVolumeEur" binding:"required"`
}

// CycleResponse defines the data returned for a processing cycle.
type CycleResponse struct {
	CycleID            string            `json:"cycleID"`
	CycleType          domain.CycleType  `json:"cycleType"`
	EffectiveFrom      time.Time         `json:"effectiveFrom"`
	PreviousCycle      *domain.CycleType `json:"previousCycle,omitempty"`
	TriggerOnChain     bool              `json:"triggerOnChain"`
	TriggerBanking     bool              `json:"triggerBanking"`
	MinimumAmountEur   decimal.Decimal   `json:"minimumAmountEur"`
	ChangedBy          *string           `json:"changedBy,omitempty"`
	Reason             string            `json:"reason,omitempty"`
	LastRunAt          *time.Time        `json:"lastRunAt,omitempty"`
	SupersededAt       *time.Time        `json:"supersededAt,omitempty"`
	Active             bool              `json:"active"`
	NextProcessingDate *time.Time        `json:"nextProcessingDate,omitempty"`
}

// ToCycleResponse converts a domain.ProcessingCycle to CycleResponse DTO
func ToCycleResponse(c *domain.ProcessingCycle, next *time.Time) CycleResponse {
	return CycleResponse{
		CycleID:            c.CycleID,
		CycleType:          c.CycleType,
		EffectiveFrom:      c.EffectiveFrom,
		PreviousCycle:      c.PreviousCycle,
		TriggerOnChain:     c.TriggerOnChain,
		TriggerBanking:     c.TriggerBanking,
		MinimumAmountEur:   c.MinimumAmountEur,
		ChangedBy:          c.ChangedBy,
		Reason:             c.Reason,
		LastRunAt:          c.LastRunAt,
		SupersededAt:       c.SupersededAt,
		Active:             c.IsActive(),
		NextProcessingDate: next,
	}
}

// ToListCycleResponse converts a slice of cycles. Only the active entry carries a next date.
func ToListCycleResponse(cycles []domain.ProcessingCycle) []CycleResponse {
	responses := make([]CycleResponse, len(cycles))
	for i := range cycles {
		responses[i] = ToCycleResponse(&cycles[i], nil)
	}
	return responses
}
