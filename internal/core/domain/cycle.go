package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleType is the cadence at which pending donations are swept into batches.
type CycleType string

const (
	CycleDaily    CycleType = "daily"
	CycleWeekly   CycleType = "weekly"
	CycleBiweekly CycleType = "biweekly"
	CycleMonthly  CycleType = "monthly"
	CycleManual   CycleType = "manual"
)

// IsValid reports whether c is a known cadence.
func (c CycleType) IsValid() bool {
	switch c {
	case CycleDaily, CycleWeekly, CycleBiweekly, CycleMonthly, CycleManual:
		return true
	}
	return false
}

// LookbackDays is the donation window of one run. Manual and unknown cadences use a week.
func (c CycleType) LookbackDays() int {
	switch c {
	case CycleDaily:
		return 1
	case CycleBiweekly:
		return 14
	case CycleMonthly:
		return 30
	default:
		return 7
	}
}

// RunsPerMonth is the approximate number of executions of the cadence in a month.
func (c CycleType) RunsPerMonth() int {
	switch c {
	case CycleDaily:
		return 22
	case CycleWeekly:
		return 4
	case CycleBiweekly:
		return 2
	case CycleMonthly:
		return 1
	default:
		return 0
	}
}

// ProcessingCycle is one entry of the append-only cadence history.
// The active entry is the one with SupersededAt == nil.
type ProcessingCycle struct {
	CycleID          string          `json:"cycleID"`
	CycleType        CycleType       `json:"cycleType"`
	EffectiveFrom    time.Time       `json:"effectiveFrom"`
	PreviousCycle    *CycleType      `json:"previousCycle,omitempty"`
	TriggerOnChain   bool            `json:"triggerOnChain"`
	TriggerBanking   bool            `json:"triggerBanking"`
	MinimumAmountEur decimal.Decimal `json:"minimumAmountEur"`
	ChangedBy        *string         `json:"changedBy,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	LastRunAt        *time.Time      `json:"lastRunAt,omitempty"`
	SupersededAt     *time.Time      `json:"supersededAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// IsActive reports whether the entry has not been superseded.
func (c ProcessingCycle) IsActive() bool {
	return c.SupersededAt == nil
}

// VolumeStats summarises the pending volume inside a cycle window.
type VolumeStats struct {
	Cycle         CycleType       `json:"cycle"`
	WindowStart   time.Time       `json:"windowStart"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	DonationCount int             `json:"donationCount"`
	AvgAmount     decimal.Decimal `json:"avgAmount"`
}

// CycleRecommendation is the outcome of the cadence decision table.
type CycleRecommendation struct {
	Recommended CycleType   `json:"recommended"`
	Reason      string      `json:"reason"`
	Stats       VolumeStats `json:"stats"`
}

// ProcessingCostEstimate projects monthly settlement costs of a cadence for a monthly volume.
type ProcessingCostEstimate struct {
	Cycle               CycleType       `json:"cycle"`
	MonthlyVolumeEur    decimal.Decimal `json:"monthlyVolumeEur"`
	RunsPerMonth        int             `json:"runsPerMonth"`
	AmountPerRunEur     decimal.Decimal `json:"amountPerRunEur"`
	CryptoFeePerRunEur  decimal.Decimal `json:"cryptoFeePerRunEur"`
	BankFeePerRunEur    decimal.Decimal `json:"bankFeePerRunEur"`
	MonthlyCostEur      decimal.Decimal `json:"monthlyCostEur"`
	EffectiveFeePercent decimal.Decimal `json:"effectiveFeePercent"`
}

// OptimizationPotential compares the active cadence with the cheapest one.
type OptimizationPotential struct {
	Current             ProcessingCostEstimate `json:"current"`
	Optimal             ProcessingCostEstimate `json:"optimal"`
	PotentialSavingsEur decimal.Decimal        `json:"potentialSavingsEur"`
	SavingsPercent      decimal.Decimal        `json:"savingsPercent"`
}
