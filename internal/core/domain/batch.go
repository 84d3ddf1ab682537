package domain

import (
	"fmt"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/shopspring/decimal"
)

// BatchStatus is a state of the batch settlement state machine.
type BatchStatus string

const (
	BatchDraft               BatchStatus = "draft"
	BatchPending             BatchStatus = "pending" // created by the cycle runner, awaiting an operator
	BatchProcessing          BatchStatus = "processing"
	BatchAwaitingSettlement  BatchStatus = "awaiting_settlement"
	BatchSending             BatchStatus = "sending"
	BatchNeedsReconciliation BatchStatus = "needs_reconciliation"
	BatchCompleted           BatchStatus = "completed"
	BatchFailed              BatchStatus = "failed"
	BatchCancelled           BatchStatus = "cancelled"
)

// batchTransitions is the complete transition table. A status missing from the map is terminal.
var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchDraft:               {BatchProcessing, BatchCancelled},
	BatchPending:             {BatchProcessing, BatchCancelled},
	BatchProcessing:          {BatchAwaitingSettlement, BatchSending, BatchCompleted, BatchFailed, BatchCancelled},
	BatchAwaitingSettlement:  {BatchSending, BatchFailed, BatchCancelled},
	BatchSending:             {BatchSending, BatchCompleted, BatchFailed, BatchNeedsReconciliation, BatchCancelled},
	BatchNeedsReconciliation: {BatchSending, BatchFailed, BatchCancelled},
}

// AllBatchStatuses lists every status in lifecycle order.
var AllBatchStatuses = []BatchStatus{
	BatchDraft, BatchPending, BatchProcessing, BatchAwaitingSettlement, BatchSending,
	BatchNeedsReconciliation, BatchCompleted, BatchFailed, BatchCancelled,
}

// IsValid reports whether s is a known batch status.
func (s BatchStatus) IsValid() bool {
	for _, known := range AllBatchStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s BatchStatus) IsTerminal() bool {
	_, ok := batchTransitions[s]
	return !ok && s.IsValid()
}

// CanTransitionTo reports whether the table allows s → next.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	for _, allowed := range batchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned when an operation asks for a move the table forbids.
type InvalidTransitionError struct {
	From BatchStatus
	To   BatchStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state: batch cannot move from %s to %s", e.From, e.To)
}

// Is lets callers match the error against apperrors.ErrInvalidState.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == apperrors.ErrInvalidState
}

// DefaultNetwork and DefaultTargetCurrency describe the only settlement rail supported today.
const (
	DefaultNetwork        = "TRON"
	DefaultTargetCurrency = "USDT"
	BaseCurrency          = "EUR"
)

// Batch bundles donations for a single settlement. Totals are exact sums of member donations.
type Batch struct {
	BatchID                string           `json:"batchID"`
	CampaignID             *string          `json:"campaignID,omitempty"`
	DonationIDs            []string         `json:"donationIDs"`
	DonationCount          int              `json:"donationCount"`
	TotalGrossEur          decimal.Decimal  `json:"totalGrossEur"`
	TotalNetEur            decimal.Decimal  `json:"totalNetEur"`
	TotalDebtFeeEur        decimal.Decimal  `json:"totalDebtFeeEur"`
	TotalOperationalFeeEur decimal.Decimal  `json:"totalOperationalFeeEur"`
	TotalTransactionFeeEur decimal.Decimal  `json:"totalTransactionFeeEur"`
	TotalFeesEur           decimal.Decimal  `json:"totalFeesEur"`
	TargetCurrency         string           `json:"targetCurrency"`
	TargetAmount           *decimal.Decimal `json:"targetAmount,omitempty"`
	ExchangeRate           *decimal.Decimal `json:"exchangeRate,omitempty"`
	RateSource             string           `json:"rateSource,omitempty"`
	RateSnapshotAt         *time.Time       `json:"rateSnapshotAt,omitempty"`
	TargetWallet           string           `json:"targetWallet"`
	Network                string           `json:"network"`
	Status                 BatchStatus      `json:"status"`
	Metadata               BatchMetadata    `json:"metadata"`
	InitiatedAt            *time.Time       `json:"initiatedAt,omitempty"`
	SentToBlockchainAt     *time.Time       `json:"sentToBlockchainAt,omitempty"`
	CompletedAt            *time.Time       `json:"completedAt,omitempty"`
	Revision               int64            `json:"revision"` // bumped on every persisted change
	AuditFields
}

// ApplyTotals copies aggregated donation totals onto the batch.
func (b *Batch) ApplyTotals(t BatchFeeTotals) {
	b.DonationCount = t.DonationCount
	b.TotalGrossEur = t.TotalGrossEur
	b.TotalNetEur = t.TotalNetEur
	b.TotalDebtFeeEur = t.TotalDebtFeeEur
	b.TotalOperationalFeeEur = t.TotalOperationalEur
	b.TotalTransactionFeeEur = t.TotalTransactionEur
	b.TotalFeesEur = t.TotalFeesEur
}

// TransitionTo moves the batch to next when the table allows it.
func (b *Batch) TransitionTo(next BatchStatus, actor string, at time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{From: b.Status, To: next}
	}
	b.Status = next
	b.LastUpdatedAt = at
	b.LastUpdatedBy = actor
	return nil
}

// RecordError stores the failure detail of an external step in the metadata.
func (b *Batch) RecordError(stage, message string, at time.Time) {
	b.Metadata.LastError = &BatchError{Stage: stage, Message: message, OccurredAt: at}
}

// LandingChecklist is the operator-facing read model of a batch's progress.
type LandingChecklist struct {
	BatchID                   string      `json:"batchID"`
	Status                    BatchStatus `json:"status"`
	DepositRecorded           bool        `json:"depositRecorded"`
	OperationalFeeComputed    bool        `json:"operationalFeeComputed"`
	OperationalFeePaid        bool        `json:"operationalFeePaid"`
	BatchProcessed            bool        `json:"batchProcessed"`
	SettlementMinimumEligible bool        `json:"settlementMinimumEligible"`
	SettlementInitiated       bool        `json:"settlementInitiated"`
	OnChainSent               bool        `json:"onChainSent"`
	BatchCompleted            bool        `json:"batchCompleted"`
}

// Checklist derives the eight landing steps from the batch's current state.
func (b Batch) Checklist() LandingChecklist {
	md := b.Metadata
	processed := b.TargetAmount != nil && b.Status != BatchDraft && b.Status != BatchPending
	return LandingChecklist{
		BatchID:                   b.BatchID,
		Status:                    b.Status,
		DepositRecorded:           md.GrossDepositEur != nil,
		OperationalFeeComputed:    md.GrossDepositEur != nil && md.OperationalFee.CurrentEur.IsPositive(),
		OperationalFeePaid:        md.GrossDepositEur != nil && md.OperationalFee.DueEur.IsZero(),
		BatchProcessed:            processed,
		SettlementMinimumEligible: processed && md.SettlementReserve.Eligible(),
		SettlementInitiated:       md.ExternalRefs.QuoteID != "" || md.Settlement != nil,
		OnChainSent:               md.ExternalRefs.TxHash != "",
		BatchCompleted:            b.Status == BatchCompleted,
	}
}
