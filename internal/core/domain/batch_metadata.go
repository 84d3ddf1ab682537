package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchMetadataVersion is bumped whenever the persisted metadata shape changes.
const BatchMetadataVersion = 1

// BatchMetadata is the typed sub-record persisted alongside a batch.
type BatchMetadata struct {
	Version            int               `json:"version"`
	GrossDepositEur    *decimal.Decimal  `json:"grossDepositEur,omitempty"`
	GrossDepositNote   string            `json:"grossDepositNote,omitempty"`
	GrossDepositAt     *time.Time        `json:"grossDepositAt,omitempty"`
	OperationalFee     OperationalFee    `json:"operationalFee"`
	SettlementReserve  SettlementReserve `json:"settlementReserve"`
	ExternalRefs       ExternalRefs      `json:"externalRefs"`
	Settlement         *SettlementRecord `json:"settlement,omitempty"`
	ProviderStatus     string            `json:"providerStatus,omitempty"`
	ManualIntervention bool              `json:"manualIntervention"`
	LastError          *BatchError       `json:"lastError,omitempty"`
	BlockNumber        *int64            `json:"blockNumber,omitempty"`
}

// NewBatchMetadata returns metadata with every field at its default.
func NewBatchMetadata() BatchMetadata {
	return BatchMetadata{
		Version: BatchMetadataVersion,
		OperationalFee: OperationalFee{
			CurrentEur: decimal.Zero,
			PaidEur:    decimal.Zero,
			DueEur:     decimal.Zero,
		},
		SettlementReserve: SettlementReserve{
			MinimumEur:  decimal.Zero,
			RequiredEur: decimal.Zero,
		},
	}
}

// OperationalFee tracks the withholding computed against the operator-confirmed deposit.
type OperationalFee struct {
	CurrentEur decimal.Decimal `json:"currentEur"`
	PaidEur    decimal.Decimal `json:"paidEur"`
	DueEur     decimal.Decimal `json:"dueEur"`
	Payments   []FeePayment    `json:"payments,omitempty"`
}

// Recompute sets DueEur to max(current − paid, 0).
func (f *OperationalFee) Recompute() {
	due := f.CurrentEur.Sub(f.PaidEur)
	if due.IsNegative() {
		due = decimal.Zero
	}
	f.DueEur = due
}

// FeePayment is one operator-recorded payment towards the operational fee.
type FeePayment struct {
	AmountEur  decimal.Decimal `json:"amountEur"`
	Note       string          `json:"note,omitempty"`
	RecordedAt time.Time       `json:"recordedAt"`
	RecordedBy string          `json:"recordedBy,omitempty"`
}

// SettlementReserve is the shortfall between the batch net total and the provider minimum.
type SettlementReserve struct {
	MinimumEur  decimal.Decimal `json:"minimumEur"`
	RequiredEur decimal.Decimal `json:"requiredEur"`
}

// Eligible reports whether no reserve top-up is needed.
func (r SettlementReserve) Eligible() bool {
	return !r.RequiredEur.IsPositive()
}

// ExternalRefs are identifiers handed out by external collaborators.
type ExternalRefs struct {
	QuoteID        string   `json:"quoteId,omitempty"`
	PaymentID      string   `json:"paymentId,omitempty"`
	PaymentURL     string   `json:"paymentUrl,omitempty"`
	TxHash         string   `json:"txHash,omitempty"`
	BankReferences []string `json:"bankReferences,omitempty"`
}

// SettlementRecord describes the route chosen by the strategy selector.
type SettlementRecord struct {
	Strategy         StrategyName      `json:"strategy"`
	Provider         string            `json:"provider"`
	EstimatedCostEur decimal.Decimal   `json:"estimatedCostEur"`
	GroupCount       int               `json:"groupCount"`
	References       []string          `json:"references,omitempty"`
	Groups           []SettlementGroup `json:"groups,omitempty"`
	ExecutedAt       time.Time         `json:"executedAt"`
}

// SettlementGroup is one dispatched order. Provider callbacks match it by QuoteID.
type SettlementGroup struct {
	Reference    string          `json:"reference"`
	QuoteID      string          `json:"quoteId,omitempty"`
	PaymentID    string          `json:"paymentId,omitempty"`
	TxHash       string          `json:"txHash,omitempty"`
	AmountTarget decimal.Decimal `json:"amountTarget"`
	DonationIDs  []string        `json:"donationIds,omitempty"`
	Confirmed    bool            `json:"confirmed"`
	Rejected     bool            `json:"rejected,omitempty"`
	ConfirmedAt  *time.Time      `json:"confirmedAt,omitempty"`
}

// GroupIndex returns the position of the group quoted as quoteID, or -1.
func (r *SettlementRecord) GroupIndex(quoteID string) int {
	if r == nil || quoteID == "" {
		return -1
	}
	for i, g := range r.Groups {
		if g.QuoteID == quoteID {
			return i
		}
	}
	return -1
}

// TransferIndex returns the position of the group sent on-chain as txHash, or -1.
func (r *SettlementRecord) TransferIndex(txHash string) int {
	if r == nil || txHash == "" {
		return -1
	}
	for i, g := range r.Groups {
		if g.TxHash == txHash {
			return i
		}
	}
	return -1
}

// Confirmed counts the groups the provider has confirmed.
func (r *SettlementRecord) Confirmed() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, g := range r.Groups {
		if g.Confirmed {
			n++
		}
	}
	return n
}

// AllConfirmed reports whether every dispatched group was confirmed.
func (r *SettlementRecord) AllConfirmed() bool {
	return r != nil && len(r.Groups) > 0 && r.Confirmed() == len(r.Groups)
}

// BatchError keeps the last external failure for operators.
type BatchError struct {
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurredAt"`
}
