package services

import (
	"context"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/shopspring/decimal"
)

// BatchReaderSvc defines read operations for batches
type BatchReaderSvc interface {
	// GetBatch retrieves a batch by its identifier.
	GetBatch(ctx context.Context, batchID string) (*domain.Batch, error)

	// ListBatches retrieves a page of batches and the token of the next page.
	ListBatches(ctx context.Context, params dto.ListBatchesParams) ([]domain.Batch, *string, error)

	// GetReserve returns the batch's shortfall against the settlement minimum.
	GetReserve(ctx context.Context, batchID string) (*domain.Batch, domain.SettlementReserve, error)

	// GetLandingChecklist derives the operator checklist of a batch.
	GetLandingChecklist(ctx context.Context, batchID string) (*domain.LandingChecklist, error)

	// CalculateSettlementReserve returns max(0, minimum − total) rounded to cents.
	CalculateSettlementReserve(totalNetEur decimal.Decimal) domain.SettlementReserve
}

// BatchWriterSvc defines the lifecycle operations of a batch
type BatchWriterSvc interface {
	// CreateBatch claims pending donations into a new draft batch.
	CreateBatch(ctx context.Context, req dto.CreateBatchRequest, actor string) (*domain.Batch, error)

	// CreatePendingBatch claims donations for a batch created by a background run.
	CreatePendingBatch(ctx context.Context, donationIDs []string, wallet string, campaignID *string) (*domain.Batch, error)

	// SetGrossDeposit records the operator-confirmed deposit and recomputes the operational fee.
	SetGrossDeposit(ctx context.Context, batchID string, req dto.SetGrossDepositRequest, actor string) (*domain.Batch, error)

	// RecordOperationalFeePayment adds a payment towards the operational fee.
	RecordOperationalFeePayment(ctx context.Context, batchID string, req dto.RecordFeePaymentRequest, actor string) (*domain.Batch, error)

	// ProcessBatch snapshots the rate, computes the target amount and the reserve.
	ProcessBatch(ctx context.Context, batchID string, actor string) (*domain.Batch, error)

	// InitiateSettlement asks the payment gateway for a purchase session.
	InitiateSettlement(ctx context.Context, batchID string, user domain.UserContext, actor string) (*domain.PaymentSession, error)

	// HandleSettlementCallback applies the provider's asynchronous answer.
	HandleSettlementCallback(ctx context.Context, callback domain.SettlementCallback) (*domain.Batch, error)

	// SendOnChain broadcasts the target amount to the batch wallet.
	SendOnChain(ctx context.Context, batchID string, actor string) (*domain.Batch, string, error)

	// CancelBatch moves a non-terminal batch to cancelled. Cancelling a cancelled batch is a no-op.
	CancelBatch(ctx context.Context, batchID string, actor string) (*domain.Batch, error)
}

// BatchSvcFacade combines all batch-related service interfaces
type BatchSvcFacade interface {
	BatchReaderSvc
	BatchWriterSvc
}
