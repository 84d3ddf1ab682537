package repositories

import (
	"context"

	"github.com/Dours-d/D2C/internal/core/domain"
)

// BatchBuilder turns the donations that were actually claimed into the batch to persist.
// Returning an error aborts the claim.
type BatchBuilder func(claimed []domain.Donation) (domain.Batch, []domain.FeeAllocation, error)

// BatchTransition is one atomic lifecycle step: the batch row moves from FromStatus to
// Batch.Status, member donations optionally move to DonationStatus, and blockchain
// transaction rows are inserted or updated, all in one database transaction.
// The write only applies while the stored row still has FromStatus and Batch.Revision;
// the stored revision is then Batch.Revision+1.
type BatchTransition struct {
	Batch              domain.Batch
	FromStatus         domain.BatchStatus
	DonationStatus     domain.DonationStatus // empty leaves donations untouched
	NewTransactions    []domain.BlockchainTransaction
	UpdatedTransaction *domain.BlockchainTransaction
}

// ListBatchesParams filters and pages the batch listing.
type ListBatchesParams struct {
	Status     *domain.BatchStatus
	CampaignID *string
	Limit      int
	NextToken  *string
}

// BatchReader defines read operations for batch data
type BatchReader interface {
	// FindBatchByID retrieves a specific batch by its unique identifier.
	FindBatchByID(ctx context.Context, batchID string) (*domain.Batch, error)

	// FindBatchByQuoteID retrieves the batch whose settlement quote matches quoteID.
	FindBatchByQuoteID(ctx context.Context, quoteID string) (*domain.Batch, error)

	// ListBatches retrieves a page of batches, newest first.
	// It returns the batches, a token for the next page, and an error.
	ListBatches(ctx context.Context, params ListBatchesParams) ([]domain.Batch, *string, error)

	// ListFeeAllocationsByBatch retrieves the fee allocation rows written for a batch.
	ListFeeAllocationsByBatch(ctx context.Context, batchID string) ([]domain.FeeAllocation, error)
}

// BatchWriter defines write operations for batch data
type BatchWriter interface {
	// CreateBatchWithClaim moves the given pending donations to batched, builds the batch from the
	// rows that were claimed and inserts it with its fee allocations. Fewer claimed rows than
	// requested rolls everything back.
	CreateBatchWithClaim(ctx context.Context, batchID string, donationIDs []string, build BatchBuilder) (*domain.Batch, error)

	// ApplyTransition persists a lifecycle step. A stale FromStatus or revision yields ErrInvalidState.
	ApplyTransition(ctx context.Context, transition BatchTransition) error
}

// BatchRepositoryFacade combines all batch-related repository interfaces
type BatchRepositoryFacade interface {
	BatchReader
	BatchWriter
}
