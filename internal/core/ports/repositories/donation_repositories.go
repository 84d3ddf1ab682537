package repositories

import (
	"context"
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
)

// DonationReader defines read operations for donation data.
// Donations are written by the upstream ingestion system; the pipeline only claims and settles them.
type DonationReader interface {
	// FindDonationsByIDs retrieves the donations with the given identifiers, in input order.
	// Unknown identifiers are skipped.
	FindDonationsByIDs(ctx context.Context, donationIDs []string) ([]domain.Donation, error)

	// ListPendingDonationsSince retrieves pending donations created at or after since,
	// joined with their campaign wallet.
	ListPendingDonationsSince(ctx context.Context, since time.Time) ([]domain.Donation, error)

	// ListDonationsByBatch retrieves the donations claimed by a batch.
	ListDonationsByBatch(ctx context.Context, batchID string) ([]domain.Donation, error)
}

// DonationRepositoryFacade combines all donation-related repository interfaces
type DonationRepositoryFacade interface {
	DonationReader
}
