package services_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
)

// memoryStore is an in-process stand-in for the postgres repositories. It keeps the same
// claim and conditional-update semantics so lifecycle tests can run whole flows.
type memoryStore struct {
	mu          sync.Mutex
	donations   map[string]domain.Donation
	batches     map[string]domain.Batch
	allocations map[string][]domain.FeeAllocation
	txs         map[string]domain.BlockchainTransaction
	txOrder     []string
	cycles      []domain.ProcessingCycle
}

func newMemoryStore(donations ...domain.Donation) *memoryStore {
	s := &memoryStore{
		donations:   map[string]domain.Donation{},
		batches:     map[string]domain.Batch{},
		allocations: map[string][]domain.FeeAllocation{},
		txs:         map[string]domain.BlockchainTransaction{},
	}
	for _, d := range donations {
		s.donations[d.DonationID] = d
	}
	return s
}

func (s *memoryStore) donation(id string) domain.Donation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.donations[id]
}

func (s *memoryStore) FindDonationsByIDs(_ context.Context, donationIDs []string) ([]domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Donation{}
	for _, id := range donationIDs {
		if d, ok := s.donations[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memoryStore) ListPendingDonationsSince(_ context.Context, since time.Time) ([]domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Donation{}
	for _, d := range s.donations {
		if d.Status == domain.DonationPending && !d.CreatedAt.Before(since) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DonationID < out[j].DonationID })
	return out, nil
}

func (s *memoryStore) ListDonationsByBatch(_ context.Context, batchID string) ([]domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return []domain.Donation{}, nil
	}
	out := make([]domain.Donation, 0, len(b.DonationIDs))
	for _, id := range b.DonationIDs {
		out = append(out, s.donations[id])
	}
	return out, nil
}

func (s *memoryStore) FindBatchByID(_ context.Context, batchID string) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &b, nil
}

func (s *memoryStore) FindBatchByQuoteID(_ context.Context, quoteID string) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.batches {
		if b.Metadata.ExternalRefs.QuoteID == quoteID || b.Metadata.Settlement.GroupIndex(quoteID) >= 0 {
			return &b, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memoryStore) ListBatches(_ context.Context, params portsrepo.ListBatchesParams) ([]domain.Batch, *string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Batch{}
	for _, b := range s.batches {
		if params.Status != nil && b.Status != *params.Status {
			continue
		}
		out = append(out, b)
	}
	return out, nil, nil
}

func (s *memoryStore) ListFeeAllocationsByBatch(_ context.Context, batchID string) ([]domain.FeeAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FeeAllocation{}, s.allocations[batchID]...), nil
}

func (s *memoryStore) CreateBatchWithClaim(_ context.Context, batchID string, donationIDs []string, build portsrepo.BatchBuilder) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := make([]domain.Donation, 0, len(donationIDs))
	for _, id := range donationIDs {
		d, ok := s.donations[id]
		if !ok || d.Status != domain.DonationPending {
			return nil, apperrors.ErrNoPendingDonations
		}
		claimed = append(claimed, d)
	}
	batch, allocations, err := build(claimed)
	if err != nil {
		return nil, err
	}
	for _, d := range claimed {
		id := batchID
		d.Status = domain.DonationBatched
		d.BatchID = &id
		s.donations[d.DonationID] = d
	}
	s.batches[batchID] = batch
	s.allocations[batchID] = allocations
	return &batch, nil
}

func (s *memoryStore) ApplyTransition(_ context.Context, t portsrepo.BatchTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.batches[t.Batch.BatchID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Status != t.FromStatus || stored.Revision != t.Batch.Revision {
		return apperrors.ErrInvalidState
	}
	next := t.Batch
	next.Revision = stored.Revision + 1
	s.batches[next.BatchID] = next

	if t.DonationStatus != "" {
		for _, id := range next.DonationIDs {
			d := s.donations[id]
			if d.Status == domain.DonationBatched {
				d.Status = t.DonationStatus
				s.donations[id] = d
			}
		}
	}
	for _, tx := range t.NewTransactions {
		s.txs[tx.TransactionID] = tx
		s.txOrder = append(s.txOrder, tx.TransactionID)
	}
	if t.UpdatedTransaction != nil {
		s.txs[t.UpdatedTransaction.TransactionID] = *t.UpdatedTransaction
	}
	return nil
}

func (s *memoryStore) ListTransactionsByStatus(_ context.Context, statuses []domain.TxStatus, limit int) ([]domain.BlockchainTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.BlockchainTransaction{}
	for _, id := range s.txOrder {
		tx := s.txs[id]
		for _, st := range statuses {
			if tx.Status == st {
				out = append(out, tx)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) ListTransactionsByBatch(_ context.Context, batchID string) ([]domain.BlockchainTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.BlockchainTransaction{}
	for _, id := range s.txOrder {
		if s.txs[id].BatchID == batchID {
			out = append(out, s.txs[id])
		}
	}
	return out, nil
}

func (s *memoryStore) MarkTransactionChecked(_ context.Context, transactionID string, status domain.TxStatus, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[transactionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	tx.Status = status
	tx.LastCheckedAt = &checkedAt
	s.txs[transactionID] = tx
	return nil
}

func (s *memoryStore) FindActiveCycle(_ context.Context) (*domain.ProcessingCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.cycles) - 1; i >= 0; i-- {
		if s.cycles[i].IsActive() {
			c := s.cycles[i]
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memoryStore) ListCycles(_ context.Context, limit int) ([]domain.ProcessingCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.ProcessingCycle{}
	for i := len(s.cycles) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.cycles[i])
	}
	return out, nil
}

func (s *memoryStore) SaveCycle(_ context.Context, cycle domain.ProcessingCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cycles {
		if s.cycles[i].IsActive() {
			at := cycle.EffectiveFrom
			s.cycles[i].SupersededAt = &at
		}
	}
	s.cycles = append(s.cycles, cycle)
	return nil
}

func (s *memoryStore) MarkCycleRun(_ context.Context, cycleID string, ranAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cycles {
		if s.cycles[i].CycleID == cycleID {
			s.cycles[i].LastRunAt = &ranAt
			return nil
		}
	}
	return apperrors.ErrNotFound
}

var (
	_ portsrepo.DonationRepositoryFacade              = (*memoryStore)(nil)
	_ portsrepo.BatchRepositoryFacade                 = (*memoryStore)(nil)
	_ portsrepo.BlockchainTransactionRepositoryFacade = (*memoryStore)(nil)
	_ portsrepo.CycleRepositoryFacade                 = (*memoryStore)(nil)
)
