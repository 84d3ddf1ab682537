package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// --- Mock DonationRepository ---
type MockDonationRepository struct {
	mock.Mock
}

func (m *MockDonationRepository) FindDonationsByIDs(ctx context.Context, donationIDs []string) ([]domain.Donation, error) {
	args := m.Called(ctx, donationIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Donation), args.Error(1)
}

func (m *MockDonationRepository) ListPendingDonationsSince(ctx context.Context, since time.Time) ([]domain.Donation, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Donation), args.Error(1)
}

func (m *MockDonationRepository) ListDonationsByBatch(ctx context.Context, batchID string) ([]domain.Donation, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Donation), args.Error(1)
}

// --- Mock BatchRepository ---
type MockBatchRepository struct {
	mock.Mock
}

func (m *MockBatchRepository) FindBatchByID(ctx context.Context, batchID string) (*domain.Batch, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Batch), args.Error(1)
}

func (m *MockBatchRepository) FindBatchByQuoteID(ctx context.Context, quoteID string) (*domain.Batch, error) {
	args := m.Called(ctx, quoteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Batch), args.Error(1)
}

func (m *MockBatchRepository) ListBatches(ctx context.Context, params portsrepo.ListBatchesParams) ([]domain.Batch, *string, error) {
	args := m.Called(ctx, params)
	var next *string
	if args.Get(1) != nil {
		next = args.Get(1).(*string)
	}
	if args.Get(0) == nil {
		return nil, next, args.Error(2)
	}
	return args.Get(0).([]domain.Batch), next, args.Error(2)
}

func (m *MockBatchRepository) ListFeeAllocationsByBatch(ctx context.Context, batchID string) ([]domain.FeeAllocation, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FeeAllocation), args.Error(1)
}

// CreateBatchWithClaim hands the donations configured as the first return value to the builder,
// the way the database would after a successful claim. A nil first value returns the error.
func (m *MockBatchRepository) CreateBatchWithClaim(ctx context.Context, batchID string, donationIDs []string, build portsrepo.BatchBuilder) (*domain.Batch, error) {
	args := m.Called(ctx, batchID, donationIDs, build)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	batch, _, err := build(args.Get(0).([]domain.Donation))
	if err != nil {
		return nil, err
	}
	return &batch, args.Error(1)
}

func (m *MockBatchRepository) ApplyTransition(ctx context.Context, transition portsrepo.BatchTransition) error {
	args := m.Called(ctx, transition)
	return args.Error(0)
}

// --- Mock BlockchainTransactionRepository ---
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) ListTransactionsByStatus(ctx context.Context, statuses []domain.TxStatus, limit int) ([]domain.BlockchainTransaction, error) {
	args := m.Called(ctx, statuses, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BlockchainTransaction), args.Error(1)
}

func (m *MockTransactionRepository) ListTransactionsByBatch(ctx context.Context, batchID string) ([]domain.BlockchainTransaction, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BlockchainTransaction), args.Error(1)
}

func (m *MockTransactionRepository) MarkTransactionChecked(ctx context.Context, transactionID string, status domain.TxStatus, checkedAt time.Time) error {
	args := m.Called(ctx, transactionID, status, checkedAt)
	return args.Error(0)
}

// --- Mock CycleRepository ---
type MockCycleRepository struct {
	mock.Mock
}

func (m *MockCycleRepository) FindActiveCycle(ctx context.Context) (*domain.ProcessingCycle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingCycle), args.Error(1)
}

func (m *MockCycleRepository) ListCycles(ctx context.Context, limit int) ([]domain.ProcessingCycle, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ProcessingCycle), args.Error(1)
}

func (m *MockCycleRepository) SaveCycle(ctx context.Context, cycle domain.ProcessingCycle) error {
	args := m.Called(ctx, cycle)
	return args.Error(0)
}

func (m *MockCycleRepository) MarkCycleRun(ctx context.Context, cycleID string, ranAt time.Time) error {
	args := m.Called(ctx, cycleID, ranAt)
	return args.Error(0)
}

// --- Mock ExchangeRateRepository ---
type MockExchangeRateRepository struct {
	mock.Mock
}

func (m *MockExchangeRateRepository) SaveExchangeRate(ctx context.Context, rate domain.ExchangeRate) error {
	args := m.Called(ctx, rate)
	return args.Error(0)
}

func (m *MockExchangeRateRepository) FindExchangeRate(ctx context.Context, fromCode, toCode string) (*domain.ExchangeRate, error) {
	args := m.Called(ctx, fromCode, toCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExchangeRate), args.Error(1)
}

// --- Mock gateways ---
type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) GetRate(ctx context.Context, base, target string) (*domain.ExchangeRateSnapshot, error) {
	args := m.Called(ctx, base, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExchangeRateSnapshot), args.Error(1)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Initiate(ctx context.Context, quote domain.SettlementQuote) (*domain.PaymentSession, error) {
	args := m.Called(ctx, quote)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentSession), args.Error(1)
}

type MockBlockchainGateway struct {
	mock.Mock
}

func (m *MockBlockchainGateway) Send(ctx context.Context, wallet string, amount decimal.Decimal) (string, error) {
	args := m.Called(ctx, wallet, amount)
	return args.String(0), args.Error(1)
}

func (m *MockBlockchainGateway) GetTransaction(ctx context.Context, txHash string) (*domain.ChainReceipt, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChainReceipt), args.Error(1)
}

func (m *MockBlockchainGateway) ValidateAddress(address string) bool {
	args := m.Called(address)
	return args.Bool(0)
}

func (m *MockBlockchainGateway) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockBankGateway struct {
	mock.Mock
}

func (m *MockBankGateway) Transfer(ctx context.Context, order domain.BankTransferOrder) (string, error) {
	args := m.Called(ctx, order)
	return args.String(0), args.Error(1)
}

type MockP2PGateway struct {
	mock.Mock
}

func (m *MockP2PGateway) Purchase(ctx context.Context, order domain.SettlementOrder) (string, error) {
	args := m.Called(ctx, order)
	return args.String(0), args.Error(1)
}

// recordingPublisher keeps every published event in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SettlementEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.SettlementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.SettlementEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SettlementEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// memoryLocker is an in-process TxLocker.
type memoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemoryLocker(held ...string) *memoryLocker {
	l := &memoryLocker{held: map[string]bool{}}
	for _, key := range held {
		l.held[key] = true
	}
	return l
}

func (l *memoryLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memoryLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
