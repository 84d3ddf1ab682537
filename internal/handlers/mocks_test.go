package handlers_test

import (
	"context"
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// --- Mock BatchService ---
type MockBatchService struct {
	mock.Mock
}

func (m *MockBatchService) batch(args mock.Arguments) (*domain.Batch, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Batch), args.Error(1)
}

func (m *MockBatchService) GetBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	return m.batch(m.Called(ctx, batchID))
}
func (m *MockBatchService) ListBatches(ctx context.Context, params dto.ListBatchesParams) ([]domain.Batch, *string, error) {
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
func (m *MockBatchService) GetReserve(ctx context.Context, batchID string) (*domain.Batch, domain.SettlementReserve, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, domain.SettlementReserve{}, args.Error(2)
	}
	return args.Get(0).(*domain.Batch), args.Get(1).(domain.SettlementReserve), args.Error(2)
}
func (m *MockBatchService) GetLandingChecklist(ctx context.Context, batchID string) (*domain.LandingChecklist, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LandingChecklist), args.Error(1)
}
func (m *MockBatchService) CalculateSettlementReserve(totalNetEur decimal.Decimal) domain.SettlementReserve {
	return m.Called(totalNetEur).Get(0).(domain.SettlementReserve)
}
func (m *MockBatchService) CreateBatch(ctx context.Context, req dto.CreateBatchRequest, actor string) (*domain.Batch, error) {
	return m.batch(m.Called(ctx, req, actor))
}
func (m *MockBatchService) CreatePendingBatch(ctx context.Context, donationIDs []string, wallet string, campaignID *string) (*domain.Batch, error) {
	return m.batch(m.Called(ctx, donationIDs, wallet, campaignID))
}
func (m *MockBatchService) SetGrossDeposit(ctx context.Context, batchID string, req dto.SetGrossDepositRequest, actor string) (*domain.Batch, error) {
	return m.batch(m.Called(ctx, batchID, req, actor))
}
func (m *MockBatchService) RecordOperationalFeePayment(ctx context.Context, batchID string, req dto.RecordFeePaymentRequest, actor string) (*domain.Batch, error) {
	return m.batch(m.Called(ctx, batchID, req, actor))
}
func (m *MockBatchService) ProcessBatch(ctx context.Context, batchID string, actor string) (*domain.Batch, error) {
	return m.batch(m.Called(ctx, batchID, actor))
}
func (m *MockBatchService) InitiateSettlement(ctx context.Context, batchID string, user domain.UserContext, actor string) (*domain.PaymentSession, error) {
	args := m.Called(ctx, batchID, user, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentSession), args.Error(1)
}
func (m *MockBatchService) HandleSettlementCallback(ctx context.Context, callback domain.SettlementCallback) (*domain.Batch, error) {
	return m.batch(m.Called(ctx, callback))
}
func (m *MockBatchService) SendOnChain(ctx context.Context, batchID string, actor string) (*domain.Batch, string, error) {
	args := m.Called(ctx, batchID, actor)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*domain.Batch), args.String(1), args.Error(2)
}
func (m *MockBatchService) CancelBatch(ctx context.Context, batchID string, actor string) (*domain.Batch, error) {
	return m.batch(m.Called(ctx, batchID, actor))
}

var _ portssvc.BatchSvcFacade = (*MockBatchService)(nil)

// --- Mock SettlementStrategy ---
type MockSettlementService struct {
	mock.Mock
}

func (m *MockSettlementService) SelectStrategy(ctx context.Context, req domain.StrategyRequest) (*domain.StrategyDecision, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StrategyDecision), args.Error(1)
}
func (m *MockSettlementService) ExecuteSettlement(ctx context.Context, batchID string, actor string) (*domain.SettlementResult, error) {
	args := m.Called(ctx, batchID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SettlementResult), args.Error(1)
}

var _ portssvc.SettlementStrategySvc = (*MockSettlementService)(nil)

// --- Mock CycleService ---
type MockCycleService struct {
	mock.Mock
}

func (m *MockCycleService) GetActiveCycle(ctx context.Context) (*domain.ProcessingCycle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingCycle), args.Error(1)
}
func (m *MockCycleService) ListCycleHistory(ctx context.Context, limit int) ([]domain.ProcessingCycle, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ProcessingCycle), args.Error(1)
}
func (m *MockCycleService) GetPendingDonations(ctx context.Context, cycle domain.CycleType) ([]domain.Donation, error) {
	args := m.Called(ctx, cycle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Donation), args.Error(1)
}
func (m *MockCycleService) GetVolumeStats(ctx context.Context, cycle domain.CycleType) (*domain.VolumeStats, error) {
	args := m.Called(ctx, cycle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VolumeStats), args.Error(1)
}
func (m *MockCycleService) RecommendCycle(stats domain.VolumeStats) domain.CycleRecommendation {
	return m.Called(stats).Get(0).(domain.CycleRecommendation)
}
func (m *MockCycleService) CalculateNextProcessingDate(cycle domain.CycleType, from time.Time) *time.Time {
	args := m.Called(cycle, from)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*time.Time)
}
func (m *MockCycleService) EstimateProcessingCost(cycle domain.CycleType, monthlyVolumeEur decimal.Decimal) (*domain.ProcessingCostEstimate, error) {
	args := m.Called(cycle, monthlyVolumeEur)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingCostEstimate), args.Error(1)
}
func (m *MockCycleService) UpdateCycle(ctx context.Context, req dto.UpdateCycleRequest, actor string) (*domain.ProcessingCycle, error) {
	args := m.Called(ctx, req, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingCycle), args.Error(1)
}
func (m *MockCycleService) RecommendFromVolume(ctx context.Context) (*domain.CycleRecommendation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CycleRecommendation), args.Error(1)
}
func (m *MockCycleService) CalculateOptimizationPotential(ctx context.Context) (*domain.OptimizationPotential, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OptimizationPotential), args.Error(1)
}

var _ portssvc.CycleSvcFacade = (*MockCycleService)(nil)

// --- Mock FeeCalculator ---
type MockFeeService struct {
	mock.Mock
}

func (m *MockFeeService) CalculateFees(amount decimal.Decimal, pct domain.FeePercentages) (*domain.FeeBreakdown, error) {
	args := m.Called(amount, pct)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeeBreakdown), args.Error(1)
}
func (m *MockFeeService) CalculateBatchFees(donations []domain.Donation) (*domain.BatchFeeTotals, error) {
	args := m.Called(donations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchFeeTotals), args.Error(1)
}
func (m *MockFeeService) DefaultPercentages() domain.FeePercentages {
	return m.Called().Get(0).(domain.FeePercentages)
}

var _ portssvc.FeeCalculatorSvc = (*MockFeeService)(nil)

// --- Mock ExchangeRateService ---
type MockExchangeRateService struct {
	mock.Mock
}

func (m *MockExchangeRateService) GetExchangeRate(ctx context.Context, fromCode, toCode string) (*domain.ExchangeRate, error) {
	args := m.Called(ctx, fromCode, toCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExchangeRate), args.Error(1)
}
func (m *MockExchangeRateService) CreateExchangeRate(ctx context.Context, req dto.CreateExchangeRateRequest, creatorUserID string) (*domain.ExchangeRate, error) {
	args := m.Called(ctx, req, creatorUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExchangeRate), args.Error(1)
}

var _ portssvc.ExchangeRateSvcFacade = (*MockExchangeRateService)(nil)
