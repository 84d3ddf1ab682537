package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/core/services"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type SettlementStrategyTestSuite struct {
	suite.Suite
	store    *memoryStore
	rates    *MockRateProvider
	payments *MockPaymentGateway
	chain    *MockBlockchainGateway
	p2p      *MockP2PGateway
	bank     *MockBankGateway
	now      time.Time
	cfg      services.SettlementStrategyConfig
	batches  portssvc.BatchSvcFacade
}

func (suite *SettlementStrategyTestSuite) SetupTest() {
	suite.now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	suite.store = newMemoryStore(
		donationFromGross(suite.T(), "d1", "50"),
		donationFromGross(suite.T(), "d2", "60"),
		donationFromGross(suite.T(), "d3", "40"),
	)
	suite.rates = new(MockRateProvider)
	suite.payments = new(MockPaymentGateway)
	suite.chain = new(MockBlockchainGateway)
	suite.p2p = new(MockP2PGateway)
	suite.bank = new(MockBankGateway)

	// nets 45, 37.5 and 30 pack into two groups: [45] and [37.5, 30]
	suite.cfg = services.DefaultSettlementStrategyConfig()
	suite.cfg.OptimalGroupEur = dec("50")
	suite.cfg.MinimumGroupEur = dec("40")
	suite.cfg.Operator = domain.UserContext{Email: "ops@example.org", FirstName: "Ada", LastName: "Ops"}

	suite.batches = services.NewBatchService(
		suite.store,
		services.NewFeeCalculator(domain.DefaultFeePercentages()),
		suite.rates,
		suite.payments,
		suite.chain,
		services.DefaultBatchServiceConfig(),
		services.WithBatchClock(func() time.Time { return suite.now }),
	)
}

func (suite *SettlementStrategyTestSuite) strategy(gw services.SettlementGateways, opts ...services.SettlementStrategyOption) portssvc.SettlementStrategySvc {
	opts = append([]services.SettlementStrategyOption{
		services.WithStrategyClock(func() time.Time { return suite.now }),
	}, opts...)
	return services.NewSettlementStrategy(suite.store, suite.store, gw, suite.cfg, opts...)
}

func (suite *SettlementStrategyTestSuite) allGateways() services.SettlementGateways {
	return services.SettlementGateways{Payments: suite.payments, Chain: suite.chain, P2P: suite.p2p, Bank: suite.bank}
}

func (suite *SettlementStrategyTestSuite) processedBatch() *domain.Batch {
	ctx := context.Background()
	b, err := suite.batches.CreateBatch(ctx, dto.CreateBatchRequest{DonationIDs: []string{"d1", "d2", "d3"}, TargetWallet: testWallet}, "operator-1")
	suite.Require().NoError(err)
	_, err = suite.batches.SetGrossDeposit(ctx, b.BatchID, dto.SetGrossDepositRequest{GrossDepositEur: dec("150")}, "operator-1")
	suite.Require().NoError(err)
	suite.rates.On("GetRate", mock.Anything, "EUR", "USDT").Return(&domain.ExchangeRateSnapshot{
		Base: "EUR", Target: "USDT", Rate: dec("1.05"), Source: "manual", ValidFrom: suite.now,
	}, nil)
	processed, err := suite.batches.ProcessBatch(ctx, b.BatchID, "operator-1")
	suite.Require().NoError(err)
	return processed
}

func (suite *SettlementStrategyTestSuite) walletValid(valid bool) {
	suite.chain.On("ValidateAddress", testWallet).Return(valid)
}

func (suite *SettlementStrategyTestSuite) balance(amount string) {
	suite.chain.On("GetBalance", mock.Anything).Return(dec(amount), nil)
}

func (suite *SettlementStrategyTestSuite) TestSelectStrategy() {
	tests := []struct {
		name     string
		amount   string
		balance  string
		strategy domain.StrategyName
		provider string
		cost     string
		instant  bool
	}{
		{name: "p2p undercuts the provider fee", amount: "1000", balance: "0", strategy: domain.StrategyP2PPurchase, provider: "p2p_desk", cost: "10"},
		{name: "hot wallet is free", amount: "1000", balance: "950", strategy: domain.StrategyInternalBalance, provider: "hot_wallet", cost: "0", instant: true},
		{name: "balance within the tolerance", amount: "1000", balance: "900", strategy: domain.StrategyInternalBalance, provider: "hot_wallet", cost: "0", instant: true},
		{name: "direct purchase below p2p minimum", amount: "60", balance: "0", strategy: domain.StrategyDirectPurchase, provider: "simplex", cost: "10"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.chain = new(MockBlockchainGateway)
			suite.walletValid(true)
			suite.balance(tt.balance)

			decision, err := suite.strategy(suite.allGateways()).SelectStrategy(context.Background(), domain.StrategyRequest{
				Wallet:    testWallet,
				AmountEur: dec(tt.amount),
			})

			suite.Require().NoError(err)
			suite.True(decision.Viable)
			suite.Require().NotNil(decision.Strategy)
			suite.Equal(tt.strategy, decision.Strategy.Name)
			suite.Equal(tt.provider, decision.Strategy.Provider)
			suite.Equal(tt.cost, decision.Strategy.CostEur.String())
			suite.Equal(tt.instant, decision.Strategy.IsInstant())
			suite.Len(decision.Candidates, 3)
		})
	}
}

func (suite *SettlementStrategyTestSuite) TestSelectStrategy_TiePrefersInstant() {
	suite.cfg.Providers = []domain.CryptoProvider{{Name: "zero", FixedFeeEur: decimal.Zero, FeePercent: decimal.Zero, MinAmountEur: dec("1")}}
	suite.walletValid(true)
	suite.balance("5000")

	decision, err := suite.strategy(suite.allGateways()).SelectStrategy(context.Background(), domain.StrategyRequest{Wallet: testWallet, AmountEur: dec("500")})

	suite.Require().NoError(err)
	suite.Equal(domain.StrategyInternalBalance, decision.Strategy.Name)
	suite.True(decision.Candidates[0].Viable, "direct purchase ties at zero cost")
}

func (suite *SettlementStrategyTestSuite) TestSelectStrategy_RateScalesBalanceCheck() {
	suite.walletValid(true)
	suite.balance("100")
	rate := dec("1.2")

	decision, err := suite.strategy(suite.allGateways()).SelectStrategy(context.Background(), domain.StrategyRequest{
		Wallet:    testWallet,
		AmountEur: dec("100"),
		Rate:      &rate,
	})

	// 100 EUR at 1.2 needs 108 on the hot wallet
	suite.Require().NoError(err)
	suite.False(decision.Candidates[1].Viable)
	suite.Equal(domain.StrategyP2PPurchase, decision.Strategy.Name)
}

func (suite *SettlementStrategyTestSuite) TestSelectStrategy_NothingViable() {
	suite.chain.On("ValidateAddress", "not-a-wallet").Return(false)

	decision, err := suite.strategy(suite.allGateways()).SelectStrategy(context.Background(), domain.StrategyRequest{Wallet: "not-a-wallet", AmountEur: dec("40")})

	suite.Require().NoError(err)
	suite.False(decision.Viable)
	suite.Nil(decision.Strategy)
	suite.Equal(domain.StrategyBankTransfer, decision.Fallback)
	suite.Equal(services.NoViableStrategyReason, decision.Reason)
	for _, c := range decision.Candidates {
		suite.NotEmpty(c.Reason, string(c.Name))
	}
	suite.chain.AssertNotCalled(suite.T(), "GetBalance", mock.Anything)
}

func (suite *SettlementStrategyTestSuite) TestSelectStrategy_BalanceErrorIsNotViable() {
	suite.walletValid(true)
	suite.chain.On("GetBalance", mock.Anything).Return(decimal.Zero, errors.New("node unreachable"))

	decision, err := suite.strategy(suite.allGateways()).SelectStrategy(context.Background(), domain.StrategyRequest{Wallet: testWallet, AmountEur: dec("200")})

	suite.Require().NoError(err)
	suite.False(decision.Candidates[1].Viable)
	suite.Contains(decision.Candidates[1].Reason, "node unreachable")
	suite.Equal(domain.StrategyP2PPurchase, decision.Strategy.Name)
}

func (suite *SettlementStrategyTestSuite) TestSelectStrategy_RejectsNonPositiveAmount() {
	_, err := suite.strategy(suite.allGateways()).SelectStrategy(context.Background(), domain.StrategyRequest{Wallet: testWallet, AmountEur: decimal.Zero})

	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_InternalTransfer() {
	ctx := context.Background()
	b := suite.processedBatch()
	suite.walletValid(true)
	suite.balance("10000")
	suite.chain.On("Send", mock.Anything, testWallet, mock.MatchedBy(func(a decimal.Decimal) bool { return a.Equal(dec("47.25")) })).Return("0xg1", nil).Once()
	suite.chain.On("Send", mock.Anything, testWallet, mock.MatchedBy(func(a decimal.Decimal) bool { return a.Equal(dec("70.875")) })).Return("0xg2", nil).Once()

	result, err := suite.strategy(suite.allGateways()).ExecuteSettlement(ctx, b.BatchID, "operator-1")

	suite.Require().NoError(err)
	suite.Equal(domain.StrategyInternalBalance, result.Strategy)
	suite.Equal(domain.BatchSending, result.Status)
	suite.Equal(2, result.GroupCount)
	suite.Len(result.Receipts, 2)
	suite.False(result.AwaitingManual)

	stored, err := suite.store.FindBatchByID(ctx, b.BatchID)
	suite.Require().NoError(err)
	suite.Equal(domain.BatchSending, stored.Status)
	suite.Equal("0xg1", stored.Metadata.ExternalRefs.TxHash)
	suite.NotNil(stored.SentToBlockchainAt)
	suite.Require().NotNil(stored.Metadata.Settlement)
	suite.Equal(2, stored.Metadata.Settlement.GroupCount)
	suite.Require().Len(stored.Metadata.Settlement.Groups, 2)
	suite.Equal("0xg2", stored.Metadata.Settlement.Groups[1].TxHash)
	suite.False(stored.Metadata.Settlement.AllConfirmed())
	// donations move to sent once the monitor confirms every transfer
	for _, id := range []string{"d1", "d2", "d3"} {
		suite.Equal(domain.DonationBatched, suite.store.donation(id).Status)
	}
	txs, err := suite.store.ListTransactionsByBatch(ctx, b.BatchID)
	suite.Require().NoError(err)
	suite.Len(txs, 2)
	suite.chain.AssertExpectations(suite.T())

	_, _, err = suite.batches.SendOnChain(ctx, b.BatchID, "operator-1")
	suite.ErrorIs(err, apperrors.ErrInvalidState)
	suite.chain.AssertNumberOfCalls(suite.T(), "Send", 2)
}

// directPurchase executes the batch through the payment provider, one quote per group.
func (suite *SettlementStrategyTestSuite) directPurchase(b *domain.Batch) *domain.SettlementResult {
	suite.walletValid(true)
	suite.balance("0")
	suite.payments.On("Initiate", mock.Anything, mock.MatchedBy(func(q domain.SettlementQuote) bool {
		return q.QuoteID == "BATCH-"+b.BatchID+"-G1" && q.User.Email == "ops@example.org"
	})).Return(&domain.PaymentSession{PaymentID: "p1"}, nil).Once()
	suite.payments.On("Initiate", mock.Anything, mock.MatchedBy(func(q domain.SettlementQuote) bool {
		return q.QuoteID == "BATCH-"+b.BatchID+"-G2"
	})).Return(&domain.PaymentSession{PaymentID: "p2"}, nil).Once()

	gw := suite.allGateways()
	gw.P2P = nil
	result, err := suite.strategy(gw).ExecuteSettlement(context.Background(), b.BatchID, "operator-1")
	suite.Require().NoError(err)
	return result
}

func (suite *SettlementStrategyTestSuite) callback(quoteID, status string) *domain.Batch {
	updated, err := suite.batches.HandleSettlementCallback(context.Background(), domain.SettlementCallback{QuoteID: quoteID, Status: status})
	suite.Require().NoError(err)
	return updated
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_DirectPurchaseAwaitsGroupCallbacks() {
	ctx := context.Background()
	b := suite.processedBatch()
	g1, g2 := "BATCH-"+b.BatchID+"-G1", "BATCH-"+b.BatchID+"-G2"

	result := suite.directPurchase(b)

	suite.Equal(domain.StrategyDirectPurchase, result.Strategy)
	suite.Equal(domain.BatchAwaitingSettlement, result.Status)
	suite.Equal("10", result.EstimatedCostEur.String())
	stored, err := suite.store.FindBatchByID(ctx, b.BatchID)
	suite.Require().NoError(err)
	suite.Nil(stored.CompletedAt)
	suite.Equal([]string{g1, g2}, stored.Metadata.Settlement.References)
	suite.Require().Len(stored.Metadata.Settlement.Groups, 2)
	suite.Equal("p1", stored.Metadata.Settlement.Groups[0].PaymentID)
	suite.Equal(g2, stored.Metadata.Settlement.Groups[1].QuoteID)
	suite.Equal(domain.DonationBatched, suite.store.donation("d3").Status)
	suite.payments.AssertExpectations(suite.T())

	matched, err := suite.store.FindBatchByQuoteID(ctx, g2)
	suite.Require().NoError(err)
	suite.Equal(b.BatchID, matched.BatchID)

	first := suite.callback(g1, domain.CallbackSuccess)
	suite.Equal(domain.BatchSending, first.Status)
	suite.Equal(domain.DonationBatched, suite.store.donation("d1").Status)

	redelivered := suite.callback(g1, domain.CallbackSuccess)
	suite.Equal(first.Revision, redelivered.Revision)

	completed := suite.callback(g2, domain.CallbackCompleted)
	suite.Equal(domain.BatchCompleted, completed.Status)
	suite.NotNil(completed.CompletedAt)
	suite.True(completed.Metadata.Settlement.AllConfirmed())
	for _, id := range []string{"d1", "d2", "d3"} {
		suite.Equal(domain.DonationSent, suite.store.donation(id).Status)
	}

	_, _, err = suite.batches.SendOnChain(ctx, b.BatchID, "operator-1")
	suite.ErrorIs(err, apperrors.ErrInvalidState)
	suite.chain.AssertNotCalled(suite.T(), "Send", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_FirstGroupRejectedFailsBatch() {
	b := suite.processedBatch()
	suite.directPurchase(b)

	failed, err := suite.batches.HandleSettlementCallback(context.Background(), domain.SettlementCallback{
		QuoteID: "BATCH-" + b.BatchID + "-G1",
		Status:  domain.CallbackRejected,
		Error:   "card declined",
	})

	suite.Require().NoError(err)
	suite.Equal(domain.BatchFailed, failed.Status)
	suite.True(failed.Metadata.ManualIntervention)
	suite.Contains(failed.Metadata.LastError.Message, "card declined")
	suite.True(failed.Metadata.Settlement.Groups[0].Rejected)
	for _, id := range []string{"d1", "d2", "d3"} {
		suite.Equal(domain.DonationFailed, suite.store.donation(id).Status)
	}
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_LaterGroupRejectedNeedsReconciliation() {
	b := suite.processedBatch()
	suite.directPurchase(b)
	suite.callback("BATCH-"+b.BatchID+"-G1", domain.CallbackSuccess)

	held := suite.callback("BATCH-"+b.BatchID+"-G2", domain.CallbackFailed)

	suite.Equal(domain.BatchNeedsReconciliation, held.Status)
	suite.True(held.Metadata.ManualIntervention)
	suite.Equal(services.StageSettlementCallback, held.Metadata.LastError.Stage)
	suite.Equal(1, held.Metadata.Settlement.Confirmed())
	for _, id := range []string{"d1", "d2", "d3"} {
		suite.Equal(domain.DonationBatched, suite.store.donation(id).Status)
	}

	_, err := suite.batches.HandleSettlementCallback(context.Background(), domain.SettlementCallback{
		QuoteID: "BATCH-" + b.BatchID + "-G1",
		Status:  domain.CallbackFailed,
	})
	suite.ErrorIs(err, apperrors.ErrInvalidState)
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_P2PGroupsMatchDeskCallbacks() {
	ctx := context.Background()
	b := suite.processedBatch()
	suite.walletValid(true)
	suite.balance("0")
	suite.p2p.On("Purchase", mock.Anything, mock.MatchedBy(func(o domain.SettlementOrder) bool { return o.GroupIndex == 0 })).Return("desk-1", nil).Once()
	suite.p2p.On("Purchase", mock.Anything, mock.MatchedBy(func(o domain.SettlementOrder) bool { return o.GroupIndex == 1 })).Return("desk-2", nil).Once()

	result, err := suite.strategy(suite.allGateways()).ExecuteSettlement(ctx, b.BatchID, "operator-1")

	suite.Require().NoError(err)
	suite.Equal(domain.StrategyP2PPurchase, result.Strategy)
	suite.Equal(domain.BatchAwaitingSettlement, result.Status)
	stored, err := suite.store.FindBatchByID(ctx, b.BatchID)
	suite.Require().NoError(err)
	suite.Equal([]string{"desk-1", "desk-2"}, stored.Metadata.Settlement.References)
	suite.Equal("desk-2", stored.Metadata.Settlement.Groups[1].PaymentID)

	suite.callback("BATCH-"+b.BatchID+"-G2", domain.CallbackSuccess)
	completed := suite.callback("BATCH-"+b.BatchID+"-G1", domain.CallbackSuccess)
	suite.Equal(domain.BatchCompleted, completed.Status)
	suite.Equal(domain.DonationSent, suite.store.donation("d2").Status)
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_PartialDispatchKeepsAcceptedGroups() {
	ctx := context.Background()
	b := suite.processedBatch()
	suite.walletValid(true)
	suite.balance("0")
	suite.p2p.On("Purchase", mock.Anything, mock.MatchedBy(func(o domain.SettlementOrder) bool { return o.GroupIndex == 0 })).Return("desk-1", nil).Once()
	suite.p2p.On("Purchase", mock.Anything, mock.MatchedBy(func(o domain.SettlementOrder) bool { return o.GroupIndex == 1 })).Return("", errors.New("desk closed")).Once()

	_, err := suite.strategy(suite.allGateways()).ExecuteSettlement(ctx, b.BatchID, "operator-1")

	suite.ErrorIs(err, apperrors.ErrExternalService)
	stored, err := suite.store.FindBatchByID(ctx, b.BatchID)
	suite.Require().NoError(err)
	suite.Equal(domain.BatchFailed, stored.Status)
	suite.True(stored.Metadata.ManualIntervention)
	suite.Equal(services.StageExecuteSettlement, stored.Metadata.LastError.Stage)
	suite.Contains(stored.Metadata.LastError.Message, "desk closed")
	suite.Require().NotNil(stored.Metadata.Settlement)
	suite.Equal(2, stored.Metadata.Settlement.GroupCount)
	suite.Equal([]string{"desk-1"}, stored.Metadata.Settlement.References)
	suite.Require().Len(stored.Metadata.Settlement.Groups, 1)
	suite.Equal("desk-1", stored.Metadata.Settlement.Groups[0].PaymentID)
	// the accepted group moved funds, so nothing is released as failed
	for _, id := range []string{"d1", "d2", "d3"} {
		suite.Equal(domain.DonationBatched, suite.store.donation(id).Status)
	}

	// the desk can still report on the accepted group
	matched, err := suite.store.FindBatchByQuoteID(ctx, "BATCH-"+b.BatchID+"-G1")
	suite.Require().NoError(err)
	suite.Equal(b.BatchID, matched.BatchID)
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_PartialTransferKeepsHash() {
	ctx := context.Background()
	b := suite.processedBatch()
	suite.walletValid(true)
	suite.balance("10000")
	suite.chain.On("Send", mock.Anything, testWallet, mock.MatchedBy(func(a decimal.Decimal) bool { return a.Equal(dec("47.25")) })).Return("0xg1", nil).Once()
	suite.chain.On("Send", mock.Anything, testWallet, mock.MatchedBy(func(a decimal.Decimal) bool { return a.Equal(dec("70.875")) })).Return("", errors.New("out of energy")).Once()

	_, err := suite.strategy(suite.allGateways()).ExecuteSettlement(ctx, b.BatchID, "operator-1")

	suite.ErrorIs(err, apperrors.ErrExternalService)
	stored, err := suite.store.FindBatchByID(ctx, b.BatchID)
	suite.Require().NoError(err)
	suite.Equal(domain.BatchFailed, stored.Status)
	suite.Equal("0xg1", stored.Metadata.ExternalRefs.TxHash)
	suite.NotNil(stored.SentToBlockchainAt)
	txs, err := suite.store.ListTransactionsByBatch(ctx, b.BatchID)
	suite.Require().NoError(err)
	suite.Require().Len(txs, 1)
	suite.Equal("0xg1", txs[0].TxHash)
	suite.True(dec("47.25").Equal(txs[0].AmountUsdt))
	suite.Equal(domain.TxPending, txs[0].Status)
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_ConcurrentCallsDispatchOnce() {
	ctx := context.Background()
	b := suite.processedBatch()
	suite.walletValid(true)
	suite.balance("0")
	started := make(chan struct{})
	release := make(chan struct{})
	suite.p2p.On("Purchase", mock.Anything, mock.MatchedBy(func(o domain.SettlementOrder) bool { return o.GroupIndex == 0 })).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return("desk-1", nil).Once()
	suite.p2p.On("Purchase", mock.Anything, mock.MatchedBy(func(o domain.SettlementOrder) bool { return o.GroupIndex == 1 })).Return("desk-2", nil).Once()
	svc := suite.strategy(suite.allGateways())

	done := make(chan error, 1)
	go func() {
		_, err := svc.ExecuteSettlement(ctx, b.BatchID, "operator-1")
		done <- err
	}()
	<-started

	_, err := svc.ExecuteSettlement(ctx, b.BatchID, "operator-2")
	suite.ErrorIs(err, services.ErrSettlementInProgress)

	close(release)
	suite.Require().NoError(<-done)

	_, err = svc.ExecuteSettlement(ctx, b.BatchID, "operator-2")
	suite.ErrorIs(err, apperrors.ErrInvalidState)
	suite.p2p.AssertNumberOfCalls(suite.T(), "Purchase", 2)
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_BankFallback() {
	ctx := context.Background()
	b := suite.processedBatch()
	suite.walletValid(false)
	suite.bank.On("Transfer", mock.Anything, mock.MatchedBy(func(o domain.BankTransferOrder) bool {
		return o.Reference == "BATCH-"+b.BatchID+"-G1" && o.AmountEur.Equal(dec("45"))
	})).Return("SEPA-1", nil).Once()
	suite.bank.On("Transfer", mock.Anything, mock.MatchedBy(func(o domain.BankTransferOrder) bool {
		return o.Reference == "BATCH-"+b.BatchID+"-G2" && o.AmountEur.Equal(dec("67.5"))
	})).Return("SEPA-2", nil).Once()

	svc := suite.strategy(suite.allGateways())
	result, err := svc.ExecuteSettlement(ctx, b.BatchID, "operator-1")

	suite.Require().NoError(err)
	suite.Equal(domain.StrategyBankTransfer, result.Strategy)
	suite.True(result.AwaitingManual)
	suite.Equal(domain.BatchProcessing, result.Status)
	suite.Equal("0.5", result.EstimatedCostEur.String())

	stored, err := suite.store.FindBatchByID(ctx, b.BatchID)
	suite.Require().NoError(err)
	suite.Equal(domain.BatchProcessing, stored.Status)
	suite.Equal([]string{"SEPA-1", "SEPA-2"}, stored.Metadata.ExternalRefs.BankReferences)
	suite.True(stored.Metadata.ManualIntervention)
	for _, id := range []string{"d1", "d2", "d3"} {
		suite.Equal(domain.DonationBatched, suite.store.donation(id).Status)
	}

	_, err = svc.ExecuteSettlement(ctx, b.BatchID, "operator-1")
	suite.ErrorIs(err, services.ErrBankTransfersIssued)
	suite.bank.AssertNumberOfCalls(suite.T(), "Transfer", 2)
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_BankingDisabledByCycle() {
	ctx := context.Background()
	b := suite.processedBatch()
	suite.walletValid(false)
	cycles := services.NewCycleScheduler(suite.store, suite.store, services.CycleDefaults{Cycle: domain.CycleWeekly, TriggerBanking: false})

	_, err := suite.strategy(suite.allGateways(), services.WithBankingGate(cycles)).ExecuteSettlement(ctx, b.BatchID, "operator-1")

	suite.ErrorIs(err, services.ErrNoViableStrategy)
	suite.ErrorIs(err, apperrors.ErrInvalidState)
	stored, err := suite.store.FindBatchByID(ctx, b.BatchID)
	suite.Require().NoError(err)
	suite.Equal(domain.BatchProcessing, stored.Status)
	suite.bank.AssertNotCalled(suite.T(), "Transfer", mock.Anything, mock.Anything)
}

func (suite *SettlementStrategyTestSuite) TestExecuteSettlement_RequiresProcessedBatch() {
	ctx := context.Background()
	b, err := suite.batches.CreateBatch(ctx, dto.CreateBatchRequest{DonationIDs: []string{"d1"}, TargetWallet: testWallet}, "operator-1")
	suite.Require().NoError(err)

	_, err = suite.strategy(suite.allGateways()).ExecuteSettlement(ctx, b.BatchID, "operator-1")
	suite.ErrorIs(err, apperrors.ErrInvalidState)

	_, err = suite.strategy(suite.allGateways()).ExecuteSettlement(ctx, "missing", "operator-1")
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func TestSettlementStrategy(t *testing.T) {
	suite.Run(t, new(SettlementStrategyTestSuite))
}
