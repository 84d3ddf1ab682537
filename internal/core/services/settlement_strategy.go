package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/utils/accounting"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNoViableStrategy    = fmt.Errorf("%w: no viable crypto strategy and bank fallback is disabled", apperrors.ErrInvalidState)
	ErrBankTransfersIssued = fmt.Errorf("%w: bank transfers were already issued for this batch", apperrors.ErrInvalidState)
	ErrDispatchIncomplete  = fmt.Errorf("%w: settlement orders were not all accepted", apperrors.ErrExternalService)
)

// NoViableStrategyReason is reported when every crypto route was rejected.
const NoViableStrategyReason = "No viable crypto strategy available"

const (
	hotWalletProvider = "hot_wallet"
	p2pDeskProvider   = "p2p_desk"
)

// SettlementStrategyConfig holds the thresholds of the route selection.
type SettlementStrategyConfig struct {
	Providers             []domain.CryptoProvider
	DirectMinimumEur      decimal.Decimal
	P2PMinimumEur         decimal.Decimal
	P2PFeePercent         decimal.Decimal
	InternalBalanceFactor decimal.Decimal
	OptimalGroupEur       decimal.Decimal
	MinimumGroupEur       decimal.Decimal
	Operator              domain.UserContext
	ExternalCallTimeout   time.Duration
}

// DefaultSettlementStrategyConfig returns the published thresholds with simplex as the only
// direct purchase provider.
func DefaultSettlementStrategyConfig() SettlementStrategyConfig {
	return SettlementStrategyConfig{
		Providers:             []domain.CryptoProvider{domain.KnownCryptoProviders()["simplex"]},
		DirectMinimumEur:      decimal.NewFromInt(50),
		P2PMinimumEur:         decimal.NewFromInt(100),
		P2PFeePercent:         decimal.NewFromInt(1),
		InternalBalanceFactor: decimal.RequireFromString("0.9"),
		OptimalGroupEur:       decimal.NewFromInt(1000),
		MinimumGroupEur:       decimal.NewFromInt(100),
		ExternalCallTimeout:   30 * time.Second,
	}
}

// SettlementGateways are the routes a batch can be settled through. P2P and Bank are optional.
type SettlementGateways struct {
	Payments gateways.PaymentGateway
	Chain    gateways.BlockchainGateway
	P2P      gateways.P2PGateway
	Bank     gateways.BankGateway
}

type settlementStrategy struct {
	BaseService
	donationRepo portsrepo.DonationReader
	batchRepo    portsrepo.BatchRepositoryFacade
	gw           SettlementGateways
	cycles       portssvc.CycleReaderSvc
	grouper      *DonationGrouper
	events       gateways.EventPublisher
	locker       gateways.TxLocker
	metrics      Metrics
	cfg          SettlementStrategyConfig
	newID        func() string
}

// SettlementStrategyOption is a function that configures a settlementStrategy
type SettlementStrategyOption func(*settlementStrategy)

// WithStrategyClock replaces the service clock.
func WithStrategyClock(now func() time.Time) SettlementStrategyOption {
	return func(s *settlementStrategy) {
		s.Now = now
	}
}

// WithStrategyEvents publishes settlement events after every committed status change.
func WithStrategyEvents(events gateways.EventPublisher) SettlementStrategyOption {
	return func(s *settlementStrategy) {
		s.events = events
	}
}

// WithStrategyMetrics sets the metrics sink.
func WithStrategyMetrics(m Metrics) SettlementStrategyOption {
	return func(s *settlementStrategy) {
		s.metrics = m
	}
}

// WithStrategyLocker shares the settlement lock with the batch service and other instances.
func WithStrategyLocker(locker gateways.TxLocker) SettlementStrategyOption {
	return func(s *settlementStrategy) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithBankingGate makes the bank fallback follow the active cycle's triggerBanking flag.
func WithBankingGate(cycles portssvc.CycleReaderSvc) SettlementStrategyOption {
	return func(s *settlementStrategy) {
		s.cycles = cycles
	}
}

// NewSettlementStrategy creates the route selector and executor.
func NewSettlementStrategy(
	donationRepo portsrepo.DonationReader,
	batchRepo portsrepo.BatchRepositoryFacade,
	gw SettlementGateways,
	cfg SettlementStrategyConfig,
	opts ...SettlementStrategyOption,
) portssvc.SettlementStrategySvc {
	s := &settlementStrategy{
		BaseService:  newBaseService(),
		donationRepo: donationRepo,
		batchRepo:    batchRepo,
		gw:           gw,
		grouper:      NewDonationGrouper(cfg.OptimalGroupEur, cfg.MinimumGroupEur),
		locker:       newLocalLocker(),
		metrics:      noopMetrics{},
		cfg:          cfg,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ portssvc.SettlementStrategySvc = (*settlementStrategy)(nil)

func (s *settlementStrategy) committer() transitionCommitter {
	return transitionCommitter{repo: s.batchRepo, metrics: s.metrics, events: s.events, now: s.Now}
}

// SelectStrategy picks the cheapest viable route. Equal costs prefer an instant route.
func (s *settlementStrategy) SelectStrategy(ctx context.Context, req domain.StrategyRequest) (*domain.StrategyDecision, error) {
	if !req.AmountEur.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", apperrors.ErrValidation)
	}
	req.Wallet = strings.TrimSpace(req.Wallet)

	candidates := []domain.StrategyCandidate{
		s.directCandidate(req),
		s.internalCandidate(ctx, req),
		s.p2pCandidate(req),
	}

	var best *domain.StrategyCandidate
	for i := range candidates {
		c := &candidates[i]
		if !c.Viable {
			continue
		}
		if best == nil || c.CostEur.LessThan(best.CostEur) ||
			(c.CostEur.Equal(best.CostEur) && c.IsInstant() && !best.IsInstant()) {
			best = c
		}
	}

	if best == nil {
		s.LogInfo(ctx, "No viable crypto strategy", slog.String("amount_eur", req.AmountEur.String()))
		return &domain.StrategyDecision{
			Viable:     false,
			Fallback:   domain.StrategyBankTransfer,
			Reason:     NoViableStrategyReason,
			Candidates: candidates,
		}, nil
	}
	chosen := *best
	return &domain.StrategyDecision{Viable: true, Strategy: &chosen, Candidates: candidates}, nil
}

func (s *settlementStrategy) directCandidate(req domain.StrategyRequest) domain.StrategyCandidate {
	c := domain.StrategyCandidate{Name: domain.StrategyDirectPurchase, Speed: domain.SpeedSameDay}
	if s.gw.Payments == nil {
		c.Reason = "payment gateway not configured"
		return c
	}
	if !s.gw.Chain.ValidateAddress(req.Wallet) {
		c.Reason = "invalid wallet address"
		return c
	}
	if req.AmountEur.LessThan(s.cfg.DirectMinimumEur) {
		c.Reason = fmt.Sprintf("amount below direct purchase minimum of %s EUR", s.cfg.DirectMinimumEur)
		return c
	}

	var cheapest *domain.CryptoProvider
	var cost decimal.Decimal
	for i := range s.cfg.Providers {
		p := s.cfg.Providers[i]
		if req.AmountEur.LessThan(p.MinAmountEur) {
			continue
		}
		if pc := p.CostFor(req.AmountEur); cheapest == nil || pc.LessThan(cost) {
			cheapest, cost = &p, pc
		}
	}
	if cheapest == nil {
		c.Reason = "no provider accepts this amount"
		return c
	}
	c.Viable = true
	c.Provider = cheapest.Name
	c.CostEur = accounting.RoundMoney(cost)
	return c
}

// internalCandidate is viable when the hot wallet holds at least the configured share of the
// amount, converted at the batch rate when one is known.
func (s *settlementStrategy) internalCandidate(ctx context.Context, req domain.StrategyRequest) domain.StrategyCandidate {
	c := domain.StrategyCandidate{Name: domain.StrategyInternalBalance, Provider: hotWalletProvider, Speed: domain.SpeedInstant}
	if !s.gw.Chain.ValidateAddress(req.Wallet) {
		c.Reason = "invalid wallet address"
		return c
	}

	callCtx, cancel := withTimeout(ctx, s.cfg.ExternalCallTimeout)
	started := time.Now()
	balance, err := s.gw.Chain.GetBalance(callCtx)
	cancel()
	s.metrics.ObserveExternalCall("blockchain_balance", err, started)
	if err != nil {
		s.LogWarn(ctx, "Cannot read hot wallet balance", slog.String("error", err.Error()))
		c.Reason = "balance unavailable: " + err.Error()
		return c
	}

	needed := req.AmountEur
	if req.Rate != nil {
		needed = needed.Mul(*req.Rate)
	}
	if balance.LessThan(needed.Mul(s.cfg.InternalBalanceFactor)) {
		c.Reason = fmt.Sprintf("insufficient hot wallet balance %s", balance)
		return c
	}
	c.Viable = true
	c.CostEur = decimal.Zero
	return c
}

func (s *settlementStrategy) p2pCandidate(req domain.StrategyRequest) domain.StrategyCandidate {
	c := domain.StrategyCandidate{Name: domain.StrategyP2PPurchase, Provider: p2pDeskProvider, Speed: domain.SpeedTwoDays}
	if s.gw.P2P == nil {
		c.Reason = "p2p desk not configured"
		return c
	}
	if !s.gw.Chain.ValidateAddress(req.Wallet) {
		c.Reason = "invalid wallet address"
		return c
	}
	if req.AmountEur.LessThan(s.cfg.P2PMinimumEur) {
		c.Reason = fmt.Sprintf("amount below p2p minimum of %s EUR", s.cfg.P2PMinimumEur)
		return c
	}
	c.Viable = true
	c.CostEur = accounting.RoundMoney(accounting.Percent(req.AmountEur, s.cfg.P2PFeePercent))
	return c
}

// ExecuteSettlement dispatches every donation group of a processed batch through the selected
// route. Donations stay batched until every group is confirmed.
func (s *settlementStrategy) ExecuteSettlement(ctx context.Context, batchID string, actor string) (*domain.SettlementResult, error) {
	release, err := lockBatch(ctx, s.locker, batchID)
	if err != nil {
		return nil, err
	}
	defer release()

	b, err := findBatch(ctx, s.batchRepo, batchID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(b, domain.BatchSending, domain.BatchProcessing); err != nil {
		return nil, err
	}
	if b.TargetAmount == nil || b.ExchangeRate == nil {
		return nil, ErrMissingTargetAmount
	}
	if len(b.Metadata.ExternalRefs.BankReferences) > 0 {
		return nil, ErrBankTransfersIssued
	}

	donations, err := s.donationRepo.ListDonationsByBatch(ctx, batchID)
	if err != nil {
		s.LogError(ctx, err, "Failed to load batch donations", slog.String("batch_id", batchID))
		return nil, fmt.Errorf("failed to load donations of batch %s: %w", batchID, err)
	}
	if len(donations) == 0 {
		return nil, fmt.Errorf("%w: batch %s has no donations", apperrors.ErrValidation, batchID)
	}

	decision, err := s.SelectStrategy(ctx, domain.StrategyRequest{
		Wallet:        b.TargetWallet,
		AmountEur:     b.TotalNetEur,
		DonationCount: len(donations),
		Rate:          b.ExchangeRate,
	})
	if err != nil {
		return nil, err
	}

	actor = actorOrSystem(actor)
	groups := s.grouper.Group(donations)
	if !decision.Viable {
		return s.bankFallback(ctx, b, groups, actor)
	}

	strategy := *decision.Strategy
	orders := buildOrders(b, groups)
	logger := s.GetLogger(ctx).With(slog.String("batch_id", batchID), slog.String("strategy", string(strategy.Name)))
	logger.Info("Executing settlement", slog.Int("groups", len(orders)), slog.String("estimated_cost_eur", strategy.CostEur.String()))

	receipts, err := s.dispatch(ctx, strategy.Name, orders)
	if err == nil && len(receipts) != len(orders) {
		err = fmt.Errorf("%w: %d of %d", ErrDispatchIncomplete, len(receipts), len(orders))
	}
	if err != nil {
		logger.Error("Settlement dispatch failed", slog.String("error", err.Error()), slog.Int("accepted", len(receipts)))
		s.failDispatch(ctx, *b, strategy, orders, receipts, err, actor)
		return nil, apperrors.NewExternalServiceError(string(strategy.Name), err)
	}

	// On-chain groups complete through the confirmation monitor, purchased groups through
	// the provider callback. Donations stay batched until then.
	from := b.Status
	now := s.Now()
	dispatched := settlementGroups(orders, receipts)
	txs := s.transactions(b, dispatched, now)
	next := domain.BatchAwaitingSettlement
	if len(txs) > 0 {
		next = domain.BatchSending
	}
	if err := b.TransitionTo(next, actor, now); err != nil {
		return nil, err
	}
	if len(txs) > 0 {
		b.Metadata.ExternalRefs.TxHash = txs[0].TxHash
		b.SentToBlockchainAt = &now
	} else {
		b.InitiatedAt = &now
	}
	b.Metadata.Settlement = settlementRecord(strategy, len(orders), receipts, dispatched, now)

	updated, err := s.committer().commit(context.WithoutCancel(ctx), portsrepo.BatchTransition{
		Batch:           *b,
		FromStatus:      from,
		NewTransactions: txs,
	})
	if err != nil {
		logger.Error("Settlement dispatched but not recorded", slog.Any("references", b.Metadata.Settlement.References))
		return nil, err
	}
	logger.Info("Settlement dispatched", slog.String("status", string(updated.Status)))

	return &domain.SettlementResult{
		BatchID:          batchID,
		Strategy:         strategy.Name,
		Status:           updated.Status,
		GroupCount:       len(orders),
		Receipts:         receipts,
		ExecutedAt:       now,
		EstimatedCostEur: strategy.CostEur,
	}, nil
}

// failDispatch fails the batch after a rejected order. Orders accepted before the rejection
// already moved funds, so their receipts and transfers are kept and the donations stay
// batched for the operator to reconcile.
func (s *settlementStrategy) failDispatch(ctx context.Context, b domain.Batch, strategy domain.StrategyCandidate, orders []domain.SettlementOrder, receipts []domain.SettlementReceipt, cause error, actor string) {
	if len(receipts) == 0 {
		s.committer().fail(ctx, b, StageExecuteSettlement, cause, actor)
		return
	}

	now := s.Now()
	t, err := failBatch(b, StageExecuteSettlement, cause, actor, now)
	if err != nil {
		s.LogError(ctx, err, "Cannot fail batch", slog.String("batch_id", b.BatchID))
		return
	}
	groups := settlementGroups(orders, receipts)
	t.NewTransactions = s.transactions(&t.Batch, groups, now)
	if len(t.NewTransactions) > 0 {
		t.Batch.Metadata.ExternalRefs.TxHash = t.NewTransactions[0].TxHash
		t.Batch.SentToBlockchainAt = &now
	}
	t.Batch.Metadata.Settlement = settlementRecord(strategy, len(orders), receipts, groups, now)
	t.DonationStatus = ""

	if _, err := s.committer().commit(context.WithoutCancel(ctx), t); err != nil {
		s.LogError(ctx, err, "Partial settlement not recorded",
			slog.String("batch_id", b.BatchID),
			slog.Any("references", t.Batch.Metadata.Settlement.References))
	}
}

// settlementGroups pairs the accepted receipts with the orders they answer, in dispatch order.
func settlementGroups(orders []domain.SettlementOrder, receipts []domain.SettlementReceipt) []domain.SettlementGroup {
	groups := make([]domain.SettlementGroup, len(receipts))
	for i, r := range receipts {
		groups[i] = domain.SettlementGroup{
			Reference:    orders[i].Reference,
			QuoteID:      r.QuoteID,
			PaymentID:    r.PaymentID,
			TxHash:       r.TxHash,
			AmountTarget: orders[i].AmountTarget,
			DonationIDs:  orders[i].DonationIDs,
		}
	}
	return groups
}

func settlementRecord(strategy domain.StrategyCandidate, orderCount int, receipts []domain.SettlementReceipt, groups []domain.SettlementGroup, at time.Time) *domain.SettlementRecord {
	references := make([]string, len(receipts))
	for i, r := range receipts {
		references[i] = r.Reference
	}
	return &domain.SettlementRecord{
		Strategy:         strategy.Name,
		Provider:         strategy.Provider,
		EstimatedCostEur: strategy.CostEur,
		GroupCount:       orderCount,
		References:       references,
		Groups:           groups,
		ExecutedAt:       at,
	}
}

// transactions returns one pending transaction row per on-chain group.
func (s *settlementStrategy) transactions(b *domain.Batch, groups []domain.SettlementGroup, at time.Time) []domain.BlockchainTransaction {
	txs := make([]domain.BlockchainTransaction, 0, len(groups))
	for _, g := range groups {
		if g.TxHash == "" {
			continue
		}
		txs = append(txs, domain.BlockchainTransaction{
			TransactionID: s.newID(),
			BatchID:       b.BatchID,
			TxHash:        g.TxHash,
			Network:       b.Network,
			AmountUsdt:    g.AmountTarget,
			Status:        domain.TxPending,
			CreatedAt:     at,
			UpdatedAt:     at,
		})
	}
	return txs
}

func groupReference(batchID string, index int) string {
	return fmt.Sprintf("BATCH-%s-G%d", batchID, index+1)
}

func buildOrders(b *domain.Batch, groups []DonationGroup) []domain.SettlementOrder {
	orders := make([]domain.SettlementOrder, len(groups))
	for i, g := range groups {
		orders[i] = domain.SettlementOrder{
			BatchID:      b.BatchID,
			GroupIndex:   i,
			Reference:    groupReference(b.BatchID, i),
			Wallet:       b.TargetWallet,
			Network:      b.Network,
			AmountEur:    g.TotalEur,
			AmountTarget: accounting.RoundTarget(g.TotalEur.Mul(*b.ExchangeRate)),
			DonationIDs:  g.DonationIDs(),
		}
	}
	return orders
}

// dispatch sends the orders one by one and stops at the first rejection.
func (s *settlementStrategy) dispatch(ctx context.Context, name domain.StrategyName, orders []domain.SettlementOrder) ([]domain.SettlementReceipt, error) {
	receipts := make([]domain.SettlementReceipt, 0, len(orders))
	for _, order := range orders {
		receipt, err := s.dispatchOne(ctx, name, order)
		if err != nil {
			return receipts, fmt.Errorf("order %s: %w", order.Reference, err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func (s *settlementStrategy) dispatchOne(ctx context.Context, name domain.StrategyName, order domain.SettlementOrder) (domain.SettlementReceipt, error) {
	callCtx, cancel := withTimeout(ctx, s.cfg.ExternalCallTimeout)
	defer cancel()
	started := time.Now()

	switch name {
	case domain.StrategyDirectPurchase:
		session, err := s.gw.Payments.Initiate(callCtx, domain.SettlementQuote{
			QuoteID:           order.Reference,
			BatchID:           order.BatchID,
			FiatAmount:        order.AmountEur,
			FiatCurrency:      domain.BaseCurrency,
			DigitalAmount:     order.AmountTarget,
			DigitalCurrency:   domain.DefaultTargetCurrency,
			DestinationWallet: order.Wallet,
			Network:           order.Network,
			User:              s.cfg.Operator,
		})
		s.metrics.ObserveExternalCall("payment_gateway", err, started)
		if err != nil {
			return domain.SettlementReceipt{}, err
		}
		quoteID := session.QuoteID
		if quoteID == "" {
			quoteID = order.Reference
		}
		return domain.SettlementReceipt{Reference: quoteID, QuoteID: quoteID, PaymentID: session.PaymentID}, nil

	case domain.StrategyInternalBalance:
		txHash, err := s.gw.Chain.Send(callCtx, order.Wallet, order.AmountTarget)
		s.metrics.ObserveExternalCall("blockchain_send", err, started)
		if err != nil {
			return domain.SettlementReceipt{}, err
		}
		return domain.SettlementReceipt{Reference: order.Reference, TxHash: txHash}, nil

	case domain.StrategyP2PPurchase:
		ref, err := s.gw.P2P.Purchase(callCtx, order)
		s.metrics.ObserveExternalCall("p2p_desk", err, started)
		if err != nil {
			return domain.SettlementReceipt{}, err
		}
		return domain.SettlementReceipt{Reference: ref, QuoteID: order.Reference, PaymentID: ref}, nil
	}
	return domain.SettlementReceipt{}, fmt.Errorf("unknown strategy %s", name)
}

// bankFallback wires the groups to the operator's bank for manual conversion. The batch stays
// processing and its donations stay batched.
func (s *settlementStrategy) bankFallback(ctx context.Context, b *domain.Batch, groups []DonationGroup, actor string) (*domain.SettlementResult, error) {
	if s.gw.Bank == nil || !s.bankingEnabled(ctx) {
		return nil, ErrNoViableStrategy
	}
	logger := s.GetLogger(ctx).With(slog.String("batch_id", b.BatchID), slog.String("strategy", string(domain.StrategyBankTransfer)))

	receipts := make([]domain.SettlementReceipt, 0, len(groups))
	references := make([]string, 0, len(groups))
	for i, g := range groups {
		order := domain.BankTransferOrder{
			Reference:   groupReference(b.BatchID, i),
			AmountEur:   accounting.RoundMoney(g.TotalEur),
			Description: fmt.Sprintf("Donation settlement %s group %d/%d", b.BatchID, i+1, len(groups)),
		}
		callCtx, cancel := withTimeout(ctx, s.cfg.ExternalCallTimeout)
		started := time.Now()
		ref, err := s.gw.Bank.Transfer(callCtx, order)
		cancel()
		s.metrics.ObserveExternalCall("bank_gateway", err, started)
		if err != nil {
			logger.Error("Bank transfer failed", slog.String("error", err.Error()), slog.String("reference", order.Reference))
			s.committer().fail(ctx, *b, StageExecuteSettlement, fmt.Errorf("bank transfer %s: %w", order.Reference, err), actor)
			return nil, apperrors.NewExternalServiceError("bank gateway", err)
		}
		receipts = append(receipts, domain.SettlementReceipt{Reference: ref})
		references = append(references, ref)
	}

	now := s.Now()
	cost := BankFeePerTransferEur.Mul(decimal.NewFromInt(int64(len(groups))))
	b.Metadata.ExternalRefs.BankReferences = references
	b.Metadata.ManualIntervention = true
	b.Metadata.Settlement = &domain.SettlementRecord{
		Strategy:         domain.StrategyBankTransfer,
		EstimatedCostEur: cost,
		GroupCount:       len(groups),
		References:       references,
		ExecutedAt:       now,
	}
	b.LastUpdatedAt = now
	b.LastUpdatedBy = actor

	updated, err := s.committer().commit(context.WithoutCancel(ctx), portsrepo.BatchTransition{Batch: *b, FromStatus: b.Status})
	if err != nil {
		logger.Error("Bank transfers issued but not recorded", slog.Any("references", references))
		return nil, err
	}
	logger.Info("Bank fallback issued, awaiting manual conversion", slog.Int("transfers", len(references)))

	return &domain.SettlementResult{
		BatchID:          b.BatchID,
		Strategy:         domain.StrategyBankTransfer,
		Status:           updated.Status,
		GroupCount:       len(groups),
		Receipts:         receipts,
		AwaitingManual:   true,
		ExecutedAt:       now,
		EstimatedCostEur: cost,
	}, nil
}

func (s *settlementStrategy) bankingEnabled(ctx context.Context) bool {
	if s.cycles == nil {
		return true
	}
	cycle, err := s.cycles.GetActiveCycle(ctx)
	if err != nil {
		s.LogWarn(ctx, "Cannot read processing cycle, bank fallback disabled", slog.String("error", err.Error()))
		return false
	}
	return cycle.TriggerBanking
}
