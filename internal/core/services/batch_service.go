package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/Dours-d/D2C/internal/utils/accounting"
	"github.com/Dours-d/D2C/internal/utils/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNoPendingDonations    = apperrors.ErrNoPendingDonations
	ErrGrossDepositRequired  = fmt.Errorf("%w: gross deposit must be recorded before processing", apperrors.ErrValidation)
	ErrBatchNotFound         = fmt.Errorf("%w: batch", apperrors.ErrNotFound)
	ErrMissingWallet         = fmt.Errorf("%w: target wallet is required", apperrors.ErrValidation)
	ErrSettlementOutstanding = fmt.Errorf("%w: batch already has an outstanding settlement quote", apperrors.ErrInvalidState)
	ErrAlreadySentOnChain    = fmt.Errorf("%w: batch was already sent on-chain", apperrors.ErrInvalidState)
	ErrMissingTargetAmount   = fmt.Errorf("%w: batch has no target amount", apperrors.ErrInvalidState)
	ErrBatchTerminal         = fmt.Errorf("%w: batch is in a terminal state", apperrors.ErrInvalidState)
	ErrSettlementExecuted    = fmt.Errorf("%w: batch settles through its executed groups", apperrors.ErrInvalidState)
	ErrUserEmailRequired     = fmt.Errorf("%w: user email is required when no operator is configured", apperrors.ErrValidation)
)

const (
	defaultBatchListLimit = 20
	maxBatchListLimit     = 100
)

// BatchServiceConfig holds the financial parameters of the batch lifecycle.
type BatchServiceConfig struct {
	SettlementMinimumEur decimal.Decimal
	DepositFeePercent    decimal.Decimal
	TargetCurrency       string
	ExternalCallTimeout  time.Duration
	// Operator is the identity a settlement is initiated for when the caller names no email.
	Operator domain.UserContext
}

// DefaultBatchServiceConfig returns the 44 EUR minimum, 10% operational fee, USDT settlement.
func DefaultBatchServiceConfig() BatchServiceConfig {
	return BatchServiceConfig{
		SettlementMinimumEur: decimal.NewFromInt(44),
		DepositFeePercent:    decimal.NewFromInt(10),
		TargetCurrency:       domain.DefaultTargetCurrency,
		ExternalCallTimeout:  30 * time.Second,
	}
}

// batchService owns the batch aggregate and every transition it makes outside of settlement execution.
type batchService struct {
	BaseService
	batchRepo portsrepo.BatchRepositoryFacade
	feeCalc   portssvc.FeeCalculatorSvc
	rates     gateways.RateProvider
	payments  gateways.PaymentGateway
	chain     gateways.BlockchainGateway
	cycles    portssvc.CycleReaderSvc
	events    gateways.EventPublisher
	locker    gateways.TxLocker
	metrics   Metrics
	cfg       BatchServiceConfig
	newID     func() string
}

// BatchServiceOption is a function that configures a batchService
type BatchServiceOption func(*batchService)

// WithBatchClock replaces the service clock.
func WithBatchClock(now func() time.Time) BatchServiceOption {
	return func(s *batchService) {
		s.Now = now
	}
}

// WithBatchIDGenerator replaces the identifier generator for batches, allocations and transactions.
func WithBatchIDGenerator(newID func() string) BatchServiceOption {
	return func(s *batchService) {
		s.newID = newID
	}
}

// WithBatchEvents publishes settlement events after every committed status change.
func WithBatchEvents(events gateways.EventPublisher) BatchServiceOption {
	return func(s *batchService) {
		s.events = events
	}
}

// WithBatchMetrics sets the metrics sink.
func WithBatchMetrics(m Metrics) BatchServiceOption {
	return func(s *batchService) {
		s.metrics = m
	}
}

// WithBatchLocker shares the settlement lock with other instances. Without it the lock only
// serialises requests within this process.
func WithBatchLocker(locker gateways.TxLocker) BatchServiceOption {
	return func(s *batchService) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithCycleGate lets the active cycle's triggerOnChain flag send on-chain right after a
// successful settlement callback.
func WithCycleGate(cycles portssvc.CycleReaderSvc) BatchServiceOption {
	return func(s *batchService) {
		s.cycles = cycles
	}
}

// NewBatchService creates a new batch lifecycle service.
func NewBatchService(
	batchRepo portsrepo.BatchRepositoryFacade,
	feeCalc portssvc.FeeCalculatorSvc,
	rates gateways.RateProvider,
	payments gateways.PaymentGateway,
	chain gateways.BlockchainGateway,
	cfg BatchServiceConfig,
	opts ...BatchServiceOption,
) portssvc.BatchSvcFacade {
	if cfg.TargetCurrency == "" {
		cfg.TargetCurrency = domain.DefaultTargetCurrency
	}
	s := &batchService{
		BaseService: newBaseService(),
		batchRepo:   batchRepo,
		feeCalc:     feeCalc,
		rates:       rates,
		payments:    payments,
		chain:       chain,
		locker:      newLocalLocker(),
		metrics:     noopMetrics{},
		cfg:         cfg,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ portssvc.BatchSvcFacade = (*batchService)(nil)

func (s *batchService) committer() transitionCommitter {
	return transitionCommitter{repo: s.batchRepo, metrics: s.metrics, events: s.events, now: s.Now}
}

func (s *batchService) loadBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	return findBatch(ctx, s.batchRepo, batchID)
}

func (s *batchService) GetBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	return s.loadBatch(ctx, batchID)
}

func (s *batchService) ListBatches(ctx context.Context, params dto.ListBatchesParams) ([]domain.Batch, *string, error) {
	repoParams := portsrepo.ListBatchesParams{
		Limit: pagination.ClampLimit(params.Limit, defaultBatchListLimit, maxBatchListLimit),
	}
	if params.Status != "" {
		status := domain.BatchStatus(strings.ToLower(params.Status))
		if !status.IsValid() {
			return nil, nil, fmt.Errorf("%w: unknown batch status '%s'", apperrors.ErrValidation, params.Status)
		}
		repoParams.Status = &status
	}
	if params.CampaignID != "" {
		repoParams.CampaignID = &params.CampaignID
	}
	if params.NextToken != "" {
		if _, err := pagination.DecodeToken(params.NextToken); err != nil {
			return nil, nil, fmt.Errorf("%w: invalid next token: %v", apperrors.ErrValidation, err)
		}
		repoParams.NextToken = &params.NextToken
	}

	batches, next, err := s.batchRepo.ListBatches(ctx, repoParams)
	if err != nil {
		s.LogError(ctx, err, "Failed to list batches")
		return nil, nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, next, nil
}

// CalculateSettlementReserve returns the top-up needed to reach the provider minimum.
func (s *batchService) CalculateSettlementReserve(totalNetEur decimal.Decimal) domain.SettlementReserve {
	return domain.SettlementReserve{
		MinimumEur:  s.cfg.SettlementMinimumEur,
		RequiredEur: accounting.RoundMoney(accounting.MaxZero(s.cfg.SettlementMinimumEur.Sub(totalNetEur))),
	}
}

func (s *batchService) GetReserve(ctx context.Context, batchID string) (*domain.Batch, domain.SettlementReserve, error) {
	b, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, domain.SettlementReserve{}, err
	}
	return b, s.CalculateSettlementReserve(b.TotalNetEur), nil
}

func (s *batchService) GetLandingChecklist(ctx context.Context, batchID string) (*domain.LandingChecklist, error) {
	b, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	checklist := b.Checklist()
	return &checklist, nil
}

func (s *batchService) CreateBatch(ctx context.Context, req dto.CreateBatchRequest, actor string) (*domain.Batch, error) {
	return s.createBatch(ctx, req.DonationIDs, req.TargetWallet, req.CampaignID, domain.BatchDraft, actorOrSystem(actor))
}

func (s *batchService) CreatePendingBatch(ctx context.Context, donationIDs []string, wallet string, campaignID *string) (*domain.Batch, error) {
	return s.createBatch(ctx, donationIDs, wallet, campaignID, domain.BatchPending, domain.SystemActor)
}

// createBatch claims the donations and inserts the batch with its fee allocations in one
// database transaction. Totals are the exact sums of the claimed rows.
func (s *batchService) createBatch(ctx context.Context, donationIDs []string, wallet string, campaignID *string, status domain.BatchStatus, actor string) (*domain.Batch, error) {
	ids := uniqueIDs(donationIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one donation id is required", apperrors.ErrValidation)
	}
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, ErrMissingWallet
	}

	batchID := s.newID()
	now := s.Now()
	audit := domain.AuditFields{CreatedAt: now, CreatedBy: actor, LastUpdatedAt: now, LastUpdatedBy: actor}
	pct := s.feeCalc.DefaultPercentages()

	build := func(claimed []domain.Donation) (domain.Batch, []domain.FeeAllocation, error) {
		totals, err := s.feeCalc.CalculateBatchFees(claimed)
		if err != nil {
			return domain.Batch{}, nil, err
		}
		allocations := make([]domain.FeeAllocation, 0, len(claimed)*3)
		for _, d := range claimed {
			rows, err := buildFeeAllocations(d, batchID, pct, audit, s.newID)
			if err != nil {
				return domain.Batch{}, nil, err
			}
			allocations = append(allocations, rows...)
		}

		batch := domain.Batch{
			BatchID:        batchID,
			CampaignID:     campaignOf(campaignID, claimed),
			DonationIDs:    ids,
			TargetCurrency: s.cfg.TargetCurrency,
			TargetWallet:   wallet,
			Network:        domain.DefaultNetwork,
			Status:         status,
			Metadata:       domain.NewBatchMetadata(),
			AuditFields:    audit,
		}
		batch.ApplyTotals(*totals)
		return batch, allocations, nil
	}

	batch, err := s.batchRepo.CreateBatchWithClaim(ctx, batchID, ids, build)
	if err != nil {
		s.LogError(ctx, err, "Failed to create batch", slog.Int("donations", len(ids)))
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	s.metrics.ObserveBatchCreated(string(status), batch.DonationCount)
	s.committer().publish(ctx, domain.SettlementEvent{
		Type:    domain.EventBatchStatusChanged,
		BatchID: batch.BatchID,
		Status:  batch.Status,
	})
	s.LogInfo(ctx, "Batch created",
		slog.String("batch_id", batch.BatchID),
		slog.String("status", string(batch.Status)),
		slog.Int("donations", batch.DonationCount),
		slog.String("total_net_eur", batch.TotalNetEur.String()))
	return batch, nil
}

// campaignOf returns the requested campaign, or the campaign shared by every claimed donation.
func campaignOf(requested *string, claimed []domain.Donation) *string {
	if requested != nil && *requested != "" {
		return requested
	}
	var shared *string
	for _, d := range claimed {
		if d.CampaignID == nil {
			return nil
		}
		if shared != nil && *shared != *d.CampaignID {
			return nil
		}
		shared = d.CampaignID
	}
	return shared
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SetGrossDeposit may be called again to correct the deposit; payments already recorded are kept.
func (s *batchService) SetGrossDeposit(ctx context.Context, batchID string, req dto.SetGrossDepositRequest, actor string) (*domain.Batch, error) {
	if !req.GrossDepositEur.IsPositive() {
		return nil, fmt.Errorf("%w: gross deposit must be greater than zero", apperrors.ErrValidation)
	}
	b, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrBatchTerminal, b.Status)
	}

	now := s.Now()
	deposit := req.GrossDepositEur
	b.Metadata.GrossDepositEur = &deposit
	b.Metadata.GrossDepositNote = req.Note
	b.Metadata.GrossDepositAt = &now
	b.Metadata.OperationalFee.CurrentEur = accounting.RoundMoney(accounting.Percent(deposit, s.cfg.DepositFeePercent))
	b.Metadata.OperationalFee.Recompute()
	b.LastUpdatedAt = now
	b.LastUpdatedBy = actorOrSystem(actor)

	updated, err := s.committer().commit(ctx, portsrepo.BatchTransition{Batch: *b, FromStatus: b.Status})
	if err != nil {
		return nil, err
	}
	s.LogInfo(ctx, "Gross deposit recorded",
		slog.String("batch_id", batchID),
		slog.String("gross_deposit_eur", deposit.String()),
		slog.String("operational_fee_eur", updated.Metadata.OperationalFee.CurrentEur.String()))
	return updated, nil
}

func (s *batchService) RecordOperationalFeePayment(ctx context.Context, batchID string, req dto.RecordFeePaymentRequest, actor string) (*domain.Batch, error) {
	if !req.AmountEur.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be greater than zero", apperrors.ErrValidation)
	}
	b, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrBatchTerminal, b.Status)
	}

	now := s.Now()
	actor = actorOrSystem(actor)
	fee := &b.Metadata.OperationalFee
	fee.PaidEur = fee.PaidEur.Add(req.AmountEur)
	fee.Payments = append(fee.Payments, domain.FeePayment{
		AmountEur:  req.AmountEur,
		Note:       req.Note,
		RecordedAt: now,
		RecordedBy: actor,
	})
	fee.Recompute()
	b.LastUpdatedAt = now
	b.LastUpdatedBy = actor

	return s.committer().commit(ctx, portsrepo.BatchTransition{Batch: *b, FromStatus: b.Status})
}

// ProcessBatch snapshots the rate. A rate failure leaves the batch untouched.
func (s *batchService) ProcessBatch(ctx context.Context, batchID string, actor string) (*domain.Batch, error) {
	b, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanTransitionTo(domain.BatchProcessing) {
		return nil, &domain.InvalidTransitionError{From: b.Status, To: domain.BatchProcessing}
	}
	if b.Metadata.GrossDepositEur == nil {
		return nil, ErrGrossDepositRequired
	}

	callCtx, cancel := withTimeout(ctx, s.cfg.ExternalCallTimeout)
	started := time.Now()
	snapshot, err := s.rates.GetRate(callCtx, domain.BaseCurrency, b.TargetCurrency)
	cancel()
	s.metrics.ObserveExternalCall("rate_provider", err, started)
	if err != nil {
		s.LogError(ctx, err, "Failed to fetch exchange rate", slog.String("batch_id", batchID))
		return nil, apperrors.NewExternalServiceError("rate provider", err)
	}
	if !snapshot.Rate.IsPositive() {
		return nil, apperrors.NewExternalServiceError("rate provider", fmt.Errorf("non-positive rate %s", snapshot.Rate))
	}

	from := b.Status
	now := s.Now()
	if err := b.TransitionTo(domain.BatchProcessing, actorOrSystem(actor), now); err != nil {
		return nil, err
	}
	rate := snapshot.Rate
	target := accounting.RoundTarget(b.TotalNetEur.Mul(rate))
	snapshotAt := snapshot.ValidFrom
	b.ExchangeRate = &rate
	b.RateSource = snapshot.Source
	b.RateSnapshotAt = &snapshotAt
	b.TargetAmount = &target
	b.Metadata.SettlementReserve = s.CalculateSettlementReserve(b.TotalNetEur)

	updated, err := s.committer().commit(ctx, portsrepo.BatchTransition{Batch: *b, FromStatus: from})
	if err != nil {
		return nil, err
	}
	s.LogInfo(ctx, "Batch processed",
		slog.String("batch_id", batchID),
		slog.String("rate", rate.String()),
		slog.String("target_amount", target.String()),
		slog.String("reserve_required_eur", updated.Metadata.SettlementReserve.RequiredEur.String()))
	return updated, nil
}

// InitiateSettlement maps a batch to at most one outstanding quote. A gateway failure fails the batch.
func (s *batchService) InitiateSettlement(ctx context.Context, batchID string, user domain.UserContext, actor string) (*domain.PaymentSession, error) {
	release, err := lockBatch(ctx, s.locker, batchID)
	if err != nil {
		return nil, err
	}
	defer release()

	b, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BatchAwaitingSettlement {
		return nil, ErrSettlementOutstanding
	}
	if err := requireStatus(b, domain.BatchAwaitingSettlement, domain.BatchProcessing); err != nil {
		return nil, err
	}
	if b.TargetAmount == nil {
		return nil, ErrMissingTargetAmount
	}
	if reserve := b.Metadata.SettlementReserve; reserve.RequiredEur.IsPositive() {
		return nil, &apperrors.ReserveShortfallError{MinimumEur: reserve.MinimumEur, RequiredEur: reserve.RequiredEur}
	}
	if user.Email == "" {
		user = s.cfg.Operator
	}
	if user.Email == "" {
		return nil, ErrUserEmailRequired
	}

	actor = actorOrSystem(actor)
	quote := domain.SettlementQuote{
		QuoteID:           "BATCH-" + b.BatchID,
		BatchID:           b.BatchID,
		FiatAmount:        b.TotalNetEur,
		FiatCurrency:      domain.BaseCurrency,
		DigitalAmount:     *b.TargetAmount,
		DigitalCurrency:   b.TargetCurrency,
		DestinationWallet: b.TargetWallet,
		Network:           b.Network,
		User:              user,
	}

	callCtx, cancel := withTimeout(ctx, s.cfg.ExternalCallTimeout)
	started := time.Now()
	session, err := s.payments.Initiate(callCtx, quote)
	cancel()
	s.metrics.ObserveExternalCall("payment_gateway", err, started)
	if err != nil {
		s.LogError(ctx, err, "Payment gateway rejected settlement", slog.String("batch_id", batchID))
		s.committer().fail(ctx, *b, StageInitiateSettlement, err, actor)
		return nil, apperrors.NewExternalServiceError("payment gateway", err)
	}

	from := b.Status
	now := s.Now()
	if err := b.TransitionTo(domain.BatchAwaitingSettlement, actor, now); err != nil {
		return nil, err
	}
	quoteID := session.QuoteID
	if quoteID == "" {
		quoteID = quote.QuoteID
	}
	b.Metadata.ExternalRefs.QuoteID = quoteID
	b.Metadata.ExternalRefs.PaymentID = session.PaymentID
	b.Metadata.ExternalRefs.PaymentURL = session.PaymentURL
	b.InitiatedAt = &now

	if _, err := s.committer().commit(ctx, portsrepo.BatchTransition{Batch: *b, FromStatus: from}); err != nil {
		return nil, err
	}
	s.LogInfo(ctx, "Settlement initiated",
		slog.String("batch_id", batchID),
		slog.String("quote_id", quoteID),
		slog.String("payment_id", session.PaymentID))
	return &domain.PaymentSession{PaymentURL: session.PaymentURL, PaymentID: session.PaymentID, QuoteID: quoteID}, nil
}

// HandleSettlementCallback is safe against redelivery: a callback that was already applied
// returns the batch unchanged.
func (s *batchService) HandleSettlementCallback(ctx context.Context, callback domain.SettlementCallback) (*domain.Batch, error) {
	if strings.TrimSpace(callback.QuoteID) == "" {
		return nil, fmt.Errorf("%w: quote_id is required", apperrors.ErrValidation)
	}
	b, err := s.batchRepo.FindBatchByQuoteID(ctx, callback.QuoteID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w for quote %s", ErrBatchNotFound, callback.QuoteID)
		}
		s.LogError(ctx, err, "Failed to match settlement callback", slog.String("quote_id", callback.QuoteID))
		return nil, fmt.Errorf("failed to match settlement callback: %w", err)
	}

	logger := s.GetLogger(ctx).With(slog.String("batch_id", b.BatchID), slog.String("quote_id", callback.QuoteID), slog.String("provider_status", callback.Status))
	if i := b.Metadata.Settlement.GroupIndex(callback.QuoteID); i >= 0 {
		return s.applyGroupCallback(ctx, b, i, callback, logger)
	}
	if b.Status != domain.BatchAwaitingSettlement {
		if alreadyApplied(b.Status, callback) {
			logger.Info("Settlement callback already applied")
			return b, nil
		}
		if callback.Succeeded() || callback.Failed() {
			return nil, &domain.InvalidTransitionError{From: b.Status, To: callbackTarget(callback)}
		}
	}
	if b.Status.IsTerminal() {
		return b, nil
	}

	from := b.Status
	now := s.Now()
	b.Metadata.ProviderStatus = callback.Status
	if callback.PaymentID != "" {
		b.Metadata.ExternalRefs.PaymentID = callback.PaymentID
	}
	t := portsrepo.BatchTransition{FromStatus: from}

	switch {
	case callback.Succeeded():
		if err := b.TransitionTo(domain.BatchSending, domain.SystemActor, now); err != nil {
			return nil, err
		}
	case callback.Failed():
		message := callback.Error
		if message == "" {
			message = "provider reported " + callback.Status
		}
		if err := b.TransitionTo(domain.BatchFailed, domain.SystemActor, now); err != nil {
			return nil, err
		}
		b.RecordError(StageSettlementCallback, message, now)
		t.DonationStatus = domain.DonationFailed
	default:
		logger.Warn("Unknown settlement callback status, batch left unchanged")
	}
	t.Batch = *b

	updated, err := s.committer().commit(ctx, t)
	if err != nil {
		return nil, err
	}
	logger.Info("Settlement callback applied", slog.String("status", string(updated.Status)))

	if updated.Status == domain.BatchSending && s.sendOnChainAutomatically(ctx) {
		sent, _, err := s.SendOnChain(ctx, updated.BatchID, domain.SystemActor)
		if err == nil {
			return sent, nil
		}
		logger.Error("Automatic on-chain send failed", slog.String("error", err.Error()))
		if reloaded, loadErr := s.loadBatch(ctx, updated.BatchID); loadErr == nil {
			return reloaded, nil
		}
	}
	return updated, nil
}

// applyGroupCallback settles one group of an executed settlement. The first confirmed group
// moves the batch to sending and the last one completes it. A rejected group fails the batch
// while nothing was delivered yet, and holds it for reconciliation otherwise.
func (s *batchService) applyGroupCallback(ctx context.Context, b *domain.Batch, index int, callback domain.SettlementCallback, logger *slog.Logger) (*domain.Batch, error) {
	record := *b.Metadata.Settlement
	record.Groups = append([]domain.SettlementGroup(nil), record.Groups...)
	b.Metadata.Settlement = &record
	group := &record.Groups[index]
	logger = logger.With(slog.String("group", group.Reference))

	switch {
	case callback.Succeeded() && group.Confirmed, callback.Failed() && group.Rejected:
		logger.Info("Settlement callback already applied")
		return b, nil
	case callback.Succeeded() && group.Rejected, callback.Failed() && group.Confirmed:
		return nil, &domain.InvalidTransitionError{From: b.Status, To: callbackTarget(callback)}
	case b.Status == domain.BatchCancelled, b.Status == domain.BatchCompleted:
		if callback.Succeeded() || callback.Failed() {
			return nil, &domain.InvalidTransitionError{From: b.Status, To: callbackTarget(callback)}
		}
		return b, nil
	}

	from := b.Status
	now := s.Now()
	b.Metadata.ProviderStatus = callback.Status
	if callback.PaymentID != "" {
		group.PaymentID = callback.PaymentID
	}
	t := portsrepo.BatchTransition{FromStatus: from}

	switch {
	case callback.Succeeded():
		group.Confirmed = true
		group.ConfirmedAt = &now
		if b.Status == domain.BatchAwaitingSettlement {
			if err := b.TransitionTo(domain.BatchSending, domain.SystemActor, now); err != nil {
				return nil, err
			}
		}
		if b.Status == domain.BatchSending && record.AllConfirmed() {
			if err := b.TransitionTo(domain.BatchCompleted, domain.SystemActor, now); err != nil {
				return nil, err
			}
			b.CompletedAt = &now
			t.DonationStatus = domain.DonationSent
		}
	case callback.Failed():
		message := callback.Error
		if message == "" {
			message = "provider reported " + callback.Status
		}
		group.Rejected = true
		next := domain.BatchNeedsReconciliation
		if record.Confirmed() == 0 {
			next = domain.BatchFailed
		}
		if b.Status.CanTransitionTo(next) {
			if err := b.TransitionTo(next, domain.SystemActor, now); err != nil {
				return nil, err
			}
			if next == domain.BatchFailed {
				t.DonationStatus = domain.DonationFailed
			}
		}
		b.RecordError(StageSettlementCallback, fmt.Sprintf("group %s: %s", group.Reference, message), now)
		b.Metadata.ManualIntervention = true
	default:
		logger.Warn("Unknown settlement callback status, batch left unchanged")
	}
	t.Batch = *b

	updated, err := s.committer().commit(ctx, t)
	if err != nil {
		return nil, err
	}
	logger.Info("Settlement group callback applied",
		slog.String("status", string(updated.Status)),
		slog.Int("confirmed", record.Confirmed()),
		slog.Int("groups", len(record.Groups)))
	return updated, nil
}

func alreadyApplied(status domain.BatchStatus, callback domain.SettlementCallback) bool {
	switch {
	case callback.Succeeded():
		return status == domain.BatchSending || status == domain.BatchNeedsReconciliation || status == domain.BatchCompleted
	case callback.Failed():
		return status == domain.BatchFailed
	}
	return false
}

func callbackTarget(callback domain.SettlementCallback) domain.BatchStatus {
	if callback.Succeeded() {
		return domain.BatchSending
	}
	return domain.BatchFailed
}

func (s *batchService) sendOnChainAutomatically(ctx context.Context) bool {
	if s.cycles == nil {
		return false
	}
	cycle, err := s.cycles.GetActiveCycle(ctx)
	if err != nil {
		s.LogWarn(ctx, "Cannot read processing cycle, skipping automatic on-chain send", slog.String("error", err.Error()))
		return false
	}
	return cycle.TriggerOnChain
}

// SendOnChain broadcasts the target amount once per attempt. A batch held for reconciliation
// may be sent again after its previous transfer failed.
func (s *batchService) SendOnChain(ctx context.Context, batchID string, actor string) (*domain.Batch, string, error) {
	release, err := lockBatch(ctx, s.locker, batchID)
	if err != nil {
		return nil, "", err
	}
	defer release()

	b, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, "", err
	}
	if err := requireStatus(b, domain.BatchSending, domain.BatchAwaitingSettlement, domain.BatchSending, domain.BatchNeedsReconciliation); err != nil {
		return nil, "", err
	}
	if b.Status == domain.BatchSending && b.Metadata.ExternalRefs.TxHash != "" {
		return nil, "", ErrAlreadySentOnChain
	}
	if b.Metadata.Settlement != nil && len(b.Metadata.Settlement.Groups) > 0 {
		return nil, "", ErrSettlementExecuted
	}
	if b.TargetAmount == nil {
		return nil, "", ErrMissingTargetAmount
	}

	actor = actorOrSystem(actor)
	callCtx, cancel := withTimeout(ctx, s.cfg.ExternalCallTimeout)
	started := time.Now()
	txHash, err := s.chain.Send(callCtx, b.TargetWallet, *b.TargetAmount)
	cancel()
	s.metrics.ObserveExternalCall("blockchain_send", err, started)
	if err != nil {
		s.LogError(ctx, err, "On-chain send failed", slog.String("batch_id", batchID))
		s.committer().fail(ctx, *b, StageSendOnChain, err, actor)
		return nil, "", apperrors.NewExternalServiceError("blockchain gateway", err)
	}

	from := b.Status
	now := s.Now()
	if err := b.TransitionTo(domain.BatchSending, actor, now); err != nil {
		return nil, "", err
	}
	b.Metadata.ExternalRefs.TxHash = txHash
	b.SentToBlockchainAt = &now

	tx := domain.BlockchainTransaction{
		TransactionID: s.newID(),
		BatchID:       b.BatchID,
		TxHash:        txHash,
		Network:       b.Network,
		AmountUsdt:    *b.TargetAmount,
		Status:        domain.TxPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	updated, err := s.committer().commit(context.WithoutCancel(ctx), portsrepo.BatchTransition{
		Batch:           *b,
		FromStatus:      from,
		NewTransactions: []domain.BlockchainTransaction{tx},
	})
	if err != nil {
		s.LogError(ctx, err, "Transfer broadcast but not recorded", slog.String("batch_id", batchID), slog.String("tx_hash", txHash))
		return nil, txHash, err
	}
	s.LogInfo(ctx, "Batch sent on-chain",
		slog.String("batch_id", batchID),
		slog.String("tx_hash", txHash),
		slog.String("amount", b.TargetAmount.String()))
	return updated, txHash, nil
}

// CancelBatch fails the claimed donations of the batch. Cancelling twice is not an error.
func (s *batchService) CancelBatch(ctx context.Context, batchID string, actor string) (*domain.Batch, error) {
	b, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BatchCancelled {
		return b, nil
	}

	from := b.Status
	if err := b.TransitionTo(domain.BatchCancelled, actorOrSystem(actor), s.Now()); err != nil {
		return nil, err
	}
	updated, err := s.committer().commit(ctx, portsrepo.BatchTransition{
		Batch:          *b,
		FromStatus:     from,
		DonationStatus: domain.DonationFailed,
	})
	if err != nil {
		return nil, err
	}
	s.LogInfo(ctx, "Batch cancelled", slog.String("batch_id", batchID), slog.String("from", string(from)))
	return updated, nil
}
