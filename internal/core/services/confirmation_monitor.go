package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/clock"
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	"github.com/Dours-d/D2C/pkg/workerpool"
)

// ConfirmationMonitorConfig controls the polling of unconfirmed transfers.
type ConfirmationMonitorConfig struct {
	Interval            time.Duration
	BatchLimit          int
	Workers             int
	LockTTL             time.Duration
	ExternalCallTimeout time.Duration
}

// DefaultConfirmationMonitorConfig polls ten transfers every minute.
func DefaultConfirmationMonitorConfig() ConfirmationMonitorConfig {
	return ConfirmationMonitorConfig{
		Interval:            time.Minute,
		BatchLimit:          10,
		Workers:             4,
		LockTTL:             2 * time.Minute,
		ExternalCallTimeout: 30 * time.Second,
	}
}

var monitoredStatuses = []domain.TxStatus{domain.TxPending, domain.TxProcessing}

// txOutcome is a final chain answer handed from the pollers to the reconciler.
type txOutcome struct {
	tx      domain.BlockchainTransaction
	receipt domain.ChainReceipt
}

// ConfirmationMonitor polls the chain for the outcome of broadcast transfers and completes or
// holds their batches.
type ConfirmationMonitor struct {
	BaseService
	txRepo    portsrepo.BlockchainTransactionRepositoryFacade
	batchRepo portsrepo.BatchRepositoryFacade
	chain     gateways.BlockchainGateway
	locker    gateways.TxLocker
	events    gateways.EventPublisher
	metrics   Metrics
	cfg       ConfirmationMonitorConfig
	sleep     func(context.Context, time.Duration) error
}

// ConfirmationMonitorOption is a function that configures a ConfirmationMonitor
type ConfirmationMonitorOption func(*ConfirmationMonitor)

// WithMonitorClock replaces the monitor clock.
func WithMonitorClock(now func() time.Time) ConfirmationMonitorOption {
	return func(m *ConfirmationMonitor) {
		m.Now = now
	}
}

// WithMonitorEvents publishes transaction and batch events.
func WithMonitorEvents(events gateways.EventPublisher) ConfirmationMonitorOption {
	return func(m *ConfirmationMonitor) {
		m.events = events
	}
}

// WithMonitorMetrics sets the metrics sink.
func WithMonitorMetrics(metrics Metrics) ConfirmationMonitorOption {
	return func(m *ConfirmationMonitor) {
		m.metrics = metrics
	}
}

// WithMonitorSleep replaces the wait between passes.
func WithMonitorSleep(sleep func(context.Context, time.Duration) error) ConfirmationMonitorOption {
	return func(m *ConfirmationMonitor) {
		m.sleep = sleep
	}
}

// NewConfirmationMonitor creates a monitor. locker guards each hash against concurrent lookups.
func NewConfirmationMonitor(
	txRepo portsrepo.BlockchainTransactionRepositoryFacade,
	batchRepo portsrepo.BatchRepositoryFacade,
	chain gateways.BlockchainGateway,
	locker gateways.TxLocker,
	cfg ConfirmationMonitorConfig,
	opts ...ConfirmationMonitorOption,
) *ConfirmationMonitor {
	defaults := DefaultConfirmationMonitorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaults.BatchLimit
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaults.LockTTL
	}
	m := &ConfirmationMonitor{
		BaseService: newBaseService(),
		txRepo:      txRepo,
		batchRepo:   batchRepo,
		chain:       chain,
		locker:      locker,
		metrics:     noopMetrics{},
		cfg:         cfg,
		sleep:       clock.SleepWithContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *ConfirmationMonitor) committer() transitionCommitter {
	return transitionCommitter{repo: m.batchRepo, metrics: m.metrics, events: m.events, now: m.Now}
}

// Run polls until ctx is cancelled. A failed pass is logged and retried after the interval.
func (m *ConfirmationMonitor) Run(ctx context.Context) error {
	logger := m.GetLogger(ctx).With(slog.String("component", "confirmation_monitor"))
	logger.Info("Confirmation monitor started", slog.Duration("interval", m.cfg.Interval), slog.Int("limit", m.cfg.BatchLimit))
	for {
		if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Confirmation pass failed", slog.String("error", err.Error()))
		}
		if err := m.sleep(ctx, m.cfg.Interval); err != nil {
			logger.Info("Confirmation monitor stopped")
			return err
		}
	}
}

// RunOnce checks one page of unconfirmed transfers and returns how many reached a final state.
// Lookups run concurrently; their outcomes are applied one at a time by a single reconciler.
func (m *ConfirmationMonitor) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	txs, err := m.txRepo.ListTransactionsByStatus(ctx, monitoredStatuses, m.cfg.BatchLimit)
	if err != nil {
		m.metrics.ObserveMonitorPass(0, err, started)
		m.LogError(ctx, err, "Failed to list unconfirmed transactions")
		return 0, fmt.Errorf("failed to list unconfirmed transactions: %w", err)
	}
	if len(txs) == 0 {
		m.metrics.ObserveMonitorPass(0, nil, started)
		return 0, nil
	}

	outcomes := make(chan txOutcome, len(txs))
	var (
		wg         sync.WaitGroup
		reconciled int
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for outcome := range outcomes {
			if err := m.reconcile(ctx, outcome); err != nil {
				m.LogError(ctx, err, "Failed to reconcile transaction",
					slog.String("tx_hash", outcome.tx.TxHash),
					slog.String("batch_id", outcome.tx.BatchID))
				continue
			}
			reconciled++
		}
	}()

	err = workerpool.Process(ctx, m.cfg.Workers, txs, func(ctx context.Context, tx domain.BlockchainTransaction) error {
		if outcome, ok := m.check(ctx, tx); ok {
			outcomes <- outcome
		}
		return nil
	}, nil)
	close(outcomes)
	wg.Wait()

	m.metrics.ObserveMonitorPass(len(txs), err, started)
	if err != nil {
		return reconciled, err
	}
	m.LogDebug(ctx, "Confirmation pass finished", slog.Int("checked", len(txs)), slog.Int("reconciled", reconciled))
	return reconciled, nil
}

// check looks the hash up under its lock. It reports a final outcome, or stamps the transfer
// as still in flight.
func (m *ConfirmationMonitor) check(ctx context.Context, tx domain.BlockchainTransaction) (txOutcome, bool) {
	logger := m.GetLogger(ctx).With(slog.String("tx_hash", tx.TxHash), slog.String("batch_id", tx.BatchID))

	key := "tx:" + tx.TxHash
	acquired, err := m.locker.TryLock(ctx, key, m.cfg.LockTTL)
	if err != nil {
		logger.Warn("Cannot lock transaction", slog.String("error", err.Error()))
		return txOutcome{}, false
	}
	if !acquired {
		logger.Debug("Transaction is being checked elsewhere")
		return txOutcome{}, false
	}
	defer func() {
		if err := m.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			logger.Warn("Cannot unlock transaction", slog.String("error", err.Error()))
		}
	}()

	callCtx, cancel := withTimeout(ctx, m.cfg.ExternalCallTimeout)
	started := time.Now()
	receipt, err := m.chain.GetTransaction(callCtx, tx.TxHash)
	cancel()
	m.metrics.ObserveExternalCall("blockchain_receipt", err, started)
	if err != nil {
		logger.Warn("Receipt lookup failed", slog.String("error", err.Error()))
		m.markChecked(ctx, tx, tx.Status)
		return txOutcome{}, false
	}
	m.metrics.ObserveReceipt(receipt.State)

	switch receipt.State {
	case domain.ReceiptConfirmed, domain.ReceiptFailed:
		return txOutcome{tx: tx, receipt: *receipt}, true
	default:
		m.markChecked(ctx, tx, domain.TxProcessing)
		return txOutcome{}, false
	}
}

func (m *ConfirmationMonitor) markChecked(ctx context.Context, tx domain.BlockchainTransaction, status domain.TxStatus) {
	if err := m.txRepo.MarkTransactionChecked(ctx, tx.TransactionID, status, m.Now()); err != nil {
		m.LogError(ctx, err, "Failed to stamp transaction check", slog.String("tx_hash", tx.TxHash))
	}
}

// reconcile records a final receipt. A confirmed transfer completes its batch once no other
// transfer of the batch is in flight; a failed one holds the batch for reconciliation.
func (m *ConfirmationMonitor) reconcile(ctx context.Context, outcome txOutcome) error {
	b, err := findBatch(ctx, m.batchRepo, outcome.tx.BatchID)
	if err != nil {
		return err
	}

	now := m.Now()
	tx := outcome.tx
	tx.LastCheckedAt = &now
	tx.UpdatedAt = now
	tx.BlockNumber = outcome.receipt.BlockNumber

	from := b.Status
	t := portsrepo.BatchTransition{FromStatus: from, UpdatedTransaction: &tx}
	event := domain.SettlementEvent{BatchID: b.BatchID, TxHash: tx.TxHash}

	if outcome.receipt.Confirmed() {
		tx.Status = domain.TxConfirmed
		tx.Confirmations++
		event.Type = domain.EventTransactionConfirmed

		settled, err := m.noneInFlight(ctx, tx)
		if err != nil {
			return err
		}
		if b.Status == domain.BatchSending && settled {
			if err := b.TransitionTo(domain.BatchCompleted, domain.SystemActor, now); err != nil {
				return err
			}
			b.CompletedAt = &now
			b.Metadata.BlockNumber = outcome.receipt.BlockNumber
			t.DonationStatus = domain.DonationSent
		}
	} else {
		message := outcome.receipt.Message
		if message == "" {
			message = "transaction reverted"
		}
		tx.Status = domain.TxFailed
		tx.ErrorMessage = message
		event.Type = domain.EventTransactionFailed
		event.Message = message

		if b.Status == domain.BatchSending {
			if err := b.TransitionTo(domain.BatchNeedsReconciliation, domain.SystemActor, now); err != nil {
				return err
			}
			b.RecordError(StageConfirmation, fmt.Sprintf("transaction %s failed: %s", tx.TxHash, message), now)
			b.Metadata.ManualIntervention = true
		}
	}
	if i := b.Metadata.Settlement.TransferIndex(tx.TxHash); i >= 0 {
		record := *b.Metadata.Settlement
		record.Groups = append([]domain.SettlementGroup(nil), record.Groups...)
		record.Groups[i].Confirmed = tx.Status == domain.TxConfirmed
		record.Groups[i].Rejected = tx.Status == domain.TxFailed
		if record.Groups[i].Confirmed {
			record.Groups[i].ConfirmedAt = &now
		}
		b.Metadata.Settlement = &record
	}
	t.Batch = *b

	updated, err := m.committer().commit(context.WithoutCancel(ctx), t)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidState) {
			m.LogWarn(ctx, "Batch changed while reconciling, retrying next pass",
				slog.String("batch_id", b.BatchID),
				slog.String("tx_hash", tx.TxHash))
		}
		return err
	}
	event.Status = updated.Status
	m.committer().publish(ctx, event)

	m.LogInfo(ctx, "Transaction reconciled",
		slog.String("tx_hash", tx.TxHash),
		slog.String("tx_status", string(tx.Status)),
		slog.String("batch_id", updated.BatchID),
		slog.String("batch_status", string(updated.Status)))
	return nil
}

// noneInFlight reports whether tx is the last transfer of its batch awaiting a receipt.
func (m *ConfirmationMonitor) noneInFlight(ctx context.Context, tx domain.BlockchainTransaction) (bool, error) {
	siblings, err := m.txRepo.ListTransactionsByBatch(ctx, tx.BatchID)
	if err != nil {
		return false, fmt.Errorf("failed to list transactions of batch %s: %w", tx.BatchID, err)
	}
	for _, s := range siblings {
		if s.TransactionID != tx.TransactionID && (s.Status == domain.TxPending || s.Status == domain.TxProcessing) {
			return false, nil
		}
	}
	return true, nil
}
