package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	"github.com/Dours-d/D2C/internal/middleware"
	"github.com/google/uuid"
)

// ErrSettlementInProgress is returned while another request holds the batch's settlement lock.
var ErrSettlementInProgress = fmt.Errorf("%w: batch is being settled by another request", apperrors.ErrInvalidState)

// batchLockTTL bounds how long a crashed holder can block a batch. It covers every
// external call one settlement step makes.
const batchLockTTL = 10 * time.Minute

// Failure stages recorded in BatchError.Stage.
const (
	StageInitiateSettlement = "initiate_settlement"
	StageSettlementCallback = "settlement_callback"
	StageSendOnChain        = "send_on_chain"
	StageExecuteSettlement  = "execute_settlement"
	StageConfirmation       = "confirmation"
)

// transitionCommitter persists lifecycle steps and announces the status changes they make.
// It is shared by every service that moves a batch.
type transitionCommitter struct {
	repo    portsrepo.BatchWriter
	metrics Metrics
	events  gateways.EventPublisher
	now     func() time.Time
}

// commit applies t and returns the batch as stored, with its revision advanced.
func (c transitionCommitter) commit(ctx context.Context, t portsrepo.BatchTransition) (*domain.Batch, error) {
	if err := c.repo.ApplyTransition(ctx, t); err != nil {
		middleware.GetLoggerFromCtx(ctx).Error("Failed to persist batch transition",
			slog.String("error", err.Error()),
			slog.String("batch_id", t.Batch.BatchID),
			slog.String("from", string(t.FromStatus)),
			slog.String("to", string(t.Batch.Status)))
		return nil, fmt.Errorf("failed to persist batch %s: %w", t.Batch.BatchID, err)
	}

	stored := t.Batch
	stored.Revision++
	if t.FromStatus != stored.Status {
		c.metrics.ObserveTransition(t.FromStatus, stored.Status)
		c.publish(ctx, domain.SettlementEvent{
			Type:       domain.EventBatchStatusChanged,
			BatchID:    stored.BatchID,
			Status:     stored.Status,
			PrevStatus: t.FromStatus,
			TxHash:     stored.Metadata.ExternalRefs.TxHash,
		})
	}
	return &stored, nil
}

// publish sends an event. Delivery failures are logged and never undo the committed change.
func (c transitionCommitter) publish(ctx context.Context, event domain.SettlementEvent) {
	if c.events == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}
	if err := c.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		middleware.GetLoggerFromCtx(ctx).Warn("Failed to publish settlement event",
			slog.String("error", err.Error()),
			slog.String("batch_id", event.BatchID),
			slog.String("type", string(event.Type)))
	}
}

// fail persists b as failed after an external write was rejected. It runs detached from the
// caller's cancellation so the outcome is never lost.
func (c transitionCommitter) fail(ctx context.Context, b domain.Batch, stage string, cause error, actor string) *domain.Batch {
	t, err := failBatch(b, stage, cause, actor, c.now())
	if err != nil {
		middleware.GetLoggerFromCtx(ctx).Error("Cannot fail batch",
			slog.String("error", err.Error()),
			slog.String("batch_id", b.BatchID))
		return nil
	}
	failed, err := c.commit(context.WithoutCancel(ctx), t)
	if err != nil {
		return nil
	}
	return failed
}

// findBatch fetches a batch, translating a missing row into ErrBatchNotFound.
func findBatch(ctx context.Context, repo portsrepo.BatchReader, batchID string) (*domain.Batch, error) {
	b, err := repo.FindBatchByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w %s", ErrBatchNotFound, batchID)
		}
		middleware.GetLoggerFromCtx(ctx).Error("Failed to load batch",
			slog.String("error", err.Error()),
			slog.String("batch_id", batchID))
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	return b, nil
}

// failBatch moves b to failed, flags it for an operator and fails its claimed donations.
func failBatch(b domain.Batch, stage string, cause error, actor string, at time.Time) (portsrepo.BatchTransition, error) {
	from := b.Status
	if err := b.TransitionTo(domain.BatchFailed, actor, at); err != nil {
		return portsrepo.BatchTransition{}, err
	}
	b.RecordError(stage, cause.Error(), at)
	b.Metadata.ManualIntervention = true
	return portsrepo.BatchTransition{
		Batch:          b,
		FromStatus:     from,
		DonationStatus: domain.DonationFailed,
	}, nil
}

// requireStatus rejects b unless it is in one of allowed. wanted names the target of the
// operation for the error message.
func requireStatus(b *domain.Batch, wanted domain.BatchStatus, allowed ...domain.BatchStatus) error {
	for _, s := range allowed {
		if b.Status == s {
			return nil
		}
	}
	return &domain.InvalidTransitionError{From: b.Status, To: wanted}
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return domain.SystemActor
	}
	return actor
}

// lockBatch takes the settlement lock of a batch. Callers must run release when done.
func lockBatch(ctx context.Context, locker gateways.TxLocker, batchID string) (release func(), err error) {
	key := "batch:" + batchID
	acquired, err := locker.TryLock(ctx, key, batchLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to lock batch %s: %w", batchID, err)
	}
	if !acquired {
		return nil, ErrSettlementInProgress
	}
	return func() {
		if err := locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			middleware.GetLoggerFromCtx(ctx).Warn("Cannot unlock batch",
				slog.String("error", err.Error()),
				slog.String("batch_id", batchID))
		}
	}, nil
}

// localLocker serialises settlement steps inside one process. It stands in when no shared
// locker is configured.
type localLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLocalLocker() *localLocker {
	return &localLocker{held: map[string]struct{}{}}
}

func (l *localLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

func (l *localLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
