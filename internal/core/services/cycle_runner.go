package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Dours-d/D2C/internal/clock"
	"github.com/Dours-d/D2C/internal/core/domain"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/shopspring/decimal"
)

// CycleRunner sweeps the pending donations of the active cycle into pending batches, one batch
// per campaign wallet, whenever the cycle is due.
type CycleRunner struct {
	BaseService
	cycles    portssvc.CycleSvcFacade
	cycleRepo portsrepo.CycleWriter
	batches   portssvc.BatchSvcFacade
	interval  time.Duration
	sleep     func(context.Context, time.Duration) error

	// lastRun covers the configured default cycle, which has no stored row to stamp.
	mu      sync.Mutex
	lastRun *time.Time
}

// CycleRunnerOption is a function that configures a CycleRunner
type CycleRunnerOption func(*CycleRunner)

// WithRunnerClock replaces the runner clock.
func WithRunnerClock(now func() time.Time) CycleRunnerOption {
	return func(r *CycleRunner) {
		r.Now = now
	}
}

// WithRunnerSleep replaces the wait between due checks.
func WithRunnerSleep(sleep func(context.Context, time.Duration) error) CycleRunnerOption {
	return func(r *CycleRunner) {
		r.sleep = sleep
	}
}

// NewCycleRunner creates a runner that checks every interval whether the active cycle is due.
func NewCycleRunner(cycles portssvc.CycleSvcFacade, cycleRepo portsrepo.CycleWriter, batches portssvc.BatchSvcFacade, interval time.Duration, opts ...CycleRunnerOption) *CycleRunner {
	if interval <= 0 {
		interval = time.Hour
	}
	r := &CycleRunner{
		BaseService: newBaseService(),
		cycles:      cycles,
		cycleRepo:   cycleRepo,
		batches:     batches,
		interval:    interval,
		sleep:       clock.SleepWithContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run checks the cycle until ctx is cancelled.
func (r *CycleRunner) Run(ctx context.Context) error {
	logger := r.GetLogger(ctx).With(slog.String("component", "cycle_runner"))
	logger.Info("Cycle runner started", slog.Duration("interval", r.interval))
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Cycle run failed", slog.String("error", err.Error()))
		}
		if err := r.sleep(ctx, r.interval); err != nil {
			logger.Info("Cycle runner stopped")
			return err
		}
	}
}

// RunOnce creates the batches of a due cycle and returns them. A cycle that is manual or not yet
// due creates nothing.
func (r *CycleRunner) RunOnce(ctx context.Context) ([]*domain.Batch, error) {
	cycle, err := r.cycles.GetActiveCycle(ctx)
	if err != nil {
		return nil, err
	}
	now := r.Now()
	if !clock.Due(r.cycles.CalculateNextProcessingDate(cycle.CycleType, r.lastRunOf(cycle)), now) {
		return nil, nil
	}
	logger := r.GetLogger(ctx).With(slog.String("cycle", string(cycle.CycleType)), slog.String("cycle_id", cycle.CycleID))

	donations, err := r.cycles.GetPendingDonations(ctx, cycle.CycleType)
	if err != nil {
		return nil, err
	}

	var (
		created []*domain.Batch
		errs    []error
	)
	for _, w := range groupByWallet(donations) {
		if w.total.LessThan(cycle.MinimumAmountEur) {
			logger.Debug("Wallet below cycle minimum",
				slog.String("wallet", w.wallet),
				slog.String("total_net_eur", w.total.String()))
			continue
		}
		b, err := r.batches.CreatePendingBatch(ctx, w.donationIDs, w.wallet, w.campaignID)
		if err != nil {
			logger.Warn("Cannot create cycle batch", slog.String("wallet", w.wallet), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("wallet %s: %w", w.wallet, err))
			continue
		}
		created = append(created, b)
	}

	if err := r.markRun(ctx, cycle, now); err != nil {
		errs = append(errs, err)
	}
	logger.Info("Cycle run finished", slog.Int("donations", len(donations)), slog.Int("batches", len(created)))
	return created, errors.Join(errs...)
}

func (r *CycleRunner) lastRunOf(cycle *domain.ProcessingCycle) time.Time {
	if cycle.LastRunAt != nil {
		return *cycle.LastRunAt
	}
	if cycle.CycleID == "" {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.lastRun != nil {
			return *r.lastRun
		}
	}
	return cycle.EffectiveFrom
}

func (r *CycleRunner) markRun(ctx context.Context, cycle *domain.ProcessingCycle, at time.Time) error {
	if cycle.CycleID == "" {
		r.mu.Lock()
		r.lastRun = &at
		r.mu.Unlock()
		return nil
	}
	if err := r.cycleRepo.MarkCycleRun(ctx, cycle.CycleID, at); err != nil {
		r.LogError(ctx, err, "Failed to stamp cycle run", slog.String("cycle_id", cycle.CycleID))
		return fmt.Errorf("failed to stamp cycle run: %w", err)
	}
	return nil
}

type walletGroup struct {
	wallet      string
	campaignID  *string
	donationIDs []string
	total       decimal.Decimal
}

// groupByWallet buckets donations by campaign wallet and campaign, ordered by wallet then
// campaign. Campaigns sharing a wallet still get one batch each. Donations whose campaign has
// no wallet cannot be settled and are left out.
func groupByWallet(donations []domain.Donation) []walletGroup {
	byKey := map[string]*walletGroup{}
	for _, d := range donations {
		if d.CampaignWallet == "" {
			continue
		}
		key := d.CampaignWallet + "\x00" + campaignKey(d.CampaignID)
		g, ok := byKey[key]
		if !ok {
			g = &walletGroup{wallet: d.CampaignWallet, campaignID: d.CampaignID, total: decimal.Zero}
			byKey[key] = g
		}
		g.donationIDs = append(g.donationIDs, d.DonationID)
		g.total = g.total.Add(d.NetAmountEur)
	}

	groups := make([]walletGroup, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].wallet != groups[j].wallet {
			return groups[i].wallet < groups[j].wallet
		}
		return campaignKey(groups[i].campaignID) < campaignKey(groups[j].campaignID)
	})
	return groups
}

func campaignKey(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}
