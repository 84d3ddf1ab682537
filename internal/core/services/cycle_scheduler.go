package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/Dours-d/D2C/internal/utils/accounting"
	"github.com/Dours-d/D2C/internal/utils/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Recommendation reasons returned with every cadence recommendation.
const (
	ReasonHighVolume     = "High volume, frequent processing reduces risk"
	ReasonSmallDonations = "Moderate volume with small donations"
	ReasonLargeDonations = "Low volume but large donations"
	ReasonDefault        = "Default optimal for most cases"
)

// BankFeePerTransferEur is the flat SEPA cost charged per bank transfer.
var BankFeePerTransferEur = decimal.RequireFromString("0.25")

var (
	highVolumeTotal   = decimal.NewFromInt(5000)
	moderateTotal     = decimal.NewFromInt(1000)
	smallDonationAvg  = decimal.NewFromInt(100)
	largeDonationAvg  = decimal.NewFromInt(200)
	highVolumeCount   = 50
	scheduledCadences = []domain.CycleType{domain.CycleDaily, domain.CycleWeekly, domain.CycleBiweekly, domain.CycleMonthly}
	defaultCycleLimit = 20
	maxCycleListLimit = 100
	percentMultiplier = decimal.NewFromInt(100)
)

// CycleDefaults is the cadence used until an operator saves one.
type CycleDefaults struct {
	Cycle            domain.CycleType
	TriggerOnChain   bool
	TriggerBanking   bool
	MinimumAmountEur decimal.Decimal
}

// cycleScheduler implements the cadence rules and the append-only cadence history.
type cycleScheduler struct {
	BaseService
	donationRepo portsrepo.DonationReader
	cycleRepo    portsrepo.CycleRepositoryFacade
	defaults     CycleDefaults
}

// CycleSchedulerOption is a function that configures a cycleScheduler
type CycleSchedulerOption func(*cycleScheduler)

// WithCycleClock replaces the scheduler's clock.
func WithCycleClock(now func() time.Time) CycleSchedulerOption {
	return func(s *cycleScheduler) {
		s.Now = now
	}
}

// NewCycleScheduler creates a new cycle scheduler.
func NewCycleScheduler(donationRepo portsrepo.DonationReader, cycleRepo portsrepo.CycleRepositoryFacade, defaults CycleDefaults, opts ...CycleSchedulerOption) portssvc.CycleSvcFacade {
	if !defaults.Cycle.IsValid() {
		defaults.Cycle = domain.CycleWeekly
	}
	s := &cycleScheduler{
		BaseService:  newBaseService(),
		donationRepo: donationRepo,
		cycleRepo:    cycleRepo,
		defaults:     defaults,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ portssvc.CycleSvcFacade = (*cycleScheduler)(nil)

// GetActiveCycle returns the saved active cadence or a synthesized entry built from the defaults.
// The synthesized entry has an empty CycleID.
func (s *cycleScheduler) GetActiveCycle(ctx context.Context) (*domain.ProcessingCycle, error) {
	cycle, err := s.cycleRepo.FindActiveCycle(ctx)
	if err == nil {
		return cycle, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		s.LogError(ctx, err, "Failed to load active processing cycle")
		return nil, fmt.Errorf("failed to load active processing cycle: %w", err)
	}
	return &domain.ProcessingCycle{
		CycleType:        s.defaults.Cycle,
		TriggerOnChain:   s.defaults.TriggerOnChain,
		TriggerBanking:   s.defaults.TriggerBanking,
		MinimumAmountEur: s.defaults.MinimumAmountEur,
	}, nil
}

func (s *cycleScheduler) ListCycleHistory(ctx context.Context, limit int) ([]domain.ProcessingCycle, error) {
	cycles, err := s.cycleRepo.ListCycles(ctx, pagination.ClampLimit(limit, defaultCycleLimit, maxCycleListLimit))
	if err != nil {
		s.LogError(ctx, err, "Failed to list processing cycles")
		return nil, fmt.Errorf("failed to list processing cycles: %w", err)
	}
	return cycles, nil
}

// windowStart is the earliest creation time of a donation swept by one run of cycle.
func (s *cycleScheduler) windowStart(cycle domain.CycleType) time.Time {
	return s.Now().AddDate(0, 0, -cycle.LookbackDays())
}

func (s *cycleScheduler) GetPendingDonations(ctx context.Context, cycle domain.CycleType) ([]domain.Donation, error) {
	if !cycle.IsValid() {
		return nil, fmt.Errorf("%w: unknown processing cycle '%s'", apperrors.ErrValidation, cycle)
	}
	since := s.windowStart(cycle)
	donations, err := s.donationRepo.ListPendingDonationsSince(ctx, since)
	if err != nil {
		s.LogError(ctx, err, "Failed to list pending donations", slog.String("cycle", string(cycle)), slog.Time("since", since))
		return nil, fmt.Errorf("failed to list pending donations: %w", err)
	}
	return donations, nil
}

func (s *cycleScheduler) GetVolumeStats(ctx context.Context, cycle domain.CycleType) (*domain.VolumeStats, error) {
	donations, err := s.GetPendingDonations(ctx, cycle)
	if err != nil {
		return nil, err
	}

	stats := volumeStats(donations)
	stats.Cycle = cycle
	stats.WindowStart = s.windowStart(cycle)
	return &stats, nil
}

func volumeStats(donations []domain.Donation) domain.VolumeStats {
	total := decimal.Zero
	for _, d := range donations {
		total = total.Add(d.NetAmountEur)
	}
	avg := decimal.Zero
	if len(donations) > 0 {
		avg = accounting.RoundMoney(total.Div(decimal.NewFromInt(int64(len(donations)))))
	}
	return domain.VolumeStats{
		TotalAmount:   total,
		DonationCount: len(donations),
		AvgAmount:     avg,
	}
}

// RecommendCycle applies the decision table top to bottom; the first matching row wins.
func (s *cycleScheduler) RecommendCycle(stats domain.VolumeStats) domain.CycleRecommendation {
	rec := domain.CycleRecommendation{Stats: stats}
	switch {
	case stats.TotalAmount.GreaterThan(highVolumeTotal) && stats.DonationCount > highVolumeCount:
		rec.Recommended, rec.Reason = domain.CycleDaily, ReasonHighVolume
	case stats.TotalAmount.GreaterThan(moderateTotal) && stats.AvgAmount.LessThan(smallDonationAvg):
		rec.Recommended, rec.Reason = domain.CycleWeekly, ReasonSmallDonations
	case stats.TotalAmount.LessThan(moderateTotal) && stats.AvgAmount.GreaterThan(largeDonationAvg):
		rec.Recommended, rec.Reason = domain.CycleMonthly, ReasonLargeDonations
	default:
		rec.Recommended, rec.Reason = domain.CycleWeekly, ReasonDefault
	}
	return rec
}

func (s *cycleScheduler) CalculateNextProcessingDate(cycle domain.CycleType, from time.Time) *time.Time {
	var next time.Time
	switch cycle {
	case domain.CycleDaily:
		next = from.AddDate(0, 0, 1)
	case domain.CycleWeekly:
		next = from.AddDate(0, 0, 7)
	case domain.CycleBiweekly:
		next = from.AddDate(0, 0, 14)
	case domain.CycleMonthly:
		next = from.AddDate(0, 1, 0)
	default:
		return nil
	}
	return &next
}

// EstimateProcessingCost splits the monthly volume evenly over the cadence's runs and charges each
// run one crypto purchase at the direct provider's schedule plus one bank transfer.
func (s *cycleScheduler) EstimateProcessingCost(cycle domain.CycleType, monthlyVolumeEur decimal.Decimal) (*domain.ProcessingCostEstimate, error) {
	runs := cycle.RunsPerMonth()
	if runs == 0 {
		return nil, fmt.Errorf("%w: cycle '%s' has no schedule to estimate", apperrors.ErrValidation, cycle)
	}
	if monthlyVolumeEur.IsNegative() {
		return nil, fmt.Errorf("%w: monthly volume must not be negative", apperrors.ErrValidation)
	}

	provider := domain.KnownCryptoProviders()["simplex"]
	perRun := monthlyVolumeEur.Div(decimal.NewFromInt(int64(runs)))
	cryptoFee := provider.CostFor(perRun)
	monthly := cryptoFee.Add(BankFeePerTransferEur).Mul(decimal.NewFromInt(int64(runs)))

	effective := decimal.Zero
	if monthlyVolumeEur.IsPositive() {
		effective = accounting.RoundMoney(monthly.Div(monthlyVolumeEur).Mul(percentMultiplier))
	}

	return &domain.ProcessingCostEstimate{
		Cycle:               cycle,
		MonthlyVolumeEur:    monthlyVolumeEur,
		RunsPerMonth:        runs,
		AmountPerRunEur:     accounting.RoundMoney(perRun),
		CryptoFeePerRunEur:  accounting.RoundMoney(cryptoFee),
		BankFeePerRunEur:    BankFeePerTransferEur,
		MonthlyCostEur:      accounting.RoundMoney(monthly),
		EffectiveFeePercent: effective,
	}, nil
}

// UpdateCycle appends a new entry that supersedes the active one. Omitted flags and minimum
// are carried over from the active entry.
func (s *cycleScheduler) UpdateCycle(ctx context.Context, req dto.UpdateCycleRequest, actor string) (*domain.ProcessingCycle, error) {
	if !req.CycleType.IsValid() {
		return nil, fmt.Errorf("%w: unknown processing cycle '%s'", apperrors.ErrValidation, req.CycleType)
	}
	if req.MinimumAmountEur != nil && req.MinimumAmountEur.IsNegative() {
		return nil, fmt.Errorf("%w: minimum amount must not be negative", apperrors.ErrValidation)
	}

	active, err := s.GetActiveCycle(ctx)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	previous := active.CycleType
	changedBy := actor
	cycle := domain.ProcessingCycle{
		CycleID:          uuid.NewString(),
		CycleType:        req.CycleType,
		EffectiveFrom:    now,
		PreviousCycle:    &previous,
		TriggerOnChain:   active.TriggerOnChain,
		TriggerBanking:   active.TriggerBanking,
		MinimumAmountEur: active.MinimumAmountEur,
		ChangedBy:        &changedBy,
		Reason:           req.Reason,
		CreatedAt:        now,
	}
	if req.TriggerOnChain != nil {
		cycle.TriggerOnChain = *req.TriggerOnChain
	}
	if req.TriggerBanking != nil {
		cycle.TriggerBanking = *req.TriggerBanking
	}
	if req.MinimumAmountEur != nil {
		cycle.MinimumAmountEur = *req.MinimumAmountEur
	}

	if err := s.cycleRepo.SaveCycle(ctx, cycle); err != nil {
		s.LogError(ctx, err, "Failed to save processing cycle", slog.String("cycle", string(cycle.CycleType)))
		return nil, fmt.Errorf("failed to save processing cycle: %w", err)
	}

	s.LogInfo(ctx, "Processing cycle updated",
		slog.String("cycle_id", cycle.CycleID),
		slog.String("previous", string(previous)),
		slog.String("cycle", string(cycle.CycleType)),
		slog.String("changed_by", actor))
	return &cycle, nil
}

// RecommendFromVolume recommends a cadence from the pending volume of the last month.
func (s *cycleScheduler) RecommendFromVolume(ctx context.Context) (*domain.CycleRecommendation, error) {
	stats, err := s.GetVolumeStats(ctx, domain.CycleMonthly)
	if err != nil {
		return nil, err
	}
	rec := s.RecommendCycle(*stats)
	return &rec, nil
}

// CalculateOptimizationPotential estimates every scheduled cadence for last month's pending
// volume and compares the cheapest with the active one. A manual cadence is compared as weekly.
func (s *cycleScheduler) CalculateOptimizationPotential(ctx context.Context) (*domain.OptimizationPotential, error) {
	active, err := s.GetActiveCycle(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.GetVolumeStats(ctx, domain.CycleMonthly)
	if err != nil {
		return nil, err
	}

	currentType := active.CycleType
	if currentType.RunsPerMonth() == 0 {
		currentType = domain.CycleWeekly
	}

	var current, optimal *domain.ProcessingCostEstimate
	for _, cadence := range scheduledCadences {
		estimate, err := s.EstimateProcessingCost(cadence, stats.TotalAmount)
		if err != nil {
			return nil, err
		}
		if cadence == currentType {
			current = estimate
		}
		if optimal == nil || estimate.MonthlyCostEur.LessThan(optimal.MonthlyCostEur) {
			optimal = estimate
		}
	}

	savings := accounting.MaxZero(current.MonthlyCostEur.Sub(optimal.MonthlyCostEur))
	savingsPct := decimal.Zero
	if current.MonthlyCostEur.IsPositive() {
		savingsPct = accounting.RoundMoney(savings.Div(current.MonthlyCostEur).Mul(percentMultiplier))
	}

	return &domain.OptimizationPotential{
		Current:             *current,
		Optimal:             *optimal,
		PotentialSavingsEur: savings,
		SavingsPercent:      savingsPct,
	}, nil
}
