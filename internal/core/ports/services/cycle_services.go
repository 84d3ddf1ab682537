package services

import (
	"context"
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/shopspring/decimal"
)

// CycleReaderSvc defines read operations over the processing cadence
type CycleReaderSvc interface {
	// GetActiveCycle returns the active cadence, or the configured default when none was saved.
	GetActiveCycle(ctx context.Context) (*domain.ProcessingCycle, error)

	// ListCycleHistory returns the append-only cadence history, newest first.
	ListCycleHistory(ctx context.Context, limit int) ([]domain.ProcessingCycle, error)

	// GetPendingDonations returns pending donations inside the cadence's window.
	GetPendingDonations(ctx context.Context, cycle domain.CycleType) ([]domain.Donation, error)

	// GetVolumeStats summarises the pending volume inside the cadence's window.
	GetVolumeStats(ctx context.Context, cycle domain.CycleType) (*domain.VolumeStats, error)
}

// CyclePlannerSvc defines the pure planning rules of the cadence
type CyclePlannerSvc interface {
	// RecommendCycle applies the cadence decision table.
	RecommendCycle(stats domain.VolumeStats) domain.CycleRecommendation

	// CalculateNextProcessingDate returns the next run after from, or nil for manual.
	CalculateNextProcessingDate(cycle domain.CycleType, from time.Time) *time.Time

	// EstimateProcessingCost projects the monthly cost of a cadence.
	EstimateProcessingCost(cycle domain.CycleType, monthlyVolumeEur decimal.Decimal) (*domain.ProcessingCostEstimate, error)
}

// CycleWriterSvc defines write operations over the processing cadence
type CycleWriterSvc interface {
	// UpdateCycle supersedes the active cadence with a new entry.
	UpdateCycle(ctx context.Context, req dto.UpdateCycleRequest, actor string) (*domain.ProcessingCycle, error)

	// RecommendFromVolume recommends a cadence from the live pending volume.
	RecommendFromVolume(ctx context.Context) (*domain.CycleRecommendation, error)

	// CalculateOptimizationPotential compares the active cadence with the cheapest one for the last month's volume.
	CalculateOptimizationPotential(ctx context.Context) (*domain.OptimizationPotential, error)
}

// CycleSvcFacade combines all cycle-related service interfaces
type CycleSvcFacade interface {
	CycleReaderSvc
	CyclePlannerSvc
	CycleWriterSvc
}
