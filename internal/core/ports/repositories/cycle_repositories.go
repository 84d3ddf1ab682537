package repositories

import (
	"context"
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
)

// CycleReader defines read operations for the processing cycle history
type CycleReader interface {
	// FindActiveCycle retrieves the entry that has not been superseded.
	FindActiveCycle(ctx context.Context) (*domain.ProcessingCycle, error)

	// ListCycles retrieves the history, newest first.
	ListCycles(ctx context.Context, limit int) ([]domain.ProcessingCycle, error)
}

// CycleWriter defines write operations for the processing cycle history
type CycleWriter interface {
	// SaveCycle supersedes the active entry (if any) at cycle.EffectiveFrom and appends cycle.
	SaveCycle(ctx context.Context, cycle domain.ProcessingCycle) error

	// MarkCycleRun stamps the time the cycle runner last swept the window.
	MarkCycleRun(ctx context.Context, cycleID string, ranAt time.Time) error
}

// CycleRepositoryFacade combines all cycle-related repository interfaces
type CycleRepositoryFacade interface {
	CycleReader
	CycleWriter
}
