package services

import (
	"context"

	"github.com/Dours-d/D2C/internal/core/domain"
)

// SettlementStrategySvc chooses and executes a settlement route.
type SettlementStrategySvc interface {
	// SelectStrategy evaluates every route for a wallet and amount.
	SelectStrategy(ctx context.Context, req domain.StrategyRequest) (*domain.StrategyDecision, error)

	// ExecuteSettlement dispatches a processed batch through the cheapest viable route,
	// falling back to bank transfers when allowed. The batch completes once the provider
	// confirms every group or the chain confirms every transfer.
	ExecuteSettlement(ctx context.Context, batchID string, actor string) (*domain.SettlementResult, error)
}
