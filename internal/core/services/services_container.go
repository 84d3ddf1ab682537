package services

import (
	"log/slog"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/platform/config"
)

// Dependencies are the adapters the services call out to.
type Dependencies struct {
	Gateways SettlementGateways
	Events   gateways.EventPublisher
	Locker   gateways.TxLocker
	Metrics  Metrics
}

// Workers are the background loops started next to the HTTP server.
type Workers struct {
	Monitor     *ConfirmationMonitor
	CycleRunner *CycleRunner
}

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, deps Dependencies) (*portssvc.ServiceContainer, *Workers) {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	container := &portssvc.ServiceContainer{}

	// Fees and cycles first since the batch lifecycle depends on both
	container.Fees = NewFeeCalculator(domain.FeePercentages{
		DebtPct:        cfg.DebtFeePercent,
		OperationalPct: cfg.OperationalFeePercent,
		TransactionPct: cfg.TransactionFeePercent,
	})
	container.Cycles = NewCycleScheduler(repos.DonationRepo, repos.CycleRepo, CycleDefaults{
		Cycle:            domain.CycleType(cfg.ProcessingCycle),
		TriggerOnChain:   cfg.DefaultTriggerOnChain,
		TriggerBanking:   cfg.DefaultTriggerBanking,
		MinimumAmountEur: cfg.MinimumBatchAmount,
	})

	rates := NewExchangeRateService(repos.ExchangeRateRepo, cfg.RateMaxAge)
	container.ExchangeRate = rates

	container.Batches = NewBatchService(
		repos.BatchRepo,
		container.Fees,
		rates,
		deps.Gateways.Payments,
		deps.Gateways.Chain,
		BatchServiceConfig{
			SettlementMinimumEur: cfg.SettlementMinimumEur,
			DepositFeePercent:    cfg.DepositFeePercent,
			TargetCurrency:       domain.DefaultTargetCurrency,
			ExternalCallTimeout:  cfg.ExternalCallTimeout,
			Operator: domain.UserContext{
				Email:     cfg.Operator.Email,
				FirstName: cfg.Operator.FirstName,
				LastName:  cfg.Operator.LastName,
			},
		},
		WithBatchEvents(deps.Events),
		WithBatchLocker(deps.Locker),
		WithBatchMetrics(metrics),
		WithCycleGate(container.Cycles),
	)

	strategyCfg := DefaultSettlementStrategyConfig()
	strategyCfg.Providers = directProviders(cfg.DirectPurchaseProviders)
	strategyCfg.OptimalGroupEur = cfg.OptimalBatchAmount
	strategyCfg.MinimumGroupEur = cfg.MinimumBatchAmount
	strategyCfg.ExternalCallTimeout = cfg.ExternalCallTimeout
	strategyCfg.Operator = domain.UserContext{
		Email:     cfg.Operator.Email,
		FirstName: cfg.Operator.FirstName,
		LastName:  cfg.Operator.LastName,
	}
	container.Settlement = NewSettlementStrategy(
		repos.DonationRepo,
		repos.BatchRepo,
		deps.Gateways,
		strategyCfg,
		WithStrategyEvents(deps.Events),
		WithStrategyMetrics(metrics),
		WithStrategyLocker(deps.Locker),
		WithBankingGate(container.Cycles),
	)

	workers := &Workers{
		Monitor: NewConfirmationMonitor(
			repos.TransactionRepo,
			repos.BatchRepo,
			deps.Gateways.Chain,
			deps.Locker,
			ConfirmationMonitorConfig{
				Interval:            cfg.MonitorInterval,
				BatchLimit:          cfg.MonitorBatchLimit,
				Workers:             cfg.MonitorWorkers,
				LockTTL:             cfg.MonitorLockTTL,
				ExternalCallTimeout: cfg.ExternalCallTimeout,
			},
			WithMonitorEvents(deps.Events),
			WithMonitorMetrics(metrics),
		),
		CycleRunner: NewCycleRunner(container.Cycles, repos.CycleRepo, container.Batches, cfg.CycleRunnerInterval),
	}

	return container, workers
}

// directProviders resolves configured names against the known fee table; unknown names are skipped.
func directProviders(names []string) []domain.CryptoProvider {
	known := domain.KnownCryptoProviders()
	providers := make([]domain.CryptoProvider, 0, len(names))
	for _, name := range names {
		p, ok := known[name]
		if !ok {
			slog.Warn("Unknown direct purchase provider", slog.String("provider", name))
			continue
		}
		providers = append(providers, p)
	}
	return providers
}
