package pgsql

import (
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		DonationRepo:     newPgxDonationRepository(dbPool),
		BatchRepo:        newPgxBatchRepository(dbPool),
		TransactionRepo:  newPgxBlockchainTransactionRepository(dbPool),
		CycleRepo:        newPgxCycleRepository(dbPool),
		ExchangeRateRepo: newPgxExchangeRateRepository(dbPool),
	}
}
