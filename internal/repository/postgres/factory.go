package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/herderhub/herderhub-api/internal/repository"
)

func NewRepositories(pool *pgxpool.Pool) repo.Repositories {
	return repo.Repositories{
		Users:        NewUsers(pool),
		Listings:     NewListings(pool),
		Transactions: NewTransactions(pool),
		AuditLogs:    NewAuditLogs(pool),
		Close:        pool.Close,
	}
}
