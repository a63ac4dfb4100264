package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/repository"
)

type listingsRepo struct{ pool *pgxpool.Pool }

func NewListings(pool *pgxpool.Pool) repository.Listings {
	return &listingsRepo{pool: pool}
}

func (r *listingsRepo) GetByID(ctx context.Context, id string) (models.Listing, error) {
	var (
		l      models.Listing
		status string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, seller_id, animal_type, breed, price, status, updated_at
		   FROM listings
		  WHERE id=$1`,
		id,
	).Scan(&l.ID, &l.SellerID, &l.AnimalType, &l.Breed, &l.Price, &status, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Listing{}, repository.ErrNotFound
	}
	if err != nil {
		return models.Listing{}, mapErr(err)
	}
	l.Status = models.ListingStatus(status)
	return l, nil
}

func (r *listingsRepo) MarkSold(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE listings SET status='sold', updated_at=now() WHERE id=$1`,
		id,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
