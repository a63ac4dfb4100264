package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/repository"
)

type usersRepo struct{ pool *pgxpool.Pool }

func NewUsers(pool *pgxpool.Pool) repository.Users {
	return &usersRepo{pool: pool}
}

func (r *usersRepo) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users(id, username, email, phone_number, password_hash, role) VALUES($1,$2,$3,NULLIF($4,''),$5,$6)`,
		u.ID, u.Username, strings.ToLower(u.Email), u.PhoneNumber, u.PasswordHash, u.Role,
	)
	if err != nil {
		return models.User{}, mapErr(err)
	}
	return r.GetByID(ctx, u.ID)
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	return r.getOne(ctx, `WHERE id=$1`, id)
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getOne(ctx, `WHERE email=$1`, strings.ToLower(email))
}

func (r *usersRepo) getOne(ctx context.Context, where string, arg any) (models.User, error) {
	var (
		u     models.User
		phone *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, email, phone_number, password_hash, role, created_at, updated_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &phone, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, repository.ErrNotFound
	}
	if err != nil {
		return models.User{}, mapErr(err)
	}
	if phone != nil {
		u.PhoneNumber = *phone
	}
	return u, nil
}
