package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/herderhub/herderhub-api/internal/repository"
)

const (
	uniqueViolation     = "23505"
	invalidTextInput    = "22P02" // malformed uuid in a lookup
	foreignKeyViolation = "23503"
)

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		return repository.ErrDuplicate
	case invalidTextInput, foreignKeyViolation:
		return repository.ErrNotFound
	}
	return err
}
