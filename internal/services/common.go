package services

import (
	"errors"

	"github.com/herderhub/herderhub-api/internal/apperr"
	"github.com/herderhub/herderhub-api/internal/models"
	repo "github.com/herderhub/herderhub-api/internal/repository"
	"github.com/herderhub/herderhub-api/internal/validate"
)

const RoleAdmin = "admin"

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (a Actor) canView(t models.Transaction) bool {
	return a.IsAdmin() || t.InvolvesUser(a.UserID)
}

// storeErr converts repository and validation errors into apperr kinds.
func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var ve validate.Errs
	switch {
	case errors.As(err, &ve):
		return apperr.InvalidErr("validation failed", ve.Fields())
	case errors.Is(err, repo.ErrNotFound):
		return apperr.NotFoundErr(what + " not found")
	case errors.Is(err, repo.ErrDuplicate):
		return apperr.ConflictErr(what + " already exists")
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Wrap(err)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
