package repository

import (
	"context"
	"errors"
	"time"

	"github.com/herderhub/herderhub-api/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict: the record is already terminal, or different gateway ids
	// are already attached.
	ErrConflict = errors.New("conflict")
	// ErrDuplicate: a unique key (email, gateway id) belongs to another record.
	ErrDuplicate = errors.New("duplicate")
	// ErrAmbiguous: a heuristic lookup matched more than one record.
	ErrAmbiguous = errors.New("ambiguous match")
	// ErrInvalidTransition: the target status cannot be reached from pending.
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Users interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

// Listings is the slice of the listing catalogue the payment flow needs.
type Listings interface {
	GetByID(ctx context.Context, id string) (models.Listing, error)
	MarkSold(ctx context.Context, id string) error
}

type Transactions interface {
	Create(ctx context.Context, tx models.Transaction) (models.Transaction, error)
	GetByID(ctx context.Context, id string) (models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
	List(ctx context.Context, limit, offset int) ([]models.Transaction, error)

	FindByMerchantRequestID(ctx context.Context, id string) (models.Transaction, error)
	FindByCheckoutRequestID(ctx context.Context, id string) (models.Transaction, error)
	// FindByPhoneAmountPending returns the single pending record for phone and
	// amount that has no gateway ids and was created at or after since.
	FindByPhoneAmountPending(ctx context.Context, phone string, amount int64, since time.Time) (models.Transaction, error)

	// UpdateStatus moves a pending record to status. When the record is
	// already terminal nothing is written and the current record is returned
	// with ErrConflict.
	UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, s models.Settlement) (models.Transaction, error)
	AttachGatewayIDs(ctx context.Context, id, merchantRequestID, checkoutRequestID string) (models.Transaction, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

type Repositories struct {
	Users        Users
	Listings     Listings
	Transactions Transactions
	AuditLogs    AuditLogs
	// Close releases the backend's connections.
	Close func()
}
