package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/herderhub/herderhub-api/internal/apperr"
	"github.com/herderhub/herderhub-api/internal/metrics"
	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/mpesa"
	"github.com/herderhub/herderhub-api/internal/msisdn"
	repo "github.com/herderhub/herderhub-api/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type TransactionService struct {
	trx      repo.Transactions
	listings repo.Listings
	audit    *Auditor
	logger   *slog.Logger
}

func NewTransactionService(t repo.Transactions, l repo.Listings, a *Auditor, logger *slog.Logger) *TransactionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionService{trx: t, listings: l, audit: a, logger: logger}
}

type CreateTransactionRequest struct {
	ListingID        string               `json:"listingId"`
	Amount           int64                `json:"amount"`
	PhoneNumber      string               `json:"phoneNumber"`
	PaymentMethod    models.PaymentMethod `json:"paymentMethod"`
	AccountReference string               `json:"accountReference"`
}

// Create records a pending transaction for buyer. The seller always comes
// from the listing.
func (s *TransactionService) Create(ctx context.Context, buyer Actor, req CreateTransactionRequest) (models.Transaction, error) {
	phone, err := msisdn.Normalize(req.PhoneNumber)
	if err != nil {
		return models.Transaction{}, apperr.InvalidErr(apperr.MsgInvalidPhone, map[string]string{"phoneNumber": apperr.MsgInvalidPhone})
	}
	if req.ListingID == "" {
		return models.Transaction{}, apperr.InvalidErr("validation failed", map[string]string{"listingId": "required"})
	}
	listing, err := s.listings.GetByID(ctx, req.ListingID)
	if err != nil {
		return models.Transaction{}, storeErr(err, "listing")
	}
	if listing.Status == models.ListingSold {
		return models.Transaction{}, apperr.ConflictErr("this listing has already been sold")
	}
	if listing.SellerID == buyer.UserID {
		return models.Transaction{}, apperr.InvalidErr("you cannot buy your own listing", nil)
	}

	tx, err := s.trx.Create(ctx, models.Transaction{
		ListingID:        listing.ID,
		BuyerID:          buyer.UserID,
		SellerID:         listing.SellerID,
		Amount:           req.Amount,
		PaymentMethod:    req.PaymentMethod,
		PhoneNumber:      phone,
		AccountReference: req.AccountReference,
	})
	if err != nil {
		return models.Transaction{}, storeErr(err, "transaction")
	}
	s.audit.Record("transaction", tx.ID, "created", map[string]any{"amount": tx.Amount, "method": string(tx.PaymentMethod)})
	return tx, nil
}

func (s *TransactionService) Get(ctx context.Context, caller Actor, id string) (models.Transaction, error) {
	tx, err := s.trx.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, storeErr(err, "transaction")
	}
	if !caller.canView(tx) {
		return models.Transaction{}, apperr.ForbiddenErr("you are not a party to this transaction")
	}
	return tx, nil
}

func (s *TransactionService) ListForUser(ctx context.Context, caller Actor, limit, offset int) ([]models.Transaction, error) {
	limit, offset = page(limit, offset)
	out, err := s.trx.ListByUser(ctx, caller.UserID, limit, offset)
	if err != nil {
		return nil, storeErr(err, "transaction")
	}
	return nonNil(out), nil
}

func (s *TransactionService) ListAll(ctx context.Context, limit, offset int) ([]models.Transaction, error) {
	limit, offset = page(limit, offset)
	out, err := s.trx.List(ctx, limit, offset)
	if err != nil {
		return nil, storeErr(err, "transaction")
	}
	return nonNil(out), nil
}

// Patch carries the fields PATCH /transactions/{id} may change.
type Patch struct {
	Status             *models.TransactionStatus `json:"status"`
	MpesaReceiptNumber *string                   `json:"mpesaReceiptNumber"`
	ResultCode         *int                      `json:"resultCode"`
	ResultDesc         *string                   `json:"resultDesc"`
	FailureReason      *models.FailureReason     `json:"failureReason"`
	MerchantRequestID  *string                   `json:"merchantRequestId"`
	CheckoutRequestID  *string                   `json:"checkoutRequestId"`
}

func (p Patch) hasResultFields() bool {
	return p.MpesaReceiptNumber != nil || p.ResultCode != nil || p.ResultDesc != nil || p.FailureReason != nil
}

// Update applies a patch. A status change on an already terminal record is a
// no-op and returns the current record.
func (s *TransactionService) Update(ctx context.Context, caller Actor, id string, p Patch) (models.Transaction, error) {
	tx, err := s.Get(ctx, caller, id)
	if err != nil {
		return models.Transaction{}, err
	}

	if err := validatePatch(caller, p); err != nil {
		return models.Transaction{}, err
	}

	if p.MerchantRequestID != nil || p.CheckoutRequestID != nil {
		if tx.Status.Terminal() && !sameIDs(tx, *p.MerchantRequestID, *p.CheckoutRequestID) {
			return models.Transaction{}, apperr.ConflictErr("gateway ids cannot be attached to a settled transaction")
		}
		tx, err = s.trx.AttachGatewayIDs(ctx, id, *p.MerchantRequestID, *p.CheckoutRequestID)
		switch {
		case errors.Is(err, repo.ErrConflict):
			return models.Transaction{}, apperr.ConflictErr("different gateway ids are already attached")
		case errors.Is(err, repo.ErrDuplicate):
			return models.Transaction{}, apperr.ConflictErr("gateway id belongs to another transaction")
		case err != nil:
			return models.Transaction{}, storeErr(err, "transaction")
		}
		s.audit.Record("transaction", id, "gateway_ids_attached", map[string]any{
			"merchant_request_id": *p.MerchantRequestID, "checkout_request_id": *p.CheckoutRequestID,
		})
	}

	if p.Status == nil {
		return tx, nil
	}
	settled, err := s.trx.UpdateStatus(ctx, id, *p.Status, models.Settlement{
		ResultCode:         p.ResultCode,
		ResultDesc:         p.ResultDesc,
		MpesaReceiptNumber: p.MpesaReceiptNumber,
		FailureReason:      p.FailureReason,
	})
	switch {
	case errors.Is(err, repo.ErrConflict):
		s.logger.DebugContext(ctx, "status update on settled transaction ignored",
			"transaction_id", id, "current", settled.Status, "requested", *p.Status)
		return settled, nil
	case errors.Is(err, repo.ErrInvalidTransition):
		return models.Transaction{}, apperr.InvalidErr("validation failed", map[string]string{"status": "must be completed, failed or cancelled"})
	case err != nil:
		return models.Transaction{}, storeErr(err, "transaction")
	}
	metrics.SettlementsTotal.WithLabelValues(string(settled.Status)).Inc()
	details := map[string]any{"status": string(settled.Status), "by": caller.UserID}
	if p.FailureReason != nil {
		details["reason"] = string(*p.FailureReason)
	}
	s.audit.Record("transaction", id, "status_patched", details)
	return settled, nil
}

func sameIDs(tx models.Transaction, merchantID, checkoutID string) bool {
	return tx.MerchantRequestID != nil && tx.CheckoutRequestID != nil &&
		*tx.MerchantRequestID == merchantID && *tx.CheckoutRequestID == checkoutID
}

func validatePatch(caller Actor, p Patch) error {
	fields := map[string]string{}
	if (p.MerchantRequestID == nil) != (p.CheckoutRequestID == nil) ||
		(p.MerchantRequestID != nil && (*p.MerchantRequestID == "" || *p.CheckoutRequestID == "")) {
		fields["merchantRequestId"] = "merchantRequestId and checkoutRequestId are set together"
	}
	if p.Status != nil {
		switch {
		case !p.Status.Valid() || *p.Status == models.TxnPending:
			fields["status"] = "must be completed, failed or cancelled"
		case *p.Status == models.TxnCompleted && !caller.IsAdmin():
			// Completion is confirmed by the provider callback.
			fields["status"] = "only the payment provider can complete a transaction"
		}
	} else if p.hasResultFields() {
		fields["status"] = "result fields can only be set together with a status"
	}
	completing := p.Status != nil && *p.Status == models.TxnCompleted
	if p.MpesaReceiptNumber != nil && !completing {
		fields["mpesaReceiptNumber"] = "a receipt can only be recorded on a completed transaction"
	}
	if p.ResultCode != nil {
		switch {
		case !caller.IsAdmin():
			fields["resultCode"] = "result codes are set by the payment provider"
		case (*p.ResultCode == mpesa.ResultSuccess) != completing:
			fields["resultCode"] = "result code 0 is only valid for a completed transaction"
		}
	}
	if p.FailureReason != nil && completing {
		fields["failureReason"] = "a completed transaction has no failure reason"
	}
	if p.FailureReason != nil && !p.FailureReason.Valid() {
		fields["failureReason"] = "unknown failure reason"
	}
	if len(fields) > 0 {
		return apperr.InvalidErr("validation failed", fields)
	}
	return nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nonNil(in []models.Transaction) []models.Transaction {
	if in == nil {
		return []models.Transaction{}
	}
	return in
}
