package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/herderhub/herderhub-api/internal/apperr"
	"github.com/herderhub/herderhub-api/internal/metrics"
	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/mpesa"
	"github.com/herderhub/herderhub-api/internal/msisdn"
	repo "github.com/herderhub/herderhub-api/internal/repository"
	"github.com/herderhub/herderhub-api/internal/validate"
)

// Gateway starts an STK push. *mpesa.Client implements it.
type Gateway interface {
	InitiatePush(ctx context.Context, req mpesa.PushRequest) (mpesa.PushResponse, error)
}

type PaymentService struct {
	txs      repo.Transactions
	listings repo.Listings
	gw       Gateway
	audit    *Auditor
	fee      int64
	logger   *slog.Logger
}

func NewPaymentService(t repo.Transactions, l repo.Listings, gw Gateway, a *Auditor, serviceFee int64, logger *slog.Logger) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{txs: t, listings: l, gw: gw, audit: a, fee: serviceFee, logger: logger}
}

type InitiateRequest struct {
	ListingID        string               `json:"listingId"`
	PhoneNumber      string               `json:"phoneNumber"`
	Amount           int64                `json:"amount"`
	PaymentMethod    models.PaymentMethod `json:"paymentMethod"`
	AccountReference string               `json:"accountReference"`
	TransactionDesc  string               `json:"transactionDesc"`
}

type InitiateResult struct {
	TransactionID     string `json:"transactionId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	CustomerMessage   string `json:"customerMessage"`
	Amount            int64  `json:"amount"`
}

// Initiate validates the purchase, persists a pending transaction and then
// sends exactly one STK push. It never retries.
func (s *PaymentService) Initiate(ctx context.Context, buyer Actor, req InitiateRequest) (InitiateResult, error) {
	phone, phoneErr := msisdn.Normalize(req.PhoneNumber)
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.MethodMpesa
	}
	if err := validate.Collect(
		validate.Required("listingId", req.ListingID),
		validate.Check(phoneErr == nil, "phoneNumber", apperr.MsgInvalidPhone),
		validate.Check(req.PaymentMethod == models.MethodMpesa, "paymentMethod", "push payments require mpesa"),
		validate.Check(req.Amount >= 0, "amount", "must be >= 0"),
	); err != nil {
		var ve validate.Errs
		errors.As(err, &ve)
		msg := "invalid payment request"
		if phoneErr != nil {
			msg = apperr.MsgInvalidPhone
		}
		return InitiateResult{}, apperr.InvalidErr(msg, ve.Fields())
	}

	listing, err := s.listings.GetByID(ctx, req.ListingID)
	if err != nil {
		return InitiateResult{}, storeErr(err, "listing")
	}
	if listing.Status == models.ListingSold {
		return InitiateResult{}, apperr.ConflictErr("this listing has already been sold")
	}
	if listing.SellerID == buyer.UserID {
		return InitiateResult{}, apperr.InvalidErr("you cannot buy your own listing", nil)
	}
	amount := listing.Price + s.fee
	if req.Amount != 0 && req.Amount != amount {
		return InitiateResult{}, apperr.InvalidErr("amount does not match the listing price",
			map[string]string{"amount": fmt.Sprintf("must equal listing price plus service fee (%d)", amount)})
	}

	ref := req.AccountReference
	if strings.TrimSpace(ref) == "" {
		ref = accountReference(listing.ID)
	}
	desc := req.TransactionDesc
	if strings.TrimSpace(desc) == "" {
		desc = strings.TrimSpace(fmt.Sprintf("Purchase of %s %s", listing.Breed, listing.AnimalType))
	}

	tx, err := s.txs.Create(ctx, models.Transaction{
		ListingID:        listing.ID,
		BuyerID:          buyer.UserID,
		SellerID:         listing.SellerID,
		Amount:           amount,
		PaymentMethod:    models.MethodMpesa,
		PhoneNumber:      phone,
		AccountReference: ref,
	})
	if err != nil {
		return InitiateResult{}, storeErr(err, "transaction")
	}
	s.audit.Record("transaction", tx.ID, "created", map[string]any{"amount": amount, "listing_id": listing.ID})

	resp, err := s.gw.InitiatePush(ctx, mpesa.PushRequest{
		PhoneNumber:      phone,
		Amount:           amount,
		AccountReference: ref,
		Description:      desc,
	})
	if err != nil {
		return InitiateResult{}, s.failInitiation(ctx, tx, err)
	}
	metrics.STKPushes.WithLabelValues("accepted").Inc()

	// A failed attach is not fatal: the reconciler falls back to phone+amount.
	if _, err := s.txs.AttachGatewayIDs(ctx, tx.ID, resp.MerchantRequestID, resp.CheckoutRequestID); err != nil {
		s.logger.WarnContext(ctx, "attach gateway ids failed",
			"transaction_id", tx.ID, "merchant_request_id", resp.MerchantRequestID,
			"checkout_request_id", resp.CheckoutRequestID, "err", err)
	}
	s.audit.Record("transaction", tx.ID, "push_accepted", map[string]any{
		"merchant_request_id": resp.MerchantRequestID,
		"checkout_request_id": resp.CheckoutRequestID,
	})

	return InitiateResult{
		TransactionID:     tx.ID,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
		Amount:            amount,
	}, nil
}

// failInitiation marks tx failed and converts the gateway error for the caller.
func (s *PaymentService) failInitiation(ctx context.Context, tx models.Transaction, cause error) error {
	var (
		reason  = models.ReasonGatewayError
		desc    = "payment request could not be sent"
		outcome = "rejected"
		authErr *mpesa.AuthError
		reqErr  *mpesa.RequestError
	)
	switch {
	case errors.As(cause, &authErr):
		desc = "payment service authentication failed"
		outcome = "auth_error"
	case errors.As(cause, &reqErr):
		reason = reasonForRequestError(reqErr.Code)
		if reqErr.Message != "" {
			desc = reqErr.Message
		}
	}
	metrics.STKPushes.WithLabelValues(outcome).Inc()
	s.logger.WarnContext(ctx, "stk push failed", "transaction_id", tx.ID, "reason", reason, "err", cause)

	// The buyer may have gone away; the failure must still be recorded.
	wctx := context.WithoutCancel(ctx)
	if _, err := s.txs.UpdateStatus(wctx, tx.ID, models.TxnFailed, models.Settlement{
		ResultDesc:    &desc,
		FailureReason: &reason,
	}); err != nil {
		s.logger.ErrorContext(ctx, "mark transaction failed", "transaction_id", tx.ID, "err", err)
	} else {
		metrics.SettlementsTotal.WithLabelValues(string(models.TxnFailed)).Inc()
	}
	s.audit.Record("transaction", tx.ID, "push_failed", map[string]any{
		"reason": string(reason), "description": desc, "error": cause.Error(),
	})

	if reason == models.ReasonInvalidPhone {
		return &apperr.AppError{
			Kind:      apperr.Invalid,
			PublicMsg: reason.Message(),
			Fields:    map[string]string{"phoneNumber": reason.Message()},
			Err:       cause,
		}
	}
	return apperr.GatewayErr(reason.Message(), cause)
}

// Status reports the payment state for the poller. Only the buyer, the seller
// or an admin may read it.
func (s *PaymentService) Status(ctx context.Context, caller Actor, checkoutRequestID string) (models.PaymentStatus, error) {
	tx, err := s.txs.FindByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return models.PaymentStatus{}, storeErr(err, "transaction")
	}
	if !caller.canView(tx) {
		return models.PaymentStatus{}, apperr.ForbiddenErr("you are not a party to this transaction")
	}
	return models.NewPaymentStatus(tx), nil
}

// accountReference is "LS" plus the tail of the listing id, within Daraja's
// 12 character limit.
func accountReference(listingID string) string {
	id := strings.ReplaceAll(listingID, "-", "")
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return "LS" + strings.ToUpper(id)
}
