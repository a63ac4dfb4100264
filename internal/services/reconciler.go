package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/herderhub/herderhub-api/internal/metrics"
	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/mpesa"
	repo "github.com/herderhub/herderhub-api/internal/repository"
)

const (
	MatchMerchantRequestID = "merchant_request_id"
	MatchCheckoutRequestID = "checkout_request_id"
	MatchPhoneAmount       = "phone_amount"
)

// maxAuditedBody caps how much of a raw callback goes into audit_logs.
const maxAuditedBody = 8 << 10

type lookupStrategy struct {
	name string
	find func(ctx context.Context, cb mpesa.CallbackResult) (models.Transaction, error)
}

// Reconciler settles transactions from STK callbacks. Delivery is
// at-least-once; repeated callbacks are absorbed by the store's conditional
// update.
type Reconciler struct {
	txs        repo.Transactions
	listings   repo.Listings
	audit      *Auditor
	window     time.Duration
	now        func() time.Time
	logger     *slog.Logger
	strategies []lookupStrategy
}

func NewReconciler(t repo.Transactions, l repo.Listings, a *Auditor, fallbackWindow time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		txs:      t,
		listings: l,
		audit:    a,
		window:   fallbackWindow,
		now:      time.Now,
		logger:   logger,
	}
	// Tried in order; the first match wins.
	r.strategies = []lookupStrategy{
		{MatchMerchantRequestID, r.byMerchantRequestID},
		{MatchCheckoutRequestID, r.byCheckoutRequestID},
		{MatchPhoneAmount, r.byPhoneAmount},
	}
	return r
}

// Outcome describes what a callback did. Matched is empty when no
// transaction was found.
type Outcome struct {
	Matched       string
	TransactionID string
	Status        models.TransactionStatus
	Applied       bool // false for a repeat or late callback
}

// HandleCallback decodes and applies one callback body. The returned error is
// for logging only; the provider is always acknowledged.
func (r *Reconciler) HandleCallback(ctx context.Context, body []byte) (Outcome, error) {
	cb, err := mpesa.DecodeCallback(body)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues("malformed").Inc()
		r.logger.WarnContext(ctx, "malformed mpesa callback", "err", err, "body", clip(body))
		r.audit.Record("callback", "", "callback_malformed", map[string]any{"raw": clip(body)})
		return Outcome{}, err
	}
	log := r.logger.With(
		"merchant_request_id", cb.MerchantRequestID,
		"checkout_request_id", cb.CheckoutRequestID,
		"result_code", cb.ResultCode,
	)

	tx, matched, err := r.match(ctx, cb, log)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues("error").Inc()
		log.ErrorContext(ctx, "callback lookup failed", "err", err)
		return Outcome{}, err
	}
	if matched == "" {
		metrics.CallbacksTotal.WithLabelValues("unmatched").Inc()
		metrics.ReconciliationMismatches.Inc()
		log.WarnContext(ctx, "reconciliation mismatch: no transaction for callback",
			"phone", cb.PhoneNumber, "amount", cb.Amount, "desc", cb.ResultDesc)
		r.audit.Record("callback", "", "reconciliation_mismatch", map[string]any{
			"merchant_request_id": cb.MerchantRequestID,
			"checkout_request_id": cb.CheckoutRequestID,
			"result_code":         cb.ResultCode,
			"raw":                 clip(body),
		})
		return Outcome{}, nil
	}
	metrics.CallbacksTotal.WithLabelValues(matched).Inc()
	log = log.With("transaction_id", tx.ID, "matched_by", matched)
	r.audit.Record("transaction", tx.ID, "callback_received", map[string]any{"matched_by": matched, "raw": clip(body)})

	if matched == MatchPhoneAmount {
		r.attachLate(ctx, tx, cb, log)
	}

	status, settlement := settlementFor(cb)
	if status == models.TxnCompleted && cb.Amount != 0 && cb.Amount != tx.Amount {
		log.WarnContext(ctx, "callback amount differs from transaction", "callback_amount", cb.Amount, "amount", tx.Amount)
	}

	out := Outcome{Matched: matched, TransactionID: tx.ID}
	settled, err := r.txs.UpdateStatus(ctx, tx.ID, status, settlement)
	switch {
	case errors.Is(err, repo.ErrConflict):
		out.Status = settled.Status
		if settled.Status == status {
			log.DebugContext(ctx, "duplicate callback ignored", "status", settled.Status)
			return out, nil
		}
		log.WarnContext(ctx, "callback disagrees with settled transaction", "settled", settled.Status, "callback", status)
		r.audit.Record("transaction", tx.ID, "settlement_conflict", map[string]any{
			"settled": string(settled.Status), "callback": string(status), "result_code": cb.ResultCode,
		})
		return out, nil
	case err != nil:
		log.ErrorContext(ctx, "settle transaction", "err", err)
		return out, fmt.Errorf("settle %s: %w", tx.ID, err)
	}

	out.Status, out.Applied = settled.Status, true
	metrics.SettlementsTotal.WithLabelValues(string(settled.Status)).Inc()
	log.InfoContext(ctx, "transaction settled", "status", settled.Status)
	r.audit.Record("transaction", tx.ID, "settled", map[string]any{
		"status": string(settled.Status), "result_code": cb.ResultCode, "receipt": cb.ReceiptNumber,
	})

	if settled.Status == models.TxnCompleted {
		if err := r.listings.MarkSold(ctx, tx.ListingID); err != nil {
			log.WarnContext(ctx, "mark listing sold failed", "listing_id", tx.ListingID, "err", err)
		}
	}
	return out, nil
}

// match runs the strategies in order. A strategy reporting not found or an
// ambiguous match passes to the next one.
func (r *Reconciler) match(ctx context.Context, cb mpesa.CallbackResult, log *slog.Logger) (models.Transaction, string, error) {
	for _, s := range r.strategies {
		tx, err := s.find(ctx, cb)
		switch {
		case err == nil:
			return tx, s.name, nil
		case errors.Is(err, repo.ErrNotFound):
			continue
		case errors.Is(err, repo.ErrAmbiguous):
			log.WarnContext(ctx, "ambiguous callback match refused", "strategy", s.name)
			continue
		default:
			return models.Transaction{}, "", fmt.Errorf("%s lookup: %w", s.name, err)
		}
	}
	return models.Transaction{}, "", nil
}

func (r *Reconciler) byMerchantRequestID(ctx context.Context, cb mpesa.CallbackResult) (models.Transaction, error) {
	if cb.MerchantRequestID == "" {
		return models.Transaction{}, repo.ErrNotFound
	}
	return r.txs.FindByMerchantRequestID(ctx, cb.MerchantRequestID)
}

func (r *Reconciler) byCheckoutRequestID(ctx context.Context, cb mpesa.CallbackResult) (models.Transaction, error) {
	if cb.CheckoutRequestID == "" {
		return models.Transaction{}, repo.ErrNotFound
	}
	return r.txs.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
}

func (r *Reconciler) byPhoneAmount(ctx context.Context, cb mpesa.CallbackResult) (models.Transaction, error) {
	if !cb.HasPayer() {
		return models.Transaction{}, repo.ErrNotFound
	}
	return r.txs.FindByPhoneAmountPending(ctx, cb.PhoneNumber, cb.Amount, r.now().Add(-r.window))
}

// attachLate records the callback's ids on a record found by phone+amount.
func (r *Reconciler) attachLate(ctx context.Context, tx models.Transaction, cb mpesa.CallbackResult, log *slog.Logger) {
	if cb.MerchantRequestID == "" || cb.CheckoutRequestID == "" {
		return
	}
	if _, err := r.txs.AttachGatewayIDs(ctx, tx.ID, cb.MerchantRequestID, cb.CheckoutRequestID); err != nil {
		log.WarnContext(ctx, "attach ids from callback failed", "err", err)
	}
}

func settlementFor(cb mpesa.CallbackResult) (models.TransactionStatus, models.Settlement) {
	s := models.Settlement{
		ResultCode: intPtr(cb.ResultCode),
		ResultDesc: strPtr(cb.ResultDesc),
	}
	if cb.Succeeded() {
		if cb.ReceiptNumber != "" {
			s.MpesaReceiptNumber = strPtr(cb.ReceiptNumber)
		}
		s.MpesaTransactionDate = cb.TransactionDate
		return models.TxnCompleted, s
	}
	reason := reasonForResultCode(cb.ResultCode)
	s.FailureReason = &reason
	return models.TxnFailed, s
}

func clip(b []byte) string {
	if len(b) > maxAuditedBody {
		return string(b[:maxAuditedBody])
	}
	return string(b)
}
