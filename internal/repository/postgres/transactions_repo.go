package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/repository"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

func NewTransactions(pool *pgxpool.Pool) repository.Transactions {
	return &transactionsRepo{pool: pool}
}

const txColumns = `id, listing_id, buyer_id, seller_id, amount, payment_method, status, phone_number,
  account_reference, merchant_request_id, checkout_request_id, result_code, result_desc,
  mpesa_receipt_number, mpesa_transaction_date, failure_reason, created_at, updated_at`

func scanTx(row pgx.Row) (models.Transaction, error) {
	var (
		tx            models.Transaction
		method        string
		status        string
		failureReason *string
	)
	err := row.Scan(
		&tx.ID, &tx.ListingID, &tx.BuyerID, &tx.SellerID, &tx.Amount, &method, &status, &tx.PhoneNumber,
		&tx.AccountReference, &tx.MerchantRequestID, &tx.CheckoutRequestID, &tx.ResultCode, &tx.ResultDesc,
		&tx.MpesaReceiptNumber, &tx.MpesaTransactionDate, &failureReason, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, repository.ErrNotFound
	}
	if err != nil {
		return models.Transaction{}, mapErr(err)
	}
	tx.PaymentMethod = models.PaymentMethod(method)
	tx.Status = models.TransactionStatus(status)
	if failureReason != nil {
		r := models.FailureReason(*failureReason)
		tx.FailureReason = &r
	}
	return tx, nil
}

func (r *transactionsRepo) Create(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return models.Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	row := r.pool.QueryRow(ctx, `
INSERT INTO transactions (id, listing_id, buyer_id, seller_id, amount, payment_method, status, phone_number, account_reference)
VALUES ($1,$2,$3,$4,$5,$6,'pending',$7,$8)
RETURNING `+txColumns,
		tx.ID, tx.ListingID, tx.BuyerID, tx.SellerID, tx.Amount, string(tx.PaymentMethod), tx.PhoneNumber, tx.AccountReference,
	)
	out, err := scanTx(row)
	return out, mapErr(err)
}

func (r *transactionsRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return scanTx(r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id=$1`, id))
}

func (r *transactionsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	return r.list(ctx, `SELECT `+txColumns+`
   FROM transactions
  WHERE buyer_id=$1 OR seller_id=$1
  ORDER BY created_at DESC
  LIMIT $2 OFFSET $3`, userID, limit, offset)
}

func (r *transactionsRepo) List(ctx context.Context, limit, offset int) ([]models.Transaction, error) {
	return r.list(ctx, `SELECT `+txColumns+`
   FROM transactions
  ORDER BY created_at DESC
  LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *transactionsRepo) list(ctx context.Context, q string, args ...any) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *transactionsRepo) FindByMerchantRequestID(ctx context.Context, id string) (models.Transaction, error) {
	return scanTx(r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE merchant_request_id=$1`, id))
}

func (r *transactionsRepo) FindByCheckoutRequestID(ctx context.Context, id string) (models.Transaction, error) {
	return scanTx(r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE checkout_request_id=$1`, id))
}

func (r *transactionsRepo) FindByPhoneAmountPending(ctx context.Context, phone string, amount int64, since time.Time) (models.Transaction, error) {
	found, err := r.list(ctx, `SELECT `+txColumns+`
   FROM transactions
  WHERE status='pending'
    AND phone_number=$1
    AND amount=$2
    AND merchant_request_id IS NULL
    AND checkout_request_id IS NULL
    AND created_at >= $3
  LIMIT 2`, phone, amount, since)
	if err != nil {
		return models.Transaction{}, err
	}
	switch len(found) {
	case 0:
		return models.Transaction{}, repository.ErrNotFound
	case 1:
		return found[0], nil
	}
	return models.Transaction{}, repository.ErrAmbiguous
}

// UpdateStatus is a single conditional write. The row lock taken by UPDATE
// serialises concurrent settlements; losers see zero rows.
func (r *transactionsRepo) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, s models.Settlement) (models.Transaction, error) {
	if !models.CanTransition(models.TxnPending, status) {
		return models.Transaction{}, repository.ErrInvalidTransition
	}
	var reason *string
	if s.FailureReason != nil {
		v := string(*s.FailureReason)
		reason = &v
	}
	out, err := scanTx(r.pool.QueryRow(ctx, `
UPDATE transactions
   SET status=$2,
       result_code=COALESCE($3, result_code),
       result_desc=COALESCE($4, result_desc),
       mpesa_receipt_number=COALESCE($5, mpesa_receipt_number),
       mpesa_transaction_date=COALESCE($6, mpesa_transaction_date),
       failure_reason=COALESCE($7, failure_reason),
       updated_at=now()
 WHERE id=$1 AND status='pending'
RETURNING `+txColumns,
		id, string(status), s.ResultCode, s.ResultDesc, s.MpesaReceiptNumber, s.MpesaTransactionDate, reason,
	))
	if !errors.Is(err, repository.ErrNotFound) {
		return out, err
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	return cur, repository.ErrConflict
}

func (r *transactionsRepo) AttachGatewayIDs(ctx context.Context, id, merchantID, checkoutID string) (models.Transaction, error) {
	if merchantID == "" || checkoutID == "" {
		return models.Transaction{}, repository.ErrConflict
	}
	out, err := scanTx(r.pool.QueryRow(ctx, `
UPDATE transactions
   SET merchant_request_id=$2, checkout_request_id=$3, updated_at=now()
 WHERE id=$1 AND merchant_request_id IS NULL AND checkout_request_id IS NULL
RETURNING `+txColumns, id, merchantID, checkoutID))
	if !errors.Is(err, repository.ErrNotFound) {
		return out, mapErr(err)
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	if deref(cur.MerchantRequestID) == merchantID && deref(cur.CheckoutRequestID) == checkoutID {
		return cur, nil
	}
	return cur, repository.ErrConflict
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
