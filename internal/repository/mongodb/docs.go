package mongodb

import (
	"time"

	"github.com/herderhub/herderhub-api/internal/models"
)

// Collection names.
const (
	colTransactions = "transactions"
	colListings     = "listings"
	colUsers        = "users"
	colAuditLogs    = "audit_logs"
)

// txDoc is the stored shape of a transaction. Gateway ids are omitted while
// unset so the sparse unique indexes ignore them.
type txDoc struct {
	ID                   string     `bson:"_id"`
	ListingID            string     `bson:"listing_id"`
	BuyerID              string     `bson:"buyer_id"`
	SellerID             string     `bson:"seller_id"`
	Amount               int64      `bson:"amount"`
	PaymentMethod        string     `bson:"payment_method"`
	Status               string     `bson:"status"`
	PhoneNumber          string     `bson:"phone_number"`
	AccountReference     string     `bson:"account_reference,omitempty"`
	MerchantRequestID    *string    `bson:"merchant_request_id,omitempty"`
	CheckoutRequestID    *string    `bson:"checkout_request_id,omitempty"`
	ResultCode           *int       `bson:"result_code,omitempty"`
	ResultDesc           *string    `bson:"result_desc,omitempty"`
	MpesaReceiptNumber   *string    `bson:"mpesa_receipt_number,omitempty"`
	MpesaTransactionDate *time.Time `bson:"mpesa_transaction_date,omitempty"`
	FailureReason        *string    `bson:"failure_reason,omitempty"`
	CreatedAt            time.Time  `bson:"created_at"`
	UpdatedAt            time.Time  `bson:"updated_at"`
}

func toTxDoc(t models.Transaction) txDoc {
	d := txDoc{
		ID:                   t.ID,
		ListingID:            t.ListingID,
		BuyerID:              t.BuyerID,
		SellerID:             t.SellerID,
		Amount:               t.Amount,
		PaymentMethod:        string(t.PaymentMethod),
		Status:               string(t.Status),
		PhoneNumber:          t.PhoneNumber,
		AccountReference:     t.AccountReference,
		MerchantRequestID:    t.MerchantRequestID,
		CheckoutRequestID:    t.CheckoutRequestID,
		ResultCode:           t.ResultCode,
		ResultDesc:           t.ResultDesc,
		MpesaReceiptNumber:   t.MpesaReceiptNumber,
		MpesaTransactionDate: t.MpesaTransactionDate,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
	if t.FailureReason != nil {
		r := string(*t.FailureReason)
		d.FailureReason = &r
	}
	return d
}

func (d txDoc) model() models.Transaction {
	t := models.Transaction{
		ID:                   d.ID,
		ListingID:            d.ListingID,
		BuyerID:              d.BuyerID,
		SellerID:             d.SellerID,
		Amount:               d.Amount,
		PaymentMethod:        models.PaymentMethod(d.PaymentMethod),
		Status:               models.TransactionStatus(d.Status),
		PhoneNumber:          d.PhoneNumber,
		AccountReference:     d.AccountReference,
		MerchantRequestID:    d.MerchantRequestID,
		CheckoutRequestID:    d.CheckoutRequestID,
		ResultCode:           d.ResultCode,
		ResultDesc:           d.ResultDesc,
		MpesaReceiptNumber:   d.MpesaReceiptNumber,
		MpesaTransactionDate: d.MpesaTransactionDate,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
	if d.FailureReason != nil {
		r := models.FailureReason(*d.FailureReason)
		t.FailureReason = &r
	}
	return t
}

type listingDoc struct {
	ID         string    `bson:"_id"`
	SellerID   string    `bson:"seller_id"`
	AnimalType string    `bson:"animal_type"`
	Breed      string    `bson:"breed"`
	Price      int64     `bson:"price"`
	Status     string    `bson:"status"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PhoneNumber  string    `bson:"phone_number,omitempty"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type auditDoc struct {
	ID         string         `bson:"_id"`
	EntityType string         `bson:"entity_type"`
	EntityID   *string        `bson:"entity_id,omitempty"`
	Action     string         `bson:"action"`
	Details    map[string]any `bson:"details,omitempty"`
	CreatedAt  time.Time      `bson:"created_at"`
}
