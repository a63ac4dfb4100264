package models

import (
	"time"

	"github.com/herderhub/herderhub-api/internal/apperr"
	"github.com/herderhub/herderhub-api/internal/msisdn"
	"github.com/herderhub/herderhub-api/internal/validate"
)

type PaymentMethod string

const (
	MethodMpesa        PaymentMethod = "mpesa"
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodMpesa, MethodCash, MethodBankTransfer:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TxnPending   TransactionStatus = "pending"
	TxnCompleted TransactionStatus = "completed"
	TxnFailed    TransactionStatus = "failed"
	TxnCancelled TransactionStatus = "cancelled"
)

// transitions lists every allowed move. Anything not listed is rejected,
// which makes completed, failed and cancelled terminal.
var transitions = map[TransactionStatus][]TransactionStatus{
	TxnPending:   {TxnCompleted, TxnFailed, TxnCancelled},
	TxnCompleted: {},
	TxnFailed:    {},
	TxnCancelled: {},
}

func CanTransition(from, to TransactionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s TransactionStatus) Terminal() bool {
	_, known := transitions[s]
	return known && len(transitions[s]) == 0
}

func (s TransactionStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// FailureReason classifies why a transaction did not complete.
type FailureReason string

const (
	ReasonInsufficientFunds FailureReason = "insufficient_funds"
	ReasonCancelledByUser   FailureReason = "cancelled_by_user"
	ReasonInvalidPhone      FailureReason = "invalid_phone"
	ReasonDeclined          FailureReason = "declined"
	ReasonGatewayError      FailureReason = "gateway_error"
	ReasonClientTimeout     FailureReason = "client_timeout"
)

func (r FailureReason) Valid() bool {
	switch r {
	case ReasonInsufficientFunds, ReasonCancelledByUser, ReasonInvalidPhone,
		ReasonDeclined, ReasonGatewayError, ReasonClientTimeout:
		return true
	}
	return false
}

// Message is the plain-language text shown to the buyer.
func (r FailureReason) Message() string {
	switch r {
	case ReasonInsufficientFunds:
		return apperr.MsgInsufficientBalance
	case ReasonCancelledByUser:
		return apperr.MsgCancelled
	case ReasonInvalidPhone:
		return apperr.MsgInvalidPhone
	case ReasonDeclined:
		return apperr.MsgDeclined
	case ReasonClientTimeout:
		return apperr.MsgTimedOut
	}
	return apperr.MsgGeneric
}

type Transaction struct {
	ID        string `json:"id"`
	ListingID string `json:"listingId"`
	BuyerID   string `json:"buyerId"`
	SellerID  string `json:"sellerId"`

	Amount           int64             `json:"amount"`
	PaymentMethod    PaymentMethod     `json:"paymentMethod"`
	Status           TransactionStatus `json:"status"`
	PhoneNumber      string            `json:"phoneNumber"`
	AccountReference string            `json:"accountReference,omitempty"`

	MerchantRequestID *string `json:"merchantRequestId,omitempty"`
	CheckoutRequestID *string `json:"checkoutRequestId,omitempty"`

	ResultCode           *int           `json:"resultCode,omitempty"`
	ResultDesc           *string        `json:"resultDesc,omitempty"`
	MpesaReceiptNumber   *string        `json:"mpesaReceiptNumber,omitempty"`
	MpesaTransactionDate *time.Time     `json:"mpesaTransactionDate,omitempty"`
	FailureReason        *FailureReason `json:"failureReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate enforces the creation invariants. PhoneNumber must already be
// normalised.
func (t *Transaction) Validate() error {
	return validate.Collect(
		validate.Required("listingId", t.ListingID),
		validate.Required("buyerId", t.BuyerID),
		validate.Required("sellerId", t.SellerID),
		validate.MinInt("amount", t.Amount, 1),
		validate.Check(t.PaymentMethod.Valid(), "paymentMethod", "must be one of mpesa, cash, bank_transfer"),
		validate.Check(msisdn.Valid(t.PhoneNumber), "phoneNumber", "must be a Kenyan mobile number in 2547XXXXXXXX form"),
	)
}

// InvolvesUser is true for the buyer and the seller.
func (t *Transaction) InvolvesUser(userID string) bool {
	return userID != "" && (t.BuyerID == userID || t.SellerID == userID)
}

// Settlement carries the result fields written together with a terminal
// status. Nil fields leave the stored value unchanged.
type Settlement struct {
	ResultCode           *int
	ResultDesc           *string
	MpesaReceiptNumber   *string
	MpesaTransactionDate *time.Time
	FailureReason        *FailureReason
}

// Apply copies the settlement onto t. Used by the in-memory store and tests.
func (s Settlement) Apply(t *Transaction) {
	if s.ResultCode != nil {
		t.ResultCode = s.ResultCode
	}
	if s.ResultDesc != nil {
		t.ResultDesc = s.ResultDesc
	}
	if s.MpesaReceiptNumber != nil {
		t.MpesaReceiptNumber = s.MpesaReceiptNumber
	}
	if s.MpesaTransactionDate != nil {
		t.MpesaTransactionDate = s.MpesaTransactionDate
	}
	if s.FailureReason != nil {
		t.FailureReason = s.FailureReason
	}
}
