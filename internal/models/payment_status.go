package models

// Status values as reported by the transaction-status endpoint.
const (
	DisplayPending   = "Pending"
	DisplayCompleted = "Completed"
	DisplayFailed    = "Failed"
	DisplayCancelled = "Cancelled"
)

func (s TransactionStatus) Display() string {
	switch s {
	case TxnCompleted:
		return DisplayCompleted
	case TxnFailed:
		return DisplayFailed
	case TxnCancelled:
		return DisplayCancelled
	}
	return DisplayPending
}

// PaymentStatus is the poller-facing view of a transaction.
type PaymentStatus struct {
	TransactionID      string `json:"transactionId"`
	Status             string `json:"status"`
	MpesaReceiptNumber string `json:"mpesaReceiptNumber,omitempty"`
	Amount             int64  `json:"amount"`
	PhoneNumber        string `json:"phoneNumber"`
	FailureReason      string `json:"failureReason,omitempty"`
}

func NewPaymentStatus(t Transaction) PaymentStatus {
	ps := PaymentStatus{
		TransactionID: t.ID,
		Status:        t.Status.Display(),
		Amount:        t.Amount,
		PhoneNumber:   t.PhoneNumber,
	}
	if t.MpesaReceiptNumber != nil {
		ps.MpesaReceiptNumber = *t.MpesaReceiptNumber
	}
	if t.FailureReason != nil {
		ps.FailureReason = t.FailureReason.Message()
	} else if t.Status == TxnFailed || t.Status == TxnCancelled {
		ps.FailureReason = ReasonGatewayError.Message()
	}
	return ps
}
