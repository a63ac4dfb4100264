package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/mpesa"
	"github.com/herderhub/herderhub-api/internal/repository/memory"
)

type fakeGateway struct {
	calls int
	push  func(ctx context.Context, req mpesa.PushRequest) (mpesa.PushResponse, error)
}

func (f *fakeGateway) InitiatePush(ctx context.Context, req mpesa.PushRequest) (mpesa.PushResponse, error) {
	f.calls++
	if f.push == nil {
		return mpesa.PushResponse{}, fmt.Errorf("unexpected push")
	}
	return f.push(ctx, req)
}

func acceptWith(merchantID, checkoutID string) func(context.Context, mpesa.PushRequest) (mpesa.PushResponse, error) {
	return func(context.Context, mpesa.PushRequest) (mpesa.PushResponse, error) {
		return mpesa.PushResponse{
			MerchantRequestID: merchantID,
			CheckoutRequestID: checkoutID,
			ResponseCode:      "0",
			CustomerMessage:   "Success. Request accepted for processing",
		}, nil
	}
}

type fixture struct {
	txs      *memory.Transactions
	listings *memory.Listings
	audit    *memory.AuditLogs
	gw       *fakeGateway

	payments *PaymentService
	rec      *Reconciler
	trx      *TransactionService
}

var (
	buyer  = Actor{UserID: "buyer-1", Role: "user"}
	seller = Actor{UserID: "seller-1", Role: "user"}
	admin  = Actor{UserID: "admin-1", Role: RoleAdmin}
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		txs:      memory.NewTransactions(),
		listings: memory.NewListings(),
		audit:    memory.NewAuditLogs(),
		gw:       &fakeGateway{},
	}
	f.listings.Seed(models.Listing{
		ID:         "listing-0001",
		SellerID:   seller.UserID,
		AnimalType: "cow",
		Breed:      "Friesian",
		Price:      4500,
	})
	a := NewAuditor(f.audit, nil, discard())
	f.payments = NewPaymentService(f.txs, f.listings, f.gw, a, 2, discard())
	f.rec = NewReconciler(f.txs, f.listings, a, 15*time.Minute, discard())
	f.trx = NewTransactionService(f.txs, f.listings, a, discard())
	return f
}

func (f *fixture) auditActions() []string {
	var out []string
	for _, e := range f.audit.Entries() {
		out = append(out, e.Action)
	}
	return out
}

func (f *fixture) get(t *testing.T, id string) models.Transaction {
	t.Helper()
	tx, err := f.txs.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	return tx
}

// callbackBody builds an stkCallback payload. Metadata is included only when
// phone is non-empty.
func callbackBody(merchantID, checkoutID string, code int, receipt, phone string, amount int64) []byte {
	meta := ""
	if phone != "" {
		items := []string{fmt.Sprintf(`{"Name":"Amount","Value":%d}`, amount)}
		if receipt != "" {
			items = append(items, fmt.Sprintf(`{"Name":"MpesaReceiptNumber","Value":"%s"}`, receipt))
		}
		items = append(items,
			`{"Name":"TransactionDate","Value":20240301123015}`,
			fmt.Sprintf(`{"Name":"PhoneNumber","Value":%s}`, phone),
		)
		meta = fmt.Sprintf(`,"CallbackMetadata":{"Item":[%s]}`, strings.Join(items, ","))
	}
	return []byte(fmt.Sprintf(
		`{"Body":{"stkCallback":{"MerchantRequestID":%q,"CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":"desc %d"%s}}}`,
		merchantID, checkoutID, code, code, meta,
	))
}
