package services

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/mpesa"
	"github.com/herderhub/herderhub-api/internal/repository/memory"
)

// initiate runs a successful push for listing-0001 and returns the tx id.
func (f *fixture) initiate(t *testing.T, phone, merchantID, checkoutID string) string {
	t.Helper()
	f.gw.push = acceptWith(merchantID, checkoutID)
	res, err := f.payments.Initiate(context.Background(), buyer, InitiateRequest{ListingID: "listing-0001", PhoneNumber: phone})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	return res.TransactionID
}

func TestCallbackSuccessCompletesAndSellsListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.initiate(t, "0712345678", "M1", "C1")

	out, err := f.rec.HandleCallback(ctx, callbackBody("M1", "C1", 0, "QAZ123", "254712345678", 4502))
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if out.Matched != MatchMerchantRequestID || !out.Applied || out.Status != models.TxnCompleted {
		t.Errorf("outcome = %+v", out)
	}

	tx := f.get(t, id)
	if tx.Status != models.TxnCompleted || tx.MpesaReceiptNumber == nil || *tx.MpesaReceiptNumber != "QAZ123" {
		t.Errorf("tx = %+v", tx)
	}
	if tx.ResultCode == nil || *tx.ResultCode != 0 || tx.MpesaTransactionDate == nil {
		t.Errorf("result fields = %v / %v", tx.ResultCode, tx.MpesaTransactionDate)
	}
	l, _ := f.listings.GetByID(ctx, "listing-0001")
	if l.Status != models.ListingSold {
		t.Errorf("listing status = %q, want sold", l.Status)
	}
}

func TestRepeatedCallbacksSettleOnce(t *testing.T) {
	for _, code := range []int{0, 1, 1032, 2001} {
		for n := 1; n <= 4; n++ {
			f := newFixture(t)
			ctx := context.Background()
			id := f.initiate(t, "0712345678", "M1", "C1")
			body := callbackBody("M1", "C1", code, "QAZ123", "254712345678", 4502)

			applied := 0
			var first models.Transaction
			for i := 0; i < n; i++ {
				out, err := f.rec.HandleCallback(ctx, body)
				if err != nil {
					t.Fatalf("code %d delivery %d: %v", code, i, err)
				}
				if out.Applied {
					applied++
				}
				if i == 0 {
					first = f.get(t, id)
				}
			}
			if applied != 1 {
				t.Errorf("code %d, %d deliveries: applied %d times", code, n, applied)
			}
			if last := f.get(t, id); !reflect.DeepEqual(first, last) {
				t.Errorf("code %d, %d deliveries: record changed after first\nfirst=%+v\nlast=%+v", code, n, first, last)
			}
		}
	}
}

func TestCallbackFallsBackToPhoneAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// The push timed out on our side, so no ids were ever attached.
	tx, err := f.txs.Create(ctx, models.Transaction{
		ListingID: "listing-0001", BuyerID: buyer.UserID, SellerID: seller.UserID,
		Amount: 4502, PaymentMethod: models.MethodMpesa, PhoneNumber: "254712345678",
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := f.rec.HandleCallback(ctx, callbackBody("M9", "C9", 1032, "", "254712345678", 4502))
	if err != nil {
		t.Fatal(err)
	}
	if out.Matched != MatchPhoneAmount || out.Status != models.TxnFailed {
		t.Fatalf("outcome = %+v", out)
	}
	got := f.get(t, tx.ID)
	if got.Status != models.TxnFailed || *got.ResultCode != 1032 || *got.FailureReason != models.ReasonCancelledByUser {
		t.Errorf("tx = %+v", got)
	}
	if got.MerchantRequestID == nil || *got.MerchantRequestID != "M9" || *got.CheckoutRequestID != "C9" {
		t.Errorf("ids not attached retroactively: %+v", got)
	}
}

func TestCallbackFractionalAmountDoesNotFallBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, err := f.txs.Create(ctx, models.Transaction{
		ListingID: "listing-0001", BuyerID: buyer.UserID, SellerID: seller.UserID,
		Amount: 4502, PaymentMethod: models.MethodMpesa, PhoneNumber: "254712345678",
	})
	if err != nil {
		t.Fatal(err)
	}

	body := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"M9","CheckoutRequestID":"C9","ResultCode":0,"ResultDesc":"ok",` +
		`"CallbackMetadata":{"Item":[{"Name":"Amount","Value":4501.6},{"Name":"MpesaReceiptNumber","Value":"R1"},{"Name":"PhoneNumber","Value":254712345678}]}}}}`)
	out, err := f.rec.HandleCallback(ctx, body)
	if err != nil {
		t.Fatal(err)
	}
	if out.Matched != "" {
		t.Fatalf("outcome = %+v, want unmatched", out)
	}
	if got := f.get(t, tx.ID); got.Status != models.TxnPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}

func TestCallbackPrefersCorrelationIDsOverPhoneAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.initiate(t, "0712345678", "M1", "C1")
	b, err := f.txs.Create(ctx, models.Transaction{
		ListingID: "listing-0001", BuyerID: "buyer-2", SellerID: seller.UserID,
		Amount: 4502, PaymentMethod: models.MethodMpesa, PhoneNumber: "254712345678",
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := f.rec.HandleCallback(ctx, callbackBody("M1", "C1", 0, "QAZ123", "254712345678", 4502))
	if err != nil {
		t.Fatal(err)
	}
	if out.TransactionID != a || out.Matched != MatchMerchantRequestID {
		t.Errorf("outcome = %+v, want transaction %s", out, a)
	}
	if got := f.get(t, b.ID); got.Status != models.TxnPending {
		t.Errorf("bystander transaction changed to %q", got.Status)
	}
}

func TestCallbackMatchesByCheckoutID(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, "0712345678", "M1", "C1")
	out, err := f.rec.HandleCallback(context.Background(), callbackBody("", "C1", 2001, "", "", 0))
	if err != nil {
		t.Fatal(err)
	}
	if out.Matched != MatchCheckoutRequestID || out.TransactionID != id {
		t.Errorf("outcome = %+v", out)
	}
	if got := f.get(t, id); *got.FailureReason != models.ReasonDeclined {
		t.Errorf("reason = %v", *got.FailureReason)
	}
}

func TestCallbackUnmatchedIsRecorded(t *testing.T) {
	f := newFixture(t)
	out, err := f.rec.HandleCallback(context.Background(), callbackBody("MX", "CX", 0, "QAZ123", "254700000000", 10))
	if err != nil {
		t.Fatal(err)
	}
	if out.Matched != "" {
		t.Errorf("outcome = %+v", out)
	}
	if !slices.Contains(f.auditActions(), "reconciliation_mismatch") {
		t.Errorf("audit = %v", f.auditActions())
	}
}

func TestCallbackAmbiguousFallbackFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, b := range []string{"buyer-2", "buyer-3"} {
		if _, err := f.txs.Create(ctx, models.Transaction{
			ListingID: "listing-0001", BuyerID: b, SellerID: seller.UserID,
			Amount: 4502, PaymentMethod: models.MethodMpesa, PhoneNumber: "254712345678",
		}); err != nil {
			t.Fatal(err)
		}
	}
	out, err := f.rec.HandleCallback(ctx, callbackBody("MX", "CX", 0, "QAZ123", "254712345678", 4502))
	if err != nil || out.Matched != "" {
		t.Fatalf("outcome = %+v, err = %v; want no match", out, err)
	}
	all, _ := f.txs.List(ctx, 0, 0)
	for _, tx := range all {
		if tx.Status != models.TxnPending {
			t.Errorf("%s settled by an ambiguous callback", tx.ID)
		}
	}
}

func TestCallbackFallbackIgnoresStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.txs.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })
	if _, err := f.txs.Create(ctx, models.Transaction{
		ListingID: "listing-0001", BuyerID: buyer.UserID, SellerID: seller.UserID,
		Amount: 4502, PaymentMethod: models.MethodMpesa, PhoneNumber: "254712345678",
	}); err != nil {
		t.Fatal(err)
	}
	out, _ := f.rec.HandleCallback(ctx, callbackBody("MX", "CX", 0, "Q", "254712345678", 4502))
	if out.Matched != "" {
		t.Errorf("matched a record outside the fallback window: %+v", out)
	}
}

func TestMalformedCallback(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{"", "{", `{"Body":{}}`, `[1,2,3]`} {
		if _, err := f.rec.HandleCallback(context.Background(), []byte(body)); !errors.Is(err, mpesa.ErrMalformedCallback) {
			t.Errorf("body %q: err = %v", body, err)
		}
	}
}

type failingListings struct{ *memory.Listings }

func (failingListings) MarkSold(context.Context, string) error { return errors.New("listing store down") }

func TestListingFailureDoesNotFailCallback(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, "0712345678", "M1", "C1")
	rec := NewReconciler(f.txs, failingListings{f.listings}, NewAuditor(f.audit, nil, discard()), 15*time.Minute, discard())

	out, err := rec.HandleCallback(context.Background(), callbackBody("M1", "C1", 0, "QAZ123", "254712345678", 4502))
	if err != nil || !out.Applied {
		t.Fatalf("outcome = %+v, err = %v", out, err)
	}
	if f.get(t, id).Status != models.TxnCompleted {
		t.Error("transaction not completed")
	}
}

func TestLateSuccessAfterTimeoutKeepsFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.initiate(t, "0712345678", "M1", "C1")
	reason := models.ReasonClientTimeout
	if _, err := f.txs.UpdateStatus(ctx, id, models.TxnFailed, models.Settlement{FailureReason: &reason}); err != nil {
		t.Fatal(err)
	}

	out, err := f.rec.HandleCallback(ctx, callbackBody("M1", "C1", 0, "QAZ123", "254712345678", 4502))
	if err != nil {
		t.Fatal(err)
	}
	if out.Applied || out.Status != models.TxnFailed {
		t.Errorf("outcome = %+v", out)
	}
	if got := f.get(t, id); got.MpesaReceiptNumber != nil {
		t.Errorf("receipt written onto a failed transaction")
	}
	if !slices.Contains(f.auditActions(), "settlement_conflict") {
		t.Errorf("audit = %v", f.auditActions())
	}
}
