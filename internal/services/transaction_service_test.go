package services

import (
	"context"
	"testing"

	"github.com/herderhub/herderhub-api/internal/apperr"
	"github.com/herderhub/herderhub-api/internal/models"
)

func statusPtr(s models.TransactionStatus) *models.TransactionStatus { return &s }
func reasonPtr(r models.FailureReason) *models.FailureReason        { return &r }

func TestCreateTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.trx.Create(ctx, buyer, CreateTransactionRequest{
		ListingID:     "listing-0001",
		Amount:        4502,
		PhoneNumber:   "+254 712 345 678",
		PaymentMethod: models.MethodBankTransfer,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tx.SellerID != seller.UserID || tx.PhoneNumber != "254712345678" || tx.Status != models.TxnPending {
		t.Errorf("tx = %+v", tx)
	}

	tests := []struct {
		name string
		req  CreateTransactionRequest
		kind apperr.Kind
	}{
		{"zero amount", CreateTransactionRequest{ListingID: "listing-0001", PhoneNumber: "0712345678", PaymentMethod: models.MethodCash}, apperr.Invalid},
		{"bad method", CreateTransactionRequest{ListingID: "listing-0001", Amount: 1, PhoneNumber: "0712345678", PaymentMethod: "cheque"}, apperr.Invalid},
		{"bad phone", CreateTransactionRequest{ListingID: "listing-0001", Amount: 1, PhoneNumber: "0202345678", PaymentMethod: models.MethodCash}, apperr.Invalid},
		{"no listing", CreateTransactionRequest{ListingID: "x", Amount: 1, PhoneNumber: "0712345678", PaymentMethod: models.MethodCash}, apperr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.trx.Create(ctx, buyer, tt.req); !apperr.Is(err, tt.kind) {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestGetAndListAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.initiate(t, "0712345678", "M1", "C1")

	if _, err := f.trx.Get(ctx, seller, id); err != nil {
		t.Errorf("seller: %v", err)
	}
	if _, err := f.trx.Get(ctx, Actor{UserID: "stranger"}, id); !apperr.Is(err, apperr.Forbidden) {
		t.Errorf("stranger err = %v", err)
	}
	if _, err := f.trx.Get(ctx, buyer, "missing"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("missing err = %v", err)
	}

	mine, _ := f.trx.ListForUser(ctx, buyer, 0, 0)
	none, _ := f.trx.ListForUser(ctx, Actor{UserID: "stranger"}, 0, 0)
	all, _ := f.trx.ListAll(ctx, 0, 0)
	if len(mine) != 1 || len(all) != 1 {
		t.Errorf("mine = %d, all = %d", len(mine), len(all))
	}
	if none == nil || len(none) != 0 {
		t.Errorf("empty list should be non-nil and empty, got %#v", none)
	}
}

func TestPatchClientTimeoutThenNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.initiate(t, "0712345678", "M1", "C1")

	got, err := f.trx.Update(ctx, buyer, id, Patch{
		Status:        statusPtr(models.TxnFailed),
		FailureReason: reasonPtr(models.ReasonClientTimeout),
		ResultDesc:    strPtr("no confirmation within 90s"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.TxnFailed || *got.FailureReason != models.ReasonClientTimeout {
		t.Errorf("after patch = %+v", got)
	}

	again, err := f.trx.Update(ctx, buyer, id, Patch{Status: statusPtr(models.TxnCancelled)})
	if err != nil {
		t.Fatalf("second patch should be a no-op, got %v", err)
	}
	if again.Status != models.TxnFailed {
		t.Errorf("terminal status changed to %q", again.Status)
	}
}

func TestPatchValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.initiate(t, "0712345678", "M1", "C1")

	tests := []struct {
		name  string
		actor Actor
		patch Patch
		kind  apperr.Kind
	}{
		{"pending target", buyer, Patch{Status: statusPtr(models.TxnPending)}, apperr.Invalid},
		{"unknown status", buyer, Patch{Status: statusPtr("refunded")}, apperr.Invalid},
		{"buyer completes", buyer, Patch{Status: statusPtr(models.TxnCompleted)}, apperr.Invalid},
		{"result without status", buyer, Patch{MpesaReceiptNumber: strPtr("X")}, apperr.Invalid},
		{"half a pair of ids", buyer, Patch{MerchantRequestID: strPtr("M2")}, apperr.Invalid},
		{"different ids", buyer, Patch{MerchantRequestID: strPtr("M2"), CheckoutRequestID: strPtr("C2")}, apperr.Conflict},
		{"bad reason", buyer, Patch{Status: statusPtr(models.TxnFailed), FailureReason: reasonPtr("bored")}, apperr.Invalid},
		{"stranger", Actor{UserID: "x"}, Patch{Status: statusPtr(models.TxnFailed)}, apperr.Forbidden},
		{"receipt on failed", buyer, Patch{Status: statusPtr(models.TxnFailed), MpesaReceiptNumber: strPtr("FAKE999"), ResultCode: intPtr(0)}, apperr.Invalid},
		{"receipt on cancelled", seller, Patch{Status: statusPtr(models.TxnCancelled), MpesaReceiptNumber: strPtr("FAKE999")}, apperr.Invalid},
		{"buyer sets result code", buyer, Patch{Status: statusPtr(models.TxnFailed), ResultCode: intPtr(1)}, apperr.Invalid},
		{"admin success code on failed", admin, Patch{Status: statusPtr(models.TxnFailed), ResultCode: intPtr(0)}, apperr.Invalid},
		{"admin completes with error code", admin, Patch{Status: statusPtr(models.TxnCompleted), ResultCode: intPtr(2001)}, apperr.Invalid},
		{"admin completes with failure reason", admin, Patch{Status: statusPtr(models.TxnCompleted), FailureReason: reasonPtr(models.ReasonDeclined)}, apperr.Invalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.trx.Update(ctx, tt.actor, id, tt.patch); !apperr.Is(err, tt.kind) {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}
	if got := f.get(t, id); got.Status != models.TxnPending {
		t.Errorf("rejected patches changed status to %q", got.Status)
	}
}

func TestPatchAttachesIDsAndAdminCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, err := f.trx.Create(ctx, buyer, CreateTransactionRequest{
		ListingID: "listing-0001", Amount: 4502, PhoneNumber: "0712345678", PaymentMethod: models.MethodMpesa,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.trx.Update(ctx, buyer, tx.ID, Patch{MerchantRequestID: strPtr("M5"), CheckoutRequestID: strPtr("C5")})
	if err != nil || got.CheckoutRequestID == nil || *got.CheckoutRequestID != "C5" {
		t.Fatalf("attach = %+v, %v", got, err)
	}
	got, err = f.trx.Update(ctx, admin, tx.ID, Patch{
		Status:             statusPtr(models.TxnCompleted),
		MpesaReceiptNumber: strPtr("MAN123"),
		ResultCode:         intPtr(0),
	})
	if err != nil || got.Status != models.TxnCompleted || *got.MpesaReceiptNumber != "MAN123" {
		t.Errorf("admin complete = %+v, %v", got, err)
	}
}

func TestPatchFailedWithDescriptionKeepsNoReceipt(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, "0712345678", "M1", "C1")
	got, err := f.trx.Update(context.Background(), buyer, id, Patch{
		Status:        statusPtr(models.TxnFailed),
		ResultDesc:    strPtr("gave up"),
		FailureReason: reasonPtr(models.ReasonClientTimeout),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.TxnFailed || got.MpesaReceiptNumber != nil || got.ResultCode != nil {
		t.Errorf("patched = %+v", got)
	}
}

func TestPatchCannotAttachIDsToSettledTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, err := f.trx.Create(ctx, buyer, CreateTransactionRequest{
		ListingID: "listing-0001", Amount: 4502, PhoneNumber: "0712345678", PaymentMethod: models.MethodMpesa,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.trx.Update(ctx, buyer, tx.ID, Patch{Status: statusPtr(models.TxnCancelled)}); err != nil {
		t.Fatal(err)
	}

	_, err = f.trx.Update(ctx, buyer, tx.ID, Patch{MerchantRequestID: strPtr("M9"), CheckoutRequestID: strPtr("C9")})
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if got := f.get(t, tx.ID); got.MerchantRequestID != nil || got.CheckoutRequestID != nil {
		t.Errorf("ids attached to settled record: %+v", got)
	}
	if _, err := f.txs.FindByCheckoutRequestID(ctx, "C9"); err == nil {
		t.Error("checkout id indexed for settled record")
	}
}

func TestPatchReattachSameIDsOnSettledTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.initiate(t, "0712345678", "M1", "C1")
	if _, err := f.trx.Update(ctx, buyer, id, Patch{Status: statusPtr(models.TxnFailed)}); err != nil {
		t.Fatal(err)
	}
	got, err := f.trx.Update(ctx, buyer, id, Patch{MerchantRequestID: strPtr("M1"), CheckoutRequestID: strPtr("C1")})
	if err != nil || got.Status != models.TxnFailed {
		t.Errorf("same-pair reattach = %+v, %v", got, err)
	}
}
