package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/services"
)

func TestStatusAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/v1/mpesa/transaction-status/ws_CO_1":
			_ = json.NewEncoder(w).Encode(models.PaymentStatus{Status: models.DisplayCompleted, MpesaReceiptNumber: "QWE"})
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"transaction not found","code":"not_found"}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "tok")
	st, err := c.Status(context.Background(), "ws_CO_1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != models.DisplayCompleted || st.MpesaReceiptNumber != "QWE" {
		t.Errorf("status = %+v", st)
	}

	_, err = c.Status(context.Background(), "missing")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Code != "not_found" || apiErr.Message != "transaction not found" {
		t.Errorf("err = %#v", err)
	}

	_, err = New(srv.URL, "").Status(context.Background(), "ws_CO_1")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("unauthenticated err = %v", err)
	}
}

func TestReportTimeoutSendsPatch(t *testing.T) {
	var got services.Patch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/v1/transactions/tx-1" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(models.Transaction{ID: "tx-1", Status: models.TxnFailed})
	}))
	defer srv.Close()

	tx, err := New(srv.URL, "tok").ReportTimeout(context.Background(), "tx-1")
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != models.TxnFailed {
		t.Errorf("tx = %+v", tx)
	}
	if got.Status == nil || *got.Status != models.TxnFailed ||
		got.FailureReason == nil || *got.FailureReason != models.ReasonClientTimeout || got.ResultDesc == nil {
		t.Errorf("patch = %+v", got)
	}
}

func TestInitiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req services.InitiateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ListingID != "l-1" || req.PhoneNumber != "0712345678" {
			t.Errorf("req = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(services.InitiateResult{TransactionID: "tx-1", CheckoutRequestID: "C-1"})
	}))
	defer srv.Close()

	res, err := New(srv.URL, "tok").Initiate(context.Background(), services.InitiateRequest{ListingID: "l-1", PhoneNumber: "0712345678"})
	if err != nil || res.CheckoutRequestID != "C-1" {
		t.Errorf("Initiate = %+v, %v", res, err)
	}
}
