package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/herderhub/herderhub-api/internal/api/httpx"
	"github.com/herderhub/herderhub-api/internal/middleware"
	"github.com/herderhub/herderhub-api/internal/mpesa"
	"github.com/herderhub/herderhub-api/internal/services"
)

const maxCallbackBody = 1 << 20

type MpesaHandler struct {
	Payments   *services.PaymentService
	Reconciler *services.Reconciler
	Logger     *slog.Logger
}

func NewMpesaHandler(p *services.PaymentService, rec *services.Reconciler, logger *slog.Logger) *MpesaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MpesaHandler{Payments: p, Reconciler: rec, Logger: logger}
}

func (h *MpesaHandler) STKPush(w http.ResponseWriter, r *http.Request) {
	var req services.InitiateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	res, err := h.Payments.Initiate(r.Context(), actor(r), req)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// Callback is the unauthenticated Daraja webhook. It acknowledges every
// delivery, including ones it could not read or match.
func (h *MpesaHandler) Callback(w http.ResponseWriter, r *http.Request) {
	log := h.Logger.With("request_id", middleware.RequestIDFrom(r.Context()))
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		log.WarnContext(r.Context(), "read mpesa callback", "err", err)
	} else if out, err := h.Reconciler.HandleCallback(r.Context(), body); err != nil && !errors.Is(err, mpesa.ErrMalformedCallback) {
		log.ErrorContext(r.Context(), "mpesa callback not applied", "err", err, "transaction_id", out.TransactionID)
	}
	httpx.WriteJSON(w, http.StatusOK, mpesa.Accepted)
}

func (h *MpesaHandler) TransactionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Payments.Status(r.Context(), actor(r), chi.URLParam(r, "checkoutRequestId"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}
