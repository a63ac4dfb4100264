package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/herderhub/herderhub-api/internal/api/httpx"
	"github.com/herderhub/herderhub-api/internal/services"
)

type TransactionHandler struct {
	Svc *services.TransactionService
}

func NewTransactionHandler(s *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{Svc: s}
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	tx, err := h.Svc.Create(r.Context(), actor(r), req)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, tx)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Svc.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tx)
}

// ListMine returns transactions where the caller is buyer or seller.
func (h *TransactionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	txs, err := h.Svc.ListForUser(r.Context(), actor(r), limit, offset)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txs)
}

// ListAll is mounted behind RequireRole(admin).
func (h *TransactionHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	txs, err := h.Svc.ListAll(r.Context(), limit, offset)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txs)
}

func (h *TransactionHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var p services.Patch
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	tx, err := h.Svc.Update(r.Context(), actor(r), chi.URLParam(r, "id"), p)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tx)
}
