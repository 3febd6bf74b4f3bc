// Package handler wires the credit ledger HTTP surface. Write access to the
// ledger exists only through purchase, reserve, and release; consumption
// happens exclusively inside workflow activation.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"peopleflow/internal/authz"
	"peopleflow/internal/credit/models"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/httputil"
	"peopleflow/pkg/requestcontext"
)

// Service defines the ledger operations the HTTP surface needs.
type Service interface {
	Purchase(ctx context.Context, caller authz.Caller, tenantID id.TenantID, qty int) (*models.Transaction, *models.Balance, error)
	Reserve(ctx context.Context, caller authz.Caller, tenantID id.TenantID, qty int) (*models.Balance, error)
	Release(ctx context.Context, caller authz.Caller, tenantID id.TenantID, qty int) (*models.Balance, error)
	Balance(ctx context.Context, caller authz.Caller, tenantID id.TenantID) (*models.Balance, error)
	ListTransactions(ctx context.Context, caller authz.Caller, tenantID id.TenantID) ([]*models.Transaction, error)
}

// Handler wires credit endpoints to the credit service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a credit handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts credit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/credits", h.HandleBalance)
	r.Get("/credits/transactions", h.HandleListTransactions)
	r.Post("/credits/purchase", h.HandlePurchase)
	r.Post("/credits/reserve", h.HandleReserve)
	r.Post("/credits/release", h.HandleRelease)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// balanceResponse exposes the derived values read-only.
type balanceResponse struct {
	Purchased int `json:"purchased"`
	Used      int `json:"used"`
	Reserved  int `json:"reserved"`
	Available int `json:"available"`
	Current   int `json:"current"`
}

func fromBalance(b *models.Balance) balanceResponse {
	return balanceResponse{
		Purchased: b.Purchased,
		Used:      b.Used,
		Reserved:  b.Reserved,
		Available: b.Available(),
		Current:   b.Current(),
	}
}

// HandleBalance handles GET /credits.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}
	balance, err := h.service.Balance(r.Context(), caller, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromBalance(balance))
}

// HandleListTransactions handles GET /credits/transactions.
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}
	entries, err := h.service.ListTransactions(r.Context(), caller, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

// HandlePurchase handles POST /credits/purchase.
func (h *Handler) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	tx, balance, err := h.service.Purchase(ctx, caller, tenantID, req.Quantity)
	if err != nil {
		h.logger.WarnContext(ctx, "credit purchase failed",
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", tenantID,
			"quantity", req.Quantity,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"transaction": tx,
		"balance":     fromBalance(balance),
	})
}

// HandleReserve handles POST /credits/reserve.
func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Reserve)
}

// HandleRelease handles POST /credits/release.
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Release)
}

func (h *Handler) handleReservation(
	w http.ResponseWriter, r *http.Request,
	op func(context.Context, authz.Caller, id.TenantID, int) (*models.Balance, error),
) {
	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	balance, err := op(r.Context(), caller, tenantID, req.Quantity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromBalance(balance))
}

func (h *Handler) callerAndTenant(w http.ResponseWriter, r *http.Request) (authz.Caller, id.TenantID, bool) {
	caller, err := authz.ResolveCaller(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return authz.Caller{}, id.TenantID{}, false
	}
	if !caller.IsOperator() {
		return caller, caller.TenantID, true
	}
	tenantID, err := id.ParseTenantID(r.URL.Query().Get("tenant_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "tenant_id query parameter is required"))
		return authz.Caller{}, id.TenantID{}, false
	}
	return caller, tenantID, true
}
