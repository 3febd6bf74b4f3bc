// Package handler wires the invitation HTTP surface to the invitation
// service. Redemption is the only unauthenticated route; everything else
// requires a resolved caller in context.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"peopleflow/internal/authz"
	"peopleflow/internal/invitation/models"
	"peopleflow/internal/invitation/service"
	"peopleflow/internal/invitation/token"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/httputil"
	"peopleflow/pkg/requestcontext"
)

// Service defines the invitation operations the HTTP surface needs.
type Service interface {
	Invite(ctx context.Context, caller authz.Caller, req service.InviteRequest) (*models.InvitationRecord, error)
	Redeem(ctx context.Context, signed string) (*token.Claims, error)
	DecodeIdentity(ctx context.Context, caller authz.Caller, tenantID id.TenantID, invitationID id.InvitationID) (*token.Claims, error)
	Revoke(ctx context.Context, caller authz.Caller, tenantID id.TenantID, invitationID id.InvitationID) (*models.InvitationRecord, error)
	Lookup(ctx context.Context, caller authz.Caller, tenantID id.TenantID, identity string) (*service.LookupResult, error)
	List(ctx context.Context, caller authz.Caller, tenantID id.TenantID) ([]*models.InvitationRecord, error)
}

// Handler wires invitation endpoints to the invitation service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an invitation handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the authenticated invitation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/invitations", h.HandleInvite)
	r.Get("/invitations", h.HandleList)
	r.Get("/invitations/lookup", h.HandleLookup)
	r.Delete("/invitations/{invitationID}", h.HandleRevoke)
	r.Post("/invitations/{invitationID}/identity", h.HandleDecodeIdentity)
}

// RegisterPublic mounts the redeem route. It must stay outside any auth
// middleware: the token is the credential.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/invitations/redeem", h.HandleRedeem)
}

// HandleInvite handles POST /invitations.
func (h *Handler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	domainReq, err := req.toDomain(tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.Invite(ctx, caller, domainReq)
	if err != nil {
		h.logger.WarnContext(ctx, "invitation issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", tenantID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, record)
}

// HandleRedeem handles POST /invitations/redeem. The bearer of a valid token
// needs no session; the token is verified end to end and the identity inside
// it is returned exactly once.
func (h *Handler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req redeemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "token is required"))
		return
	}

	claims, err := h.service.Redeem(ctx, req.Token)
	if err != nil {
		// Token failures are expected traffic, not server faults.
		h.logger.InfoContext(ctx, "redemption rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromClaims(claims))
}

// HandleRevoke handles DELETE /invitations/{invitationID}.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}
	invitationID, err := id.ParseInvitationID(chi.URLParam(r, "invitationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid invitation id"))
		return
	}

	record, err := h.service.Revoke(ctx, caller, tenantID, invitationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleDecodeIdentity handles POST /invitations/{invitationID}/identity,
// the audited staff surface for reading identity out of a stored token.
func (h *Handler) HandleDecodeIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}
	invitationID, err := id.ParseInvitationID(chi.URLParam(r, "invitationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid invitation id"))
		return
	}

	claims, err := h.service.DecodeIdentity(ctx, caller, tenantID, invitationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromClaims(claims))
}

// HandleLookup handles GET /invitations/lookup?email=. Only the derived hash
// ever reaches the store.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}
	identity := r.URL.Query().Get("email")
	if identity == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "email query parameter is required"))
		return
	}

	result, err := h.service.Lookup(ctx, caller, tenantID, identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleList handles GET /invitations.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}

	records, err := h.service.List(ctx, caller, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Invitations: records})
}

// callerAndTenant resolves the authenticated caller and the tenant the
// request operates on. Tenant users are pinned to their bound tenant; an
// operator selects one with the tenant_id query parameter.
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
