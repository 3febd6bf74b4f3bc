// Package handler wires the workflow HTTP surface to the workflow service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"peopleflow/internal/authz"
	"peopleflow/internal/workflow/models"
	"peopleflow/internal/workflow/service"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/httputil"
	"peopleflow/pkg/requestcontext"
)

// Service defines the workflow operations the HTTP surface needs.
type Service interface {
	Create(ctx context.Context, caller authz.Caller, req service.CreateRequest) (*models.WorkflowInstance, error)
	Activate(ctx context.Context, caller authz.Caller, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error)
	Complete(ctx context.Context, caller authz.Caller, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error)
	Cancel(ctx context.Context, caller authz.Caller, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error)
	Get(ctx context.Context, caller authz.Caller, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error)
	List(ctx context.Context, caller authz.Caller, tenantID id.TenantID) ([]*models.WorkflowInstance, error)
}

// Handler wires workflow endpoints to the workflow service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a workflow handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts workflow endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/workflows", h.HandleCreate)
	r.Get("/workflows", h.HandleList)
	r.Get("/workflows/{workflowID}", h.HandleGet)
	r.Post("/workflows/{workflowID}/activate", h.HandleActivate)
	r.Post("/workflows/{workflowID}/complete", h.HandleComplete)
	r.Post("/workflows/{workflowID}/cancel", h.HandleCancel)
}

type createRequest struct {
	Kind      string `json:"kind"`
	SubjectID string `json:"subject_id"`
}

// HandleCreate handles POST /workflows.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	kind, err := models.ParseWorkflowKind(req.Kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subjectID, err := id.ParseEmployeeID(req.SubjectID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid subject id"))
		return
	}

	workflow, err := h.service.Create(ctx, caller, service.CreateRequest{
		TenantID:  tenantID,
		Kind:      kind,
		SubjectID: subjectID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, workflow)
}

// HandleActivate handles POST /workflows/{workflowID}/activate. Insufficient
// credit blocks the transition with an actionable 402, never a half-active
// workflow.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.Activate)
}

// HandleComplete handles POST /workflows/{workflowID}/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.Complete)
}

// HandleCancel handles POST /workflows/{workflowID}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.Cancel)
}

func (h *Handler) handleTransition(
	w http.ResponseWriter, r *http.Request,
	op func(context.Context, authz.Caller, id.TenantID, id.WorkflowID) (*models.WorkflowInstance, error),
) {
	ctx := r.Context()
	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}
	workflowID, err := id.ParseWorkflowID(chi.URLParam(r, "workflowID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid workflow id"))
		return
	}

	workflow, err := op(ctx, caller, tenantID, workflowID)
	if err != nil {
		h.logger.InfoContext(ctx, "workflow transition rejected",
			"request_id", requestcontext.RequestID(ctx),
			"workflow_id", workflowID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, workflow)
}

// HandleGet handles GET /workflows/{workflowID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}
	workflowID, err := id.ParseWorkflowID(chi.URLParam(r, "workflowID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid workflow id"))
		return
	}

	workflow, err := h.service.Get(r.Context(), caller, tenantID, workflowID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, workflow)
}

// HandleList handles GET /workflows.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, tenantID, ok := h.callerAndTenant(w, r)
	if !ok {
		return
	}
	workflows, err := h.service.List(r.Context(), caller, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
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
