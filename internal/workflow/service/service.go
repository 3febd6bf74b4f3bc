// Package service drives the workflow state machine. Activation is the only
// transition that touches the credit ledger, and the debit happens before any
// other activation side effect: a credit failure means the workflow is never
// externally visible as active.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"peopleflow/internal/authz"
	creditmodels "peopleflow/internal/credit/models"
	"peopleflow/internal/workflow/models"
	"peopleflow/internal/workflow/store"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/audit"
	"peopleflow/pkg/platform/sentinel"
	"peopleflow/pkg/requestcontext"
)

// Ledger is the credit dependency. Consume is atomic and idempotent per
// workflow; the ledger, not this service, is the authority on "at most one
// debit per workflow".
type Ledger interface {
	Consume(ctx context.Context, tenantID id.TenantID, workflowID id.WorkflowID, subjectID id.EmployeeID) (*creditmodels.Transaction, error)
}

// AuditPublisher records workflow lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the workflow orchestrator.
type Service struct {
	store   store.Store
	ledger  Ledger
	engine  *authz.Engine
	auditor AuditPublisher
	logger  *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher attaches the audit sink.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

// New constructs the workflow service.
func New(store store.Store, ledger Ledger, engine *authz.Engine, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: ledger,
		engine: engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest carries everything needed to open a draft workflow.
type CreateRequest struct {
	TenantID  id.TenantID
	Kind      models.WorkflowKind
	SubjectID id.EmployeeID
}

// Create opens a draft workflow. Drafts are free; nothing is debited until
// activation.
func (s *Service) Create(ctx context.Context, caller authz.Caller, req CreateRequest) (*models.WorkflowInstance, error) {
	if err := s.engine.Require(ctx, caller, authz.OpTransition, authz.TenantResource(req.TenantID)); err != nil {
		return nil, err
	}

	workflow, err := models.NewWorkflowInstance(
		id.NewWorkflowID(), req.TenantID, req.Kind, req.SubjectID, requestcontext.Now(ctx),
	)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, workflow); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist workflow")
	}
	return workflow, nil
}

// Activate performs draft → active. The ledger debit happens before the
// status write, so a workflow can never be active without its credit. A
// retried activation surfaces CodeAlreadyConsumed and never debits twice.
func (s *Service) Activate(ctx context.Context, caller authz.Caller, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error) {
	workflow, err := s.store.FindByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if err := s.engine.Require(ctx, caller, authz.OpActivate, workflow); err != nil {
		return nil, err
	}
	// Cheap precheck before paying for the ledger round trip. The Execute
	// below revalidates under the row lock.
	if err := workflow.CanActivate(); err != nil {
		return nil, err
	}

	tx, err := s.ledger.Consume(ctx, tenantID, workflowID, workflow.SubjectID)
	if err != nil {
		if s.logger != nil && dErrors.HasCode(err, dErrors.CodeInsufficientCredit) {
			s.logger.InfoContext(ctx, "activation blocked by credit balance",
				"workflow_id", workflowID,
				"tenant_id", tenantID,
			)
		}
		return nil, err
	}

	now := requestcontext.Now(ctx)
	workflow, err = s.store.Execute(ctx, tenantID, workflowID,
		func(w *models.WorkflowInstance) error { return w.CanActivate() },
		func(w *models.WorkflowInstance) { w.ApplyActivation(tx.ID, now) },
	)
	if err != nil {
		// The debit is already on the ledger keyed by this workflow; a
		// failed write-back must be loud, not silently retried into a
		// second debit.
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "credit consumed but activation write failed",
				"workflow_id", workflowID,
				"transaction_id", tx.ID,
				"error", err,
			)
		}
		return nil, wrapStoreErr(err)
	}

	s.emit(ctx, audit.EventWorkflowActivated, workflow, caller.UserID.String())
	return workflow, nil
}

// Complete performs active → completed. No ledger interaction.
func (s *Service) Complete(ctx context.Context, caller authz.Caller, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error) {
	return s.transition(ctx, caller, tenantID, workflowID, audit.EventWorkflowCompleted,
		func(w *models.WorkflowInstance) error { return w.CanComplete() },
		(*models.WorkflowInstance).ApplyCompletion,
	)
}

// Cancel performs active → cancelled. The consumed credit stays consumed.
func (s *Service) Cancel(ctx context.Context, caller authz.Caller, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error) {
	return s.transition(ctx, caller, tenantID, workflowID, audit.EventWorkflowCancelled,
		func(w *models.WorkflowInstance) error { return w.CanCancel() },
		(*models.WorkflowInstance).ApplyCancellation,
	)
}

func (s *Service) transition(ctx context.Context, caller authz.Caller, tenantID id.TenantID, workflowID id.WorkflowID,
	action audit.AuditEvent,
	validate func(*models.WorkflowInstance) error,
	apply func(*models.WorkflowInstance, time.Time),
) (*models.WorkflowInstance, error) {
	workflow, err := s.store.FindByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if err := s.engine.Require(ctx, caller, authz.OpTransition, workflow); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	workflow, err = s.store.Execute(ctx, tenantID, workflowID, validate,
		func(w *models.WorkflowInstance) { apply(w, now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	s.emit(ctx, action, workflow, caller.UserID.String())
	return workflow, nil
}

// Get returns a workflow scoped to the caller's tenant.
func (s *Service) Get(ctx context.Context, caller authz.Caller, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error) {
	workflow, err := s.store.FindByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if err := s.engine.Require(ctx, caller, authz.OpRead, workflow); err != nil {
		return nil, err
	}
	return workflow, nil
}

// List returns a tenant's workflows.
func (s *Service) List(ctx context.Context, caller authz.Caller, tenantID id.TenantID) ([]*models.WorkflowInstance, error) {
	if err := s.engine.Require(ctx, caller, authz.OpRead, authz.TenantResource(tenantID)); err != nil {
		return nil, err
	}
	workflows, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list workflows")
	}
	return workflows, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, workflow *models.WorkflowInstance, actorID string) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Category:  audit.CategoryOf(action),
		Action:    string(action),
		TenantID:  workflow.TenantID,
		ActorID:   actorID,
		Subject:   workflow.ID.String(),
		RequestID: requestcontext.RequestID(ctx),
	})
}

func wrapStoreErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "workflow not found")
	}
	// Validation callbacks surface coded errors; keep them intact.
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "workflow store failure")
}
