// Package service orchestrates the credit ledger: purchases, reservations,
// and the atomic consume the workflow state machine calls on activation. The
// store is the only writer of balances; this layer adds policy, audit, and
// error translation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"peopleflow/internal/authz"
	creditmetrics "peopleflow/internal/credit/metrics"
	"peopleflow/internal/credit/models"
	"peopleflow/internal/credit/store"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/audit"
	"peopleflow/pkg/platform/sentinel"
	"peopleflow/pkg/requestcontext"
)

// AuditPublisher records ledger events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the ledger orchestrator.
type Service struct {
	store   store.Store
	engine  *authz.Engine
	auditor AuditPublisher
	logger  *slog.Logger
	metrics *creditmetrics.Metrics
	tracer  trace.Tracer
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

// WithMetrics attaches ledger metrics.
func WithMetrics(m *creditmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs the credit service.
func New(store store.Store, engine *authz.Engine, opts ...Option) *Service {
	s := &Service{
		store:  store,
		engine: engine,
		tracer: otel.Tracer("peopleflow/credit"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Purchase appends a purchase transaction and grows the purchased pool. The
// unit price is fixed by the tier function before the transaction exists and
// never recomputed.
func (s *Service) Purchase(ctx context.Context, caller authz.Caller, tenantID id.TenantID, qty int) (*models.Transaction, *models.Balance, error) {
	if err := s.engine.Require(ctx, caller, authz.OpPurchaseCredits, authz.TenantResource(tenantID)); err != nil {
		return nil, nil, err
	}

	tx, err := models.NewPurchase(tenantID, qty, models.PriceFor(qty), requestcontext.Now(ctx))
	if err != nil {
		return nil, nil, err
	}
	balance, err := s.store.AppendPurchase(ctx, tx)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record purchase")
	}

	s.emit(ctx, audit.EventCreditPurchased, tenantID, caller.UserID.String(), tx, "")
	if s.metrics != nil {
		s.metrics.AddPurchased(qty)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "credits purchased",
			"tenant_id", tenantID,
			"quantity", qty,
			"unit_price_cents", tx.UnitPriceCents,
			"available", balance.Available(),
		)
	}
	return tx, balance, nil
}

// Consume performs the single atomic debit for a workflow activation. It is
// called by the workflow state machine, which has already authorized the
// activation; policy here would re-check a decision already made.
//
// Errors: CodeInsufficientCredit (balance too low; the activation must not
// proceed), CodeAlreadyConsumed (this workflow already holds its debit).
func (s *Service) Consume(ctx context.Context, tenantID id.TenantID, workflowID id.WorkflowID, subjectID id.EmployeeID) (*models.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "credit.Consume",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID.String()),
			attribute.String("workflow_id", workflowID.String()),
		))
	defer span.End()
	start := time.Now()

	tx, err := models.NewUsage(tenantID, workflowID, subjectID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	_, err = s.store.Consume(ctx, tx)
	if s.metrics != nil {
		s.metrics.ObserveConsume(start)
	}
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrExhausted):
			if s.metrics != nil {
				s.metrics.IncrementInsufficient()
			}
			return nil, dErrors.New(dErrors.CodeInsufficientCredit, "not enough credits to start this workflow")
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			if s.metrics != nil {
				s.metrics.IncrementDuplicate()
			}
			return nil, dErrors.New(dErrors.CodeAlreadyConsumed, "this workflow has already consumed its credit")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credit consumption failed")
		}
	}

	s.emit(ctx, audit.EventCreditConsumed, tenantID, "", tx, "")
	if s.metrics != nil {
		s.metrics.IncrementConsumed()
	}
	return tx, nil
}

// Reserve sets credits aside for planned bulk onboarding.
func (s *Service) Reserve(ctx context.Context, caller authz.Caller, tenantID id.TenantID, qty int) (*models.Balance, error) {
	if err := s.engine.Require(ctx, caller, authz.OpReserveCredits, authz.TenantResource(tenantID)); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "reservation quantity must be positive")
	}

	balance, err := s.store.Reserve(ctx, tenantID, qty)
	if err != nil {
		if errors.Is(err, sentinel.ErrExhausted) {
			return nil, dErrors.New(dErrors.CodeInsufficientCredit, "not enough available credits to reserve")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve credits")
	}

	s.emit(ctx, audit.EventCreditReserved, tenantID, caller.UserID.String(), nil, "")
	return balance, nil
}

// Release returns reserved credits to the available pool.
func (s *Service) Release(ctx context.Context, caller authz.Caller, tenantID id.TenantID, qty int) (*models.Balance, error) {
	if err := s.engine.Require(ctx, caller, authz.OpReserveCredits, authz.TenantResource(tenantID)); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "release quantity must be positive")
	}

	balance, err := s.store.Release(ctx, tenantID, qty)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeConflict, "cannot release more credits than are reserved")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to release credits")
	}

	s.emit(ctx, audit.EventCreditReleased, tenantID, caller.UserID.String(), nil, "")
	return balance, nil
}

// Balance returns the tenant's materialized balance with derived values.
func (s *Service) Balance(ctx context.Context, caller authz.Caller, tenantID id.TenantID) (*models.Balance, error) {
	if err := s.engine.Require(ctx, caller, authz.OpRead, authz.TenantResource(tenantID)); err != nil {
		return nil, err
	}
	balance, err := s.store.Balance(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return balance, nil
}

// ListTransactions returns the tenant's ledger history, newest first.
func (s *Service) ListTransactions(ctx context.Context, caller authz.Caller, tenantID id.TenantID) ([]*models.Transaction, error) {
	if err := s.engine.Require(ctx, caller, authz.OpRead, authz.TenantResource(tenantID)); err != nil {
		return nil, err
	}
	entries, err := s.store.ListTransactions(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transactions")
	}
	return entries, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, tenantID id.TenantID, actorID string, tx *models.Transaction, reason string) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Category:  audit.CategoryOf(action),
		Action:    string(action),
		TenantID:  tenantID,
		ActorID:   actorID,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	}
	if tx != nil {
		event.Subject = tx.ID.String()
		event.Count = tx.Amount
	}
	_ = s.auditor.Emit(ctx, event)
}
