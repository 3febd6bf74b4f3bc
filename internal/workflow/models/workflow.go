// Package models holds the workflow state machine types.
package models

import (
	"time"

	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
)

// WorkflowKind classifies the HR process a workflow drives.
type WorkflowKind string

const (
	KindOnboarding  WorkflowKind = "onboarding"
	KindOffboarding WorkflowKind = "offboarding"
)

// ParseWorkflowKind validates external input into the closed kind set.
func ParseWorkflowKind(s string) (WorkflowKind, error) {
	switch WorkflowKind(s) {
	case KindOnboarding, KindOffboarding:
		return WorkflowKind(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown workflow kind")
	}
}

// WorkflowStatus is the lifecycle state.
type WorkflowStatus string

const (
	StatusDraft     WorkflowStatus = "draft"
	StatusActive    WorkflowStatus = "active"
	StatusCompleted WorkflowStatus = "completed"
	StatusCancelled WorkflowStatus = "cancelled"
)

// WorkflowInstance is one HR process for one subject.
//
// Invariants:
//   - transitions: draft → active → {completed | cancelled}
//   - CreditTransactionID is set exactly once, when status first becomes
//     active; a workflow consumes at most one credit over its entire
//     lifetime regardless of retries or terminal state
//   - completed and cancelled transitions never touch the ledger
type WorkflowInstance struct {
	ID                  id.WorkflowID    `json:"id"`
	TenantID            id.TenantID      `json:"tenant_id"`
	Kind                WorkflowKind     `json:"kind"`
	Status              WorkflowStatus   `json:"status"`
	SubjectID           id.EmployeeID    `json:"subject_id"`
	CreditTransactionID id.TransactionID `json:"credit_transaction_id,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	ActivatedAt         *time.Time       `json:"activated_at,omitempty"`
}

// OwnerTenant implements authz.Resource.
func (w *WorkflowInstance) OwnerTenant() id.TenantID {
	return w.TenantID
}

// NewWorkflowInstance constructs a draft workflow.
func NewWorkflowInstance(workflowID id.WorkflowID, tenantID id.TenantID, kind WorkflowKind, subjectID id.EmployeeID, now time.Time) (*WorkflowInstance, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "workflow requires a tenant")
	}
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "workflow requires a subject")
	}
	if _, err := ParseWorkflowKind(string(kind)); err != nil {
		return nil, err
	}
	return &WorkflowInstance{
		ID:        workflowID,
		TenantID:  tenantID,
		Kind:      kind,
		Status:    StatusDraft,
		SubjectID: subjectID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanActivate checks the draft → active transition. A workflow that already
// holds its debit rejects re-activation idempotently.
func (w *WorkflowInstance) CanActivate() error {
	switch w.Status {
	case StatusDraft:
		return nil
	case StatusActive:
		return dErrors.New(dErrors.CodeAlreadyConsumed, "workflow is already active")
	default:
		return dErrors.New(dErrors.CodeConflict, "workflow has reached a terminal state")
	}
}

// ApplyActivation transitions to active, binding the credit transaction.
// Call CanActivate first; the transaction id is set exactly once here.
func (w *WorkflowInstance) ApplyActivation(txID id.TransactionID, now time.Time) {
	w.Status = StatusActive
	w.CreditTransactionID = txID
	w.ActivatedAt = &now
	w.UpdatedAt = now
}

// CanComplete checks the active → completed transition.
func (w *WorkflowInstance) CanComplete() error {
	if w.Status != StatusActive {
		return dErrors.New(dErrors.CodeConflict, "only active workflows can be completed")
	}
	return nil
}

// ApplyCompletion transitions to completed. No ledger interaction: credit is
// tied to initiation, not completion.
func (w *WorkflowInstance) ApplyCompletion(now time.Time) {
	w.Status = StatusCompleted
	w.UpdatedAt = now
}

// CanCancel checks the active → cancelled transition.
func (w *WorkflowInstance) CanCancel() error {
	if w.Status != StatusActive {
		return dErrors.New(dErrors.CodeConflict, "only active workflows can be cancelled")
	}
	return nil
}

// ApplyCancellation transitions to cancelled. The consumed credit is not
// refunded; usage is never decremented.
func (w *WorkflowInstance) ApplyCancellation(now time.Time) {
	w.Status = StatusCancelled
	w.UpdatedAt = now
}
