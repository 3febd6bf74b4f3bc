// Package store defines the persistence contract for workflow instances.
// Implementations return sentinel errors; the service layer translates.
package store

import (
	"context"

	"peopleflow/internal/workflow/models"
	id "peopleflow/pkg/domain"
)

// Store is the workflow persistence contract.
type Store interface {
	// Create persists a new draft workflow.
	// Errors: sentinel.ErrConflict when the id already exists.
	Create(ctx context.Context, workflow *models.WorkflowInstance) error

	// FindByID returns the workflow scoped to its tenant.
	// Errors: sentinel.ErrNotFound.
	FindByID(ctx context.Context, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error)

	// ListByTenant returns a tenant's workflows.
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.WorkflowInstance, error)

	// Execute atomically runs validate then mutate against the current row,
	// serializing concurrent transitions on the same workflow.
	// Errors: sentinel.ErrNotFound, or whatever validate returns.
	Execute(ctx context.Context, tenantID id.TenantID, workflowID id.WorkflowID,
		validate func(*models.WorkflowInstance) error,
		mutate func(*models.WorkflowInstance)) (*models.WorkflowInstance, error)
}
