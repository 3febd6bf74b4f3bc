// Package memory holds the in-memory workflow store used by unit tests and
// single-node development.
package memory

import (
	"context"
	"sync"

	"peopleflow/internal/workflow/models"
	id "peopleflow/pkg/domain"
	"peopleflow/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded map implementation of the workflow store.
type InMemory struct {
	mu        sync.RWMutex
	workflows map[id.WorkflowID]*models.WorkflowInstance
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemory {
	return &InMemory{workflows: make(map[id.WorkflowID]*models.WorkflowInstance)}
}

func (s *InMemory) Create(_ context.Context, workflow *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[workflow.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *workflow
	s.workflows[workflow.ID] = &clone
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, ok := s.workflows[workflowID]
	if !ok || workflow.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	clone := *workflow
	return &clone, nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowInstance
	for _, workflow := range s.workflows {
		if workflow.TenantID == tenantID {
			clone := *workflow
			out = append(out, &clone)
		}
	}
	return out, nil
}

// Execute serializes concurrent transitions under the store lock. The
// mutation is applied only when validation passes.
func (s *InMemory) Execute(_ context.Context, tenantID id.TenantID, workflowID id.WorkflowID,
	validate func(*models.WorkflowInstance) error,
	mutate func(*models.WorkflowInstance),
) (*models.WorkflowInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, ok := s.workflows[workflowID]
	if !ok || workflow.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(workflow); err != nil {
		return nil, err
	}
	mutate(workflow)
	clone := *workflow
	return &clone, nil
}
