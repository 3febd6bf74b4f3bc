// Package memory holds the in-memory credit ledger used by unit tests and
// single-node development.
package memory

import (
	"context"
	"sync"

	"peopleflow/internal/credit/models"
	id "peopleflow/pkg/domain"
	"peopleflow/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded implementation of the ledger store. One lock
// covers transactions and balances together, so every method is a single
// atomic unit the same way a database transaction is.
type InMemory struct {
	mu           sync.Mutex
	transactions map[id.TenantID][]*models.Transaction
	balances     map[id.TenantID]*models.Balance
	// usageByWorkflow is the idempotency authority: at most one usage entry
	// per workflow, ever.
	usageByWorkflow map[id.WorkflowID]id.TransactionID
}

// NewInMemory constructs an empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		transactions:    make(map[id.TenantID][]*models.Transaction),
		balances:        make(map[id.TenantID]*models.Balance),
		usageByWorkflow: make(map[id.WorkflowID]id.TransactionID),
	}
}

// balanceLocked returns the live balance row, creating a zero row on first
// touch. Callers must hold the lock.
func (s *InMemory) balanceLocked(tenantID id.TenantID) *models.Balance {
	b, ok := s.balances[tenantID]
	if !ok {
		b = &models.Balance{TenantID: tenantID}
		s.balances[tenantID] = b
	}
	return b
}

func (s *InMemory) AppendPurchase(_ context.Context, tx *models.Transaction) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balanceLocked(tx.TenantID)
	b.Purchased += tx.Amount
	b.UpdatedAt = tx.CreatedAt
	s.transactions[tx.TenantID] = append(s.transactions[tx.TenantID], tx)

	clone := *b
	return &clone, nil
}

func (s *InMemory) Consume(_ context.Context, tx *models.Transaction) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usageByWorkflow[tx.WorkflowID]; exists {
		return nil, sentinel.ErrAlreadyUsed
	}
	b := s.balanceLocked(tx.TenantID)
	if b.Available() < tx.Amount {
		return nil, sentinel.ErrExhausted
	}

	b.Used += tx.Amount
	b.UpdatedAt = tx.CreatedAt
	s.transactions[tx.TenantID] = append(s.transactions[tx.TenantID], tx)
	s.usageByWorkflow[tx.WorkflowID] = tx.ID

	clone := *b
	return &clone, nil
}

func (s *InMemory) Reserve(_ context.Context, tenantID id.TenantID, qty int) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balanceLocked(tenantID)
	if b.Available() < qty {
		return nil, sentinel.ErrExhausted
	}
	b.Reserved += qty

	clone := *b
	return &clone, nil
}

func (s *InMemory) Release(_ context.Context, tenantID id.TenantID, qty int) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balanceLocked(tenantID)
	if qty > b.Reserved {
		return nil, sentinel.ErrInvalidState
	}
	b.Reserved -= qty

	clone := *b
	return &clone, nil
}

func (s *InMemory) Balance(_ context.Context, tenantID id.TenantID) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[tenantID]
	if !ok {
		return &models.Balance{TenantID: tenantID}, nil
	}
	clone := *b
	return &clone, nil
}

func (s *InMemory) ListTransactions(_ context.Context, tenantID id.TenantID) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.transactions[tenantID]
	out := make([]*models.Transaction, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		clone := *entries[i]
		out = append(out, &clone)
	}
	return out, nil
}
