// Package store defines the persistence contract for the credit ledger.
//
// The store is the only writer of balances. Each method is one atomic unit:
// either every step applies or none does. Implementations return sentinel
// errors; the service layer translates them into domain errors.
package store

import (
	"context"

	"peopleflow/internal/credit/models"
	id "peopleflow/pkg/domain"
)

// Store is the credit ledger persistence contract.
type Store interface {
	// AppendPurchase appends a purchase or adjustment transaction and adds
	// its amount to the purchased pool, creating the balance row when absent.
	AppendPurchase(ctx context.Context, tx *models.Transaction) (*models.Balance, error)

	// Consume atomically appends the given usage transaction and increments
	// used, provided no usage transaction exists for the workflow yet and at
	// least one credit is available. On failure nothing changes.
	//
	// Errors: sentinel.ErrAlreadyUsed (a usage transaction for this workflow
	// already exists), sentinel.ErrExhausted (available < 1; a tenant that
	// never purchased reads as an empty balance).
	Consume(ctx context.Context, tx *models.Transaction) (*models.Balance, error)

	// Reserve moves qty credits from available into reserved.
	// Errors: sentinel.ErrExhausted when available < qty.
	Reserve(ctx context.Context, tenantID id.TenantID, qty int) (*models.Balance, error)

	// Release returns qty credits from reserved to available.
	// Errors: sentinel.ErrInvalidState when qty > reserved; reserved never
	// goes below zero.
	Release(ctx context.Context, tenantID id.TenantID, qty int) (*models.Balance, error)

	// Balance returns the tenant's materialized balance. A tenant that never
	// purchased has a zero balance, not an error.
	Balance(ctx context.Context, tenantID id.TenantID) (*models.Balance, error)

	// ListTransactions returns the tenant's ledger entries, newest first.
	ListTransactions(ctx context.Context, tenantID id.TenantID) ([]*models.Transaction, error)
}
