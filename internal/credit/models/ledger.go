// Package models holds the credit ledger domain types. The ledger is
// append-only: balances are materialized running totals maintained only by
// the store's atomic entry points, never mutated field-by-field elsewhere.
package models

import (
	"time"

	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
)

// TransactionKind classifies ledger entries.
type TransactionKind string

const (
	// KindPurchase adds credits to the purchased pool.
	KindPurchase TransactionKind = "purchase"
	// KindUsage debits exactly one credit for a workflow activation.
	KindUsage TransactionKind = "usage"
	// KindAdjustment is an operator correction. Adjustments only ever add to
	// purchased; there is no structural way to decrement used.
	KindAdjustment TransactionKind = "adjustment"
)

// Currency for all ledger amounts. Single-currency by product decision.
const Currency = "EUR"

// Transaction is one append-only ledger entry.
//
// Invariants:
//   - usage entries carry WorkflowID and SubjectID, required and immutable;
//     at most one usage entry ever exists per workflow
//   - no operation deletes a transaction or decrements used: refunds are
//     disallowed structurally, not by convention
type Transaction struct {
	ID             id.TransactionID `json:"id"`
	TenantID       id.TenantID      `json:"tenant_id"`
	Kind           TransactionKind  `json:"kind"`
	Amount         int              `json:"amount"`
	UnitPriceCents int64            `json:"unit_price_cents"`
	Currency       string           `json:"currency"`
	WorkflowID     id.WorkflowID    `json:"workflow_id,omitempty"`
	SubjectID      id.EmployeeID    `json:"subject_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewPurchase constructs a purchase entry. Unit price must come from PriceFor
// before construction; it is never recomputed or mutated afterwards.
func NewPurchase(tenantID id.TenantID, amount int, unitPriceCents int64, now time.Time) (*Transaction, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "purchase requires a tenant")
	}
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "purchase amount must be positive")
	}
	return &Transaction{
		ID:             id.NewTransactionID(),
		TenantID:       tenantID,
		Kind:           KindPurchase,
		Amount:         amount,
		UnitPriceCents: unitPriceCents,
		Currency:       Currency,
		CreatedAt:      now,
	}, nil
}

// NewUsage constructs the single debit entry for a workflow activation.
func NewUsage(tenantID id.TenantID, workflowID id.WorkflowID, subjectID id.EmployeeID, now time.Time) (*Transaction, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "usage requires a tenant")
	}
	if workflowID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "usage requires a workflow")
	}
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "usage requires a subject")
	}
	return &Transaction{
		ID:         id.NewTransactionID(),
		TenantID:   tenantID,
		Kind:       KindUsage,
		Amount:     1,
		Currency:   Currency,
		WorkflowID: workflowID,
		SubjectID:  subjectID,
		CreatedAt:  now,
	}, nil
}

// Balance is the materialized running total per tenant.
//
// Invariant: Available() >= 0 after every operation; Used is monotonically
// non-decreasing.
type Balance struct {
	TenantID  id.TenantID `json:"tenant_id"`
	Purchased int         `json:"purchased"`
	Used      int         `json:"used"`
	Reserved  int         `json:"reserved"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// OwnerTenant implements authz.Resource.
func (b *Balance) OwnerTenant() id.TenantID {
	return b.TenantID
}

// Available is what Consume and Reserve may draw from.
func (b *Balance) Available() int {
	return b.Purchased - b.Used - b.Reserved
}

// Current ignores reservations: purchased minus used.
func (b *Balance) Current() int {
	return b.Purchased - b.Used
}

// Pricing tiers. Bulk discounts are a pure function of the requested
// quantity, computed before transaction creation and never adjusted after.
var pricingTiers = []struct {
	minQty    int
	unitCents int64
}{
	{250, 800},
	{50, 1000},
	{10, 1250},
	{1, 1500},
}

// PriceFor returns the per-credit price in cents for a purchase of qty
// credits. qty below one prices as one.
func PriceFor(qty int) int64 {
	for _, tier := range pricingTiers {
		if qty >= tier.minQty {
			return tier.unitCents
		}
	}
	return pricingTiers[len(pricingTiers)-1].unitCents
}
