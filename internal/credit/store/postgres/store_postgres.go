// Package postgres holds the pgx-backed credit ledger store.
//
// The ledger rides on two guarantees: a row lock on the tenant's balance row
// serializes concurrent consumes per tenant, and a partial unique index on
// usage transactions makes "one debit per workflow" a database invariant
// rather than an application promise.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"peopleflow/internal/credit/models"
	id "peopleflow/pkg/domain"
	"peopleflow/pkg/platform/sentinel"
)

// Schema creates the ledger tables.
const Schema = `
CREATE TABLE IF NOT EXISTS credit_balances (
    tenant_id  UUID PRIMARY KEY,
    purchased  BIGINT NOT NULL DEFAULT 0,
    used       BIGINT NOT NULL DEFAULT 0,
    reserved   BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT credit_balances_available_nonneg CHECK (purchased - used - reserved >= 0),
    CONSTRAINT credit_balances_reserved_nonneg CHECK (reserved >= 0)
);

CREATE TABLE IF NOT EXISTS credit_transactions (
    id               UUID PRIMARY KEY,
    tenant_id        UUID NOT NULL,
    kind             TEXT NOT NULL,
    amount           BIGINT NOT NULL,
    unit_price_cents BIGINT NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL,
    workflow_id      UUID,
    subject_id       UUID,
    created_at       TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS credit_usage_once_per_workflow
    ON credit_transactions (workflow_id) WHERE kind = 'usage';

CREATE INDEX IF NOT EXISTS credit_transactions_tenant_idx
    ON credit_transactions (tenant_id, created_at DESC);
`

const uniqueViolation = "23505"

// Store is the pgx implementation of the ledger store.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a ledger store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema applies the ledger schema. Used by dev wiring and tests.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *Store) AppendPurchase(ctx context.Context, tx *models.Transaction) (*models.Balance, error) {
	dbtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin purchase: %w", err)
	}
	defer dbtx.Rollback(ctx)

	if err := insertTransaction(ctx, dbtx, tx); err != nil {
		return nil, err
	}

	var b models.Balance
	b.TenantID = tx.TenantID
	err = dbtx.QueryRow(ctx, `
		INSERT INTO credit_balances (tenant_id, purchased, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE
		SET purchased = credit_balances.purchased + EXCLUDED.purchased,
		    updated_at = EXCLUDED.updated_at
		RETURNING purchased, used, reserved, updated_at`,
		uuid.UUID(tx.TenantID), tx.Amount, tx.CreatedAt,
	).Scan(&b.Purchased, &b.Used, &b.Reserved, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("apply purchase: %w", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", err)
	}
	return &b, nil
}

func (s *Store) Consume(ctx context.Context, tx *models.Transaction) (*models.Balance, error) {
	dbtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin consume: %w", err)
	}
	defer dbtx.Rollback(ctx)

	// Idempotency precondition first: a duplicate activation must read as
	// already-used even when the balance is exhausted.
	var exists bool
	err = dbtx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM credit_transactions
			WHERE workflow_id = $1 AND kind = 'usage'
		)`, uuid.UUID(tx.WorkflowID)).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check workflow usage: %w", err)
	}
	if exists {
		return nil, sentinel.ErrAlreadyUsed
	}

	// Lock the balance row so concurrent consumes for the tenant serialize.
	var b models.Balance
	b.TenantID = tx.TenantID
	err = dbtx.QueryRow(ctx, `
		SELECT purchased, used, reserved, updated_at
		FROM credit_balances
		WHERE tenant_id = $1
		FOR UPDATE`,
		uuid.UUID(tx.TenantID),
	).Scan(&b.Purchased, &b.Used, &b.Reserved, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	if b.Available() < tx.Amount {
		return nil, sentinel.ErrExhausted
	}

	// The partial unique index backstops the precondition under races with
	// transactions this snapshot cannot see yet.
	if err := insertTransaction(ctx, dbtx, tx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, sentinel.ErrAlreadyUsed
		}
		return nil, err
	}

	err = dbtx.QueryRow(ctx, `
		UPDATE credit_balances
		SET used = used + $2, updated_at = $3
		WHERE tenant_id = $1
		RETURNING purchased, used, reserved, updated_at`,
		uuid.UUID(tx.TenantID), tx.Amount, tx.CreatedAt,
	).Scan(&b.Purchased, &b.Used, &b.Reserved, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("apply debit: %w", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit consume: %w", err)
	}
	return &b, nil
}

func (s *Store) Reserve(ctx context.Context, tenantID id.TenantID, qty int) (*models.Balance, error) {
	var b models.Balance
	b.TenantID = tenantID
	err := s.pool.QueryRow(ctx, `
		UPDATE credit_balances
		SET reserved = reserved + $2, updated_at = now()
		WHERE tenant_id = $1 AND purchased - used - reserved >= $2
		RETURNING purchased, used, reserved, updated_at`,
		uuid.UUID(tenantID), qty,
	).Scan(&b.Purchased, &b.Used, &b.Reserved, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("reserve credits: %w", err)
	}
	return &b, nil
}

func (s *Store) Release(ctx context.Context, tenantID id.TenantID, qty int) (*models.Balance, error) {
	var b models.Balance
	b.TenantID = tenantID
	err := s.pool.QueryRow(ctx, `
		UPDATE credit_balances
		SET reserved = reserved - $2, updated_at = now()
		WHERE tenant_id = $1 AND reserved >= $2
		RETURNING purchased, used, reserved, updated_at`,
		uuid.UUID(tenantID), qty,
	).Scan(&b.Purchased, &b.Used, &b.Reserved, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("release credits: %w", err)
	}
	return &b, nil
}

func (s *Store) Balance(ctx context.Context, tenantID id.TenantID) (*models.Balance, error) {
	var b models.Balance
	b.TenantID = tenantID
	err := s.pool.QueryRow(ctx, `
		SELECT purchased, used, reserved, updated_at
		FROM credit_balances
		WHERE tenant_id = $1`,
		uuid.UUID(tenantID),
	).Scan(&b.Purchased, &b.Used, &b.Reserved, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.Balance{TenantID: tenantID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	return &b, nil
}

func (s *Store) ListTransactions(ctx context.Context, tenantID id.TenantID) ([]*models.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, kind, amount, unit_price_cents, currency,
		       workflow_id, subject_id, created_at
		FROM credit_transactions
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id`,
		uuid.UUID(tenantID),
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		var (
			tx                    models.Transaction
			txID, tenant          uuid.UUID
			workflowID, subjectID *uuid.UUID
		)
		if err := rows.Scan(&txID, &tenant, &tx.Kind, &tx.Amount, &tx.UnitPriceCents,
			&tx.Currency, &workflowID, &subjectID, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.ID = id.TransactionID(txID)
		tx.TenantID = id.TenantID(tenant)
		if workflowID != nil {
			tx.WorkflowID = id.WorkflowID(*workflowID)
		}
		if subjectID != nil {
			tx.SubjectID = id.EmployeeID(*subjectID)
		}
		out = append(out, &tx)
	}
	return out, rows.Err()
}

func insertTransaction(ctx context.Context, dbtx pgx.Tx, tx *models.Transaction) error {
	var workflowID, subjectID *uuid.UUID
	if !tx.WorkflowID.IsNil() {
		w := uuid.UUID(tx.WorkflowID)
		workflowID = &w
	}
	if !tx.SubjectID.IsNil() {
		s := uuid.UUID(tx.SubjectID)
		subjectID = &s
	}
	_, err := dbtx.Exec(ctx, `
		INSERT INTO credit_transactions
			(id, tenant_id, kind, amount, unit_price_cents, currency,
			 workflow_id, subject_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(tx.ID), uuid.UUID(tx.TenantID), string(tx.Kind), tx.Amount,
		tx.UnitPriceCents, tx.Currency, workflowID, subjectID, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
