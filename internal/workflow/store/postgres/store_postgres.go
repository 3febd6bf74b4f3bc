// Package postgres persists workflow instances in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"peopleflow/internal/workflow/models"
	id "peopleflow/pkg/domain"
	"peopleflow/pkg/platform/sentinel"
)

// Schema is the DDL this store expects. Applied by deployment migrations and
// by integration test setup.
const Schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id                    UUID PRIMARY KEY,
	tenant_id             UUID NOT NULL,
	kind                  TEXT NOT NULL,
	status                TEXT NOT NULL,
	subject_id            UUID NOT NULL,
	credit_transaction_id UUID,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL,
	activated_at          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS workflows_tenant_idx ON workflows (tenant_id, created_at DESC);
`

const uniqueViolation = "23505"

// Store is the PostgreSQL-backed workflow store.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed workflow store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const workflowColumns = `id, tenant_id, kind, status, subject_id,
	credit_transaction_id, created_at, updated_at, activated_at`

func (s *Store) Create(ctx context.Context, workflow *models.WorkflowInstance) error {
	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(workflow.ID), uuid.UUID(workflow.TenantID),
		string(workflow.Kind), string(workflow.Status), uuid.UUID(workflow.SubjectID),
		nullableID(uuid.UUID(workflow.CreditTransactionID)),
		workflow.CreatedAt, workflow.UpdatedAt, workflow.ActivatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, tenantID id.TenantID, workflowID id.WorkflowID) (*models.WorkflowInstance, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND tenant_id = $2`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(workflowID), uuid.UUID(tenantID)))
}

func (s *Store) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.WorkflowInstance, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkflowInstance
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, workflow)
	}
	return out, rows.Err()
}

// Execute loads the row FOR UPDATE, validates, mutates, and writes back in
// one transaction. The row lock serializes concurrent transitions.
func (s *Store) Execute(ctx context.Context, tenantID id.TenantID, workflowID id.WorkflowID,
	validate func(*models.WorkflowInstance) error,
	mutate func(*models.WorkflowInstance),
) (*models.WorkflowInstance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin workflow tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	workflow, err := s.scanOne(tx.QueryRowContext(ctx, query, uuid.UUID(workflowID), uuid.UUID(tenantID)))
	if err != nil {
		return nil, err
	}

	if err := validate(workflow); err != nil {
		return nil, err
	}
	mutate(workflow)

	update := `
		UPDATE workflows
		SET status = $2, credit_transaction_id = $3, updated_at = $4, activated_at = $5
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(workflow.ID), string(workflow.Status),
		nullableID(uuid.UUID(workflow.CreditTransactionID)),
		workflow.UpdatedAt, workflow.ActivatedAt,
	); err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit workflow tx: %w", err)
	}
	return workflow, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOne(row rowScanner) (*models.WorkflowInstance, error) {
	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return workflow, nil
}

func scanWorkflow(row rowScanner) (*models.WorkflowInstance, error) {
	var workflow models.WorkflowInstance
	var workflowID, tenantID, subjectID uuid.UUID
	var creditTxID *uuid.UUID
	var kind, status string
	var activatedAt sql.NullTime
	if err := row.Scan(
		&workflowID, &tenantID, &kind, &status, &subjectID,
		&creditTxID, &workflow.CreatedAt, &workflow.UpdatedAt, &activatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	workflow.ID = id.WorkflowID(workflowID)
	workflow.TenantID = id.TenantID(tenantID)
	workflow.Kind = models.WorkflowKind(kind)
	workflow.Status = models.WorkflowStatus(status)
	workflow.SubjectID = id.EmployeeID(subjectID)
	if creditTxID != nil {
		workflow.CreditTransactionID = id.TransactionID(*creditTxID)
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		workflow.ActivatedAt = &t
	}
	return &workflow, nil
}

// nullableID maps the zero uuid to NULL so draft workflows carry no
// transaction reference.
func nullableID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}
