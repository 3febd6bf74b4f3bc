// Package postgres persists invitation records in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"peopleflow/internal/invitation/models"
	id "peopleflow/pkg/domain"
	"peopleflow/pkg/platform/sentinel"
)

// Schema is the DDL this store expects. Applied by deployment migrations and
// by integration test setup.
//
// The partial unique index is the deduplication invariant in SQL form: at
// most one pending invitation per (tenant, lookup hash).
const Schema = `
CREATE TABLE IF NOT EXISTS invitations (
	id                  UUID PRIMARY KEY,
	tenant_id           UUID NOT NULL,
	token               TEXT NOT NULL,
	lookup_hash         TEXT NOT NULL,
	domain_tag          TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	retention_purpose   TEXT NOT NULL,
	expires_at          TIMESTAMPTZ NOT NULL,
	auto_delete_at      TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	delivery_attempts   INT NOT NULL DEFAULT 0,
	last_delivery_error TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS invitations_pending_dedupe
	ON invitations (tenant_id, lookup_hash) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS invitations_auto_delete
	ON invitations (auto_delete_at);
`

const uniqueViolation = "23505"

// Store is the PostgreSQL-backed invitation store.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed invitation store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const invitationColumns = `id, tenant_id, token, lookup_hash, domain_tag, status,
	retention_purpose, expires_at, auto_delete_at, created_at, updated_at,
	delivery_attempts, last_delivery_error`

func (s *Store) CreateIfAbsent(ctx context.Context, record *models.InvitationRecord) error {
	query := `
		INSERT INTO invitations (` + invitationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(record.ID), uuid.UUID(record.TenantID), record.Token,
		record.LookupHash, record.DomainTag, string(record.Status),
		string(record.RetentionPurpose), record.ExpiresAt, record.AutoDeleteAt,
		record.CreatedAt, record.UpdatedAt,
		record.DeliveryAttempts, record.LastDeliveryError,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			if pqErr.Constraint == "invitations_pkey" {
				return sentinel.ErrConflict
			}
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, tenantID id.TenantID, invitationID id.InvitationID) (*models.InvitationRecord, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1 AND tenant_id = $2`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(invitationID), uuid.UUID(tenantID)))
}

func (s *Store) FindByLookupHash(ctx context.Context, tenantID id.TenantID, lookupHash string) (*models.InvitationRecord, error) {
	// Prefer the pending row; fall back to the most recent one so revoked
	// and redeemed states stay visible to lookups.
	query := `
		SELECT ` + invitationColumns + ` FROM invitations
		WHERE tenant_id = $1 AND lookup_hash = $2
		ORDER BY (status = 'pending') DESC, created_at DESC
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID), lookupHash))
}

func (s *Store) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.InvitationRecord, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var out []*models.InvitationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Execute loads the row FOR UPDATE, validates, mutates, and writes back in
// one transaction. The row lock serializes concurrent status transitions.
func (s *Store) Execute(ctx context.Context, tenantID id.TenantID, invitationID id.InvitationID,
	validate func(*models.InvitationRecord) error,
	mutate func(*models.InvitationRecord),
) (*models.InvitationRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin invitation tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	record, err := s.scanOne(tx.QueryRowContext(ctx, query, uuid.UUID(invitationID), uuid.UUID(tenantID)))
	if err != nil {
		return nil, err
	}

	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	update := `
		UPDATE invitations
		SET status = $2, updated_at = $3, delivery_attempts = $4, last_delivery_error = $5
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(record.ID), string(record.Status), record.UpdatedAt,
		record.DeliveryAttempts, record.LastDeliveryError,
	); err != nil {
		return nil, fmt.Errorf("update invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit invitation tx: %w", err)
	}
	return record, nil
}

func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invitations WHERE auto_delete_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired invitations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted invitations: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOne(row rowScanner) (*models.InvitationRecord, error) {
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func scanRecord(row rowScanner) (*models.InvitationRecord, error) {
	var record models.InvitationRecord
	var recordID, tenantID uuid.UUID
	var status, purpose string
	if err := row.Scan(
		&recordID, &tenantID, &record.Token, &record.LookupHash,
		&record.DomainTag, &status, &purpose, &record.ExpiresAt,
		&record.AutoDeleteAt, &record.CreatedAt, &record.UpdatedAt,
		&record.DeliveryAttempts, &record.LastDeliveryError,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan invitation: %w", err)
	}
	record.ID = id.InvitationID(recordID)
	record.TenantID = id.TenantID(tenantID)
	record.Status = models.InvitationStatus(status)
	record.RetentionPurpose = id.RetentionPurpose(purpose)
	return &record, nil
}
