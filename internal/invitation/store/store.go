// Package store defines the persistence contract for invitation records.
// Implementations return pkg/platform/sentinel errors; the service layer
// translates them into coded domain errors.
package store

import (
	"context"
	"time"

	"peopleflow/internal/invitation/models"
	id "peopleflow/pkg/domain"
)

// Store persists invitation records.
//
// CreateIfAbsent enforces the deduplication invariant: at most one pending
// invitation per (tenant, lookup hash). Returns sentinel.ErrAlreadyUsed when
// a pending invitation for the same normalized identity already exists.
//
// Execute is the atomic validate-then-mutate primitive. The implementation
// holds its lock (mutex or SELECT ... FOR UPDATE) across both callbacks so
// status transitions cannot race.
//
// DeleteExpiredBefore hard-deletes every record whose auto-delete time is at
// or before the cutoff and returns how many were purged. Retention reporting
// is aggregate-only, so the count is all the sweeper needs.
type Store interface {
	CreateIfAbsent(ctx context.Context, record *models.InvitationRecord) error
	FindByID(ctx context.Context, tenantID id.TenantID, invitationID id.InvitationID) (*models.InvitationRecord, error)
	FindByLookupHash(ctx context.Context, tenantID id.TenantID, lookupHash string) (*models.InvitationRecord, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.InvitationRecord, error)
	Execute(ctx context.Context, tenantID id.TenantID, invitationID id.InvitationID,
		validate func(*models.InvitationRecord) error,
		mutate func(*models.InvitationRecord)) (*models.InvitationRecord, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}
