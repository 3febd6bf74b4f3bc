// Package memory holds the in-memory invitation store used by unit tests and
// single-node development.
package memory

import (
	"context"
	"sync"
	"time"

	"peopleflow/internal/invitation/models"
	id "peopleflow/pkg/domain"
	"peopleflow/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded map implementation of the invitation store.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.InvitationID]*models.InvitationRecord
	// byHash indexes pending invitations per tenant+hash for dedupe checks.
	byHash map[hashKey]id.InvitationID
}

type hashKey struct {
	tenantID   id.TenantID
	lookupHash string
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[id.InvitationID]*models.InvitationRecord),
		byHash:  make(map[hashKey]id.InvitationID),
	}
}

func (s *InMemory) CreateIfAbsent(_ context.Context, record *models.InvitationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	key := hashKey{tenantID: record.TenantID, lookupHash: record.LookupHash}
	if existingID, ok := s.byHash[key]; ok {
		if existing := s.records[existingID]; existing != nil && existing.IsPending() {
			return sentinel.ErrAlreadyUsed
		}
	}

	clone := *record
	s.records[record.ID] = &clone
	s.byHash[key] = record.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID, invitationID id.InvitationID) (*models.InvitationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[invitationID]
	if !ok || record.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *InMemory) FindByLookupHash(_ context.Context, tenantID id.TenantID, lookupHash string) (*models.InvitationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recordID, ok := s.byHash[hashKey{tenantID: tenantID, lookupHash: lookupHash}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	record, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.InvitationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.InvitationRecord
	for _, record := range s.records {
		if record.TenantID == tenantID {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}

// Execute runs validate and mutate under the store lock so concurrent status
// transitions serialize. The mutation is applied to the stored record only
// when validation passes.
func (s *InMemory) Execute(_ context.Context, tenantID id.TenantID, invitationID id.InvitationID,
	validate func(*models.InvitationRecord) error,
	mutate func(*models.InvitationRecord),
) (*models.InvitationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[invitationID]
	if !ok || record.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)
	clone := *record
	return &clone, nil
}

func (s *InMemory) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for recordID, record := range s.records {
		if !record.AutoDeleteAt.After(cutoff) {
			delete(s.records, recordID)
			key := hashKey{tenantID: record.TenantID, lookupHash: record.LookupHash}
			if s.byHash[key] == recordID {
				delete(s.byHash, key)
			}
			purged++
		}
	}
	return purged, nil
}
