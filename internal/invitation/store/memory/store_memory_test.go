package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"peopleflow/internal/invitation/models"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/sentinel"
)

type InvitationStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *InvitationStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestInvitationStoreSuite(t *testing.T) {
	suite.Run(t, new(InvitationStoreSuite))
}

func (s *InvitationStoreSuite) newRecord(tenantID id.TenantID, lookupHash string) *models.InvitationRecord {
	now := time.Now()
	record, err := models.NewInvitationRecord(
		id.NewInvitationID(),
		tenantID,
		"signed.token.value",
		lookupHash,
		"example.com",
		id.RetentionPurposeContract,
		now.Add(72*time.Hour),
		now.Add(30*24*time.Hour),
		now,
	)
	s.Require().NoError(err)
	return record
}

func (s *InvitationStoreSuite) TestCreateAndLookups() {
	tenantID := id.NewTenantID()

	s.Run("creates and finds by id", func() {
		record := s.newRecord(tenantID, "hash-a")
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, record))

		found, err := s.store.FindByID(s.ctx, tenantID, record.ID)
		s.Require().NoError(err)
		s.Equal(record.LookupHash, found.LookupHash)
		s.Equal(models.StatusPending, found.Status)
	})

	s.Run("finds by lookup hash", func() {
		record := s.newRecord(tenantID, "hash-b")
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, record))

		found, err := s.store.FindByLookupHash(s.ctx, tenantID, "hash-b")
		s.Require().NoError(err)
		s.Equal(record.ID, found.ID)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.FindByID(s.ctx, tenantID, id.NewInvitationID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("does not leak rows across tenants", func() {
		record := s.newRecord(tenantID, "hash-c")
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, record))

		_, err := s.store.FindByID(s.ctx, id.NewTenantID(), record.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.FindByLookupHash(s.ctx, id.NewTenantID(), "hash-c")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InvitationStoreSuite) TestDeduplication() {
	tenantID := id.NewTenantID()

	s.Run("rejects second pending invitation for same hash", func() {
		first := s.newRecord(tenantID, "dup-hash")
		second := s.newRecord(tenantID, "dup-hash")

		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, first))
		err := s.store.CreateIfAbsent(s.ctx, second)
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("same hash in another tenant is allowed", func() {
		other := s.newRecord(id.NewTenantID(), "dup-hash")
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, other))
	})

	s.Run("revoked invitation frees the hash", func() {
		record := s.newRecord(tenantID, "freed-hash")
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, record))

		_, err := s.store.Execute(s.ctx, tenantID, record.ID,
			func(r *models.InvitationRecord) error { return r.CanRevoke() },
			func(r *models.InvitationRecord) { r.ApplyRevocation(time.Now()) },
		)
		s.Require().NoError(err)

		replacement := s.newRecord(tenantID, "freed-hash")
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, replacement))
	})
}

func (s *InvitationStoreSuite) TestExecute() {
	tenantID := id.NewTenantID()

	s.Run("applies mutation when validation passes", func() {
		record := s.newRecord(tenantID, "exec-hash")
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, record))

		updated, err := s.store.Execute(s.ctx, tenantID, record.ID,
			func(r *models.InvitationRecord) error { return r.CanRedeem(time.Now()) },
			func(r *models.InvitationRecord) { r.ApplyRedemption(time.Now()) },
		)
		s.Require().NoError(err)
		s.Equal(models.StatusRedeemed, updated.Status)

		found, err := s.store.FindByID(s.ctx, tenantID, record.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRedeemed, found.Status)
	})

	s.Run("leaves record untouched when validation fails", func() {
		record := s.newRecord(tenantID, "exec-fail-hash")
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, record))

		// First redemption wins; the second validation must fail.
		_, err := s.store.Execute(s.ctx, tenantID, record.ID,
			func(r *models.InvitationRecord) error { return r.CanRedeem(time.Now()) },
			func(r *models.InvitationRecord) { r.ApplyRedemption(time.Now()) },
		)
		s.Require().NoError(err)

		_, err = s.store.Execute(s.ctx, tenantID, record.ID,
			func(r *models.InvitationRecord) error { return r.CanRedeem(time.Now()) },
			func(r *models.InvitationRecord) { r.ApplyRedemption(time.Now()) },
		)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTokenRevoked))
	})

	s.Run("returns ErrNotFound for wrong tenant", func() {
		record := s.newRecord(tenantID, "exec-tenant-hash")
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, record))

		_, err := s.store.Execute(s.ctx, id.NewTenantID(), record.ID,
			func(r *models.InvitationRecord) error { return nil },
			func(r *models.InvitationRecord) {},
		)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InvitationStoreSuite) TestDeleteExpiredBefore() {
	tenantID := id.NewTenantID()
	now := time.Now()

	old := s.newRecord(tenantID, "old-hash")
	old.AutoDeleteAt = now.Add(-time.Hour)
	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, old))

	fresh := s.newRecord(tenantID, "fresh-hash")
	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, fresh))

	purged, err := s.store.DeleteExpiredBefore(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(1, purged)

	_, err = s.store.FindByID(s.ctx, tenantID, old.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByLookupHash(s.ctx, tenantID, "old-hash")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByID(s.ctx, tenantID, fresh.ID)
	s.Require().NoError(err)
}
