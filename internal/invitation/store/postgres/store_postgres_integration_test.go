//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"peopleflow/internal/invitation/models"
	"peopleflow/internal/invitation/privacy"
	"peopleflow/internal/invitation/store/postgres"
	id "peopleflow/pkg/domain"
	"peopleflow/pkg/platform/sentinel"
	"peopleflow/pkg/testutil/containers"
)

type PostgresInvitationSuite struct {
	suite.Suite
	db    *sql.DB
	store *postgres.Store
}

func TestPostgresInvitationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresInvitationSuite))
}

func (s *PostgresInvitationSuite) SetupSuite() {
	pg := containers.NewPostgresContainer(s.T())

	db, err := sql.Open("postgres", pg.DSN)
	s.Require().NoError(err)
	s.db = db

	_, err = db.ExecContext(context.Background(), postgres.Schema)
	s.Require().NoError(err)
	s.store = postgres.New(db)
}

func (s *PostgresInvitationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *PostgresInvitationSuite) SetupTest() {
	_, err := s.db.ExecContext(context.Background(), `TRUNCATE invitations`)
	s.Require().NoError(err)
}

func (s *PostgresInvitationSuite) record(tenantID id.TenantID, email string) *models.InvitationRecord {
	now := time.Now().UTC()
	record, err := models.NewInvitationRecord(
		id.NewInvitationID(), tenantID, "signed-token-"+email, privacy.Hash(email), "example.com",
		id.RetentionPurposeContract, now.Add(7*24*time.Hour), now.Add(37*24*time.Hour), now,
	)
	s.Require().NoError(err)
	return record
}

func (s *PostgresInvitationSuite) TestCreateAndFind() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	record := s.record(tenantID, "ana@example.com")

	s.Require().NoError(s.store.CreateIfAbsent(ctx, record))

	byID, err := s.store.FindByID(ctx, tenantID, record.ID)
	s.Require().NoError(err)
	s.Equal(record.LookupHash, byID.LookupHash)
	s.Equal(models.StatusPending, byID.Status)
	s.Equal(record.Token, byID.Token)

	byHash, err := s.store.FindByLookupHash(ctx, tenantID, record.LookupHash)
	s.Require().NoError(err)
	s.Equal(record.ID, byHash.ID)

	_, err = s.store.FindByID(ctx, id.NewTenantID(), record.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresInvitationSuite) TestPendingDedupe() {
	ctx := context.Background()
	tenantID := id.NewTenantID()

	first := s.record(tenantID, "dup@example.com")
	s.Require().NoError(s.store.CreateIfAbsent(ctx, first))

	// Same identity, same tenant, still pending: the partial index rejects it.
	second := s.record(tenantID, "dup@example.com")
	err := s.store.CreateIfAbsent(ctx, second)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	// A different tenant may invite the same identity.
	other := s.record(id.NewTenantID(), "dup@example.com")
	s.NoError(s.store.CreateIfAbsent(ctx, other))

	// Once the pending row leaves pending, the identity can be re-invited.
	_, err = s.store.Execute(ctx, tenantID, first.ID,
		func(r *models.InvitationRecord) error { return r.CanRevoke() },
		func(r *models.InvitationRecord) { r.ApplyRevocation(time.Now().UTC()) },
	)
	s.Require().NoError(err)
	s.NoError(s.store.CreateIfAbsent(ctx, s.record(tenantID, "dup@example.com")))
}

func (s *PostgresInvitationSuite) TestExecuteSerializesTransitions() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	record := s.record(tenantID, "race@example.com")
	s.Require().NoError(s.store.CreateIfAbsent(ctx, record))

	// First revocation wins.
	_, err := s.store.Execute(ctx, tenantID, record.ID,
		func(r *models.InvitationRecord) error { return r.CanRevoke() },
		func(r *models.InvitationRecord) { r.ApplyRevocation(time.Now().UTC()) },
	)
	s.Require().NoError(err)

	// Second revocation validates against the committed state and fails.
	_, err = s.store.Execute(ctx, tenantID, record.ID,
		func(r *models.InvitationRecord) error { return r.CanRevoke() },
		func(r *models.InvitationRecord) { r.ApplyRevocation(time.Now().UTC()) },
	)
	s.Error(err)

	current, err := s.store.FindByID(ctx, tenantID, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, current.Status)
}

func (s *PostgresInvitationSuite) TestListByTenant() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.store.CreateIfAbsent(ctx, s.record(tenantID, fmt.Sprintf("u%d@example.com", i))))
	}
	s.Require().NoError(s.store.CreateIfAbsent(ctx, s.record(id.NewTenantID(), "other@example.com")))

	records, err := s.store.ListByTenant(ctx, tenantID)
	s.Require().NoError(err)
	s.Len(records, 3)
}

func (s *PostgresInvitationSuite) TestDeleteExpiredBefore() {
	ctx := context.Background()
	tenantID := id.NewTenantID()

	due := s.record(tenantID, "due@example.com")
	s.Require().NoError(s.store.CreateIfAbsent(ctx, due))
	_, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET auto_delete_at = $2 WHERE id = $1`,
		due.ID.String(), time.Now().UTC().Add(-time.Hour),
	)
	s.Require().NoError(err)

	kept := s.record(tenantID, "kept@example.com")
	s.Require().NoError(s.store.CreateIfAbsent(ctx, kept))

	n, err := s.store.DeleteExpiredBefore(ctx, time.Now().UTC())
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.store.FindByID(ctx, tenantID, due.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(ctx, tenantID, kept.ID)
	s.NoError(err)
}
