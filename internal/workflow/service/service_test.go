package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"peopleflow/internal/authz"
	creditservice "peopleflow/internal/credit/service"
	creditmemory "peopleflow/internal/credit/store/memory"
	"peopleflow/internal/workflow/models"
	"peopleflow/internal/workflow/store/memory"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/audit"
	"peopleflow/pkg/platform/audit/publisher"
)

type fixture struct {
	svc    *Service
	credit *creditservice.Service
	sink   *publisher.Memory
	tenant id.TenantID
	caller authz.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine := authz.NewEngine()
	sink := publisher.NewMemory()
	tenantID := id.NewTenantID()

	credit := creditservice.New(creditmemory.NewInMemory(), engine)
	return &fixture{
		svc:    New(memory.NewInMemory(), credit, engine, WithAuditPublisher(sink)),
		credit: credit,
		sink:   sink,
		tenant: tenantID,
		caller: authz.Caller{
			UserID:   id.NewUserID(),
			Role:     authz.RoleTenantSuperuser,
			TenantID: tenantID,
		},
	}
}

func (f *fixture) purchase(t *testing.T, qty int) {
	t.Helper()
	_, _, err := f.credit.Purchase(context.Background(), f.caller, f.tenant, qty)
	require.NoError(t, err)
}

func (f *fixture) draft(t *testing.T) *models.WorkflowInstance {
	t.Helper()
	workflow, err := f.svc.Create(context.Background(), f.caller, CreateRequest{
		TenantID:  f.tenant,
		Kind:      models.KindOnboarding,
		SubjectID: id.NewEmployeeID(),
	})
	require.NoError(t, err)
	return workflow
}

func (f *fixture) available(t *testing.T) int {
	t.Helper()
	balance, err := f.credit.Balance(context.Background(), f.caller, f.tenant)
	require.NoError(t, err)
	return balance.Available()
}

func TestCreate(t *testing.T) {
	t.Run("opens a free draft", func(t *testing.T) {
		f := newFixture(t)
		workflow := f.draft(t)

		assert.Equal(t, models.StatusDraft, workflow.Status)
		assert.True(t, workflow.CreditTransactionID.IsNil())
		assert.Equal(t, 0, f.available(t))
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(context.Background(), f.caller, CreateRequest{
			TenantID:  f.tenant,
			Kind:      "sabbatical",
			SubjectID: id.NewEmployeeID(),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestActivate(t *testing.T) {
	t.Run("debits exactly one credit", func(t *testing.T) {
		f := newFixture(t)
		f.purchase(t, 10)
		workflow := f.draft(t)

		activated, err := f.svc.Activate(context.Background(), f.caller, f.tenant, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, activated.Status)
		assert.False(t, activated.CreditTransactionID.IsNil())
		assert.NotNil(t, activated.ActivatedAt)
		assert.Equal(t, 9, f.available(t))
		assert.Len(t, f.sink.ByAction(audit.EventWorkflowActivated), 1)
	})

	t.Run("insufficient credit blocks activation entirely", func(t *testing.T) {
		f := newFixture(t)
		workflow := f.draft(t)

		_, err := f.svc.Activate(context.Background(), f.caller, f.tenant, workflow.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientCredit))

		// The workflow never becomes externally visible as active.
		current, err := f.svc.Get(context.Background(), f.caller, f.tenant, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDraft, current.Status)
		assert.True(t, current.CreditTransactionID.IsNil())
		assert.Empty(t, f.sink.ByAction(audit.EventWorkflowActivated))
	})

	t.Run("re-activation is rejected without a second debit", func(t *testing.T) {
		f := newFixture(t)
		f.purchase(t, 10)
		workflow := f.draft(t)

		_, err := f.svc.Activate(context.Background(), f.caller, f.tenant, workflow.ID)
		require.NoError(t, err)

		_, err = f.svc.Activate(context.Background(), f.caller, f.tenant, workflow.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyConsumed))
		assert.Equal(t, 9, f.available(t))
	})

	t.Run("concurrent activations debit once", func(t *testing.T) {
		f := newFixture(t)
		f.purchase(t, 10)
		workflow := f.draft(t)

		const attempts = 12
		var mu sync.Mutex
		succeeded, rejected := 0, 0

		g := new(errgroup.Group)
		for i := 0; i < attempts; i++ {
			g.Go(func() error {
				_, err := f.svc.Activate(context.Background(), f.caller, f.tenant, workflow.ID)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case dErrors.HasCode(err, dErrors.CodeAlreadyConsumed):
					rejected++
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, attempts-1, rejected)
		assert.Equal(t, 9, f.available(t))
	})

	t.Run("three workflows activating concurrently", func(t *testing.T) {
		f := newFixture(t)
		f.purchase(t, 10)

		workflows := []*models.WorkflowInstance{f.draft(t), f.draft(t), f.draft(t)}
		g := new(errgroup.Group)
		for _, workflow := range workflows {
			workflowID := workflow.ID
			g.Go(func() error {
				_, err := f.svc.Activate(context.Background(), f.caller, f.tenant, workflowID)
				return err
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, 7, f.available(t))

		seen := make(map[id.TransactionID]bool)
		for _, workflow := range workflows {
			current, err := f.svc.Get(context.Background(), f.caller, f.tenant, workflow.ID)
			require.NoError(t, err)
			require.False(t, current.CreditTransactionID.IsNil())
			assert.False(t, seen[current.CreditTransactionID], "transaction id reused")
			seen[current.CreditTransactionID] = true
		}
	})
}

func TestCompleteAndCancel(t *testing.T) {
	t.Run("completion touches no ledger state", func(t *testing.T) {
		f := newFixture(t)
		f.purchase(t, 10)
		workflow := f.draft(t)

		_, err := f.svc.Activate(context.Background(), f.caller, f.tenant, workflow.ID)
		require.NoError(t, err)
		before := f.available(t)

		completed, err := f.svc.Complete(context.Background(), f.caller, f.tenant, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, completed.Status)
		assert.Equal(t, before, f.available(t))
		assert.Len(t, f.sink.ByAction(audit.EventWorkflowCompleted), 1)
	})

	t.Run("cancellation does not refund", func(t *testing.T) {
		f := newFixture(t)
		f.purchase(t, 10)
		workflow := f.draft(t)

		_, err := f.svc.Activate(context.Background(), f.caller, f.tenant, workflow.ID)
		require.NoError(t, err)

		cancelled, err := f.svc.Cancel(context.Background(), f.caller, f.tenant, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
		assert.Equal(t, 9, f.available(t))
	})

	t.Run("draft cannot complete", func(t *testing.T) {
		f := newFixture(t)
		workflow := f.draft(t)

		_, err := f.svc.Complete(context.Background(), f.caller, f.tenant, workflow.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("terminal workflows reject activation", func(t *testing.T) {
		f := newFixture(t)
		f.purchase(t, 10)
		workflow := f.draft(t)

		_, err := f.svc.Activate(context.Background(), f.caller, f.tenant, workflow.ID)
		require.NoError(t, err)
		_, err = f.svc.Complete(context.Background(), f.caller, f.tenant, workflow.ID)
		require.NoError(t, err)

		_, err = f.svc.Activate(context.Background(), f.caller, f.tenant, workflow.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		assert.Equal(t, 9, f.available(t))
	})
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	workflow := f.draft(t)

	stranger := authz.Caller{
		UserID:   id.NewUserID(),
		Role:     authz.RoleTenantSuperuser,
		TenantID: id.NewTenantID(),
	}
	_, err := f.svc.Get(context.Background(), stranger, f.tenant, workflow.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}
