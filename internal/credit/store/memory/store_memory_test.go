package memory

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"peopleflow/internal/credit/models"
	id "peopleflow/pkg/domain"
	"peopleflow/pkg/platform/sentinel"
)

type LedgerSuite struct {
	suite.Suite
	store  *InMemory
	ctx    context.Context
	tenant id.TenantID
	now    time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.tenant = id.NewTenantID()
	s.now = time.Now().UTC()
}

func (s *LedgerSuite) purchase(amount int) *models.Balance {
	tx, err := models.NewPurchase(s.tenant, amount, models.PriceFor(amount), s.now)
	s.Require().NoError(err)
	b, err := s.store.AppendPurchase(s.ctx, tx)
	s.Require().NoError(err)
	return b
}

func (s *LedgerSuite) usage(workflowID id.WorkflowID) *models.Transaction {
	tx, err := models.NewUsage(s.tenant, workflowID, id.NewEmployeeID(), s.now)
	s.Require().NoError(err)
	return tx
}

func (s *LedgerSuite) TestEmptyBalance() {
	b, err := s.store.Balance(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Equal(0, b.Purchased)
	s.Equal(0, b.Available())
}

func (s *LedgerSuite) TestPurchaseAccumulates() {
	s.purchase(10)
	b := s.purchase(5)
	s.Equal(15, b.Purchased)
	s.Equal(15, b.Available())
	s.Equal(15, b.Current())

	entries, err := s.store.ListTransactions(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Len(entries, 2)
	s.Equal(models.KindPurchase, entries[0].Kind)
}

func (s *LedgerSuite) TestConsumeDebitsOnce() {
	s.purchase(10)
	workflowID := id.NewWorkflowID()

	b, err := s.store.Consume(s.ctx, s.usage(workflowID))
	s.Require().NoError(err)
	s.Equal(1, b.Used)
	s.Equal(9, b.Available())

	_, err = s.store.Consume(s.ctx, s.usage(workflowID))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	b, err = s.store.Balance(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Equal(1, b.Used)
}

func (s *LedgerSuite) TestConsumeWithZeroAvailableMutatesNothing() {
	_, err := s.store.Consume(s.ctx, s.usage(id.NewWorkflowID()))
	s.ErrorIs(err, sentinel.ErrExhausted)

	b, err := s.store.Balance(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Equal(0, b.Used)
	s.Equal(0, b.Purchased)

	entries, err := s.store.ListTransactions(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *LedgerSuite) TestConsumeRespectsReservations() {
	s.purchase(2)
	_, err := s.store.Reserve(s.ctx, s.tenant, 2)
	s.Require().NoError(err)

	// Reserved credits are not available to consume.
	_, err = s.store.Consume(s.ctx, s.usage(id.NewWorkflowID()))
	s.ErrorIs(err, sentinel.ErrExhausted)

	_, err = s.store.Release(s.ctx, s.tenant, 1)
	s.Require().NoError(err)
	b, err := s.store.Consume(s.ctx, s.usage(id.NewWorkflowID()))
	s.Require().NoError(err)
	s.Equal(0, b.Available())
	s.Equal(1, b.Current())
}

func (s *LedgerSuite) TestReserveAndRelease() {
	s.purchase(10)

	b, err := s.store.Reserve(s.ctx, s.tenant, 4)
	s.Require().NoError(err)
	s.Equal(4, b.Reserved)
	s.Equal(6, b.Available())

	_, err = s.store.Reserve(s.ctx, s.tenant, 7)
	s.ErrorIs(err, sentinel.ErrExhausted)

	_, err = s.store.Release(s.ctx, s.tenant, 5)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	b, err = s.store.Release(s.ctx, s.tenant, 4)
	s.Require().NoError(err)
	s.Equal(0, b.Reserved)
	s.Equal(10, b.Available())
}

func (s *LedgerSuite) TestTenantIsolation() {
	s.purchase(10)
	other := id.NewTenantID()

	b, err := s.store.Balance(s.ctx, other)
	s.Require().NoError(err)
	s.Equal(0, b.Purchased)

	entries, err := s.store.ListTransactions(s.ctx, other)
	s.Require().NoError(err)
	s.Empty(entries)
}

// TestConcurrentConsumeSameWorkflow: N parallel attempts on one workflow
// yield exactly one debit and N-1 already-used failures.
func TestConcurrentConsumeSameWorkflow(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	tenant := id.NewTenantID()
	now := time.Now().UTC()

	purchase, err := models.NewPurchase(tenant, 10, models.PriceFor(10), now)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendPurchase(ctx, purchase); err != nil {
		t.Fatal(err)
	}

	const attempts = 16
	workflowID := id.NewWorkflowID()
	subjectID := id.NewEmployeeID()

	var mu sync.Mutex
	succeeded, alreadyUsed := 0, 0

	g := new(errgroup.Group)
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			tx, err := models.NewUsage(tenant, workflowID, subjectID, now)
			if err != nil {
				return err
			}
			_, err = store.Consume(ctx, tx)
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				succeeded++
			case sentinel.ErrAlreadyUsed:
				alreadyUsed++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful debit, got %d", succeeded)
	}
	if alreadyUsed != attempts-1 {
		t.Fatalf("expected %d already-used failures, got %d", attempts-1, alreadyUsed)
	}

	b, err := store.Balance(ctx, tenant)
	if err != nil {
		t.Fatal(err)
	}
	if b.Used != 1 || b.Available() != 9 {
		t.Fatalf("expected used=1 available=9, got used=%d available=%d", b.Used, b.Available())
	}
}

// TestConcurrentActivations: purchased=10 and three distinct workflows
// activating concurrently ends with used=3, available=7, and three distinct
// transaction ids.
func TestConcurrentActivations(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	tenant := id.NewTenantID()
	now := time.Now().UTC()

	purchase, err := models.NewPurchase(tenant, 10, models.PriceFor(10), now)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendPurchase(ctx, purchase); err != nil {
		t.Fatal(err)
	}

	g := new(errgroup.Group)
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			tx, err := models.NewUsage(tenant, id.NewWorkflowID(), id.NewEmployeeID(), now)
			if err != nil {
				return err
			}
			_, err = store.Consume(ctx, tx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	b, err := store.Balance(ctx, tenant)
	if err != nil {
		t.Fatal(err)
	}
	if b.Used != 3 || b.Available() != 7 {
		t.Fatalf("expected used=3 available=7, got used=%d available=%d", b.Used, b.Available())
	}

	entries, err := store.ListTransactions(ctx, tenant)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[id.TransactionID]bool)
	for _, tx := range entries {
		if tx.Kind != models.KindUsage {
			continue
		}
		if seen[tx.ID] {
			t.Fatalf("duplicate usage transaction id %s", tx.ID)
		}
		seen[tx.ID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct usage transactions, got %d", len(seen))
	}
}

// TestBalanceInvariantUnderRandomInterleavings drives random Purchase,
// Consume, Reserve, and Release calls from several goroutines and checks
// available >= 0 and monotonic used after every observation.
func TestBalanceInvariantUnderRandomInterleavings(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	tenant := id.NewTenantID()
	now := time.Now().UTC()

	const workers = 8
	const opsPerWorker = 200

	g := new(errgroup.Group)
	for w := 0; w < workers; w++ {
		seed := int64(w + 1)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			// Each worker's observations are sequential, so used must be
			// non-decreasing within a worker.
			maxUsedSeen := 0
			for i := 0; i < opsPerWorker; i++ {
				switch rng.Intn(4) {
				case 0:
					amount := 1 + rng.Intn(5)
					tx, err := models.NewPurchase(tenant, amount, models.PriceFor(amount), now)
					if err != nil {
						return err
					}
					if _, err := store.AppendPurchase(ctx, tx); err != nil {
						return err
					}
				case 1:
					tx, err := models.NewUsage(tenant, id.NewWorkflowID(), id.NewEmployeeID(), now)
					if err != nil {
						return err
					}
					if _, err := store.Consume(ctx, tx); err != nil && err != sentinel.ErrExhausted {
						return err
					}
				case 2:
					if _, err := store.Reserve(ctx, tenant, 1+rng.Intn(3)); err != nil && err != sentinel.ErrExhausted {
						return err
					}
				case 3:
					if _, err := store.Release(ctx, tenant, 1); err != nil && err != sentinel.ErrInvalidState {
						return err
					}
				}

				b, err := store.Balance(ctx, tenant)
				if err != nil {
					return err
				}
				if b.Available() < 0 {
					t.Errorf("available went negative: %+v", b)
				}
				if b.Reserved < 0 {
					t.Errorf("reserved went negative: %+v", b)
				}
				if b.Used < maxUsedSeen {
					t.Errorf("used decreased from %d to %d", maxUsedSeen, b.Used)
				} else {
					maxUsedSeen = b.Used
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
