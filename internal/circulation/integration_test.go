// internal/circulation/integration_test.go
package circulation_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circula/internal/circulation"
	"circula/internal/database"
	"circula/internal/fault"
	"circula/internal/inventory"
	"circula/internal/payment"
	"circula/internal/reservation"
)

// stack is the full service graph wired over a real database. Tests run only
// when TEST_DATABASE_URL points at a disposable Postgres.
type stack struct {
	db          *sql.DB
	ledger      *inventory.Ledger
	coordinator *reservation.Coordinator
	circulation circulation.Service
	payments    payment.Service
}

func setupStack(t *testing.T) *stack {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.EnsureSchema(context.Background(), db))

	ledger := inventory.NewLedger(db)
	coordinator := reservation.NewCoordinator(db, ledger, nil, 3*24*time.Hour, 0)
	ledger.SetReleaseSignal(coordinator)

	calc := circulation.FineCalculator{RatePerDay: 50}
	return &stack{
		db:          db,
		ledger:      ledger,
		coordinator: coordinator,
		circulation: circulation.NewService(db, ledger, calc, coordinator, 14*24*time.Hour),
		payments:    payment.NewService(db),
	}
}

func TestConcurrentBorrowOfLastCopy(t *testing.T) {
	s := setupStack(t)
	ctx := context.Background()

	book, err := s.ledger.AddBook(ctx, "Single Copy Under Contention", "Integration Suite", uuid.NewString(), 1)
	require.NoError(t, err)

	const borrowers = 16
	var successes, rejections int64
	var wg sync.WaitGroup

	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.circulation.Borrow(ctx, book.ID, uuid.New())
			switch {
			case err == nil:
				atomic.AddInt64(&successes, 1)
			case errors.Is(err, fault.ErrUnavailable), errors.Is(err, fault.ErrConflict):
				atomic.AddInt64(&rejections, 1)
			default:
				t.Errorf("unexpected borrow error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes)
	assert.Equal(t, int64(borrowers-1), rejections)

	av, err := s.ledger.Availability(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, av.AvailableCopies)
}

func TestBorrowReserveReturnPromoteFlow(t *testing.T) {
	s := setupStack(t)
	ctx := context.Background()

	book, err := s.ledger.AddBook(ctx, "Contested Title", "Integration Suite", uuid.NewString(), 1)
	require.NoError(t, err)

	alice := uuid.New()
	bob := uuid.New()

	// Alice takes the only copy.
	loan, err := s.circulation.Borrow(ctx, book.ID, alice)
	require.NoError(t, err)

	// Bob cannot borrow or double-queue, but he can reserve.
	_, err = s.circulation.Borrow(ctx, book.ID, bob)
	assert.ErrorIs(t, err, fault.ErrUnavailable)

	res, err := s.coordinator.Reserve(ctx, book.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPending, res.Status)

	_, err = s.coordinator.Reserve(ctx, book.ID, bob)
	assert.ErrorIs(t, err, fault.ErrDuplicatePending)

	// Backdate the due date so the return freezes a fine.
	_, err = s.db.ExecContext(ctx,
		`UPDATE transactions SET due_date = $1 WHERE id = $2`,
		time.Now().UTC().Add(-3*24*time.Hour), loan.ID)
	require.NoError(t, err)

	receipt, err := s.circulation.Return(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), receipt.FineAmount)

	// A second return must not restock or charge again.
	_, err = s.circulation.Return(ctx, loan.ID)
	assert.ErrorIs(t, err, fault.ErrAlreadyReturned)

	// Bob borrows the freed copy; his reservation completes.
	_, err = s.circulation.Borrow(ctx, book.ID, bob)
	require.NoError(t, err)

	bobsReservations, err := s.coordinator.ListByUser(ctx, bob)
	require.NoError(t, err)
	require.Len(t, bobsReservations, 1)
	assert.Equal(t, reservation.StatusCompleted, bobsReservations[0].Status)

	// Settle Alice's fine exactly once.
	fines, err := s.circulation.ListFinesByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, fines, 1)

	_, err = s.payments.PayFine(ctx, fines[0].ID, 100, "card")
	assert.ErrorIs(t, err, fault.ErrAmountMismatch)

	paid, err := s.payments.PayFine(ctx, fines[0].ID, 150, "card")
	require.NoError(t, err)
	assert.Equal(t, int64(150), paid.AmountPaid)

	_, err = s.payments.PayFine(ctx, fines[0].ID, 150, "card")
	assert.ErrorIs(t, err, fault.ErrAlreadyPaid)
}
