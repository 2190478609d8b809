// internal/chaos/experiments.go
package chaos

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"circula/internal/circulation"
	"circula/internal/inventory"
	"circula/internal/payment"
	"circula/internal/reservation"
)

// Targets are the live services the experiments hammer. Every experiment goes
// through the real service layer so the atomic claims and conditional updates
// under test are the ones production traffic exercises.
type Targets struct {
	Ledger       *inventory.Ledger
	Circulation  circulation.Service
	Reservations reservation.Service
	Payments     payment.Service
}

// RegisterExperiments wires the standard suite against the given targets.
func (e *Engine) RegisterExperiments(t Targets) {
	e.Register(e.ConcurrentBorrowRace(t, 50))
	e.Register(e.DoublePaymentRace(t, 20))
	e.Register(e.DuplicateReservationRace(t, 20))
}

// availabilityBounds counts books whose shelf count escaped [0, total].
func (e *Engine) availabilityBounds() Metric {
	return Metric{
		Name: "availability_bounds_violations",
		Query: func(ctx context.Context) (float64, error) {
			var violations int
			err := e.db.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM books
				WHERE available_copies < 0 OR available_copies > total_copies
			`).Scan(&violations)
			return float64(violations), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// ConcurrentBorrowRace fires many borrows of distinct users at a single-copy
// book. Exactly one may win; the rest must fail cleanly and the shelf count
// must stay within bounds.
func (e *Engine) ConcurrentBorrowRace(t Targets, concurrency int) Experiment {
	oversubscribed := Metric{
		Name: "oversubscribed_books",
		Query: func(ctx context.Context) (float64, error) {
			var count int
			err := e.db.QueryRowContext(ctx, `
				SELECT COUNT(*)
				FROM books b
				JOIN (
					SELECT book_id, COUNT(*) AS open
					FROM transactions
					WHERE status = 'Borrowed'
					GROUP BY book_id
				) o ON o.book_id = b.id
				WHERE o.open > b.total_copies
			`).Scan(&count)
			return float64(count), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}

	return Experiment{
		Name:        "concurrent-borrow-race",
		Hypothesis:  "Concurrent borrowers of the last copy never oversubscribe the book",
		SteadyState: []Metric{e.availabilityBounds(), oversubscribed},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					book, err := t.Ledger.AddBook(ctx, "Chaos Probe: Last Copy", "Chaos Suite", uuid.NewString(), 1)
					if err != nil {
						return err
					}

					var wg sync.WaitGroup
					for i := 0; i < concurrency; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							// Losers fail with a domain error, which is the point.
							t.Circulation.Borrow(ctx, book.ID, uuid.New())
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "oversubscribed_books",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "no book may have more open loans than total copies",
			},
			{
				Metric:    "availability_bounds_violations",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "available_copies must stay within [0, total_copies]",
			},
		},
		Duration: 10 * time.Second,
	}
}

// DoublePaymentRace settles the same fine from many goroutines at once.
// Exactly one payment may land.
func (e *Engine) DoublePaymentRace(t Targets, concurrency int) Experiment {
	multiPaid := Metric{
		Name: "fines_paid_more_than_once",
		Query: func(ctx context.Context) (float64, error) {
			var count int
			err := e.db.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM (
					SELECT fine_id FROM payments GROUP BY fine_id HAVING COUNT(*) > 1
				) d
			`).Scan(&count)
			return float64(count), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}

	return Experiment{
		Name:        "double-payment-race",
		Hypothesis:  "A fine settles at most once no matter how many payments race",
		SteadyState: []Metric{multiPaid},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "payment",
				Execute: func(ctx context.Context) error {
					fineID, err := e.seedOverdueFine(ctx, t, 150)
					if err != nil {
						return err
					}

					var wg sync.WaitGroup
					for i := 0; i < concurrency; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							t.Payments.PayFine(ctx, fineID, 150, "chaos-card")
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "fines_paid_more_than_once",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "a fine must never collect two payments",
			},
		},
		Duration: 10 * time.Second,
	}
}

// DuplicateReservationRace queues the same patron for the same exhausted book
// from many goroutines. At most one pending reservation may survive.
func (e *Engine) DuplicateReservationRace(t Targets, concurrency int) Experiment {
	duplicates := Metric{
		Name: "duplicate_pending_reservations",
		Query: func(ctx context.Context) (float64, error) {
			var count int
			err := e.db.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM (
					SELECT book_id, user_id
					FROM reservations
					WHERE status = 'Pending'
					GROUP BY book_id, user_id
					HAVING COUNT(*) > 1
				) d
			`).Scan(&count)
			return float64(count), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}

	return Experiment{
		Name:        "duplicate-reservation-race",
		Hypothesis:  "Racing reservations by one patron collapse to a single queue entry",
		SteadyState: []Metric{duplicates},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "reservation",
				Execute: func(ctx context.Context) error {
					book, err := t.Ledger.AddBook(ctx, "Chaos Probe: Exhausted", "Chaos Suite", uuid.NewString(), 0)
					if err != nil {
						return err
					}
					patron := uuid.New()

					var wg sync.WaitGroup
					for i := 0; i < concurrency; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							t.Reservations.Reserve(ctx, book.ID, patron)
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "duplicate_pending_reservations",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "one patron may hold at most one pending reservation per book",
			},
		},
		Duration: 10 * time.Second,
	}
}

// seedOverdueFine plants a closed overdue loan with an unpaid fine and returns
// the fine id.
func (e *Engine) seedOverdueFine(ctx context.Context, t Targets, amountCents int64) (uuid.UUID, error) {
	book, err := t.Ledger.AddBook(ctx, "Chaos Probe: Overdue", "Chaos Suite", uuid.NewString(), 1)
	if err != nil {
		return uuid.Nil, err
	}

	now := time.Now().UTC()
	txnID := uuid.New()
	_, err = e.db.ExecContext(ctx, `
		INSERT INTO transactions (id, book_id, user_id, borrow_date, due_date, return_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'Returned')
	`, txnID, book.ID, uuid.New(), now.AddDate(0, 0, -20), now.AddDate(0, 0, -6), now)
	if err != nil {
		return uuid.Nil, err
	}

	fineID := uuid.New()
	_, err = e.db.ExecContext(ctx, `
		INSERT INTO fines (id, transaction_id, amount_cents, status, issued_date)
		VALUES ($1, $2, $3, 'Unpaid', $4)
	`, fineID, txnID, amountCents, now)
	if err != nil {
		return uuid.Nil, err
	}
	return fineID, nil
}
