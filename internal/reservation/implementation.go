// internal/reservation/implementation.go
package reservation

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"circula/internal/fault"
	"circula/internal/inventory"
	"circula/internal/observability"
)

// Coordinator owns the per-book wait queues. It listens for committed copy
// releases (inventory.ReleaseSignal) and surfaces the head of the queue as
// eligible-next. Promotion never borrows on a patron's behalf: with a grace
// window configured the freed copy is earmarked via the hold store, without
// one the signal is purely advisory and patrons re-race.
type Coordinator struct {
	db     *sql.DB
	ledger *inventory.Ledger
	holds  HoldStore
	expiry time.Duration
	grace  time.Duration
	tracer trace.Tracer
	now    func() time.Time
}

// NewCoordinator creates the coordinator. holds may be nil and grace may be
// zero; either disables earmarking.
func NewCoordinator(db *sql.DB, ledger *inventory.Ledger, holds HoldStore, expiry, grace time.Duration) *Coordinator {
	return &Coordinator{
		db:     db,
		ledger: ledger,
		holds:  holds,
		expiry: expiry,
		grace:  grace,
		tracer: otel.Tracer("circula/reservation"),
		now:    time.Now,
	}
}

// Reserve enqueues a patron for a book with no free copies. While copies
// exist the patron should borrow instead, so the request is rejected.
func (c *Coordinator) Reserve(ctx context.Context, bookID, userID uuid.UUID) (res *Reservation, err error) {
	ctx, span := c.tracer.Start(ctx, "reservation.reserve",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
			attribute.String("user.id", userID.String()),
		),
	)
	defer span.End()
	defer func() { observability.ReservationsTotal.WithLabelValues(outcome(err)).Inc() }()

	now := c.now().UTC()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback()

	av, err := c.ledger.AvailabilityIn(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if av.AvailableCopies > 0 {
		return nil, fault.ErrCopiesAvailable
	}

	var pending bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE book_id = $1 AND user_id = $2 AND status = $3
		)
	`, bookID, userID, StatusPending).Scan(&pending)
	if err != nil {
		return nil, fmt.Errorf("check pending reservation: %w", err)
	}
	if pending {
		return nil, fault.ErrDuplicatePending
	}

	res = &Reservation{
		ID:         uuid.New(),
		BookID:     bookID,
		UserID:     userID,
		ReservedAt: now,
		ExpiryDate: now.Add(c.expiry),
		Status:     StatusPending,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (id, book_id, user_id, reserved_at, expiry_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, res.ID, res.BookID, res.UserID, res.ReservedAt, res.ExpiryDate, res.Status)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", fault.TranslateDB(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", fault.TranslateDB(err))
	}

	span.SetAttributes(attribute.String("reservation.id", res.ID.String()))
	return res, nil
}

// Cancel withdraws a pending reservation. Only the reservation's owner may
// cancel it; anyone else sees NotFound rather than another patron's queue
// position.
func (c *Coordinator) Cancel(ctx context.Context, reservationID, callerUserID uuid.UUID) error {
	ctx, span := c.tracer.Start(ctx, "reservation.cancel",
		trace.WithAttributes(attribute.String("reservation.id", reservationID.String())),
	)
	defer span.End()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel: %w", err)
	}
	defer tx.Rollback()

	var (
		ownerID uuid.UUID
		status  string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, status FROM reservations WHERE id = $1 FOR UPDATE
	`, reservationID).Scan(&ownerID, &status)
	if err == sql.ErrNoRows {
		return fault.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock reservation: %w", err)
	}
	if ownerID != callerUserID {
		return fault.ErrNotFound
	}
	if status != StatusPending {
		return fault.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE reservations SET status = $1 WHERE id = $2 AND status = $3
	`, StatusCancelled, reservationID, StatusPending)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", fault.TranslateDB(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel: %w", fault.TranslateDB(err))
	}
	return nil
}

// ListByUser returns a patron's reservations, newest first.
func (c *Coordinator) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Reservation, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, book_id, user_id, reserved_at, expiry_date, status
		FROM reservations
		WHERE user_id = $1
		ORDER BY reserved_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*Reservation
	for rows.Next() {
		res := &Reservation{}
		err := rows.Scan(&res.ID, &res.BookID, &res.UserID, &res.ReservedAt, &res.ExpiryDate, &res.Status)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return reservations, nil
}

// ExpireStale transitions every pending reservation past its expiry to
// Expired. No inventory moves: the copy, if any, was never held against the
// reservation.
func (c *Coordinator) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := c.tracer.Start(ctx, "reservation.expire_stale")
	defer span.End()

	res, err := c.db.ExecContext(ctx, `
		UPDATE reservations
		SET status = $1
		WHERE status = $2 AND expiry_date < $3
	`, StatusExpired, StatusPending, now)
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", fault.TranslateDB(err))
	}

	expired, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire reservations rows: %w", err)
	}
	if expired > 0 {
		observability.ReservationsExpired.Add(float64(expired))
		log.Printf("expired %d stale reservations", expired)
	}
	span.SetAttributes(attribute.Int64("reservations.expired", expired))
	return expired, nil
}

// CopyFreed implements inventory.ReleaseSignal. The head of the book's
// pending queue becomes eligible-next: with a grace window the freed copy is
// earmarked for that patron, otherwise the promotion is only logged. Failures
// here are swallowed; promotion is advisory and must never undo a committed
// return.
func (c *Coordinator) CopyFreed(ctx context.Context, bookID uuid.UUID) {
	ctx, span := c.tracer.Start(ctx, "reservation.copy_freed",
		trace.WithAttributes(attribute.String("book.id", bookID.String())),
	)
	defer span.End()

	head, err := c.headPending(ctx, bookID)
	if err != nil {
		log.Printf("failed to find next reservation for book %s: %v", bookID, err)
		return
	}
	if head == nil {
		return
	}

	if c.holds != nil && c.grace > 0 {
		if err := c.holds.Place(ctx, bookID, head.UserID, c.grace); err != nil {
			log.Printf("failed to place hold for user %s on book %s: %v", head.UserID, bookID, err)
		}
	}

	observability.PromotionsTotal.Inc()
	span.SetAttributes(attribute.String("promoted.user_id", head.UserID.String()))
	log.Printf("book %s: user %s is next in line (reservation %s)", bookID, head.UserID, head.ID)
}

// headPending returns the first actionable reservation in the book's queue.
func (c *Coordinator) headPending(ctx context.Context, bookID uuid.UUID) (*Reservation, error) {
	res := &Reservation{}
	err := c.db.QueryRowContext(ctx, `
		SELECT id, book_id, user_id, reserved_at, expiry_date, status
		FROM reservations
		WHERE book_id = $1 AND status = $2 AND expiry_date > $3
		ORDER BY reserved_at, seq
		LIMIT 1
	`, bookID, StatusPending, c.now().UTC()).Scan(
		&res.ID, &res.BookID, &res.UserID, &res.ReservedAt, &res.ExpiryDate, &res.Status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query queue head: %w", err)
	}
	return res, nil
}

// HeldFor reports who the next free copy is earmarked for, if anyone.
func (c *Coordinator) HeldFor(ctx context.Context, bookID uuid.UUID) (uuid.UUID, bool) {
	if c.holds == nil || c.grace <= 0 {
		return uuid.Nil, false
	}
	userID, ok, err := c.holds.Get(ctx, bookID)
	if err != nil {
		log.Printf("failed to read hold for book %s: %v", bookID, err)
		return uuid.Nil, false
	}
	return userID, ok
}

// Fulfill completes the user's pending reservation after a successful borrow
// and releases their hold so the next release can promote someone else.
func (c *Coordinator) Fulfill(ctx context.Context, bookID, userID uuid.UUID) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE reservations
		SET status = $1
		WHERE book_id = $2 AND user_id = $3 AND status = $4
	`, StatusCompleted, bookID, userID, StatusPending)
	if err != nil {
		return fmt.Errorf("complete reservation: %w", fault.TranslateDB(err))
	}

	if c.holds != nil {
		if holder, ok, err := c.holds.Get(ctx, bookID); err == nil && ok && holder == userID {
			if err := c.holds.Clear(ctx, bookID); err != nil {
				log.Printf("failed to clear hold for book %s: %v", bookID, err)
			}
		}
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return fault.Code(err)
}
