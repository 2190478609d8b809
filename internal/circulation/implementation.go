// internal/circulation/implementation.go
package circulation

import (
	"context"
	"database/sql"
	"errors"
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

// service implements the Service interface over Postgres. A borrow's copy
// claim and loan insert share one database transaction, as do a return's
// status flip, fine freeze and copy release: no partial state is ever
// observable.
type service struct {
	db           *sql.DB
	ledger       *inventory.Ledger
	calc         FineCalculator
	reservations ReservationHooks
	loanPeriod   time.Duration
	tracer       trace.Tracer
	now          func() time.Time
}

// NewService creates a circulation service. hooks may be nil, which disables
// reservation completion and grace-window earmarking.
func NewService(db *sql.DB, ledger *inventory.Ledger, calc FineCalculator, hooks ReservationHooks, loanPeriod time.Duration) Service {
	return &service{
		db:           db,
		ledger:       ledger,
		calc:         calc,
		reservations: hooks,
		loanPeriod:   loanPeriod,
		tracer:       otel.Tracer("circula/circulation"),
		now:          time.Now,
	}
}

// Borrow claims a copy and opens a loan.
func (s *service) Borrow(ctx context.Context, bookID, userID uuid.UUID) (txn *Transaction, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.borrow",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
			attribute.String("user.id", userID.String()),
		),
	)
	defer span.End()
	defer func() { observability.BorrowsTotal.WithLabelValues(outcome(err)).Inc() }()

	now := s.now().UTC()

	// A live hold earmarks the next free copy for the promoted patron: other
	// borrowers may only claim while more than one copy remains.
	minAvailable := 0
	if s.reservations != nil {
		if holder, ok := s.reservations.HeldFor(ctx, bookID); ok && holder != userID {
			minAvailable = 1
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin borrow: %w", err)
	}
	defer tx.Rollback()

	var open bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE book_id = $1 AND user_id = $2 AND status = $3
		)
	`, bookID, userID, StatusBorrowed).Scan(&open)
	if err != nil {
		return nil, fmt.Errorf("check open loan: %w", err)
	}
	if open {
		return nil, fault.ErrDuplicateLoan
	}

	if err := s.ledger.ClaimCopy(ctx, tx, bookID, minAvailable); err != nil {
		return nil, err
	}

	txn = &Transaction{
		ID:         uuid.New(),
		BookID:     bookID,
		UserID:     userID,
		BorrowDate: now,
		DueDate:    now.Add(s.loanPeriod),
		Status:     StatusBorrowed,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, book_id, user_id, borrow_date, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, txn.ID, txn.BookID, txn.UserID, txn.BorrowDate, txn.DueDate, txn.Status)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", fault.TranslateDB(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit borrow: %w", fault.TranslateDB(err))
	}

	span.SetAttributes(attribute.String("transaction.id", txn.ID.String()))

	if s.reservations != nil {
		if err := s.reservations.Fulfill(ctx, bookID, userID); err != nil {
			log.Printf("failed to complete reservation for user %s on book %s: %v", userID, bookID, err)
		}
	}

	return txn, nil
}

// Return closes a loan exactly once: the second return of the same
// transaction fails with AlreadyReturned and neither releases inventory nor
// charges again. An overdue loan has its fine frozen here.
func (s *service) Return(ctx context.Context, transactionID uuid.UUID) (receipt *ReturnReceipt, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(attribute.String("transaction.id", transactionID.String())),
	)
	defer span.End()
	defer func() { observability.ReturnsTotal.WithLabelValues(outcome(err)).Inc() }()

	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin return: %w", err)
	}
	defer tx.Rollback()

	var (
		bookID  uuid.UUID
		dueDate time.Time
		status  string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT book_id, due_date, status
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, transactionID).Scan(&bookID, &dueDate, &status)
	if err == sql.ErrNoRows {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock transaction: %w", err)
	}
	if status == StatusReturned {
		return nil, fault.ErrAlreadyReturned
	}

	fine := s.calc.Compute(dueDate, now)
	if fine > 0 {
		var recorded bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM fines WHERE transaction_id = $1)`, transactionID,
		).Scan(&recorded)
		if err != nil {
			return nil, fmt.Errorf("check fine: %w", err)
		}
		if !recorded {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO fines (id, transaction_id, amount_cents, status, issued_date)
				VALUES ($1, $2, $3, $4, $5)
			`, uuid.New(), transactionID, fine, FineUnpaid, now)
			if err != nil {
				return nil, fmt.Errorf("insert fine: %w", fault.TranslateDB(err))
			}
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, return_date = $2
		WHERE id = $3 AND status = $4
	`, StatusReturned, now, transactionID, StatusBorrowed)
	if err != nil {
		return nil, fmt.Errorf("close transaction: %w", fault.TranslateDB(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("close transaction rows: %w", err)
	}
	if affected == 0 {
		return nil, fault.ErrAlreadyReturned
	}

	// The release can legitimately hit the capacity bound when an
	// administrator shrank the stock while this copy was out: the loan still
	// closes, the copy just no longer fits the shelf.
	released := true
	if err := s.ledger.ReleaseCopy(ctx, tx, bookID); err != nil {
		if !errors.Is(err, fault.ErrAtCapacity) {
			return nil, err
		}
		released = false
		log.Printf("book %s returned above capacity, copy not restocked", bookID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit return: %w", fault.TranslateDB(err))
	}

	if fine > 0 {
		observability.FineCentsAssessed.Add(float64(fine))
	}
	span.SetAttributes(
		attribute.Int64("fine.cents", fine),
		attribute.Bool("copy.restocked", released),
	)

	if released {
		s.ledger.AnnounceRelease(ctx, bookID)
	}

	return &ReturnReceipt{
		TransactionID: transactionID,
		ReturnDate:    now,
		FineAmount:    fine,
	}, nil
}

// GetTransaction retrieves one loan with its fine view.
func (s *service) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.book_id, t.user_id, t.borrow_date, t.due_date, t.return_date, t.status,
		       COALESCE(f.amount_cents, 0)
		FROM transactions t
		LEFT JOIN fines f ON f.transaction_id = t.id
		WHERE t.id = $1
	`, id)

	txn, err := s.scanTransaction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	return txn, nil
}

// ListByUser returns a user's loans, newest first.
func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.book_id, t.user_id, t.borrow_date, t.due_date, t.return_date, t.status,
		       COALESCE(f.amount_cents, 0)
		FROM transactions t
		LEFT JOIN fines f ON f.transaction_id = t.id
		WHERE t.user_id = $1
		ORDER BY t.borrow_date DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn, err := s.scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// scanTransaction builds the read view: overdue status and the accrued fine
// for open loans are computed against the clock, never stored.
func (s *service) scanTransaction(scan func(...interface{}) error) (*Transaction, error) {
	txn := &Transaction{}
	var (
		returnDate sql.NullTime
		frozen     int64
	)
	err := scan(
		&txn.ID, &txn.BookID, &txn.UserID, &txn.BorrowDate, &txn.DueDate,
		&returnDate, &txn.Status, &frozen,
	)
	if err != nil {
		return nil, err
	}
	if returnDate.Valid {
		t := returnDate.Time
		txn.ReturnDate = &t
	}

	now := s.now().UTC()
	if txn.Status == StatusBorrowed {
		txn.FineAmount = s.calc.Compute(txn.DueDate, now)
		txn.Status = txn.EffectiveStatus(now)
	} else {
		txn.FineAmount = frozen
	}
	return txn, nil
}

// ListFinesByUser returns every fine frozen against a user's loans.
func (s *service) ListFinesByUser(ctx context.Context, userID uuid.UUID) ([]*Fine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.transaction_id, f.amount_cents, f.status, f.issued_date, f.paid_date
		FROM fines f
		JOIN transactions t ON t.id = f.transaction_id
		WHERE t.user_id = $1
		ORDER BY f.issued_date DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query fines: %w", err)
	}
	defer rows.Close()

	var fines []*Fine
	for rows.Next() {
		fine := &Fine{}
		var paidDate sql.NullTime
		err := rows.Scan(&fine.ID, &fine.TransactionID, &fine.Amount, &fine.Status, &fine.IssuedDate, &paidDate)
		if err != nil {
			return nil, fmt.Errorf("scan fine: %w", err)
		}
		if paidDate.Valid {
			t := paidDate.Time
			fine.PaidDate = &t
		}
		fines = append(fines, fine)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fines: %w", err)
	}
	return fines, nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return fault.Code(err)
}
