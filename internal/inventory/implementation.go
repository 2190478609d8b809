// internal/inventory/implementation.go
package inventory

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
)

// Ledger owns the per-book copy counts. Every mutation of available_copies
// is a single conditional UPDATE so concurrent claimers of the last copy
// cannot both succeed, regardless of which process handles the request.
type Ledger struct {
	db     *sql.DB
	signal ReleaseSignal
	tracer trace.Tracer
}

// NewLedger creates the ledger over the given database.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{
		db:     db,
		tracer: otel.Tracer("circula/inventory"),
	}
}

// SetReleaseSignal registers the listener notified after committed releases.
func (l *Ledger) SetReleaseSignal(s ReleaseSignal) {
	l.signal = s
}

// ClaimCopy atomically decrements available_copies, but only while more than
// minAvailable copies remain. minAvailable is 0 for an ordinary borrow and 1
// while the last free copy is earmarked for a promoted reservation holder.
func (l *Ledger) ClaimCopy(ctx context.Context, q DBTX, bookID uuid.UUID, minAvailable int) error {
	ctx, span := l.tracer.Start(ctx, "inventory.claim_copy",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
			attribute.Int("min.available", minAvailable),
		),
	)
	defer span.End()

	res, err := q.ExecContext(ctx, `
		UPDATE books
		SET available_copies = available_copies - 1, updated_at = NOW()
		WHERE id = $1 AND available_copies > $2
	`, bookID, minAvailable)
	if err != nil {
		return fmt.Errorf("claim copy: %w", fault.TranslateDB(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim copy rows: %w", err)
	}
	if affected == 0 {
		span.SetAttributes(attribute.Bool("claim.rejected", true))
		return l.existsOr(ctx, q, bookID, fault.ErrUnavailable)
	}
	return nil
}

// ReleaseCopy atomically increments available_copies, but never beyond
// total_copies. A release that would exceed capacity reports ErrAtCapacity;
// that happens when an administrator shrank the stock while copies were out.
func (l *Ledger) ReleaseCopy(ctx context.Context, q DBTX, bookID uuid.UUID) error {
	ctx, span := l.tracer.Start(ctx, "inventory.release_copy",
		trace.WithAttributes(attribute.String("book.id", bookID.String())),
	)
	defer span.End()

	res, err := q.ExecContext(ctx, `
		UPDATE books
		SET available_copies = available_copies + 1, updated_at = NOW()
		WHERE id = $1 AND available_copies < total_copies
	`, bookID)
	if err != nil {
		return fmt.Errorf("release copy: %w", fault.TranslateDB(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release copy rows: %w", err)
	}
	if affected == 0 {
		span.SetAttributes(attribute.Bool("release.rejected", true))
		return l.existsOr(ctx, q, bookID, fault.ErrAtCapacity)
	}
	return nil
}

// existsOr disambiguates a rejected conditional update: unknown book versus
// a counter already at its bound.
func (l *Ledger) existsOr(ctx context.Context, q DBTX, bookID uuid.UUID, boundErr error) error {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check book exists: %w", err)
	}
	if !exists {
		return fault.ErrNotFound
	}
	return boundErr
}

// AnnounceRelease notifies the reservation coordinator that a copy of the
// book is free. Callers invoke it after their own unit of work committed so
// the signal never observes an uncommitted release.
func (l *Ledger) AnnounceRelease(ctx context.Context, bookID uuid.UUID) {
	if l.signal == nil {
		return
	}
	l.signal.CopyFreed(ctx, bookID)
}

// Availability reports the copy counts for a book.
func (l *Ledger) Availability(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return l.AvailabilityIn(ctx, l.db, id)
}

// AvailabilityIn is Availability inside a caller-owned transaction.
func (l *Ledger) AvailabilityIn(ctx context.Context, q DBTX, id uuid.UUID) (*Availability, error) {
	av := &Availability{}
	err := q.QueryRowContext(ctx,
		`SELECT total_copies, available_copies FROM books WHERE id = $1`, id,
	).Scan(&av.TotalCopies, &av.AvailableCopies)
	if err == sql.ErrNoRows {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	return av, nil
}

// AddBook registers a new title. Every copy starts on the shelf.
func (l *Ledger) AddBook(ctx context.Context, title, author, isbn string, totalCopies int) (*Book, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.add_book")
	defer span.End()

	if totalCopies < 0 {
		totalCopies = 0
	}

	now := time.Now().UTC()
	book := &Book{
		ID:              uuid.New(),
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO books (id, title, author, isbn, total_copies, available_copies, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, book.ID, book.Title, book.Author, book.ISBN, book.TotalCopies, book.AvailableCopies, book.CreatedAt, book.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert book: %w", fault.TranslateDB(err))
	}

	span.SetAttributes(attribute.String("book.id", book.ID.String()))
	return book, nil
}

// GetBook retrieves a book by id.
func (l *Ledger) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	book := &Book{}
	err := l.db.QueryRowContext(ctx, `
		SELECT id, title, author, isbn, total_copies, available_copies, created_at, updated_at
		FROM books
		WHERE id = $1
	`, id).Scan(
		&book.ID, &book.Title, &book.Author, &book.ISBN,
		&book.TotalCopies, &book.AvailableCopies, &book.CreatedAt, &book.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query book: %w", err)
	}
	return book, nil
}

// UpdateBook applies an administrative edit. When the total shrinks below the
// count of copies on the shelf, available_copies is clamped down with it; any
// deficit against copies still checked out is tracked implicitly by the open
// transactions. An explicit available_copies correction is clamped into
// [0, total].
func (l *Ledger) UpdateBook(ctx context.Context, id uuid.UUID, upd BookUpdate) (*Book, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.update_book",
		trace.WithAttributes(attribute.String("book.id", id.String())),
	)
	defer span.End()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	book := &Book{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, title, author, isbn, total_copies, available_copies, created_at, updated_at
		FROM books
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&book.ID, &book.Title, &book.Author, &book.ISBN,
		&book.TotalCopies, &book.AvailableCopies, &book.CreatedAt, &book.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock book: %w", err)
	}

	if upd.Title != nil {
		book.Title = *upd.Title
	}
	if upd.Author != nil {
		book.Author = *upd.Author
	}
	if upd.ISBN != nil {
		book.ISBN = *upd.ISBN
	}
	if upd.TotalCopies != nil {
		book.TotalCopies = *upd.TotalCopies
		if book.TotalCopies < 0 {
			book.TotalCopies = 0
		}
	}
	if upd.AvailableCopies != nil {
		book.AvailableCopies = *upd.AvailableCopies
	}
	book.AvailableCopies = clamp(book.AvailableCopies, 0, book.TotalCopies)
	book.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, total_copies = $4, available_copies = $5, updated_at = $6
		WHERE id = $7
	`, book.Title, book.Author, book.ISBN, book.TotalCopies, book.AvailableCopies, book.UpdatedAt, book.ID)
	if err != nil {
		return nil, fmt.Errorf("update book: %w", fault.TranslateDB(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return book, nil
}

// RemoveBook deletes a title. Books with open loans or pending reservations
// stay: the historical and queued records must not dangle.
func (l *Ledger) RemoveBook(ctx context.Context, id uuid.UUID) error {
	ctx, span := l.tracer.Start(ctx, "inventory.remove_book",
		trace.WithAttributes(attribute.String("book.id", id.String())),
	)
	defer span.End()

	var blocked bool
	err := l.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE book_id = $1 AND status = 'Borrowed')
		    OR EXISTS (SELECT 1 FROM reservations WHERE book_id = $1 AND status = 'Pending')
	`, id).Scan(&blocked)
	if err != nil {
		return fmt.Errorf("check references: %w", err)
	}
	if blocked {
		return fault.ErrConflict
	}

	res, err := l.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", fault.TranslateDB(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete book rows: %w", err)
	}
	if affected == 0 {
		return fault.ErrNotFound
	}

	log.Printf("book %s removed from inventory", id)
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
