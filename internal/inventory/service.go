// internal/inventory/service.go
package inventory

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx. Ledger mutations take it as
// a parameter so a caller can fold the copy claim into its own transaction:
// a borrow's claim and loan insert commit together or not at all.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// ReleaseSignal is notified after a released copy has been committed. The
// reservation coordinator implements it; the wiring happens in main so the
// ledger never depends on the reservation package.
type ReleaseSignal interface {
	CopyFreed(ctx context.Context, bookID uuid.UUID)
}

// Service is the catalog-administration face of the ledger.
type Service interface {
	AddBook(ctx context.Context, title, author, isbn string, totalCopies int) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, upd BookUpdate) (*Book, error)
	RemoveBook(ctx context.Context, id uuid.UUID) error
	Availability(ctx context.Context, id uuid.UUID) (*Availability, error)
}
