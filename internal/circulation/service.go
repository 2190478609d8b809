// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"
)

// Service drives the loan lifecycle.
type Service interface {
	Borrow(ctx context.Context, bookID, userID uuid.UUID) (*Transaction, error)
	Return(ctx context.Context, transactionID uuid.UUID) (*ReturnReceipt, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Transaction, error)
	ListFinesByUser(ctx context.Context, userID uuid.UUID) ([]*Fine, error)
}

// ReservationHooks is the slice of the reservation coordinator the loan
// lifecycle needs. A successful borrow completes the borrower's pending
// reservation; the hold check lets a grace-window earmark keep the last free
// copy for the promoted patron. The coordinator satisfies this interface
// structurally; a nil hooks value disables both behaviors.
type ReservationHooks interface {
	// HeldFor reports which patron, if any, the next free copy of the book
	// is currently earmarked for.
	HeldFor(ctx context.Context, bookID uuid.UUID) (uuid.UUID, bool)
	// Fulfill completes the user's pending reservation for the book, if one
	// exists, and releases their hold.
	Fulfill(ctx context.Context, bookID, userID uuid.UUID) error
}
