// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
)

// Loan statuses. Overdue is never persisted: it is a view computed from the
// due date at read time, so the stored status cannot drift from the clock.
const (
	StatusBorrowed = "Borrowed"
	StatusReturned = "Returned"
	StatusOverdue  = "Overdue"
)

// Fine statuses.
const (
	FineUnpaid = "Unpaid"
	FinePaid   = "Paid"
)

// Transaction is a single borrow-to-return record for one copy and one user.
// It is a historical record and is never deleted; a return closes it.
type Transaction struct {
	ID         uuid.UUID  `json:"id"`
	BookID     uuid.UUID  `json:"book_id"`
	UserID     uuid.UUID  `json:"user_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Status     string     `json:"status"`
	// FineAmount is the accrued fine in cents: frozen at return time for
	// closed loans, computed against the clock for open ones.
	FineAmount int64 `json:"fine_amount_cents"`
}

// EffectiveStatus reports Overdue for an open loan past its due date.
func (t *Transaction) EffectiveStatus(now time.Time) string {
	if t.Status == StatusBorrowed && now.After(t.DueDate) {
		return StatusOverdue
	}
	return t.Status
}

// Fine is the monetary penalty frozen when an overdue loan is returned.
// Exactly one fine can exist per transaction.
type Fine struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	Amount        int64      `json:"amount_cents"`
	Status        string     `json:"status"`
	IssuedDate    time.Time  `json:"issued_date"`
	PaidDate      *time.Time `json:"paid_date,omitempty"`
}

// ReturnReceipt is the outcome of a successful return.
type ReturnReceipt struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	ReturnDate    time.Time `json:"return_date"`
	FineAmount    int64     `json:"fine_amount_cents"`
}
