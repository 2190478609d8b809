// internal/reservation/domain.go
package reservation

import (
	"time"

	"github.com/google/uuid"
)

// Reservation statuses.
const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusExpired   = "Expired"
	StatusCancelled = "Cancelled"
)

// Reservation is a queued claim on the next copy of a currently exhausted
// title. Reservations for a book form a FIFO queue ordered by ReservedAt;
// ties are broken by insertion order.
type Reservation struct {
	ID         uuid.UUID `json:"id"`
	BookID     uuid.UUID `json:"book_id"`
	UserID     uuid.UUID `json:"user_id"`
	ReservedAt time.Time `json:"reserved_at"`
	ExpiryDate time.Time `json:"expiry_date"`
	Status     string    `json:"status"`
}
