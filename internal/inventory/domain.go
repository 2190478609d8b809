// internal/inventory/domain.go
package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Book is a title in circulation. AvailableCopies is derived state: only the
// ledger's claim/release operations move it, except for an explicit
// administrative correction, which is clamped into [0, TotalCopies].
type Book struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn,omitempty"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Availability is the copy-count view served to callers.
type Availability struct {
	TotalCopies     int `json:"total_copies"`
	AvailableCopies int `json:"available_copies"`
}

// BookUpdate carries an administrative edit. Nil fields are left unchanged.
// AvailableCopies set here is the explicit inventory correction case.
type BookUpdate struct {
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	ISBN            *string `json:"isbn"`
	TotalCopies     *int    `json:"total_copies"`
	AvailableCopies *int    `json:"available_copies"`
}
