// internal/reservation/service.go
package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service manages the wait queues.
type Service interface {
	Reserve(ctx context.Context, bookID, userID uuid.UUID) (*Reservation, error)
	Cancel(ctx context.Context, reservationID, callerUserID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Reservation, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
