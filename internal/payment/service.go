// internal/payment/service.go
package payment

import (
	"context"

	"github.com/google/uuid"
)

// Service reconciles payments against outstanding fines.
type Service interface {
	PayFine(ctx context.Context, fineID uuid.UUID, amountPaid int64, paymentMethod string) (*Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Payment, error)
}
