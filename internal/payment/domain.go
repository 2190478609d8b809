// internal/payment/domain.go
package payment

import (
	"time"

	"github.com/google/uuid"
)

// Payment settles exactly one fine in full. Partial payments are not
// supported: AmountPaid always equals the fine's outstanding amount.
type Payment struct {
	ID            uuid.UUID `json:"id"`
	FineID        uuid.UUID `json:"fine_id"`
	AmountPaid    int64     `json:"amount_paid_cents"`
	PaymentMethod string    `json:"payment_method"`
	PaymentDate   time.Time `json:"payment_date"`
}
