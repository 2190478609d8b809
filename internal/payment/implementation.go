// internal/payment/implementation.go
package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"circula/internal/circulation"
	"circula/internal/fault"
	"circula/internal/observability"
)

type service struct {
	db     *sql.DB
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates the payment reconciler.
func NewService(db *sql.DB) Service {
	return &service{
		db:     db,
		tracer: otel.Tracer("circula/payment"),
		now:    time.Now,
	}
}

// PayFine settles a fine exactly once. The fine row is locked for the
// check-and-set, so two concurrent payments for the same fine serialize and
// the loser sees AlreadyPaid; payments against different fines never block
// each other.
func (s *service) PayFine(ctx context.Context, fineID uuid.UUID, amountPaid int64, paymentMethod string) (p *Payment, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.pay_fine",
		trace.WithAttributes(
			attribute.String("fine.id", fineID.String()),
			attribute.Int64("amount.cents", amountPaid),
		),
	)
	defer span.End()
	defer func() { observability.PaymentsTotal.WithLabelValues(outcome(err)).Inc() }()

	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment: %w", err)
	}
	defer tx.Rollback()

	var (
		amount int64
		status string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT amount_cents, status FROM fines WHERE id = $1 FOR UPDATE
	`, fineID).Scan(&amount, &status)
	if err == sql.ErrNoRows {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock fine: %w", err)
	}
	if status == circulation.FinePaid {
		return nil, fault.ErrAlreadyPaid
	}
	if amountPaid != amount {
		return nil, fault.ErrAmountMismatch
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE fines SET status = $1, paid_date = $2 WHERE id = $3 AND status = $4
	`, circulation.FinePaid, now, fineID, circulation.FineUnpaid)
	if err != nil {
		return nil, fmt.Errorf("settle fine: %w", fault.TranslateDB(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("settle fine rows: %w", err)
	}
	if affected == 0 {
		return nil, fault.ErrAlreadyPaid
	}

	p = &Payment{
		ID:            uuid.New(),
		FineID:        fineID,
		AmountPaid:    amountPaid,
		PaymentMethod: paymentMethod,
		PaymentDate:   now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, fine_id, amount_paid_cents, payment_method, payment_date)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.FineID, p.AmountPaid, p.PaymentMethod, p.PaymentDate)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", fault.TranslateDB(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment: %w", fault.TranslateDB(err))
	}

	span.SetAttributes(attribute.String("payment.id", p.ID.String()))
	return p, nil
}

// ListByUser returns every payment a user has made, newest first.
func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.fine_id, p.amount_paid_cents, p.payment_method, p.payment_date
		FROM payments p
		JOIN fines f ON f.id = p.fine_id
		JOIN transactions t ON t.id = f.transaction_id
		WHERE t.user_id = $1
		ORDER BY p.payment_date DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p := &Payment{}
		err := rows.Scan(&p.ID, &p.FineID, &p.AmountPaid, &p.PaymentMethod, &p.PaymentDate)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return fault.Code(err)
}
