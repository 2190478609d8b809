// internal/payment/implementation_test.go
package payment

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"

	"circula/internal/circulation"
	"circula/internal/fault"
)

func newTestService(db *sql.DB, now time.Time) *service {
	return &service{
		db:     db,
		tracer: otel.Tracer("circula/payment"),
		now:    func() time.Time { return now },
	}
}

func TestService_PayFine(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 3, 25, 10, 0, 0, 0, time.UTC)
	fineID := uuid.New()
	ctx := context.Background()

	fineRow := func(amount int64, status string) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"amount_cents", "status"}).AddRow(amount, status)
	}

	t.Run("settles an unpaid fine in full", func(t *testing.T) {
		svc := newTestService(db, now)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT amount_cents, status FROM fines").
			WithArgs(fineID).
			WillReturnRows(fineRow(150, circulation.FineUnpaid))
		mock.ExpectExec("UPDATE fines SET status").
			WithArgs(circulation.FinePaid, now, fineID, circulation.FineUnpaid).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO payments").
			WithArgs(sqlmock.AnyArg(), fineID, int64(150), "card", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		p, err := svc.PayFine(ctx, fineID, 150, "card")
		assert.NoError(t, err)
		assert.Equal(t, int64(150), p.AmountPaid)
		assert.Equal(t, now, p.PaymentDate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second payment is rejected", func(t *testing.T) {
		svc := newTestService(db, now)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT amount_cents, status FROM fines").
			WithArgs(fineID).
			WillReturnRows(fineRow(150, circulation.FinePaid))
		mock.ExpectRollback()

		_, err := svc.PayFine(ctx, fineID, 150, "card")
		assert.ErrorIs(t, err, fault.ErrAlreadyPaid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("amount must match the fine exactly", func(t *testing.T) {
		svc := newTestService(db, now)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT amount_cents, status FROM fines").
			WithArgs(fineID).
			WillReturnRows(fineRow(150, circulation.FineUnpaid))
		mock.ExpectRollback()

		_, err := svc.PayFine(ctx, fineID, 100, "card")
		assert.ErrorIs(t, err, fault.ErrAmountMismatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown fine reports not found", func(t *testing.T) {
		svc := newTestService(db, now)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT amount_cents, status FROM fines").
			WithArgs(fineID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := svc.PayFine(ctx, fineID, 150, "card")
		assert.ErrorIs(t, err, fault.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("racing settlement loses to the conditional update", func(t *testing.T) {
		svc := newTestService(db, now)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT amount_cents, status FROM fines").
			WithArgs(fineID).
			WillReturnRows(fineRow(150, circulation.FineUnpaid))
		mock.ExpectExec("UPDATE fines SET status").
			WithArgs(circulation.FinePaid, now, fineID, circulation.FineUnpaid).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := svc.PayFine(ctx, fineID, 150, "card")
		assert.ErrorIs(t, err, fault.ErrAlreadyPaid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestService_ListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 3, 25, 10, 0, 0, 0, time.UTC)
	userID := uuid.New()
	svc := newTestService(db, now)

	paymentID := uuid.New()
	fineID := uuid.New()

	mock.ExpectQuery("FROM payments p").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "fine_id", "amount_paid_cents", "payment_method", "payment_date"}).
			AddRow(paymentID, fineID, 150, "card", now))

	payments, err := svc.ListByUser(context.Background(), userID)
	assert.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, paymentID, payments[0].ID)
	assert.Equal(t, int64(150), payments[0].AmountPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}
