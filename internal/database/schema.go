// internal/database/schema.go
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is applied at startup. Duplicate-loan and duplicate-reservation
// prevention are application-level checks layered on top of the atomic
// counter updates, so they deliberately have no unique index here. The fine
// is structurally 1:1 with its transaction once frozen.
const schema = `
CREATE TABLE IF NOT EXISTS books (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	isbn TEXT NOT NULL DEFAULT '',
	total_copies INT NOT NULL CHECK (total_copies >= 0),
	available_copies INT NOT NULL CHECK (available_copies >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (available_copies <= total_copies)
);

CREATE TABLE IF NOT EXISTS transactions (
	id UUID PRIMARY KEY,
	book_id UUID NOT NULL REFERENCES books (id),
	user_id UUID NOT NULL,
	borrow_date TIMESTAMPTZ NOT NULL,
	due_date TIMESTAMPTZ NOT NULL,
	return_date TIMESTAMPTZ,
	status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_book_user ON transactions (book_id, user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_id);

CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	seq BIGSERIAL,
	book_id UUID NOT NULL REFERENCES books (id),
	user_id UUID NOT NULL,
	reserved_at TIMESTAMPTZ NOT NULL,
	expiry_date TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reservations_queue ON reservations (book_id, status, reserved_at, seq);
CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations (user_id);

CREATE TABLE IF NOT EXISTS fines (
	id UUID PRIMARY KEY,
	transaction_id UUID NOT NULL UNIQUE REFERENCES transactions (id),
	amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
	status TEXT NOT NULL,
	issued_date TIMESTAMPTZ NOT NULL,
	paid_date TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	fine_id UUID NOT NULL REFERENCES fines (id),
	amount_paid_cents BIGINT NOT NULL,
	payment_method TEXT NOT NULL,
	payment_date TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables the engine needs if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
