// internal/circulation/finecalc.go
package circulation

import "time"

// FineCalculator derives a fine from how late a loan is. It is a pure
// function of its inputs: the same due date and as-of date always produce the
// same amount, which keeps fines reproducible independent of wall-clock
// timing.
type FineCalculator struct {
	// RatePerDay is the charge in cents per whole day late.
	RatePerDay int64
	// Cap bounds a single fine in cents; 0 means uncapped.
	Cap int64
}

// Compute returns the fine in cents as of the given instant. A loan returned
// on or before its due date, or a partial day late, owes nothing.
func (c FineCalculator) Compute(dueDate, asOf time.Time) int64 {
	if !asOf.After(dueDate) {
		return 0
	}

	daysLate := int64(asOf.Sub(dueDate) / (24 * time.Hour))
	amount := daysLate * c.RatePerDay
	if c.Cap > 0 && amount > c.Cap {
		amount = c.Cap
	}
	return amount
}
