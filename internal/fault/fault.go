// internal/fault/fault.go
package fault

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/lib/pq"
)

// Domain outcomes. All of these are recoverable and caller-visible; none of
// them is ever fatal to the process.
var (
	ErrNotFound         = errors.New("entity not found")
	ErrUnavailable      = errors.New("no copies available")
	ErrCopiesAvailable  = errors.New("copies are available, borrow instead of reserving")
	ErrDuplicateLoan    = errors.New("an open loan for this book already exists for this user")
	ErrDuplicatePending = errors.New("a pending reservation for this book already exists for this user")
	ErrAlreadyReturned  = errors.New("loan has already been returned")
	ErrAlreadyPaid      = errors.New("fine has already been paid")
	ErrAmountMismatch   = errors.New("payment amount does not match the outstanding fine")
	ErrAtCapacity       = errors.New("all copies are already on the shelf")
	ErrConflict         = errors.New("lost a concurrent update race, retry the operation")
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps a domain error onto an HTTP status and a stable machine code.
func statusFor(err error) (int, string, bool) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found", true
	case errors.Is(err, ErrUnavailable):
		return http.StatusConflict, "unavailable", true
	case errors.Is(err, ErrCopiesAvailable):
		return http.StatusConflict, "copies_available", true
	case errors.Is(err, ErrDuplicateLoan):
		return http.StatusConflict, "duplicate_loan", true
	case errors.Is(err, ErrDuplicatePending):
		return http.StatusConflict, "duplicate_pending", true
	case errors.Is(err, ErrAlreadyReturned):
		return http.StatusConflict, "already_returned", true
	case errors.Is(err, ErrAlreadyPaid):
		return http.StatusConflict, "already_paid", true
	case errors.Is(err, ErrAmountMismatch):
		return http.StatusUnprocessableEntity, "amount_mismatch", true
	case errors.Is(err, ErrAtCapacity):
		return http.StatusConflict, "at_capacity", true
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict", true
	}
	return 0, "", false
}

// Code returns the stable machine code for a domain error, or "internal" for
// anything outside the taxonomy. Metrics label their outcomes with it.
func Code(err error) string {
	if _, code, ok := statusFor(err); ok {
		return code
	}
	return "internal"
}

// WriteError renders a domain error with its specific rejection message.
// Anything outside the taxonomy is an infrastructure failure: it is logged
// server-side and surfaced as a generic retryable message, never the
// internal detail.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if status, code, ok := statusFor(err); ok {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(errorBody{Error: err.Error(), Code: code})
		return
	}

	log.Printf("infrastructure error: %v", err)
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(errorBody{Error: "temporary failure, please try again", Code: "internal"})
}

// TranslateDB maps driver-level failures onto the domain taxonomy.
// Serialization failures and deadlocks mean the caller lost a race on an
// atomic update and should retry the high-level operation; constraint
// violations mean a concurrent writer got there first.
func TranslateDB(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return ErrConflict
		case "23505": // unique_violation
			return ErrConflict
		case "23503": // foreign_key_violation
			return ErrConflict
		}
	}
	return err
}
