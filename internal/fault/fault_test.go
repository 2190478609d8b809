// internal/fault/fault_test.go
package fault

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", ErrNotFound, http.StatusNotFound, "not_found"},
		{"unavailable", ErrUnavailable, http.StatusConflict, "unavailable"},
		{"copies available", ErrCopiesAvailable, http.StatusConflict, "copies_available"},
		{"duplicate loan", ErrDuplicateLoan, http.StatusConflict, "duplicate_loan"},
		{"duplicate pending", ErrDuplicatePending, http.StatusConflict, "duplicate_pending"},
		{"already returned", ErrAlreadyReturned, http.StatusConflict, "already_returned"},
		{"already paid", ErrAlreadyPaid, http.StatusConflict, "already_paid"},
		{"amount mismatch", ErrAmountMismatch, http.StatusUnprocessableEntity, "amount_mismatch"},
		{"at capacity", ErrAtCapacity, http.StatusConflict, "at_capacity"},
		{"conflict", ErrConflict, http.StatusConflict, "conflict"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var body errorBody
			assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.wantCode, body.Code)
			assert.Equal(t, tc.err.Error(), body.Error)
		})
	}

	t.Run("wrapped domain error keeps its mapping", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, fmt.Errorf("claim copy: %w", ErrUnavailable))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("infrastructure error is masked", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var body errorBody
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "internal", body.Code)
		assert.NotContains(t, body.Error, "10.0.0.5")
	})
}

func TestCode(t *testing.T) {
	assert.Equal(t, "duplicate_loan", Code(ErrDuplicateLoan))
	assert.Equal(t, "unavailable", Code(fmt.Errorf("borrow: %w", ErrUnavailable)))
	assert.Equal(t, "internal", Code(errors.New("boom")))
}

func TestTranslateDB(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, TranslateDB(nil))
	})

	t.Run("serialization failure becomes conflict", func(t *testing.T) {
		err := TranslateDB(&pq.Error{Code: "40001"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("deadlock becomes conflict", func(t *testing.T) {
		err := TranslateDB(&pq.Error{Code: "40P01"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("unique violation becomes conflict", func(t *testing.T) {
		err := TranslateDB(&pq.Error{Code: "23505"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("wrapped driver error is unwrapped", func(t *testing.T) {
		wrapped := fmt.Errorf("insert: %w", &pq.Error{Code: "23503"})
		assert.ErrorIs(t, TranslateDB(wrapped), ErrConflict)
	})

	t.Run("unrelated errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		assert.Equal(t, boom, TranslateDB(boom))
	})
}
