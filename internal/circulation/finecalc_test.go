// internal/circulation/finecalc_test.go
package circulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestFineCalculator_Compute(t *testing.T) {
	due := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	calc := FineCalculator{RatePerDay: 50}

	cases := []struct {
		name string
		asOf time.Time
		want int64
	}{
		{"returned early", due.Add(-48 * time.Hour), 0},
		{"returned exactly on time", due, 0},
		{"partial day late owes nothing", due.Add(23 * time.Hour), 0},
		{"one full day late", due.Add(24 * time.Hour), 50},
		{"one and a half days late", due.Add(36 * time.Hour), 50},
		{"ten days late", due.Add(240 * time.Hour), 500},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, calc.Compute(due, tc.asOf))
		})
	}

	t.Run("cap bounds the fine", func(t *testing.T) {
		capped := FineCalculator{RatePerDay: 50, Cap: 120}
		assert.Equal(t, int64(120), capped.Compute(due, due.Add(240*time.Hour)))
		assert.Equal(t, int64(100), capped.Compute(due, due.Add(48*time.Hour)))
	})
}

func TestFineCalculator_Properties(t *testing.T) {
	due := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("never negative", rapid.MakeCheck(func(t *rapid.T) {
		calc := FineCalculator{
			RatePerDay: rapid.Int64Range(0, 10_000).Draw(t, "rate"),
			Cap:        rapid.Int64Range(0, 100_000).Draw(t, "cap"),
		}
		offset := rapid.Int64Range(-365*24, 365*24).Draw(t, "hoursLate")
		fine := calc.Compute(due, due.Add(time.Duration(offset)*time.Hour))
		if fine < 0 {
			t.Fatalf("fine went negative: %d", fine)
		}
	}))

	t.Run("monotone in lateness", rapid.MakeCheck(func(t *rapid.T) {
		calc := FineCalculator{RatePerDay: rapid.Int64Range(1, 1_000).Draw(t, "rate")}
		a := rapid.Int64Range(0, 365*24).Draw(t, "hoursA")
		b := rapid.Int64Range(0, 365*24).Draw(t, "hoursB")
		if a > b {
			a, b = b, a
		}
		fineA := calc.Compute(due, due.Add(time.Duration(a)*time.Hour))
		fineB := calc.Compute(due, due.Add(time.Duration(b)*time.Hour))
		if fineA > fineB {
			t.Fatalf("later return owed less: %d at %dh vs %d at %dh", fineA, a, fineB, b)
		}
	}))

	t.Run("cap is an upper bound", rapid.MakeCheck(func(t *rapid.T) {
		calc := FineCalculator{
			RatePerDay: rapid.Int64Range(1, 10_000).Draw(t, "rate"),
			Cap:        rapid.Int64Range(1, 100_000).Draw(t, "cap"),
		}
		offset := rapid.Int64Range(0, 10*365*24).Draw(t, "hoursLate")
		fine := calc.Compute(due, due.Add(time.Duration(offset)*time.Hour))
		if fine > calc.Cap {
			t.Fatalf("fine %d exceeds cap %d", fine, calc.Cap)
		}
	}))
}
