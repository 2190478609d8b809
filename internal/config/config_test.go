// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	assert.Equal(t, 14, cfg.Circulation.LoanPeriodDays)
	assert.Equal(t, int64(50), cfg.Fines.RateCentsPerDay)
	assert.Equal(t, int64(0), cfg.Fines.CapCents)
	assert.Equal(t, 3, cfg.Reservations.ExpiryDays)
	assert.Equal(t, 24*time.Hour, cfg.Reservations.GraceWindow)
	assert.Equal(t, time.Hour, cfg.Reservations.SweepInterval)

	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOAN_PERIOD_DAYS", "7")
	t.Setenv("FINE_RATE_CENTS_PER_DAY", "25")
	t.Setenv("RESERVATION_GRACE_WINDOW", "12h")

	cfg := Load()

	assert.Equal(t, 7, cfg.Circulation.LoanPeriodDays)
	assert.Equal(t, int64(25), cfg.Fines.RateCentsPerDay)
	assert.Equal(t, 12*time.Hour, cfg.Reservations.GraceWindow)

	assert.Equal(t, 7*24*time.Hour, cfg.Circulation.LoanPeriod())
	assert.Equal(t, 3*24*time.Hour, cfg.Reservations.Expiry())
}
