// internal/observability/metrics.go
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Circulation metrics, exported on /metrics. Outcome labels carry the domain
// error code so dashboards can tell a lost race from an empty shelf.
var (
	BorrowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circula_borrows_total",
		Help: "Borrow attempts by outcome.",
	}, []string{"outcome"})

	ReturnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circula_returns_total",
		Help: "Return attempts by outcome.",
	}, []string{"outcome"})

	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circula_reservations_total",
		Help: "Reservation attempts by outcome.",
	}, []string{"outcome"})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circula_payments_total",
		Help: "Fine payment attempts by outcome.",
	}, []string{"outcome"})

	PromotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circula_promotions_total",
		Help: "Reservations surfaced as eligible-next after a copy was released.",
	})

	FineCentsAssessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circula_fine_cents_assessed_total",
		Help: "Total fine amount frozen at return time, in cents.",
	})

	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circula_reservations_expired_total",
		Help: "Pending reservations expired by the sweep.",
	})
)
