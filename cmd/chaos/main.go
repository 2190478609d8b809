// cmd/chaos/main.go
package main

import (
	"context"
	"log"
	"time"

	"circula/internal/chaos"
	"circula/internal/circulation"
	"circula/internal/config"
	"circula/internal/database"
	"circula/internal/inventory"
	"circula/internal/payment"
	"circula/internal/reservation"
)

// Runs the chaos suite against a live database. Intended for a staging
// environment, never production: experiments seed probe rows and hammer the
// service layer with deliberately racing requests.
func main() {
	cfg := config.Load()
	ctx := context.Background()

	db := database.MustOpen(cfg.Database)
	defer db.Close()

	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	ledger := inventory.NewLedger(db)
	coordinator := reservation.NewCoordinator(db, ledger, nil, cfg.Reservations.Expiry(), 0)
	ledger.SetReleaseSignal(coordinator)

	calc := circulation.FineCalculator{
		RatePerDay: cfg.Fines.RateCentsPerDay,
		Cap:        cfg.Fines.CapCents,
	}

	engine := chaos.NewEngine(db)
	engine.RegisterExperiments(chaos.Targets{
		Ledger:       ledger,
		Circulation:  circulation.NewService(db, ledger, calc, coordinator, cfg.Circulation.LoanPeriod()),
		Reservations: coordinator,
		Payments:     payment.NewService(db),
	})

	gameDay := chaos.GameDay{
		Name:      "Circulation Invariants Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
	}

	if err := engine.ExecuteGameDay(ctx, gameDay); err != nil {
		log.Fatalf("game day failed: %v", err)
	}
}
