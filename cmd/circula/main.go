// cmd/circula/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"circula/internal/circulation"
	"circula/internal/config"
	"circula/internal/database"
	"circula/internal/inventory"
	"circula/internal/middleware"
	"circula/internal/observability"
	"circula/internal/payment"
	"circula/internal/reservation"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}

	db := database.MustOpen(cfg.Database)
	defer db.Close()

	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	rdb := database.OpenRedis(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	var holds reservation.HoldStore
	if rdb != nil {
		holds = reservation.NewRedisHoldStore(rdb)
	}

	ledger := inventory.NewLedger(db)
	coordinator := reservation.NewCoordinator(db, ledger, holds, cfg.Reservations.Expiry(), cfg.Reservations.GraceWindow)
	ledger.SetReleaseSignal(coordinator)

	calc := circulation.FineCalculator{
		RatePerDay: cfg.Fines.RateCentsPerDay,
		Cap:        cfg.Fines.CapCents,
	}
	circSvc := circulation.NewService(db, ledger, calc, coordinator, cfg.Circulation.LoanPeriod())
	paySvc := payment.NewService(db)

	invHandler := inventory.NewHandler(ledger)
	circHandler := circulation.NewHandler(circSvc)
	resHandler := reservation.NewHandler(coordinator)
	payHandler := payment.NewHandler(paySvc)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/books", invHandler.HandleAddBook)
		r.Get("/books/{bookID}", invHandler.HandleGetBook)
		r.Patch("/books/{bookID}", invHandler.HandleUpdateBook)
		r.Delete("/books/{bookID}", invHandler.HandleRemoveBook)
		r.Get("/books/{bookID}/availability", invHandler.HandleAvailability)

		r.Post("/borrow", circHandler.HandleBorrow)
		r.Post("/transactions/{transactionID}/return", circHandler.HandleReturn)
		r.Get("/transactions/{transactionID}", circHandler.HandleGetTransaction)
		r.Get("/users/{userID}/transactions", circHandler.HandleListByUser)
		r.Get("/users/{userID}/fines", circHandler.HandleListFines)

		r.Post("/reservations", resHandler.HandleReserve)
		r.Post("/reservations/{reservationID}/cancel", resHandler.HandleCancel)
		r.Get("/users/{userID}/reservations", resHandler.HandleListByUser)
		r.Post("/reservations/expire", resHandler.HandleExpireStale)

		r.Post("/fines/{fineID}/pay", payHandler.HandlePayFine)
		r.Get("/users/{userID}/payments", payHandler.HandleListByUser)
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	go runExpirySweep(sweepCtx, coordinator, cfg.Reservations.SweepInterval)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("circulation service listening on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("server shutting down...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}

	log.Println("server stopped")
}

// runExpirySweep periodically expires stale pending reservations.
func runExpirySweep(ctx context.Context, coordinator *reservation.Coordinator, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := coordinator.ExpireStale(ctx, time.Now().UTC()); err != nil {
				log.Printf("reservation expiry sweep failed: %v", err)
			}
		}
	}
}
