// internal/database/postgres.go
package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"circula/internal/config"
)

// Open connects to Postgres and configures the connection pool.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Println("database connection established")
	return db, nil
}

// MustOpen is Open with fatal error handling for service startup.
func MustOpen(cfg config.DatabaseConfig) *sql.DB {
	db, err := Open(cfg)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	return db
}
