// internal/config/config.go
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the circulation engine. Values come from an
// optional .env file with environment variables taking precedence.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Circulation  CirculationConfig
	Fines        FinesConfig
	Reservations ReservationsConfig
	RateLimit    RateLimitConfig
	Telemetry    TelemetryConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type CirculationConfig struct {
	// LoanPeriodDays is the fixed loan duration: dueDate = borrowDate + period.
	LoanPeriodDays int
}

type FinesConfig struct {
	// RateCentsPerDay is charged per whole day a loan is late.
	RateCentsPerDay int64
	// CapCents bounds a single fine; 0 means uncapped.
	CapCents int64
}

type ReservationsConfig struct {
	// ExpiryDays is how long a pending reservation stays actionable.
	ExpiryDays int
	// GraceWindow is how long a freed copy stays earmarked for the patron at
	// the head of the queue. Zero disables earmarking entirely: promotion is
	// then purely advisory and any patron may re-race for the copy.
	GraceWindow time.Duration
	// SweepInterval drives the background expiry sweep.
	SweepInterval time.Duration
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type TelemetryConfig struct {
	// OTLPEndpoint is the collector address for trace export; empty disables
	// tracing.
	OTLPEndpoint string
}

// Load reads configuration with sane defaults for local development.
func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.ReadInConfig()

	viper.BindEnv("server.port", "PORT")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("circulation.loan_period_days", "LOAN_PERIOD_DAYS")
	viper.BindEnv("fines.rate_cents_per_day", "FINE_RATE_CENTS_PER_DAY")
	viper.BindEnv("fines.cap_cents", "FINE_CAP_CENTS")
	viper.BindEnv("reservations.expiry_days", "RESERVATION_EXPIRY_DAYS")
	viper.BindEnv("reservations.grace_window", "RESERVATION_GRACE_WINDOW")
	viper.BindEnv("reservations.sweep_interval", "RESERVATION_SWEEP_INTERVAL")
	viper.BindEnv("telemetry.otlp_endpoint", "OTLP_ENDPOINT")

	viper.SetDefault("server.port", "8080")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "circula")
	viper.SetDefault("database.password", "circula")
	viper.SetDefault("database.name", "circula")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("circulation.loan_period_days", 14)
	viper.SetDefault("fines.rate_cents_per_day", 50)
	viper.SetDefault("fines.cap_cents", 0)
	viper.SetDefault("reservations.expiry_days", 3)
	viper.SetDefault("reservations.grace_window", 24*time.Hour)
	viper.SetDefault("reservations.sweep_interval", time.Hour)
	viper.SetDefault("ratelimit.requests_per_second", 10.0)
	viper.SetDefault("ratelimit.burst", 20)
	viper.SetDefault("telemetry.otlp_endpoint", "")

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("database.host"),
			Port:            viper.GetString("database.port"),
			User:            viper.GetString("database.user"),
			Password:        viper.GetString("database.password"),
			Name:            viper.GetString("database.name"),
			SSLMode:         viper.GetString("database.ssl_mode"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Circulation: CirculationConfig{
			LoanPeriodDays: viper.GetInt("circulation.loan_period_days"),
		},
		Fines: FinesConfig{
			RateCentsPerDay: viper.GetInt64("fines.rate_cents_per_day"),
			CapCents:        viper.GetInt64("fines.cap_cents"),
		},
		Reservations: ReservationsConfig{
			ExpiryDays:    viper.GetInt("reservations.expiry_days"),
			GraceWindow:   viper.GetDuration("reservations.grace_window"),
			SweepInterval: viper.GetDuration("reservations.sweep_interval"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: viper.GetFloat64("ratelimit.requests_per_second"),
			Burst:             viper.GetInt("ratelimit.burst"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: viper.GetString("telemetry.otlp_endpoint"),
		},
	}
}

// LoanPeriod returns the configured loan duration.
func (c CirculationConfig) LoanPeriod() time.Duration {
	return time.Duration(c.LoanPeriodDays) * 24 * time.Hour
}

// Expiry returns the configured reservation lifetime.
func (c ReservationsConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryDays) * 24 * time.Hour
}
