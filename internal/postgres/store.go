// Package postgres is the PostgreSQL implementation of the booking store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookpoint/internal/config"
	"bookpoint/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

var (
	ErrConcurrentModification = domain.Errorf(domain.KindInvalidInput, "booking was modified concurrently")
	ErrDuplicateBookingCode   = errors.New("duplicate booking code")
)

// Store implements the booking repository on database/sql with either the
// pgx or the lib/pq driver.
type Store struct {
	db     *sql.DB
	logger *zerolog.Logger
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects with cfg.Driver ("pgx" or "postgres") and pings the server.
func Open(ctx context.Context, cfg config.PostgresConfig, logger *zerolog.Logger) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "pgx"
	}
	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(cfg.MaxConnections / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().Str("driver", driver).Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("PostgreSQL connected")
	return New(db, logger), nil
}

// New wraps an open *sql.DB.
func New(db *sql.DB, logger *zerolog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS services (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL CHECK (duration > 0),
		buffer_before INTEGER NOT NULL DEFAULT 0 CHECK (buffer_before >= 0),
		buffer_after INTEGER NOT NULL DEFAULT 0 CHECK (buffer_after >= 0),
		capacity_min INTEGER NOT NULL DEFAULT 1,
		capacity_max INTEGER NOT NULL DEFAULT 1,
		price NUMERIC(12,2) NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS extras (
		id BIGSERIAL PRIMARY KEY,
		service_id BIGINT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		price NUMERIC(12,2) NOT NULL DEFAULT 0,
		duration INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS staff (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		uses_custom_schedule BOOLEAN NOT NULL DEFAULT FALSE,
		schedule_json JSONB NOT NULL DEFAULT '{}',
		service_ids BIGINT[] NOT NULL DEFAULT '{}',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS availability (
		id BIGSERIAL PRIMARY KEY,
		staff_id BIGINT NOT NULL REFERENCES staff(id) ON DELETE CASCADE,
		date DATE NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		note TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		booking_code TEXT NOT NULL UNIQUE,
		service_id BIGINT NOT NULL,
		staff_id BIGINT NOT NULL,
		date DATE NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		buffer_before INTEGER NOT NULL DEFAULT 0,
		buffer_after INTEGER NOT NULL DEFAULT 0,
		party_size INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'pending',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		extra_ids BIGINT[] NOT NULL DEFAULT '{}',
		total NUMERIC(12,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		version BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id BIGSERIAL PRIMARY KEY,
		target TEXT NOT NULL DEFAULT '',
		task_type TEXT NOT NULL,
		booking_id BIGINT NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at TIMESTAMPTZ,
		next_retry_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_staff_date ON bookings(staff_id, date, status)`,
	`CREATE INDEX IF NOT EXISTS idx_availability_staff_date ON availability(staff_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_due ON sync_queue(status, next_retry_at)`,
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// Error codes we react to. Both drivers expose SQLSTATE.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == codeUniqueViolation
}

// isRetryable reports conflicts Postgres resolves by aborting one side.
func isRetryable(err error) bool {
	switch sqlState(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
