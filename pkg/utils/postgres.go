package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Pool defaults. Every balance mutation in the service runs on this pool, so
// idle connections stay warm instead of churning under send bursts.
const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	openPingTimeout = 5 * time.Second
)

// PostgresPoolConfig overrides the pool defaults. The zero value is valid and
// is what the API process uses.
type PostgresPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// OpenPostgres opens a database/sql handle (driverName is "pgx" here),
// applies pool limits and verifies connectivity before returning.
// The dsn carries credentials and must never be logged.
func OpenPostgres(ctx context.Context, driverName, dsn string, pool PostgresPoolConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(intOr(pool.MaxOpenConns, defaultMaxOpenConns))
	db.SetMaxIdleConns(intOr(pool.MaxIdleConns, defaultMaxIdleConns))
	db.SetConnMaxLifetime(durationOr(pool.ConnMaxLifetime, defaultConnMaxLifetime))
	db.SetConnMaxIdleTime(durationOr(pool.ConnMaxIdleTime, defaultConnMaxIdleTime))

	if err := HealthCheck(ctx, db, openPingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// HealthCheck pings the database with a bounded timeout. Used at startup and
// by the liveness endpoint.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("db ping failed: %w", err)
	}
	return nil
}

// TxFunc runs inside a transaction started by WithTx.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx wraps fn in a transaction: rollback on error or panic, commit
// otherwise. The ledger runs every credit and admin debit through here so the
// balance update and its adjustment row land together.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
