// Package store provides database operations for the shakewatch application.
//
// This package handles persistence for the two independent catalogs: the
// snapshot metadata cache and the earthquake event store. Each catalog is a
// separate DuckDB database so the two remain independently writable; the
// only link between them is the weak event_id reference on snapshot rows.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/xtxerr/shakewatch/internal/errors"
)

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// DSN is the database path. Empty means in-memory (tests).
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// =============================================================================
// DB
// =============================================================================

// DB wraps a single DuckDB database.
//
// DB is safe for concurrent use.
type DB struct {
	db     *sql.DB
	config Config
	mu     sync.Mutex
	closed bool
}

// Open opens a DuckDB database and verifies connectivity.
//
// A failure here is fatal to the process: the returned error wraps
// errors.ErrStorageInit.
func Open(cfg Config) (*DB, error) {
	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, errors.NewStorageInit(cfg.DSN, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewStorageInit(cfg.DSN, err)
	}

	return &DB{
		db:     db,
		config: cfg,
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	return d.db.Close()
}

// Transaction executes a function within a database transaction.
//
// If the function returns an error, the transaction is rolled back.
// If the function returns nil, the transaction is committed.
func (d *DB) Transaction(fn func(*sql.Tx) error) error {
	return d.TransactionContext(context.Background(), fn)
}

// TransactionContext executes a function within a database transaction
// with context.
func (d *DB) TransactionContext(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Health checks database connectivity.
func (d *DB) Health(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate applies a named list of idempotent DDL statements.
func (d *DB) migrate(migrations []migration) error {
	for _, m := range migrations {
		if _, err := d.db.Exec(m.sql); err != nil {
			return errors.NewStorageInit(m.name, err)
		}
	}
	return nil
}

// migration is a single named, idempotent schema statement.
type migration struct {
	name string
	sql  string
}
