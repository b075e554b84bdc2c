package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/mailspool/internal/db/migrations"
)

// Open opens the settings database and brings its schema up to date.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := runMigrations(pool); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// One writer at a time keeps SQLITE_BUSY away under concurrent requests.
	pool.SetMaxOpenConns(1)
	pool.SetMaxIdleConns(1)
	pool.SetConnMaxLifetime(0)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return pool, nil
}

func runMigrations(pool *sql.DB) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	dbDriver, err := sqlite.WithInstance(pool, &sqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return err
	}
	return m.Up()
}

// Queries wraps the option-table statements.
type Queries struct {
	pool *sql.DB
}

func New(pool *sql.DB) *Queries {
	return &Queries{pool: pool}
}

// GetOption returns the raw value stored under name, sql.ErrNoRows when the
// option was never set.
func (q *Queries) GetOption(ctx context.Context, name string) ([]byte, error) {
	var value []byte
	err := q.pool.QueryRowContext(ctx,
		`SELECT value FROM options WHERE name = ?`, name,
	).Scan(&value)
	return value, err
}

// UpsertOption stores value under name, replacing any previous value.
func (q *Queries) UpsertOption(ctx context.Context, name string, value []byte) error {
	_, err := q.pool.ExecContext(ctx, `
		INSERT INTO options (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, name, value)
	return err
}

// DeleteOption removes an option. Missing names are not an error.
func (q *Queries) DeleteOption(ctx context.Context, name string) error {
	_, err := q.pool.ExecContext(ctx, `DELETE FROM options WHERE name = ?`, name)
	return err
}
