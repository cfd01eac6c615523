// Package migrations manages the SQLite schema of the orchestration store.
// The migration files are embedded so a featd binary can always bring any
// older database up to the schema it was built against.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/featden/featd/internal/log"
)

//go:embed sql/*.sql
var schemaFiles embed.FS

// Migrator applies the embedded schema migrations to a SQLite database.
type Migrator struct {
	db     *sql.DB
	logger log.Logger
}

// NewMigrator creates a migrator bound to the given database handle.
func NewMigrator(db *sql.DB, logger log.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Migrator{db: db, logger: logger}, nil
}

// Up applies every pending migration. An already up-to-date schema is not an
// error.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.step((*migrate.Migrate).Up); err != nil {
		return fmt.Errorf("could not apply schema migrations: %w", err)
	}
	m.logger.Debugf("Schema is up to date")
	return nil
}

// Down reverts every applied migration, used by tests and disaster recovery.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.step((*migrate.Migrate).Down); err != nil {
		return fmt.Errorf("could not revert schema migrations: %w", err)
	}
	m.logger.Debugf("Schema reverted")
	return nil
}

// step runs one migration direction over the embedded sources, treating "no
// change" as success.
func (m *Migrator) step(direction func(*migrate.Migrate) error) error {
	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not prepare sqlite driver: %w", err)
	}

	src, err := iofs.New(schemaFiles, "sql")
	if err != nil {
		return fmt.Errorf("could not open embedded migration files: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.logger.Errorf("Could not close migration source: %v", err)
		}
	}()

	inst, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	if err := direction(inst); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
