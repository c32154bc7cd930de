// migrate.go applies the embedded schema migrations. The SQL files under
// migrations/ compile into the binary, so a deployment is a single
// executable with no migrations directory beside it.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationDatabaseName is the schema name golang-migrate records its
// bookkeeping under.
const migrationDatabaseName = "main"

// withMigrator opens a dedicated connection to the database at path,
// builds a migrator over the embedded files, and hands it to fn.
// golang-migrate takes ownership of any connection it is given and
// closes it, which is why the application's long-lived pool is never
// used here.
func withMigrator(path string, fn func(*migrate.Migrate) error) error {
	conn, err := NewSQLiteConnectionWithDefaults(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	m, err := newMigrator(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	return fn(m)
}

// RunMigrations brings the database at path up to the latest schema
// version. A database that is already current is not an error.
func RunMigrations(path string) error {
	return withMigrator(path, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		return nil
	})
}

// RollbackMigrations undoes the last steps migrations at path. Pass -1
// to roll everything back. Nothing to undo is not an error.
func RollbackMigrations(path string, steps int) error {
	return withMigrator(path, func(m *migrate.Migrate) error {
		down := m.Down
		if steps != -1 {
			down = func() error { return m.Steps(-steps) }
		}
		if err := down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}
		return nil
	})
}

// MigrationVersion reports the schema version at path and whether a
// migration died partway through (dirty). A database that has never
// been migrated reports version 0, clean.
func MigrationVersion(path string) (uint, bool, error) {
	var version uint
	var dirty bool
	err := withMigrator(path, func(m *migrate.Migrate) error {
		v, d, verr := m.Version()
		if verr != nil {
			if errors.Is(verr, migrate.ErrNilVersion) {
				return nil
			}
			return fmt.Errorf("failed to get migration version: %w", verr)
		}
		version, dirty = v, d
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

// newMigrator wires the embedded source and the sqlite driver into a
// migrator. Closing the migrator closes conn with it.
func newMigrator(conn *sql.DB) (*migrate.Migrate, error) {
	if conn == nil {
		return nil, errors.New("database connection is required")
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{
		DatabaseName: migrationDatabaseName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	return migrate.NewWithInstance("iofs", source, "sqlite", driver)
}
