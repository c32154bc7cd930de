// database.go implements the Database organism that owns the connection
// lifecycle for the history store.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrDatabaseClosed is returned by operations attempted after Close.
var ErrDatabaseClosed = errors.New("database connection is closed")

// Database owns the history store's connection: it creates the file and
// its directory, opens SQLite in WAL mode, runs embedded migrations on
// request, and hands the pool to the store.
//
// Usage:
//
//	database, err := NewDatabase("/var/lib/sdserve/history.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer database.Close()
//
//	if err := database.Migrate(); err != nil {
//	    log.Fatal(err)
//	}
type Database struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// DatabaseConfig configures the Database organism.
type DatabaseConfig struct {
	// Path is the database file location.
	Path string
	// ConnectionConfig overrides the default SQLite settings when set.
	ConnectionConfig *ConnectionConfig
}

// NewDatabase opens the history database at path with default settings,
// creating parent directories as needed. Migrations are not run; call
// Migrate after construction.
func NewDatabase(path string) (*Database, error) {
	return NewDatabaseWithConfig(DatabaseConfig{Path: path})
}

// NewDatabaseWithConfig opens the history database with custom settings.
func NewDatabaseWithConfig(config DatabaseConfig) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	connConfig := DefaultConnectionConfig(config.Path)
	if config.ConnectionConfig != nil {
		connConfig = *config.ConnectionConfig
	}
	conn, err := NewSQLiteConnection(connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &Database{db: conn, path: config.Path}, nil
}

// Migrate applies pending embedded migrations. Safe to repeat; applied
// versions are skipped.
//
// golang-migrate takes ownership of any connection it is handed, so the
// runner opens its own short-lived connection instead of borrowing the
// one this organism holds.
func (d *Database) Migrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := RunMigrations(d.path); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// conn returns the live pool, or ErrDatabaseClosed after Close. The
// pool pointer itself stays valid for the Database's whole life; only
// the flag decides.
func (d *Database) conn() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDatabaseClosed
	}
	return d.db, nil
}

// DB exposes the underlying pool for the store. Callers must not close
// it; that is Close's job. After Close the pool rejects work with sql
// errors rather than panicking.
func (d *Database) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Path returns the database file location.
func (d *Database) Path() string {
	return d.path
}

// Close shuts the pool down. The Database must not be used afterwards.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Ping verifies the connection is alive, for readiness checks.
func (d *Database) Ping() error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return db.Ping()
}

// Stats reports connection pool statistics.
func (d *Database) Stats() sql.DBStats {
	db, err := d.conn()
	if err != nil {
		return sql.DBStats{}
	}
	return db.Stats()
}

// Exec runs a statement that returns no rows.
func (d *Database) Exec(query string, args ...interface{}) (sql.Result, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	return db.Exec(query, args...)
}

// Query runs a statement that returns rows.
func (d *Database) Query(query string, args ...interface{}) (*sql.Rows, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	return db.Query(query, args...)
}

// QueryRow runs a statement expected to return at most one row. A Row
// always comes back, even after Close; errors surface at Scan time.
func (d *Database) QueryRow(query string, args ...interface{}) *sql.Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.QueryRow(query, args...)
}
