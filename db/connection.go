// Package db provides generation history storage: SQLite connection
// management, embedded migrations, and the generation record store.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Registers the cgo-free "sqlite" driver.
	_ "modernc.org/sqlite"
)

// ConnectionConfig holds the SQLite connection settings.
type ConnectionConfig struct {
	// Path is the database file path.
	Path string
	// BusyTimeout is how long a connection waits on a locked database,
	// in milliseconds.
	BusyTimeout int
	// MaxOpenConns caps concurrent connections. History writes funnel
	// through one worker, so the default keeps a single connection.
	MaxOpenConns int
	// MaxIdleConns caps idle pooled connections.
	MaxIdleConns int
	// ConnMaxLifetime recycles connections older than this. Zero keeps
	// them indefinitely.
	ConnMaxLifetime time.Duration
}

// DefaultConnectionConfig returns the settings the server runs with:
// WAL journaling, a 5 second lock wait, a single connection.
func DefaultConnectionConfig(path string) ConnectionConfig {
	return ConnectionConfig{
		Path:         path,
		BusyTimeout:  5000,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

// dsn renders a file: URI with per-connection pragmas. Carrying the
// pragmas in the DSN means every connection the pool ever opens gets
// them, not just the one that happened to run an Exec.
func (c ConnectionConfig) dsn() string {
	name := c.Path
	if !strings.HasPrefix(name, "file:") {
		name = "file:" + name
	}
	params := []string{
		"_pragma=journal_mode(WAL)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout),
		"_pragma=foreign_keys(1)",
	}
	return name + "?" + strings.Join(params, "&")
}

// NewSQLiteConnection opens the history database in WAL mode.
//
// WAL keeps readers unblocked while the writer appends, which is the
// history workload exactly: the API lists records while the async
// writer inserts. The journal mode is verified after opening because
// some filesystems silently refuse WAL.
func NewSQLiteConnection(config ConnectionConfig) (*sql.DB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		db.Close()
		return nil, fmt.Errorf("journal_mode is %q, want wal", mode)
	}

	return db, nil
}

// NewSQLiteConnectionWithDefaults opens path with DefaultConnectionConfig.
func NewSQLiteConnectionWithDefaults(path string) (*sql.DB, error) {
	return NewSQLiteConnection(DefaultConnectionConfig(path))
}
