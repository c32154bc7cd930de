package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func migrationTestPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "history.db")
}

// openRaw opens a plain connection for schema inspection, separate from
// any connection the migrator used.
func openRaw(t *testing.T, path string) *sql.DB {
	t.Helper()
	conn, err := NewSQLiteConnectionWithDefaults(path)
	if err != nil {
		t.Fatalf("open connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func schemaHas(t *testing.T, conn *sql.DB, objType, name string) bool {
	t.Helper()
	var n int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		objType, name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master lookup for %s %q: %v", objType, name, err)
	}
	return n > 0
}

func TestRunMigrations(t *testing.T) {
	t.Run("creates table and indexes", func(t *testing.T) {
		path := migrationTestPath(t)
		if err := RunMigrations(path); err != nil {
			t.Fatalf("RunMigrations() error = %v", err)
		}

		conn := openRaw(t, path)
		if !schemaHas(t, conn, "table", "generations") {
			t.Error("generations table missing")
		}
		for _, idx := range []string{"idx_generations_created_at", "idx_generations_request_id"} {
			if !schemaHas(t, conn, "index", idx) {
				t.Errorf("index %s missing", idx)
			}
		}
	})

	t.Run("declares every column the store uses", func(t *testing.T) {
		path := migrationTestPath(t)
		if err := RunMigrations(path); err != nil {
			t.Fatalf("RunMigrations() error = %v", err)
		}

		conn := openRaw(t, path)
		rows, err := conn.Query("SELECT name FROM pragma_table_info('generations')")
		if err != nil {
			t.Fatalf("pragma_table_info error = %v", err)
		}
		defer rows.Close()

		have := make(map[string]bool)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			have[name] = true
		}
		if err := rows.Err(); err != nil {
			t.Fatalf("rows error = %v", err)
		}

		for _, col := range []string{
			"id", "request_id", "prompt", "negative_prompt", "seed", "steps",
			"guidance", "width", "height", "scheduler", "device", "duration_ms",
			"status", "error_message", "created_at",
		} {
			if !have[col] {
				t.Errorf("column %q missing from generations", col)
			}
		}
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		path := migrationTestPath(t)
		if err := RunMigrations(path); err != nil {
			t.Fatalf("first RunMigrations() error = %v", err)
		}
		if err := RunMigrations(path); err != nil {
			t.Errorf("second RunMigrations() error = %v, want nil", err)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if err := RunMigrations(""); err == nil {
			t.Error("RunMigrations(\"\") succeeded, want error")
		}
	})

	t.Run("status check constraint holds", func(t *testing.T) {
		path := migrationTestPath(t)
		if err := RunMigrations(path); err != nil {
			t.Fatalf("RunMigrations() error = %v", err)
		}

		conn := openRaw(t, path)
		_, err := conn.Exec(`INSERT INTO generations
			(request_id, prompt, seed, steps, guidance, width, height, scheduler, status)
			VALUES ('req-1', 'a castle on a hill', 7, 28, 7.5, 768, 512, 'dpmsolver++', 'queued')`)
		if err == nil {
			t.Error("status outside (completed, failed) accepted, want CHECK violation")
		}
	})
}

func TestMigrationVersion(t *testing.T) {
	t.Run("unmigrated database reports zero", func(t *testing.T) {
		path := migrationTestPath(t)
		openRaw(t, path)

		version, dirty, err := MigrationVersion(path)
		if err != nil {
			t.Fatalf("MigrationVersion() error = %v", err)
		}
		if version != 0 {
			t.Errorf("version = %d, want 0", version)
		}
		if dirty {
			t.Error("dirty = true, want false")
		}
	})

	t.Run("tracks the applied version", func(t *testing.T) {
		path := migrationTestPath(t)
		if err := RunMigrations(path); err != nil {
			t.Fatalf("RunMigrations() error = %v", err)
		}

		version, dirty, err := MigrationVersion(path)
		if err != nil {
			t.Fatalf("MigrationVersion() error = %v", err)
		}
		if version != 1 {
			t.Errorf("version = %d, want 1", version)
		}
		if dirty {
			t.Error("dirty = true, want false")
		}
	})
}

func TestRollbackMigrations(t *testing.T) {
	t.Run("all the way down drops the schema", func(t *testing.T) {
		path := migrationTestPath(t)
		if err := RunMigrations(path); err != nil {
			t.Fatalf("RunMigrations() error = %v", err)
		}
		if err := RollbackMigrations(path, -1); err != nil {
			t.Fatalf("RollbackMigrations(-1) error = %v", err)
		}

		conn := openRaw(t, path)
		if schemaHas(t, conn, "table", "generations") {
			t.Error("generations table still present after full rollback")
		}
	})

	t.Run("by single steps", func(t *testing.T) {
		path := migrationTestPath(t)
		if err := RunMigrations(path); err != nil {
			t.Fatalf("RunMigrations() error = %v", err)
		}
		if err := RollbackMigrations(path, 1); err != nil {
			t.Fatalf("RollbackMigrations(1) error = %v", err)
		}

		version, _, err := MigrationVersion(path)
		if err != nil {
			t.Fatalf("MigrationVersion() error = %v", err)
		}
		if version != 0 {
			t.Errorf("version = %d, want 0 after rollback", version)
		}
	})

	t.Run("nothing applied is a no-op", func(t *testing.T) {
		path := migrationTestPath(t)
		openRaw(t, path)

		if err := RollbackMigrations(path, -1); err != nil {
			t.Errorf("RollbackMigrations() on empty db error = %v, want nil", err)
		}
	})
}
