package validation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte("port: 8080"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Run("regular file", func(t *testing.T) {
		if err := CheckFileExists(file); err != nil {
			t.Errorf("CheckFileExists() error = %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		err := CheckFileExists(filepath.Join(dir, "absent.yaml"))
		var feErr *FileExistsError
		if !errors.As(err, &feErr) {
			t.Fatalf("error = %v, want *FileExistsError", err)
		}
		if feErr.Path == "" {
			t.Error("Path not recorded on the error")
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if err := CheckFileExists(""); err == nil {
			t.Error("CheckFileExists(\"\") succeeded, want error")
		}
	})

	t.Run("directory rejected", func(t *testing.T) {
		err := CheckFileExists(dir)
		var feErr *FileExistsError
		if !errors.As(err, &feErr) {
			t.Fatalf("error = %v, want *FileExistsError", err)
		}
	})
}

func TestCheckEnvFileExists(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		chdir(t, t.TempDir())
		if err := CheckEnvFileExists(); err == nil {
			t.Error("CheckEnvFileExists() succeeded without a .env file")
		}
	})

	t.Run("present", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=8080\n"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		chdir(t, dir)
		if err := CheckEnvFileExists(); err != nil {
			t.Errorf("CheckEnvFileExists() error = %v", err)
		}
	})
}

func TestCheckDirWritable(t *testing.T) {
	t.Run("writable directory", func(t *testing.T) {
		if err := CheckDirWritable(t.TempDir()); err != nil {
			t.Errorf("CheckDirWritable() error = %v", err)
		}
	})

	t.Run("creates missing directories", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "state", "logs")
		if err := CheckDirWritable(dir); err != nil {
			t.Fatalf("CheckDirWritable() error = %v", err)
		}
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("directory was not created: %v", err)
		}
	})

	t.Run("empty means the current directory", func(t *testing.T) {
		chdir(t, t.TempDir())
		if err := CheckDirWritable(""); err != nil {
			t.Errorf("CheckDirWritable(\"\") error = %v", err)
		}
	})

	t.Run("file in the way", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if err := CheckDirWritable(filepath.Join(blocker, "sub")); err == nil {
			t.Error("CheckDirWritable() succeeded under a file, want error")
		}
	})

	t.Run("probe file is removed", func(t *testing.T) {
		dir := t.TempDir()
		if err := CheckDirWritable(dir); err != nil {
			t.Fatalf("CheckDirWritable() error = %v", err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir() error = %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("probe left %d entries behind", len(entries))
		}
	})
}
