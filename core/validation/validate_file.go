package validation

import (
	"fmt"
	"os"
)

// FileExistsError names the path that failed an existence check.
type FileExistsError struct {
	Path    string
	Message string
}

func (e *FileExistsError) Error() string {
	return e.Message
}

// CheckFileExists reports whether a regular file exists at path. It
// returns nil on success and a *FileExistsError naming the problem
// otherwise.
func CheckFileExists(path string) error {
	fail := func(format string, args ...interface{}) error {
		return &FileExistsError{Path: path, Message: fmt.Sprintf(format, args...)}
	}

	if path == "" {
		return fail("file path cannot be empty")
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return fail("file not found: %s", path)
	case err != nil:
		return fail("error checking file %s: %v", path, err)
	case info.IsDir():
		return fail("path is a directory, not a file: %s", path)
	}

	return nil
}

// CheckEnvFileExists checks for a .env file in the current directory.
func CheckEnvFileExists() error {
	return CheckFileExists(".env")
}

// CheckDirWritable verifies that dir exists (or can be created) and
// accepts writes, by creating and removing a probe file. An empty dir
// means the current directory.
func CheckDirWritable(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}
