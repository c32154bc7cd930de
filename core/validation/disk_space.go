package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"sdserve/core"
)

// DiskSpaceInfo describes the filesystem backing a path. The formatted
// fields hold human-readable forms of the byte counts.
type DiskSpaceInfo struct {
	Path           string
	Total          int64
	Free           int64
	Used           int64
	TotalFormatted string
	FreeFormatted  string
	UsedFormatted  string
	UsedPercent    float64
}

// DiskSpaceError reports that a path's filesystem cannot hold what is
// about to be written there.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("not enough disk space at %s: %s required, %s free",
		e.Path, core.FormatBytes(e.Required), core.FormatBytes(e.Available))
}

// GetDiskSpace measures the filesystem holding path. The path may be a
// file, a directory, or something not created yet; it resolves through
// the nearest existing ancestor, so a cache directory that first use
// will create can still be checked.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	dir, err := nearestExistingDir(path)
	if err != nil {
		return nil, err
	}

	total, free, err := getDiskSpace(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", dir, err)
	}

	used := total - free
	var usedPercent float64
	if total > 0 {
		usedPercent = float64(used) / float64(total) * 100
	}

	return &DiskSpaceInfo{
		Path:           dir,
		Total:          total,
		Free:           free,
		Used:           used,
		TotalFormatted: core.FormatBytes(total),
		FreeFormatted:  core.FormatBytes(free),
		UsedFormatted:  core.FormatBytes(used),
		UsedPercent:    usedPercent,
	}, nil
}

// nearestExistingDir walks up from path until it reaches a directory
// that exists. Files resolve to their parent, so the measurement lands
// on the filesystem that holds them.
func nearestExistingDir(path string) (string, error) {
	current := filepath.Clean(path)
	for {
		info, err := os.Stat(current)
		switch {
		case err == nil && info.IsDir():
			return current, nil
		case err == nil:
			current = filepath.Dir(current)
		case os.IsNotExist(err):
			parent := filepath.Dir(current)
			if parent == current {
				return "", fmt.Errorf("cannot access path %s: %w", path, err)
			}
			current = parent
		default:
			return "", fmt.Errorf("cannot access path %s: %w", path, err)
		}
	}
}

// CheckDiskSpace returns a *DiskSpaceError when the filesystem holding
// path has less than requiredBytes free.
func CheckDiskSpace(path string, requiredBytes int64) error {
	info, err := GetDiskSpace(path)
	if err != nil {
		return err
	}

	if info.Free < requiredBytes {
		return &DiskSpaceError{Path: path, Required: requiredBytes, Available: info.Free}
	}

	return nil
}

// DefaultModelSizeBytes is the typical on-disk size of a cached stable
// diffusion v1.5 checkpoint with tokenizer and VAE alongside (~4GB).
const DefaultModelSizeBytes int64 = 4 * core.BytesPerGB

// DefaultBufferPercent is the extra headroom added for partial downloads
// and temporary files.
const DefaultBufferPercent = 10

// RequiredModelBytes is the free space a first model download needs:
// DefaultModelSizeBytes plus the buffer.
const RequiredModelBytes int64 = DefaultModelSizeBytes + DefaultModelSizeBytes*DefaultBufferPercent/100

// CheckDiskSpaceForModel checks there is room for model weights of the
// given size plus bufferPercent extra headroom.
func CheckDiskSpaceForModel(path string, modelSizeBytes int64, bufferPercent int) error {
	buffer := modelSizeBytes * int64(bufferPercent) / 100
	return CheckDiskSpace(path, modelSizeBytes+buffer)
}

// CheckDiskSpaceForDefaultModel checks there is room for a typical
// checkpoint download with the default headroom.
func CheckDiskSpaceForDefaultModel(path string) error {
	return CheckDiskSpaceForModel(path, DefaultModelSizeBytes, DefaultBufferPercent)
}
