package validation

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sdserve/core"
)

// ModelCacheChecker verifies that model weights are where the runtime will
// look for them. This is a molecule over simple filesystem atoms: it never
// opens weight files, it only confirms they exist before the load spends
// minutes finding out they don't.
type ModelCacheChecker struct{}

// NewModelCacheChecker creates a new ModelCacheChecker.
func NewModelCacheChecker() *ModelCacheChecker {
	return &ModelCacheChecker{}
}

// CheckWeights validates the weight location for the configured model.
//
// With SD_MODEL_PATH set, the directory must exist and contain files.
// Without it, SD_OFFLINE_MODE=1 requires a warm download cache; online mode
// passes either way because the first load downloads what is missing.
func (c *ModelCacheChecker) CheckWeights() ValidationResult {
	modelPath := os.Getenv("SD_MODEL_PATH")
	offline := core.ParseBoolEnv("SD_OFFLINE_MODE", false)

	if modelPath != "" {
		files, bytes := dirStats(modelPath)
		if files == 0 {
			return ValidationResult{
				Message: fmt.Sprintf("No weight files at SD_MODEL_PATH=%s", modelPath),
				Error:   core.ErrModelCacheEmpty(modelPath),
			}
		}
		return ValidationResult{
			Valid:   true,
			Message: fmt.Sprintf("Local weights: %s in %d files", core.FormatBytes(bytes), files),
		}
	}

	cacheDir := modelCacheDir()
	files, bytes := dirStats(cacheDir)

	if offline {
		if files == 0 {
			return ValidationResult{
				Message: fmt.Sprintf("SD_OFFLINE_MODE is set but the cache at %s is empty", cacheDir),
				Error:   core.ErrModelCacheEmpty(cacheDir),
			}
		}
		return ValidationResult{
			Valid:   true,
			Message: fmt.Sprintf("Offline, cache holds %s", core.FormatBytes(bytes)),
		}
	}

	if files == 0 {
		return ValidationResult{
			Valid:   true,
			Message: "Cold cache, weights download on first load",
		}
	}
	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("Cache holds %s", core.FormatBytes(bytes)),
	}
}

// modelCacheDir returns where weights live: SD_MODEL_PATH when set, otherwise
// the huggingface cache under the user's home.
func modelCacheDir() string {
	if path := os.Getenv("SD_MODEL_PATH"); path != "" {
		return path
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "huggingface")
	}
	return "."
}

// dirStats returns the number of regular files under root and their combined
// size. A missing or unreadable root counts as empty.
func dirStats(root string) (files int, bytes int64) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files++
			bytes += info.Size()
		}
		return nil
	})
	return files, bytes
}
