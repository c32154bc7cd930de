package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sdserve/core"
	"sdserve/sdruntime"
)

// ValidationResult represents the result of a single configuration check.
// Warning marks results that should be surfaced but not block startup.
type ValidationResult struct {
	Valid   bool
	Warning bool
	Message string
	Error   error
}

// MinAuthKeyLength is the shortest API_KEY accepted. Anything shorter is
// guessable enough that running without auth would be more honest.
const MinAuthKeyLength = 16

// ConfigChecker validates the environment-derived server configuration before
// the model loads. This is a molecule that composes file existence, bounds,
// and scheduler-name checks; each Check method reads the same variables the
// config loader will, so a passing check means the server starts with exactly
// the values inspected here.
type ConfigChecker struct {
	envPath string // Path to .env file (default: ".env")
}

// NewConfigChecker creates a new ConfigChecker with default settings.
func NewConfigChecker() *ConfigChecker {
	return &ConfigChecker{
		envPath: ".env",
	}
}

// WithEnvPath sets a custom path for the .env file.
func (c *ConfigChecker) WithEnvPath(path string) *ConfigChecker {
	c.envPath = path
	return c
}

// CheckEnvFile reports whether the .env file exists. A missing file is a
// warning, not a failure: deployments that inject configuration through the
// process environment never ship one.
func (c *ConfigChecker) CheckEnvFile() ValidationResult {
	if err := CheckFileExists(c.envPath); err != nil {
		return ValidationResult{
			Warning: true,
			Message: fmt.Sprintf("No %s file. Using process environment only", c.envPath),
		}
	}
	return ValidationResult{
		Valid:   true,
		Message: "Environment file found",
	}
}

// CheckModelConfig validates SD_MODEL_ID, SD_DEVICE, and SD_DTYPE.
func (c *ConfigChecker) CheckModelConfig() ValidationResult {
	modelID := core.GetEnvOrDefault("SD_MODEL_ID", sdruntime.DefaultModelID)
	if strings.TrimSpace(modelID) == "" {
		return ValidationResult{
			Message: "SD_MODEL_ID is set but empty",
			Error:   core.ErrMissingConfig("SD_MODEL_ID"),
		}
	}

	device := core.GetEnvOrDefault("SD_DEVICE", sdruntime.DefaultDevice)
	if device != "cuda" && device != "cpu" {
		return ValidationResult{
			Message: fmt.Sprintf("SD_DEVICE=%q is not a supported device", device),
			Error:   core.ErrInvalidDevice(device),
		}
	}

	dtype := core.GetEnvOrDefault("SD_DTYPE", sdruntime.DefaultDtype)
	if dtype != "float16" && dtype != "float32" {
		return ValidationResult{
			Message: fmt.Sprintf("SD_DTYPE=%q is not a supported precision", dtype),
			Error:   core.ErrInvalidDtype(dtype),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("%s on %s (%s)", modelID, device, dtype),
	}
}

// CheckDefaults validates the SD_DEFAULT_* generation parameters against the
// request bounds. A default outside the bounds would make every request that
// omits the field fail validation, which is never what the operator meant.
func (c *ConfigChecker) CheckDefaults() ValidationResult {
	steps := core.ParseIntEnv("SD_DEFAULT_STEPS", sdruntime.DefaultSteps)
	if steps < sdruntime.MinSteps || steps > sdruntime.MaxSteps {
		return ValidationResult{
			Message: fmt.Sprintf("SD_DEFAULT_STEPS=%d is outside %d-%d", steps, sdruntime.MinSteps, sdruntime.MaxSteps),
			Error: core.ErrInvalidDefaults("SD_DEFAULT_STEPS",
				fmt.Sprintf("must be between %d and %d", sdruntime.MinSteps, sdruntime.MaxSteps)),
		}
	}

	guidance := core.ParseFloat64Env("SD_DEFAULT_GUIDANCE", sdruntime.DefaultGuidance)
	if guidance < sdruntime.MinGuidance || guidance > sdruntime.MaxGuidance {
		return ValidationResult{
			Message: fmt.Sprintf("SD_DEFAULT_GUIDANCE=%g is outside %g-%g", guidance, sdruntime.MinGuidance, sdruntime.MaxGuidance),
			Error: core.ErrInvalidDefaults("SD_DEFAULT_GUIDANCE",
				fmt.Sprintf("must be between %g and %g", sdruntime.MinGuidance, sdruntime.MaxGuidance)),
		}
	}

	height := core.ParseIntEnv("SD_DEFAULT_HEIGHT", sdruntime.DefaultHeight)
	width := core.ParseIntEnv("SD_DEFAULT_WIDTH", sdruntime.DefaultWidth)
	for _, dim := range []struct {
		name  string
		value int
	}{
		{"SD_DEFAULT_HEIGHT", height},
		{"SD_DEFAULT_WIDTH", width},
	} {
		if dim.value < sdruntime.MinImageSize || dim.value > sdruntime.MaxImageSize {
			return ValidationResult{
				Message: fmt.Sprintf("%s=%d is outside %d-%d", dim.name, dim.value, sdruntime.MinImageSize, sdruntime.MaxImageSize),
				Error: core.ErrInvalidDefaults(dim.name,
					fmt.Sprintf("must be between %d and %d", sdruntime.MinImageSize, sdruntime.MaxImageSize)),
			}
		}
		if dim.value%sdruntime.ImageSizeMultiple != 0 {
			return ValidationResult{
				Message: fmt.Sprintf("%s=%d is not a multiple of %d", dim.name, dim.value, sdruntime.ImageSizeMultiple),
				Error: core.ErrInvalidDefaults(dim.name,
					fmt.Sprintf("must be a multiple of %d", sdruntime.ImageSizeMultiple)),
			}
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("steps=%d guidance=%g size=%dx%d", steps, guidance, width, height),
	}
}

// CheckScheduler validates that SD_SCHEDULER resolves to a known solver.
func (c *ConfigChecker) CheckScheduler() ValidationResult {
	name := core.GetEnvOrDefault("SD_SCHEDULER", string(sdruntime.SchedulerDPMSolverPP))
	scheduler, ok := sdruntime.NormalizeScheduler(name)
	if !ok {
		return ValidationResult{
			Message: fmt.Sprintf("SD_SCHEDULER=%q. Valid schedulers: %s", name, strings.Join(sdruntime.SchedulerNames(), ", ")),
			Error:   core.ErrInvalidScheduler(name),
		}
	}
	return ValidationResult{
		Valid:   true,
		Message: string(scheduler),
	}
}

// CheckListenAddress validates the HOST and PORT variables.
func (c *ConfigChecker) CheckListenAddress() ValidationResult {
	host := core.GetEnvOrDefault("HOST", "0.0.0.0")
	port := core.ParseIntEnv("PORT", 8000)
	if port < 1 || port > 65535 {
		return ValidationResult{
			Message: fmt.Sprintf("PORT=%d is outside 1-65535", port),
			Error:   core.ErrInvalidPort(port),
		}
	}
	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("%s:%d", host, port),
	}
}

// CheckAuthKey validates the API_KEY / API_KEY_HASH pair. Exactly one may be
// set; neither set is a warning because an open server is a legitimate
// configuration on a trusted network.
func (c *ConfigChecker) CheckAuthKey() ValidationResult {
	key := os.Getenv("API_KEY")
	hash := os.Getenv("API_KEY_HASH")

	switch {
	case key != "" && hash != "":
		return ValidationResult{
			Message: "API_KEY and API_KEY_HASH are both set",
			Error:   core.ErrAuthConfigConflict(),
		}
	case key != "":
		if len(key) < MinAuthKeyLength {
			return ValidationResult{
				Message: fmt.Sprintf("API_KEY is %d characters, need %d", len(key), MinAuthKeyLength),
				Error:   core.ErrAuthKeyTooShort(MinAuthKeyLength),
			}
		}
		return ValidationResult{
			Valid:   true,
			Message: "Bearer auth enabled (plaintext key)",
		}
	case hash != "":
		if !looksLikeBcrypt(hash) {
			return ValidationResult{
				Message: "API_KEY_HASH does not look like a bcrypt hash",
				Error:   core.ErrInvalidAuthHash(),
			}
		}
		return ValidationResult{
			Valid:   true,
			Message: "Bearer auth enabled (bcrypt hash)",
		}
	default:
		return ValidationResult{
			Warning: true,
			Message: "No API_KEY set. Endpoints are unauthenticated",
		}
	}
}

// looksLikeBcrypt reports whether s has the shape of a bcrypt hash. Shape only;
// the real check is a bcrypt comparison at request time.
func looksLikeBcrypt(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// CheckDatabasePath validates that the history database location is usable.
func (c *ConfigChecker) CheckDatabasePath() ValidationResult {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		return ValidationResult{
			Valid:   true,
			Message: "History disabled (DB_PATH not set)",
		}
	}
	if err := CheckDirWritable(filepath.Dir(dbPath)); err != nil {
		return ValidationResult{
			Message: fmt.Sprintf("Cannot write history database at %s", dbPath),
			Error:   core.ErrPathNotWritable(dbPath, err.Error()),
		}
	}
	return ValidationResult{
		Valid:   true,
		Message: dbPath,
	}
}

// CheckLogPath validates that the log file location is usable.
func (c *ConfigChecker) CheckLogPath() ValidationResult {
	logFile := core.GetEnvOrDefault("LOG_FILE", "sdserve.log")
	if err := CheckDirWritable(filepath.Dir(logFile)); err != nil {
		return ValidationResult{
			Message: fmt.Sprintf("Cannot write log file at %s", logFile),
			Error:   core.ErrPathNotWritable(logFile, err.Error()),
		}
	}
	return ValidationResult{
		Valid:   true,
		Message: logFile,
	}
}

// CheckDiskSpace verifies there is room for model weights in the cache
// location. Warn-only: the server can run with cached weights on a full disk.
func (c *ConfigChecker) CheckDiskSpace() ValidationResult {
	target := modelCacheDir()
	info, err := GetDiskSpace(target)
	if err != nil {
		return ValidationResult{
			Warning: true,
			Message: fmt.Sprintf("Could not read free space for %s", target),
		}
	}
	if info.Free < RequiredModelBytes {
		return ValidationResult{
			Warning: true,
			Message: fmt.Sprintf("%s free at %s, first model download needs ~%s",
				info.FreeFormatted, target, core.FormatBytes(RequiredModelBytes)),
		}
	}
	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("%s free", info.FreeFormatted),
	}
}
