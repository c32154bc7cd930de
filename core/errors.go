package core

import (
	"errors"
	"fmt"
)

// ConfigError is a startup configuration failure with a stable code and
// a suggested fix that log output shows next to the message.
type ConfigError struct {
	Code    string
	Message string
	Action  string
}

// Error joins the message and the suggested fix.
func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Stable codes, one per validation failure class.
const (
	ErrCodeMissingConfig    = "MISSING_CONFIG"
	ErrCodeInvalidDevice    = "INVALID_DEVICE"
	ErrCodeInvalidDtype     = "INVALID_DTYPE"
	ErrCodeInvalidScheduler = "INVALID_SCHEDULER"
	ErrCodeInvalidDefaults  = "INVALID_DEFAULTS"
	ErrCodeInvalidPort      = "INVALID_PORT"
	ErrCodeModelCacheEmpty  = "MODEL_CACHE_EMPTY"
	ErrCodeAuthKeyTooShort  = "AUTH_KEY_TOO_SHORT"
	ErrCodeAuthConflict     = "AUTH_CONFIG_CONFLICT"
	ErrCodeInvalidAuthHash  = "INVALID_AUTH_HASH"
	ErrCodePathNotWritable  = "PATH_NOT_WRITABLE"
	ErrCodeCUDAUnavailable  = "CUDA_UNAVAILABLE"
)

// ErrMissingConfig returns an error for missing required configuration.
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrInvalidDevice returns an error for an unsupported compute device name.
func ErrInvalidDevice(device string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidDevice,
		Message: fmt.Sprintf("Unsupported device %q", device),
		Action:  "Set SD_DEVICE to \"cuda\" or \"cpu\"",
	}
}

// ErrInvalidDtype returns an error for an unsupported numeric precision name.
func ErrInvalidDtype(dtype string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidDtype,
		Message: fmt.Sprintf("Unsupported dtype %q", dtype),
		Action:  "Set SD_DTYPE to \"float16\" or \"float32\"",
	}
}

// ErrInvalidScheduler returns an error for a default scheduler name that does
// not resolve to a known solver.
func ErrInvalidScheduler(name string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidScheduler,
		Message: fmt.Sprintf("Unknown scheduler %q", name),
		Action:  "Set SD_SCHEDULER to \"dpmsolver++\" or \"euler_ancestral\"",
	}
}

// ErrInvalidDefaults returns an error for default generation parameters that
// fall outside the documented request bounds.
func ErrInvalidDefaults(field string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidDefaults,
		Message: fmt.Sprintf("Default %s is out of range: %s", field, reason),
		Action:  "Adjust the SD_DEFAULT_* values to fit the request bounds",
	}
}

// ErrInvalidPort returns an error for an out-of-range listen port.
func ErrInvalidPort(port int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidPort,
		Message: fmt.Sprintf("Invalid port %d", port),
		Action:  "Set PORT to a value between 1 and 65535",
	}
}

// ErrModelCacheEmpty returns an error when offline mode is enabled but no
// cached weights exist at the configured location.
func ErrModelCacheEmpty(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeModelCacheEmpty,
		Message: fmt.Sprintf("Offline mode is enabled but no model files were found at %s", path),
		Action:  "Download the model first, or disable SD_OFFLINE_MODE",
	}
}

// ErrAuthKeyTooShort returns an error for an API key that is too short to be
// a usable secret.
func ErrAuthKeyTooShort(minLen int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeAuthKeyTooShort,
		Message: fmt.Sprintf("API_KEY must be at least %d characters", minLen),
		Action:  "Generate a longer secret, or unset API_KEY to disable auth",
	}
}

// ErrAuthConfigConflict returns an error when both the plaintext key and the
// key hash are configured at once.
func ErrAuthConfigConflict() *ConfigError {
	return &ConfigError{
		Code:    ErrCodeAuthConflict,
		Message: "Both API_KEY and API_KEY_HASH are set",
		Action:  "Configure exactly one of them",
	}
}

// ErrInvalidAuthHash returns an error for an API_KEY_HASH value that is not a
// bcrypt hash.
func ErrInvalidAuthHash() *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidAuthHash,
		Message: "API_KEY_HASH is not a bcrypt hash",
		Action:  "Generate one with: htpasswd -bnBC 10 \"\" <key> | tr -d ':\\n'",
	}
}

// ErrCUDAUnavailable returns an error when SD_DEVICE=cuda but the NVIDIA
// driver cannot be reached.
func ErrCUDAUnavailable(reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeCUDAUnavailable,
		Message: fmt.Sprintf("CUDA device requested but unavailable: %s", reason),
		Action:  "Install the NVIDIA driver, or set SD_DEVICE=cpu",
	}
}

// ErrPathNotWritable returns an error for a configured path whose directory
// cannot be written to.
func ErrPathNotWritable(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodePathNotWritable,
		Message: fmt.Sprintf("Cannot write to %s: %s", path, reason),
		Action:  "Create the directory or fix its permissions",
	}
}

// IsConfigError unwraps err as a *ConfigError.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode returns the code of the ConfigError anywhere in err's
// chain, or "" for other errors.
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
