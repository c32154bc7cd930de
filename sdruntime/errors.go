package sdruntime

import "errors"

// Sentinel errors, ordered by lifecycle: load, generate, validate, then the
// device gate. Failures carry detail by wrapping these; callers match with
// errors.Is.
var (
	ErrModelNotFound   = errors.New("sdruntime: model file not found")
	ErrModelLoadFailed = errors.New("sdruntime: model load failed")
	ErrNotLoaded       = errors.New("sdruntime: model not loaded")

	ErrGenerationFailed = errors.New("sdruntime: generation failed")

	ErrInvalidPrompt = errors.New("sdruntime: invalid prompt")
	ErrInvalidParams = errors.New("sdruntime: invalid generation parameters")

	// ErrUnknownScheduler marks a scheduler name that reached the runtime
	// without passing request validation. This is a defect, not a user error.
	ErrUnknownScheduler = errors.New("sdruntime: unknown scheduler")

	ErrAcquireCancelled = errors.New("sdruntime: cancelled while waiting for the device")
	ErrClosed           = errors.New("sdruntime: generator is closed")
)
