// Package imagegen orchestrates text-to-image generation requests.
//
// errors.go defines the API error taxonomy shared by the HTTP layer and
// the generation service. Every failure surfaced to a client is an *Error
// carrying a machine-readable kind, an HTTP status, and a human-readable
// detail message.
package imagegen

import (
	"errors"
	"fmt"

	"sdserve/sdruntime"
)

// ErrorKind is the machine-readable error discriminator clients switch on.
// Values appear verbatim in the "error" field of the JSON envelope.
type ErrorKind string

const (
	// KindValidation covers malformed request bodies and out-of-bounds
	// parameters. Carries per-field violations in the envelope meta.
	KindValidation ErrorKind = "validation_error"

	// KindAuth covers missing or rejected credentials.
	KindAuth ErrorKind = "auth_error"

	// KindUnavailable covers requests arriving while the model is not
	// loaded or the server is draining.
	KindUnavailable ErrorKind = "service_unavailable"

	// KindGeneration covers inference failures on a loaded model.
	KindGeneration ErrorKind = "generation_failed"

	// KindInternal covers defects: states that request validation and the
	// runtime's own guards should have made unreachable.
	KindInternal ErrorKind = "internal_error"

	// KindCancelled covers requests whose client went away while the
	// request was still queued for the device.
	KindCancelled ErrorKind = "request_cancelled"
)

// StatusClientClosedRequest is the non-standard nginx status for requests
// abandoned by the client. It never reaches a live client; it exists so
// access logs distinguish cancellations from server faults.
const StatusClientClosedRequest = 499

// Violation kinds for FieldError.Kind. These let clients map a field
// failure to UI handling without parsing the message text.
const (
	ViolationRequired = "required"
	ViolationLength   = "length"
	ViolationRange    = "range"
	ViolationMultiple = "multiple"
	ViolationEnum     = "enum"
	ViolationFormat   = "format"
)

// FieldError describes a single validation violation, located by the
// JSON path of the offending field.
type FieldError struct {
	Location string `json:"location"`
	Message  string `json:"message"`
	Kind     string `json:"kind"`
}

// Error is the API error type. The HTTP layer writes its Status and
// Envelope; everything beneath the HTTP layer returns it as a plain error.
type Error struct {
	Kind   ErrorKind
	Status int
	Detail string
	Fields []FieldError

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("imagegen: %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("imagegen: %s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying cause, if any, so errors.Is can match
// sdruntime sentinels through an *Error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Defect reports whether this error marks a server defect rather than a
// client fault or an expected runtime failure. Defects get flagged in
// logs for alerting.
func (e *Error) Defect() bool {
	return e.Kind == KindInternal
}

// Envelope is the JSON error body. Meta holds []FieldError for
// validation failures and a cause map for generation failures; it is
// omitted otherwise.
type Envelope struct {
	Error  string      `json:"error"`
	Code   int         `json:"code"`
	Detail string      `json:"detail"`
	Meta   interface{} `json:"meta,omitempty"`
}

// Envelope renders the error as its wire representation.
//
// Internal errors never include their cause: a defect message can leak
// file paths or dependency internals, so clients only see the kind and
// the generic detail line.
func (e *Error) Envelope() Envelope {
	env := Envelope{
		Error:  string(e.Kind),
		Code:   e.Status,
		Detail: e.Detail,
	}
	if len(e.Fields) > 0 {
		env.Meta = e.Fields
	} else if e.cause != nil && e.Kind != KindInternal {
		env.Meta = map[string]string{"cause": e.cause.Error()}
	}
	return env
}

// NewValidationError creates a 422 error carrying one entry per violated
// field.
func NewValidationError(fields []FieldError) *Error {
	return &Error{
		Kind:   KindValidation,
		Status: 422,
		Detail: "Request validation failed",
		Fields: fields,
	}
}

// NewAuthError creates a 401 error with the given detail message.
func NewAuthError(detail string) *Error {
	return &Error{
		Kind:   KindAuth,
		Status: 401,
		Detail: detail,
	}
}

// NewUnavailableError creates the 503 returned while the model is not
// loaded.
func NewUnavailableError() *Error {
	return &Error{
		Kind:   KindUnavailable,
		Status: 503,
		Detail: "Model not loaded. Server may still be initializing.",
	}
}

// NewShuttingDownError creates the 503 returned while the server drains.
func NewShuttingDownError() *Error {
	return &Error{
		Kind:   KindUnavailable,
		Status: 503,
		Detail: "Server is shutting down.",
	}
}

// NewGenerationError creates the 500 returned when inference fails on a
// loaded model. The cause surfaces in the envelope meta.
func NewGenerationError(cause error) *Error {
	return &Error{
		Kind:   KindGeneration,
		Status: 500,
		Detail: "Generation failed",
		cause:  cause,
	}
}

// NewCancelledError creates the 499 recorded when the client disconnects
// before its turn on the device.
func NewCancelledError(cause error) *Error {
	return &Error{
		Kind:   KindCancelled,
		Status: StatusClientClosedRequest,
		Detail: "Request cancelled before generation started",
		cause:  cause,
	}
}

// NewInternalError creates a 500 for a server defect.
func NewInternalError(cause error) *Error {
	return &Error{
		Kind:   KindInternal,
		Status: 500,
		Detail: "Internal server error",
		cause:  cause,
	}
}

// FromGenerator maps an sdruntime error to its API error.
//
// Parameter rejections from the runtime map to internal errors, not
// validation errors: request validation runs before the runtime is ever
// called, so a parameter reaching the runtime guard means the two checks
// disagree.
func FromGenerator(err error) *Error {
	switch {
	case errors.Is(err, sdruntime.ErrNotLoaded):
		return NewUnavailableError()
	case errors.Is(err, sdruntime.ErrClosed):
		return NewShuttingDownError()
	case errors.Is(err, sdruntime.ErrAcquireCancelled):
		return NewCancelledError(err)
	case errors.Is(err, sdruntime.ErrGenerationFailed):
		return NewGenerationError(err)
	case errors.Is(err, sdruntime.ErrInvalidParams),
		errors.Is(err, sdruntime.ErrInvalidPrompt),
		errors.Is(err, sdruntime.ErrUnknownScheduler):
		return NewInternalError(err)
	default:
		return NewInternalError(err)
	}
}

// AsError coerces any error into an *Error, wrapping unknown errors as
// internal defects.
func AsError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewInternalError(err)
}
