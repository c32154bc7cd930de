package imagegen

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"sdserve/sdruntime"
)

// TestFromGenerator_Mapping tests the sentinel-to-API-error mapping.
func TestFromGenerator_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   ErrorKind
		wantStatus int
		wantDefect bool
	}{
		{
			name:       "model not loaded",
			err:        sdruntime.ErrNotLoaded,
			wantKind:   KindUnavailable,
			wantStatus: 503,
			wantDefect: false,
		},
		{
			name:       "generator closed",
			err:        sdruntime.ErrClosed,
			wantKind:   KindUnavailable,
			wantStatus: 503,
			wantDefect: false,
		},
		{
			name:       "cancelled while queued",
			err:        sdruntime.ErrAcquireCancelled,
			wantKind:   KindCancelled,
			wantStatus: StatusClientClosedRequest,
			wantDefect: false,
		},
		{
			name:       "generation failed",
			err:        fmt.Errorf("%w: latent decode error", sdruntime.ErrGenerationFailed),
			wantKind:   KindGeneration,
			wantStatus: 500,
			wantDefect: false,
		},
		{
			name:       "invalid params slipped past validation",
			err:        fmt.Errorf("%w: width 100", sdruntime.ErrInvalidParams),
			wantKind:   KindInternal,
			wantStatus: 500,
			wantDefect: true,
		},
		{
			name:       "invalid prompt slipped past validation",
			err:        sdruntime.ErrInvalidPrompt,
			wantKind:   KindInternal,
			wantStatus: 500,
			wantDefect: true,
		},
		{
			name:       "unknown scheduler slipped past validation",
			err:        sdruntime.ErrUnknownScheduler,
			wantKind:   KindInternal,
			wantStatus: 500,
			wantDefect: true,
		},
		{
			name:       "unrecognized error",
			err:        errors.New("something unexpected"),
			wantKind:   KindInternal,
			wantStatus: 500,
			wantDefect: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromGenerator(tt.err)

			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", apiErr.Kind, tt.wantKind)
			}
			if apiErr.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.wantStatus)
			}
			if apiErr.Defect() != tt.wantDefect {
				t.Errorf("Defect() = %v, want %v", apiErr.Defect(), tt.wantDefect)
			}
		})
	}
}

// TestFromGenerator_PreservesSentinelMatching tests that errors.Is still
// matches the sdruntime sentinel through the API error.
func TestFromGenerator_PreservesSentinelMatching(t *testing.T) {
	cause := fmt.Errorf("%w: CUDA out of memory", sdruntime.ErrGenerationFailed)
	apiErr := FromGenerator(cause)

	if !errors.Is(apiErr, sdruntime.ErrGenerationFailed) {
		t.Error("errors.Is(apiErr, ErrGenerationFailed) = false, want true")
	}
}

// TestError_ErrorString tests the error text with and without a cause.
func TestError_ErrorString(t *testing.T) {
	withCause := NewGenerationError(errors.New("CUDA out of memory"))
	if got := withCause.Error(); got != "imagegen: generation_failed: CUDA out of memory" {
		t.Errorf("Error() = %q", got)
	}

	withoutCause := NewUnavailableError()
	want := "imagegen: service_unavailable: Model not loaded. Server may still be initializing."
	if got := withoutCause.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// TestError_DetailMessages tests the client-facing detail strings.
func TestError_DetailMessages(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		detail string
	}{
		{"unavailable", NewUnavailableError(), "Model not loaded. Server may still be initializing."},
		{"shutting down", NewShuttingDownError(), "Server is shutting down."},
		{"generation", NewGenerationError(errors.New("x")), "Generation failed"},
		{"internal", NewInternalError(errors.New("x")), "Internal server error"},
		{"validation", NewValidationError(nil), "Request validation failed"},
		{"cancelled", NewCancelledError(errors.New("x")), "Request cancelled before generation started"},
		{"auth", NewAuthError("Invalid or missing API key"), "Invalid or missing API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Detail != tt.detail {
				t.Errorf("Detail = %q, want %q", tt.err.Detail, tt.detail)
			}
		})
	}
}

// TestEnvelope_ValidationCarriesFields tests that field violations land
// in meta as a list of location/message/kind objects.
func TestEnvelope_ValidationCarriesFields(t *testing.T) {
	apiErr := NewValidationError([]FieldError{
		{Location: "body.num_inference_steps", Message: "must be between 5 and 60", Kind: ViolationRange},
		{Location: "body.width", Message: "must be divisible by 8", Kind: ViolationMultiple},
	})

	data, err := json.Marshal(apiErr.Envelope())
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}

	var decoded struct {
		Error  string `json:"error"`
		Code   int    `json:"code"`
		Detail string `json:"detail"`
		Meta   []struct {
			Location string `json:"location"`
			Message  string `json:"message"`
			Kind     string `json:"kind"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal envelope: %v", err)
	}

	if decoded.Error != "validation_error" {
		t.Errorf("error = %q, want validation_error", decoded.Error)
	}
	if decoded.Code != 422 {
		t.Errorf("code = %d, want 422", decoded.Code)
	}
	if len(decoded.Meta) != 2 {
		t.Fatalf("meta has %d entries, want 2", len(decoded.Meta))
	}
	if decoded.Meta[0].Location != "body.num_inference_steps" {
		t.Errorf("meta[0].location = %q", decoded.Meta[0].Location)
	}
	if decoded.Meta[1].Kind != ViolationMultiple {
		t.Errorf("meta[1].kind = %q, want %q", decoded.Meta[1].Kind, ViolationMultiple)
	}
}

// TestEnvelope_GenerationCarriesCause tests that generation failures
// expose the underlying message in meta.
func TestEnvelope_GenerationCarriesCause(t *testing.T) {
	apiErr := NewGenerationError(errors.New("CUDA out of memory"))

	env := apiErr.Envelope()
	meta, ok := env.Meta.(map[string]string)
	if !ok {
		t.Fatalf("Meta is %T, want map[string]string", env.Meta)
	}
	if meta["cause"] != "CUDA out of memory" {
		t.Errorf("meta.cause = %q, want the underlying message", meta["cause"])
	}
}

// TestEnvelope_InternalOmitsCause tests that defects never leak their
// cause to clients.
func TestEnvelope_InternalOmitsCause(t *testing.T) {
	apiErr := NewInternalError(errors.New("nil pointer in png encoder at /srv/app/encode.go:42"))

	env := apiErr.Envelope()
	if env.Meta != nil {
		t.Errorf("Meta = %v, want nil for internal errors", env.Meta)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}
	if strings.Contains(string(data), "meta") {
		t.Errorf("Envelope JSON %s contains meta, want it omitted", data)
	}
	if strings.Contains(string(data), "encode.go") {
		t.Errorf("Envelope JSON %s leaks the internal cause", data)
	}
}

// TestEnvelope_AuthShape tests the auth failure envelope.
func TestEnvelope_AuthShape(t *testing.T) {
	env := NewAuthError("Invalid or missing API key").Envelope()

	if env.Error != "auth_error" {
		t.Errorf("error = %q, want auth_error", env.Error)
	}
	if env.Code != 401 {
		t.Errorf("code = %d, want 401", env.Code)
	}
	if env.Meta != nil {
		t.Errorf("Meta = %v, want nil", env.Meta)
	}
}

// TestAsError tests coercion of arbitrary errors into API errors.
func TestAsError(t *testing.T) {
	t.Run("passes through API errors", func(t *testing.T) {
		original := NewUnavailableError()
		wrapped := fmt.Errorf("handler: %w", original)

		if got := AsError(wrapped); got != original {
			t.Errorf("AsError() = %v, want the original *Error", got)
		}
	})

	t.Run("wraps foreign errors as internal", func(t *testing.T) {
		cause := errors.New("unexpected state")
		apiErr := AsError(cause)

		if apiErr.Kind != KindInternal {
			t.Errorf("Kind = %q, want %q", apiErr.Kind, KindInternal)
		}
		if !errors.Is(apiErr, cause) {
			t.Error("errors.Is(apiErr, cause) = false, want true")
		}
	})
}
