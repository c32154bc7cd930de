package sdruntime

import (
	"fmt"
	"time"
)

// GenerateParams holds parameters for a single image generation.
type GenerateParams struct {
	Prompt         string    // Required: text description of the image to generate
	NegativePrompt string    // Optional: what to avoid in the image
	Width          int       // Image width in pixels (256-768, must be divisible by 8)
	Height         int       // Image height in pixels (256-768, must be divisible by 8)
	Steps          int       // Number of denoising steps (5-60)
	Guidance       float64   // Classifier-free guidance scale (1.0-12.0)
	Seed           int64     // Seed in [0, 2^32-1]; -1 means pick one at random
	Scheduler      Scheduler // Canonical solver name from NormalizeScheduler
}

// Bounds enforced by ValidateParams and mirrored in the request-level
// validators.
const (
	MinImageSize      = 256
	MaxImageSize      = 768
	ImageSizeMultiple = 8 // latent grid blocks are 8x8 pixels

	MinSteps = 5
	MaxSteps = 60

	MinGuidance = 1.0
	MaxGuidance = 12.0

	MaxPromptLength = 1000

	// MaxSeed is the largest accepted seed (2^32 - 1).
	MaxSeed = int64(1)<<32 - 1
)

// ValidateParams is the runtime's own guard against out-of-range
// parameters; it reports the first violation it finds. Request-level
// validation with per-field reporting happens before params ever reach
// this package.
func ValidateParams(p GenerateParams) error {
	if err := ValidatePrompt(p.Prompt); err != nil {
		return err
	}

	if p.Width < MinImageSize || p.Width > MaxImageSize {
		return fmt.Errorf("%w: width %d out of range [%d, %d]",
			ErrInvalidParams, p.Width, MinImageSize, MaxImageSize)
	}
	if p.Width%ImageSizeMultiple != 0 {
		return fmt.Errorf("%w: width %d is not a multiple of %d",
			ErrInvalidParams, p.Width, ImageSizeMultiple)
	}

	if p.Height < MinImageSize || p.Height > MaxImageSize {
		return fmt.Errorf("%w: height %d out of range [%d, %d]",
			ErrInvalidParams, p.Height, MinImageSize, MaxImageSize)
	}
	if p.Height%ImageSizeMultiple != 0 {
		return fmt.Errorf("%w: height %d is not a multiple of %d",
			ErrInvalidParams, p.Height, ImageSizeMultiple)
	}

	if p.Steps < MinSteps || p.Steps > MaxSteps {
		return fmt.Errorf("%w: steps %d out of range [%d, %d]",
			ErrInvalidParams, p.Steps, MinSteps, MaxSteps)
	}

	if p.Guidance < MinGuidance || p.Guidance > MaxGuidance {
		return fmt.Errorf("%w: guidance %.2f out of range [%.1f, %.1f]",
			ErrInvalidParams, p.Guidance, MinGuidance, MaxGuidance)
	}

	if p.Seed > MaxSeed {
		return fmt.Errorf("%w: seed %d past the 32-bit seed space",
			ErrInvalidParams, p.Seed)
	}

	if len(p.NegativePrompt) > MaxPromptLength {
		return fmt.Errorf("%w: negative prompt length %d over the %d cap",
			ErrInvalidParams, len(p.NegativePrompt), MaxPromptLength)
	}

	if _, ok := NormalizeScheduler(string(p.Scheduler)); !ok {
		return fmt.Errorf("%w: scheduler %q", ErrInvalidParams, string(p.Scheduler))
	}

	return nil
}

// GenerateResult holds a completed generation: the encoded image plus the
// reproducibility metadata surfaced to the caller.
type GenerateResult struct {
	// PNG contains the encoded image bytes.
	PNG []byte
	// Seed is the literal seed used, whether client-supplied or generated.
	Seed int64
	// Steps, Guidance and Scheduler are the resolved values the solver ran with.
	Steps     int
	Guidance  float64
	Scheduler Scheduler
	// Device the inference executed on ("cuda" or "cpu").
	Device string
	// Duration is wall-clock time of the inference call only; validation
	// and response assembly are excluded.
	Duration time.Duration
}

// Defaults is the server-side default parameter set applied to requests
// that omit optional fields.
type Defaults struct {
	Steps    int     `json:"steps"`
	Guidance float64 `json:"guidance_scale"`
	Height   int     `json:"height"`
	Width    int     `json:"width"`
}

// Info is a point-in-time snapshot of the generator state, shaped for the
// health endpoint.
type Info struct {
	ModelID   string   `json:"model_id"`
	Device    string   `json:"device"`
	Dtype     string   `json:"dtype"`
	Scheduler string   `json:"scheduler"`
	Loaded    bool     `json:"model_loaded"`
	Defaults  Defaults `json:"defaults"`
}
