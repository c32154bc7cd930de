// Package imagegen orchestrates text-to-image generation requests.
//
// request.go defines the generation request body and its validation
// rules. Validation collects every violation instead of stopping at the
// first, so a client sees all problems in one round trip.
package imagegen

import (
	"fmt"
	"strings"

	"sdserve/sdruntime"
)

// Request is the decoded body of a generation request.
//
// Optional numeric fields are pointers so an absent field can be told
// apart from an explicit zero; ApplyDefaults fills the nil ones from the
// server configuration before validation runs. Seed stays nil when
// absent: the service draws one instead of defaulting it.
type Request struct {
	Prompt            string   `json:"prompt"`
	NegativePrompt    string   `json:"negative_prompt,omitempty"`
	NumInferenceSteps *int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     *float64 `json:"guidance_scale,omitempty"`
	Height            *int     `json:"height,omitempty"`
	Width             *int     `json:"width,omitempty"`
	Seed              *int64   `json:"seed,omitempty"`
	Scheduler         string   `json:"scheduler,omitempty"`
}

// ApplyDefaults fills absent optional fields from the server defaults.
// Defaulted values go through the same validation as client-supplied
// ones, so a misconfigured default fails loudly instead of silently
// producing broken generations.
func (r *Request) ApplyDefaults(defaults sdruntime.Defaults, scheduler sdruntime.Scheduler) {
	if r.NumInferenceSteps == nil {
		steps := defaults.Steps
		r.NumInferenceSteps = &steps
	}
	if r.GuidanceScale == nil {
		guidance := defaults.Guidance
		r.GuidanceScale = &guidance
	}
	if r.Height == nil {
		height := defaults.Height
		r.Height = &height
	}
	if r.Width == nil {
		width := defaults.Width
		r.Width = &width
	}
	if r.Scheduler == "" {
		r.Scheduler = string(scheduler)
	}
}

// Validate checks every field and returns one FieldError per violation,
// or nil when the request is valid. Out-of-bounds values are rejected,
// never clamped.
// This is a pure function with no side effects.
func (r *Request) Validate() []FieldError {
	var fields []FieldError

	if strings.TrimSpace(r.Prompt) == "" {
		fields = append(fields, FieldError{
			Location: "body.prompt",
			Message:  "cannot be blank",
			Kind:     ViolationRequired,
		})
	} else if strings.ContainsRune(r.Prompt, '\x00') {
		// Mirrors the runtime's prompt guard; the two checks must agree.
		fields = append(fields, FieldError{
			Location: "body.prompt",
			Message:  "must not contain null bytes",
			Kind:     ViolationFormat,
		})
	} else if len(r.Prompt) > sdruntime.MaxPromptLength {
		fields = append(fields, FieldError{
			Location: "body.prompt",
			Message:  fmt.Sprintf("must be at most %d characters", sdruntime.MaxPromptLength),
			Kind:     ViolationLength,
		})
	}

	if len(r.NegativePrompt) > sdruntime.MaxPromptLength {
		fields = append(fields, FieldError{
			Location: "body.negative_prompt",
			Message:  fmt.Sprintf("must be at most %d characters", sdruntime.MaxPromptLength),
			Kind:     ViolationLength,
		})
	}

	if r.NumInferenceSteps != nil {
		if v := *r.NumInferenceSteps; v < sdruntime.MinSteps || v > sdruntime.MaxSteps {
			fields = append(fields, FieldError{
				Location: "body.num_inference_steps",
				Message:  fmt.Sprintf("must be between %d and %d", sdruntime.MinSteps, sdruntime.MaxSteps),
				Kind:     ViolationRange,
			})
		}
	}

	if r.GuidanceScale != nil {
		if v := *r.GuidanceScale; v < sdruntime.MinGuidance || v > sdruntime.MaxGuidance {
			fields = append(fields, FieldError{
				Location: "body.guidance_scale",
				Message:  fmt.Sprintf("must be between %.1f and %.1f", sdruntime.MinGuidance, sdruntime.MaxGuidance),
				Kind:     ViolationRange,
			})
		}
	}

	if r.Height != nil {
		fields = appendDimensionViolations(fields, "body.height", *r.Height)
	}
	if r.Width != nil {
		fields = appendDimensionViolations(fields, "body.width", *r.Width)
	}

	if r.Seed != nil {
		if v := *r.Seed; v < 0 || v > sdruntime.MaxSeed {
			fields = append(fields, FieldError{
				Location: "body.seed",
				Message:  fmt.Sprintf("must be between 0 and %d", sdruntime.MaxSeed),
				Kind:     ViolationRange,
			})
		}
	}

	if r.Scheduler != "" {
		if _, ok := sdruntime.NormalizeScheduler(r.Scheduler); !ok {
			fields = append(fields, FieldError{
				Location: "body.scheduler",
				Message:  "must be one of: " + strings.Join(sdruntime.SchedulerNames(), ", "),
				Kind:     ViolationEnum,
			})
		}
	}

	return fields
}

// appendDimensionViolations checks an image dimension against the size
// bounds and the latent grid multiple. The range check wins when both
// fail; a value like 250 reports out-of-range only.
func appendDimensionViolations(fields []FieldError, location string, value int) []FieldError {
	if value < sdruntime.MinImageSize || value > sdruntime.MaxImageSize {
		return append(fields, FieldError{
			Location: location,
			Message:  fmt.Sprintf("must be between %d and %d", sdruntime.MinImageSize, sdruntime.MaxImageSize),
			Kind:     ViolationRange,
		})
	}
	if value%sdruntime.ImageSizeMultiple != 0 {
		return append(fields, FieldError{
			Location: location,
			Message:  fmt.Sprintf("must be divisible by %d", sdruntime.ImageSizeMultiple),
			Kind:     ViolationMultiple,
		})
	}
	return fields
}

// Params converts a validated, defaulted request into runtime parameters
// using the resolved seed. The scheduler is canonicalized so the runtime
// only ever sees lowercase solver names.
func (r *Request) Params(seed int64) sdruntime.GenerateParams {
	scheduler, _ := sdruntime.NormalizeScheduler(r.Scheduler)
	return sdruntime.GenerateParams{
		Prompt:         r.Prompt,
		NegativePrompt: r.NegativePrompt,
		Width:          *r.Width,
		Height:         *r.Height,
		Steps:          *r.NumInferenceSteps,
		Guidance:       *r.GuidanceScale,
		Seed:           seed,
		Scheduler:      scheduler,
	}
}
