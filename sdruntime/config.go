package sdruntime

import (
	"fmt"
)

// Options configures a Generator. The zero value is not usable; start from
// DefaultOptions and override as needed.
type Options struct {
	// ModelID names the checkpoint, e.g. "runwayml/stable-diffusion-v1-5".
	ModelID string
	// ModelPath optionally points at local weights for the native backend.
	ModelPath string
	// Device is "cuda" or "cpu".
	Device string
	// Dtype is "float16" or "float32".
	Dtype string
	// Scheduler is the default solver configured at load time.
	Scheduler Scheduler
	// UseKarrasSigmas enables Karras spacing for DPMSolver++.
	UseKarrasSigmas bool
	// OfflineMode forbids weight downloads; only cached files are used.
	OfflineMode bool
	// Defaults fill request fields the client omitted.
	Defaults Defaults
}

// Default option values matching the recommended SD 1.5 serving setup.
const (
	DefaultModelID  = "runwayml/stable-diffusion-v1-5"
	DefaultDevice   = "cuda"
	DefaultDtype    = "float16"
	DefaultSteps    = 28
	DefaultGuidance = 7.0
	DefaultHeight   = 512
	DefaultWidth    = 512
)

// DefaultOptions returns the standard generator configuration:
// SD 1.5 on CUDA in float16, DPMSolver++ with Karras sigmas, 28 steps at
// guidance 7.0 and 512x512 output.
func DefaultOptions() Options {
	return Options{
		ModelID:         DefaultModelID,
		Device:          DefaultDevice,
		Dtype:           DefaultDtype,
		Scheduler:       SchedulerDPMSolverPP,
		UseKarrasSigmas: true,
		Defaults: Defaults{
			Steps:    DefaultSteps,
			Guidance: DefaultGuidance,
			Height:   DefaultHeight,
			Width:    DefaultWidth,
		},
	}
}

// Validate checks that the options describe a runnable generator. Defaults
// must satisfy the same bounds as request parameters so that filling an
// omitted field can never produce an invalid generation.
func (o Options) Validate() error {
	if o.ModelID == "" {
		return fmt.Errorf("%w: model id is empty", ErrInvalidParams)
	}
	if o.Device != "cuda" && o.Device != "cpu" {
		return fmt.Errorf("%w: device %q (want cuda or cpu)", ErrInvalidParams, o.Device)
	}
	if o.Dtype != "float16" && o.Dtype != "float32" {
		return fmt.Errorf("%w: dtype %q (want float16 or float32)", ErrInvalidParams, o.Dtype)
	}
	if _, ok := NormalizeScheduler(string(o.Scheduler)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScheduler, string(o.Scheduler))
	}

	d := o.Defaults
	if d.Steps < MinSteps || d.Steps > MaxSteps {
		return fmt.Errorf("%w: default steps %d out of range [%d, %d]",
			ErrInvalidParams, d.Steps, MinSteps, MaxSteps)
	}
	if d.Guidance < MinGuidance || d.Guidance > MaxGuidance {
		return fmt.Errorf("%w: default guidance %.2f out of range [%.1f, %.1f]",
			ErrInvalidParams, d.Guidance, MinGuidance, MaxGuidance)
	}
	for _, dim := range []struct {
		name  string
		value int
	}{{"height", d.Height}, {"width", d.Width}} {
		if dim.value < MinImageSize || dim.value > MaxImageSize {
			return fmt.Errorf("%w: default %s %d out of range [%d, %d]",
				ErrInvalidParams, dim.name, dim.value, MinImageSize, MaxImageSize)
		}
		if dim.value%ImageSizeMultiple != 0 {
			return fmt.Errorf("%w: default %s %d not divisible by %d",
				ErrInvalidParams, dim.name, dim.value, ImageSizeMultiple)
		}
	}
	return nil
}
