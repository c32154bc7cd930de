package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GenerationMetrics represents metrics collected for one image generation.
// Implements zapcore.ObjectMarshaler so a whole generation logs as a single
// structured object.
//
// This is a pure data structure with no dependencies on other logging atoms.
//
// Example:
//
//	metrics := logging.GenerationMetrics{
//		Seed:      42,
//		Steps:     28,
//		Guidance:  7.0,
//		Scheduler: "dpmsolver++",
//		Width:     512,
//		Height:    512,
//		Device:    "cuda",
//		Duration:  3420 * time.Millisecond,
//		PNGBytes:  284113,
//	}
//	logger.Info("generation complete", logging.GenerationFields(metrics))
type GenerationMetrics struct {
	// Seed is the resolved random seed used for generation
	Seed int64 `json:"seed"`

	// Steps is the number of denoising steps performed
	Steps int `json:"steps"`

	// Guidance is the classifier-free guidance scale
	Guidance float64 `json:"guidance_scale"`

	// Scheduler is the solver that produced the image
	Scheduler string `json:"scheduler"`

	// Width and Height are the output dimensions in pixels
	Width  int `json:"width"`
	Height int `json:"height"`

	// Device is the accelerator the pipeline ran on
	Device string `json:"device"`

	// Duration is the wall-clock time of the pipeline invocation
	Duration time.Duration `json:"duration"`

	// PNGBytes is the size of the encoded image
	PNGBytes int `json:"png_bytes"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler for structured logging.
// Duration is encoded in milliseconds; steps_per_second is derived so
// throughput regressions are visible straight from the logs.
func (m GenerationMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("seed", m.Seed)
	enc.AddInt("steps", m.Steps)
	enc.AddFloat64("guidance_scale", m.Guidance)
	enc.AddString("scheduler", m.Scheduler)
	enc.AddInt("width", m.Width)
	enc.AddInt("height", m.Height)
	enc.AddString("device", m.Device)
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	enc.AddFloat64("steps_per_second", StepsPerSecond(m.Steps, m.Duration))
	enc.AddInt("png_bytes", m.PNGBytes)
	return nil
}

// GenerationFields creates a structured zap field from generation metrics.
// This is a molecule that composes the GenerationMetrics atom into a
// ready-to-use zap.Field.
//
// Example:
//
//	logger.Info("generation complete", logging.GenerationFields(metrics))
func GenerationFields(metrics GenerationMetrics) zap.Field {
	return zap.Object("generation", metrics)
}

// StepsPerSecond calculates solver throughput from step count and duration.
// Returns 0 if duration is zero or negative.
//
// This is a pure function with no side effects.
func StepsPerSecond(steps int, duration time.Duration) float64 {
	if duration.Seconds() <= 0 {
		return 0
	}
	return float64(steps) / duration.Seconds()
}
