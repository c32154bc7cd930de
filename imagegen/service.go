// Package imagegen orchestrates text-to-image generation requests.
//
// service.go implements the Service organism that handles the end-to-end
// generation pipeline from decoded request to encoded PNG.
//
// This organism composes:
//   - Generator (sdruntime.Generator): for seeded image generation
//   - Recorder (db.Store): for generation history rows
//   - logging.Logger: for structured logging
package imagegen

import (
	"context"
	"fmt"
	"time"

	"sdserve/logging"
	"sdserve/sdruntime"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Generator is the image generation backend the service drives.
// *sdruntime.Generator satisfies it; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, params sdruntime.GenerateParams) (*sdruntime.GenerateResult, error)
	Defaults() sdruntime.Defaults
	Scheduler() sdruntime.Scheduler
}

// Generation attempt status values recorded in history.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is one generation attempt as written to history. It carries
// metadata only; image bytes are never persisted.
type Record struct {
	RequestID      string
	Prompt         string
	NegativePrompt string
	Seed           int64
	Steps          int
	Guidance       float64
	Width          int
	Height         int
	Scheduler      string
	Device         string
	Duration       time.Duration
	Status         string
	ErrorMessage   string
}

// Recorder persists generation attempts. Implementations must tolerate
// being called once per attempt, success or failure.
type Recorder interface {
	RecordGeneration(ctx context.Context, rec Record) error
}

// Result is a completed generation with the metadata the HTTP layer
// surfaces as response headers.
type Result struct {
	PNG       []byte
	Seed      int64
	Steps     int
	Guidance  float64
	Scheduler string
	Device    string
	Duration  time.Duration
}

// Service handles the end-to-end generation flow: defaulting, validation,
// seed resolution, inference, and history recording.
//
// Thread-Safety:
//   - Service is safe for concurrent use
//   - The generator serializes device access internally
type Service struct {
	gen     Generator
	history Recorder
	logger  *logging.Logger
}

// NewService creates a generation service.
//
// Parameters:
//   - gen: the generation backend, typically *sdruntime.Generator
//   - history: attempt recorder; nil disables history recording
//   - logger: structured logger for operation tracking
func NewService(gen Generator, history Recorder, logger *logging.Logger) (*Service, error) {
	if gen == nil {
		return nil, fmt.Errorf("imagegen: generator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("imagegen: logger cannot be nil")
	}

	return &Service{
		gen:     gen,
		history: history,
		logger:  logger.Named("imagegen"),
	}, nil
}

// HandleGeneration runs one generation request through the full pipeline.
//
// The flow is:
//  1. Apply server defaults to absent optional fields
//  2. Validate all fields, collecting every violation
//  3. Resolve the seed (client-supplied or freshly drawn)
//  4. Generate via the backend
//  5. Record the attempt in history
//
// The returned error is always an *Error. Validation failures return
// before the backend is touched and are not recorded as attempts.
func (s *Service) HandleGeneration(ctx context.Context, req *Request) (*Result, error) {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := s.logger.With(zap.String("request_id", requestID))

	// Step 1: Fill absent fields from server defaults
	req.ApplyDefaults(s.gen.Defaults(), s.gen.Scheduler())

	// Step 2: Validate everything before touching the device
	if fields := req.Validate(); len(fields) > 0 {
		log.Warn("request validation failed",
			zap.Int("violations", len(fields)),
			zap.Any("fields", fields))
		return nil, NewValidationError(fields)
	}

	// Step 3: Resolve the seed
	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	} else {
		seed = sdruntime.RandomSeed()
	}
	params := req.Params(seed)

	log.Info("starting image generation",
		zap.String("prompt_preview", sdruntime.TruncatePrompt(req.Prompt, 50)),
		zap.Int("steps", params.Steps),
		zap.Float64("guidance_scale", params.Guidance),
		zap.Int64("seed", params.Seed),
		zap.String("scheduler", string(params.Scheduler)))

	// Step 4: Generate
	genResult, err := s.gen.Generate(ctx, params)
	if err != nil {
		apiErr := FromGenerator(err)
		log.Error("image generation failed",
			zap.Error(err),
			zap.String("error_kind", string(apiErr.Kind)),
			zap.Bool("defect", apiErr.Defect()))
		s.record(ctx, log, requestID, req, params, nil, apiErr)
		return nil, apiErr
	}

	result := &Result{
		PNG:       genResult.PNG,
		Seed:      genResult.Seed,
		Steps:     genResult.Steps,
		Guidance:  genResult.Guidance,
		Scheduler: string(genResult.Scheduler),
		Device:    genResult.Device,
		Duration:  genResult.Duration,
	}

	// Step 5: Record the attempt
	s.record(ctx, log, requestID, req, params, genResult, nil)

	log.Info("generation complete",
		logging.GenerationFields(logging.GenerationMetrics{
			Seed:      result.Seed,
			Steps:     result.Steps,
			Guidance:  result.Guidance,
			Scheduler: result.Scheduler,
			Width:     params.Width,
			Height:    params.Height,
			Device:    result.Device,
			Duration:  result.Duration,
			PNGBytes:  len(result.PNG),
		}))

	return result, nil
}

// record writes one history row for a generation attempt. Recording
// failures are logged and swallowed; history must never fail a request.
func (s *Service) record(ctx context.Context, log *logging.Logger, requestID string, req *Request, params sdruntime.GenerateParams, genResult *sdruntime.GenerateResult, genErr *Error) {
	if s.history == nil {
		return
	}

	rec := Record{
		RequestID:      requestID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           params.Seed,
		Steps:          params.Steps,
		Guidance:       params.Guidance,
		Width:          params.Width,
		Height:         params.Height,
		Scheduler:      string(params.Scheduler),
	}

	if genErr != nil {
		rec.Status = StatusFailed
		rec.ErrorMessage = genErr.Error()
	} else {
		rec.Status = StatusCompleted
		rec.Device = genResult.Device
		rec.Duration = genResult.Duration
		rec.Seed = genResult.Seed
		rec.Scheduler = string(genResult.Scheduler)
	}

	if err := s.history.RecordGeneration(ctx, rec); err != nil {
		log.Warn("failed to record generation history", zap.Error(err))
	}
}
