// Package webapi provides the HTTP transport for the generation service.
// This file contains the image generation handler.
package webapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"sdserve/imagegen"
	"sdserve/metrics"
	"sdserve/sdruntime"
)

// maxGenerateBody caps the request body size. Prompts max out at 1000
// characters, so anything past this is not a legitimate request.
const maxGenerateBody = 1 << 20

// handleGenerate handles POST /generate requests.
//
// The flow is: decode the JSON body, hand it to the generation service,
// then write either the PNG with its metadata headers or the error
// envelope. Every attempt that reached the backend is also counted in
// the metrics store, mirroring the history table.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxGenerateBody)
	var req imagegen.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, imagegen.NewValidationError([]imagegen.FieldError{{
			Location: "body",
			Message:  "Malformed JSON body",
			Kind:     imagegen.ViolationFormat,
		}}).Envelope())
		return
	}

	result, err := s.service.HandleGeneration(r.Context(), &req)
	if err != nil {
		s.writeGenerateError(w, r, &req, start, err)
		return
	}

	s.recordGenerateSample(r, metrics.GenerationSample{
		RequestID: imagegen.RequestIDFromContext(r.Context()),
		Scheduler: result.Scheduler,
		Steps:     result.Steps,
		Status:    metrics.GenerationCompleted,
		StartTime: start,
		Duration:  result.Duration,
	})

	writePNG(w, result)
}

// writePNG writes the generated image with its metadata headers.
func writePNG(w http.ResponseWriter, result *imagegen.Result) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", "inline; filename=generated.png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Seed", strconv.FormatInt(result.Seed, 10))
	w.Header().Set("X-Steps", strconv.Itoa(result.Steps))
	w.Header().Set("X-Guidance", strconv.FormatFloat(result.Guidance, 'g', -1, 64))
	w.Header().Set("X-Scheduler", result.Scheduler)
	w.Header().Set("X-Device", result.Device)
	w.Header().Set("X-Generation-Time", FormatGenerationTime(result.Duration))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.PNG)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.PNG)
}

// writeGenerateError writes the error envelope for a failed generation
// request and records the attempt in the metrics store when the backend
// was reached. Validation failures never reach the backend and are not
// counted as attempts.
func (s *Server) writeGenerateError(w http.ResponseWriter, r *http.Request, req *imagegen.Request, start time.Time, err error) {
	apiErr := imagegen.AsError(err)

	if apiErr.Kind != imagegen.KindValidation {
		// Defaults were applied before the backend was called, so the
		// request carries the resolved steps and scheduler
		steps := 0
		if req.NumInferenceSteps != nil {
			steps = *req.NumInferenceSteps
		}
		scheduler := req.Scheduler
		if norm, ok := sdruntime.NormalizeScheduler(scheduler); ok {
			scheduler = string(norm)
		}

		s.recordGenerateSample(r, metrics.GenerationSample{
			RequestID: imagegen.RequestIDFromContext(r.Context()),
			Scheduler: scheduler,
			Steps:     steps,
			Status:    metrics.GenerationFailed,
			StartTime: start,
			Duration:  time.Since(start),
			ErrorMsg:  apiErr.Error(),
		})
	}

	writeEnvelope(w, apiErr.Envelope())
}

// recordGenerateSample feeds one generation attempt to the metrics store.
func (s *Server) recordGenerateSample(r *http.Request, sample metrics.GenerationSample) {
	if s.collector == nil {
		return
	}
	s.collector.RecordGeneration(sample)
}
