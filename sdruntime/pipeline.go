// pipeline.go defines the contract between the Generator and an inference
// backend. Backends are selected at build time:
//
//   - default (or -tags stub): the built-in preview backend, a deterministic
//     pure-Go renderer that honors seeds, schedules and guidance so the full
//     request path can run and be tested without GPU weights.
//   - -tags sd (with CGO): bindings for stable-diffusion.cpp.
//
// Example build with the real library:
//
//	CGO_CFLAGS="-I/path/to/stable-diffusion.cpp" \
//	CGO_LDFLAGS="-L/path/to/stable-diffusion.cpp/build -lstable-diffusion" \
//	go build -tags sd
package sdruntime

import "context"

// PipelineRequest is a fully resolved generation request: defaults applied,
// bounds checked, seed concrete. Backends never see raw client input.
type PipelineRequest struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	Guidance       float64
	// Seed is always a concrete value in [0, 2^32-1] by the time a request
	// reaches a backend; random resolution happens in the Generator.
	Seed int64
}

// PipelineImage is a raw RGBA frame produced by a backend, row-major with
// 4 bytes per pixel. PNG encoding happens outside the backend so that the
// device is released as soon as inference finishes.
type PipelineImage struct {
	Pixels []byte
	Width  int
	Height int
}

// BackendInfo identifies the compute backend behind a pipeline.
type BackendInfo struct {
	// Name is the backend implementation, e.g. "preview" or
	// "stable-diffusion.cpp".
	Name string
	// Device the backend executes on: "cuda" or "cpu".
	Device string
	// Version of the backend implementation or linked library.
	Version string
}

// Pipeline is the inference backend contract. Implementations are not
// required to be safe for concurrent use; the Generator serializes all
// calls between Load and Close.
//
// Atoms the Generator composes through this interface:
//   - Load: read weights into memory, once
//   - Configure: switch the active solver (idempotent)
//   - TextToImage: one denoising run
type Pipeline interface {
	// Load prepares the backend for generation. It respects ctx for
	// cancellation during long weight loads and is called at most once.
	Load(ctx context.Context) error

	// Configure installs the solver used by subsequent TextToImage calls.
	// Reconfiguring with the active solver must be cheap.
	Configure(spec SolverSpec) error

	// TextToImage runs one full denoising loop and returns the raw frame.
	// A started run is not interruptible; cancellation is handled before
	// this call.
	TextToImage(req PipelineRequest) (*PipelineImage, error)

	// Info reports the backend identity. Valid before Load; Device may be
	// refined after weights are placed.
	Info() BackendInfo

	// Close releases backend resources. Safe to call more than once.
	Close() error
}

// newPipeline constructs the build-selected backend for the given options.
// Each backend file provides its own implementation behind build tags.
func newPipeline(opts Options) Pipeline {
	return newPipelineImpl(opts)
}
