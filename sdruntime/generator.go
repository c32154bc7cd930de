// Package sdruntime provides Stable Diffusion image generation capabilities.
//
// generator.go implements the Generator, which owns the inference backend
// and serializes access to it. This is a molecule that composes atoms from
// pipeline.go, scheduler.go, seed.go, types.go, and image_utils.go.
package sdruntime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Generator owns a Pipeline and enforces single-flight inference: the
// accelerator runs at most one generation at a time, and concurrent callers
// queue on the device slot in arrival order.
//
// This molecule composes:
//   - Pipeline: the build-selected inference backend
//   - ValidateParams: parameter validation (atom)
//   - RandomSeed: seed resolution (atom)
//   - SolverSpecFor: scheduler configuration (atom)
//   - EncodeToPNG, ValidateImageData: output handling (atoms)
type Generator struct {
	opts Options
	pipe Pipeline

	// loadMu serializes EnsureLoaded and is held for the whole weight load,
	// so Info and Loaded never block behind a slow load (they use mu).
	loadMu sync.Mutex

	// mu guards the snapshot state below.
	mu         sync.Mutex
	loaded     bool
	closed     bool
	freed      bool
	device     string
	activeSpec SolverSpec

	// gate holds the single device token. Owning the token is owning the
	// accelerator; release returns it.
	gate chan struct{}
	// done is closed by Close to wake callers waiting on the gate.
	done chan struct{}

	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewGenerator creates a Generator for the build-selected backend.
// The model is not loaded yet; call EnsureLoaded before Generate.
func NewGenerator(opts Options) (*Generator, error) {
	return newGenerator(opts, newPipeline(opts))
}

// newGenerator wires an explicit pipeline, which tests use to observe
// backend calls.
func newGenerator(opts Options, pipe Pipeline) (*Generator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	// Validate accepts any spelling NormalizeScheduler does; canonicalize so
	// the rest of the generator only ever sees canonical values.
	if s, ok := NormalizeScheduler(string(opts.Scheduler)); ok {
		opts.Scheduler = s
	}
	spec, err := SolverSpecFor(opts.Scheduler, opts.UseKarrasSigmas)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		opts:       opts,
		pipe:       pipe,
		device:     opts.Device,
		activeSpec: spec,
		gate:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	g.gate <- struct{}{}
	return g, nil
}

// EnsureLoaded loads the model if it is not loaded yet. It is idempotent
// and safe for concurrent use; only the first caller pays the load cost.
//
// The ctx applies to the load itself. A failed load leaves the generator
// unloaded; Generate returns ErrNotLoaded until a later EnsureLoaded
// succeeds.
func (g *Generator) EnsureLoaded(ctx context.Context) error {
	g.loadMu.Lock()
	defer g.loadMu.Unlock()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if g.loaded {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	if err := g.pipe.Load(ctx); err != nil {
		return err
	}

	// Configure the default solver once at load time, matching the scheduler
	// reported by Info before any request overrides it.
	spec, err := SolverSpecFor(g.opts.Scheduler, g.opts.UseKarrasSigmas)
	if err != nil {
		return err
	}
	if err := g.pipe.Configure(spec); err != nil {
		return fmt.Errorf("%w: configure %s: %v", ErrModelLoadFailed, g.opts.Scheduler, err)
	}

	info := g.pipe.Info()

	g.mu.Lock()
	g.loaded = true
	g.activeSpec = spec
	if info.Device != "" {
		g.device = info.Device
	}
	g.mu.Unlock()
	return nil
}

// Generate runs one full generation and returns the image with its
// reproducibility metadata.
//
// The ctx governs waiting for the device slot only: a caller whose context
// ends while queued gets ErrAcquireCancelled. Once inference starts it runs
// to completion.
//
// Error cases:
//   - ErrInvalidParams / ErrInvalidPrompt: parameters fail validation
//   - ErrNotLoaded: the model is not loaded (no inference attempted)
//   - ErrAcquireCancelled: ctx ended while waiting for the device
//   - ErrClosed: generator has been closed
//   - ErrGenerationFailed: the backend failed
func (g *Generator) Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error) {
	// Step 1: Validate parameters (atom). Invalid requests never touch the
	// backend.
	if err := ValidateParams(params); err != nil {
		return nil, err
	}

	// Step 2: Resolve seed (-1 means pick one) so the result always reports
	// the literal value used.
	if params.Seed < 0 {
		params.Seed = RandomSeed()
	}

	// Step 3: Refuse early when the model never loaded. The request path
	// does not retry the load.
	if !g.Loaded() {
		return nil, ErrNotLoaded
	}

	// Step 4: Exclusive device section: configure, seed, infer.
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	g.enterSection()
	frame, elapsed, runErr := g.runExclusive(params)
	g.leaveSection()
	g.release()
	if runErr != nil {
		return nil, runErr
	}

	// Step 5: Encode and sanity-check outside the device section so the
	// next caller can start while we assemble the response.
	pngData, err := EncodeToPNG(frame.Pixels, frame.Width, frame.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrGenerationFailed, err)
	}
	if err := ValidateImageData(pngData); err != nil {
		return nil, fmt.Errorf("%w: output validation: %v", ErrGenerationFailed, err)
	}

	return &GenerateResult{
		PNG:       pngData,
		Seed:      params.Seed,
		Steps:     params.Steps,
		Guidance:  params.Guidance,
		Scheduler: params.Scheduler,
		Device:    g.Device(),
		Duration:  elapsed,
	}, nil
}

// runExclusive is the body of the device section: reconfigure the solver if
// the request asks for a different one, then invoke the backend once.
// Duration covers the inference call only. The caller holds the gate.
func (g *Generator) runExclusive(params GenerateParams) (*PipelineImage, time.Duration, error) {
	g.mu.Lock()
	spec := g.activeSpec
	g.mu.Unlock()

	if params.Scheduler != spec.Scheduler {
		next, err := SolverSpecFor(params.Scheduler, g.opts.UseKarrasSigmas)
		if err != nil {
			// Validation upstream guarantees a known scheduler, so this is
			// a defect in the calling code, not a request fault.
			return nil, 0, err
		}
		if err := g.pipe.Configure(next); err != nil {
			return nil, 0, fmt.Errorf("%w: configure %s: %v",
				ErrGenerationFailed, params.Scheduler, err)
		}
		g.mu.Lock()
		g.activeSpec = next
		g.mu.Unlock()
	}

	req := PipelineRequest{
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		Width:          params.Width,
		Height:         params.Height,
		Steps:          params.Steps,
		Guidance:       params.Guidance,
		Seed:           params.Seed,
	}

	start := time.Now()
	frame, err := g.pipe.TextToImage(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, 0, err
	}
	return frame, elapsed, nil
}

// acquire takes the device token, honoring ctx while waiting.
func (g *Generator) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAcquireCancelled, err)
	}

	select {
	case <-g.gate:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrAcquireCancelled, ctx.Err())
	case <-g.done:
		return ErrClosed
	}

	// Won the token after Close raced us: hand it back so the backend gets
	// freed, and refuse the generation.
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		g.release()
		return ErrClosed
	}
	return nil
}

// release returns the device token, or frees the backend when Close ran
// while this holder was generating.
func (g *Generator) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		if !g.freed {
			g.pipe.Close()
			g.freed = true
		}
		return
	}
	// Capacity 1 and only the holder releases, so this never blocks.
	g.gate <- struct{}{}
}

// enterSection and leaveSection maintain the in-flight gauge. The peak is
// recorded so tests and metrics can assert the gauge never exceeds one.
func (g *Generator) enterSection() {
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (g *Generator) leaveSection() {
	g.inFlight.Add(-1)
}

// Loaded reports whether the model is loaded and ready to generate.
func (g *Generator) Loaded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loaded
}

// Device returns the device inference runs on ("cuda" or "cpu").
func (g *Generator) Device() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.device
}

// Scheduler returns the currently configured solver.
func (g *Generator) Scheduler() Scheduler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeSpec.Scheduler
}

// Defaults returns the server-side default parameters.
func (g *Generator) Defaults() Defaults {
	return g.opts.Defaults
}

// Info returns a point-in-time snapshot for the health endpoint.
func (g *Generator) Info() Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Info{
		ModelID:   g.opts.ModelID,
		Device:    g.device,
		Dtype:     g.opts.Dtype,
		Scheduler: string(g.activeSpec.Scheduler),
		Loaded:    g.loaded,
		Defaults:  g.opts.Defaults,
	}
}

// InFlight returns the number of generations currently inside the device
// section. It can only be 0 or 1; the type matches the peak gauge.
func (g *Generator) InFlight() int64 {
	return g.inFlight.Load()
}

// PeakInFlight returns the highest value the in-flight gauge ever held.
func (g *Generator) PeakInFlight() int64 {
	return g.peak.Load()
}

// IsClosed returns whether the generator has been closed.
func (g *Generator) IsClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Close shuts down the generator. Waiting callers are woken with ErrClosed;
// a generation already on the device finishes and the backend is freed when
// it releases. Close is safe to call multiple times.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	close(g.done)

	select {
	case <-g.gate:
		// Device idle; free the backend now.
		g.pipe.Close()
		g.freed = true
	default:
		// A generation holds the device; its release frees the backend.
	}
	return nil
}
