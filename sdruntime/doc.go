// Package sdruntime provides serialized Stable Diffusion text-to-image
// generation over a build-selected backend.
//
// The package follows atomic design principles:
//
//   - Atoms: Pure functions (ValidateParams, NormalizeScheduler, RandomSeed,
//     SolverSpecFor, EncodeToPNG, etc.)
//   - Molecules: Simple compositions (Generator over a Pipeline)
//   - Organism: the package surface itself, a Generator ready to serve
//
// # Public API
//
// The primary public API consists of four methods on Generator:
//
//   - NewGenerator(opts Options) (*Generator, error)
//   - (*Generator) EnsureLoaded(ctx context.Context) error
//   - (*Generator) Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error)
//   - (*Generator) Close() error
//
// # Quick Start
//
// Basic usage:
//
//	gen, err := sdruntime.NewGenerator(sdruntime.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gen.Close()
//
//	// Load weights once; later calls are no-ops.
//	if err := gen.EnsureLoaded(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
//	params := sdruntime.GenerateParams{
//	    Prompt:    "a sunset over mountains",
//	    Width:     512,
//	    Height:    512,
//	    Steps:     28,
//	    Guidance:  7.0,
//	    Seed:      -1, // pick one at random
//	    Scheduler: sdruntime.SchedulerDPMSolverPP,
//	}
//
//	result, err := gen.Generate(context.Background(), params)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// result.PNG holds the image; result.Seed reproduces it exactly.
//	os.WriteFile("output.png", result.PNG, 0644)
//
// # Reproducibility
//
// Generation is deterministic: the same parameters with the same seed
// produce byte-identical PNG output. GenerateResult reports the literal
// seed used so a random generation can be replayed.
//
// # Schedulers
//
// Two solvers are supported, selected per request by canonical name:
//
//   - "dpmsolver++": DPMSolver++ 2M, second-order, Karras sigmas (default)
//   - "euler_ancestral": first-order Euler with ancestral sampling
//
// NormalizeScheduler accepts any casing and the "eulerancestral" alias.
//
// # Build Tags
//
// Two build modes exist:
//
//   - Preview mode (default): go build
//     Deterministic pure-Go sampler; the full request path works without
//     GPU weights
//
//   - Native mode: CGO_ENABLED=1 go build -tags sd
//     Requires the stable-diffusion.cpp library to be built and available
//
// # Error Handling
//
// Failures wrap one of the package sentinels:
//
//   - ErrModelNotFound: weights missing on disk
//   - ErrModelLoadFailed: backend rejected the weights
//   - ErrNotLoaded: Generate called before a successful load
//   - ErrGenerationFailed: the solver failed mid-run
//   - ErrInvalidPrompt: blank, NUL-bearing, or oversized prompt
//   - ErrInvalidParams: a parameter outside its range
//   - ErrUnknownScheduler: scheduler name not recognized
//   - ErrAcquireCancelled: context ended while waiting for the device
//   - ErrClosed: Generator has been shut down
//
// Match failures with errors.Is:
//
//	_, err := gen.Generate(ctx, params)
//	if errors.Is(err, sdruntime.ErrAcquireCancelled) {
//	    // Client went away while queued; nothing ran.
//	}
//
// # Thread Safety
//
// Generator is safe for concurrent use. Multiple goroutines can call
// Generate simultaneously; inference itself is serialized on a single
// device slot and callers wait in line, honoring their context while
// queued.
package sdruntime
