//go:build !sd || stub

package sdruntime

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
)

// loadedPreview returns a preview backend loaded and configured for the
// given solver.
func loadedPreview(t *testing.T, scheduler Scheduler) *previewPipeline {
	t.Helper()

	opts := DefaultOptions()
	opts.Device = "cpu"
	p := &previewPipeline{opts: opts}
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	spec, err := SolverSpecFor(scheduler, true)
	if err != nil {
		t.Fatalf("solver spec: %v", err)
	}
	if err := p.Configure(spec); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	return p
}

// previewRequest returns a small fast request for pixel-level tests.
func previewRequest() PipelineRequest {
	return PipelineRequest{
		Prompt:   "a cat on a mat",
		Width:    256,
		Height:   256,
		Steps:    8,
		Guidance: 7.0,
		Seed:     42,
	}
}

func framesDiffer(a, b *PipelineImage) bool {
	return !bytes.Equal(a.Pixels, b.Pixels)
}

func TestPreviewPipeline_Deterministic(t *testing.T) {
	p := loadedPreview(t, SchedulerDPMSolverPP)
	req := previewRequest()

	first, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if framesDiffer(first, second) {
		t.Error("identical requests must produce identical pixels")
	}
}

func TestPreviewPipeline_SeedChangesOutput(t *testing.T) {
	p := loadedPreview(t, SchedulerDPMSolverPP)

	req := previewRequest()
	first, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req.Seed = 43
	second, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !framesDiffer(first, second) {
		t.Error("different seeds must produce different pixels")
	}
}

func TestPreviewPipeline_PromptChangesOutput(t *testing.T) {
	p := loadedPreview(t, SchedulerDPMSolverPP)

	req := previewRequest()
	first, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req.Prompt = "a dog in a fog"
	second, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !framesDiffer(first, second) {
		t.Error("different prompts must produce different pixels")
	}
}

func TestPreviewPipeline_NegativePromptChangesOutput(t *testing.T) {
	p := loadedPreview(t, SchedulerDPMSolverPP)

	req := previewRequest()
	first, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req.NegativePrompt = "blurry, low quality"
	second, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !framesDiffer(first, second) {
		t.Error("negative prompt must influence the pixels")
	}
}

func TestPreviewPipeline_GuidanceChangesOutput(t *testing.T) {
	p := loadedPreview(t, SchedulerDPMSolverPP)

	req := previewRequest()
	first, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req.Guidance = 12.0
	second, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !framesDiffer(first, second) {
		t.Error("guidance must influence the pixels")
	}
}

func TestPreviewPipeline_StepsChangeOutput(t *testing.T) {
	p := loadedPreview(t, SchedulerDPMSolverPP)

	req := previewRequest()
	first, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req.Steps = 16
	second, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !framesDiffer(first, second) {
		t.Error("step count must influence the pixels")
	}
}

func TestPreviewPipeline_SolverChangesOutput(t *testing.T) {
	dpm := loadedPreview(t, SchedulerDPMSolverPP)
	euler := loadedPreview(t, SchedulerEulerAncestral)
	req := previewRequest()

	first, err := dpm.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := euler.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !framesDiffer(first, second) {
		t.Error("different solvers must produce different pixels for the same seed")
	}
}

func TestPreviewPipeline_FrameShape(t *testing.T) {
	p := loadedPreview(t, SchedulerDPMSolverPP)

	req := previewRequest()
	req.Width = 320
	req.Height = 256

	frame, err := p.TextToImage(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if frame.Width != 320 || frame.Height != 256 {
		t.Errorf("expected 320x256 frame, got %dx%d", frame.Width, frame.Height)
	}
	if len(frame.Pixels) != ImageDataSize(320, 256) {
		t.Errorf("expected %d pixel bytes, got %d", ImageDataSize(320, 256), len(frame.Pixels))
	}
	for i := 3; i < len(frame.Pixels); i += 4 {
		if frame.Pixels[i] != 0xFF {
			t.Fatalf("alpha channel not opaque at byte %d", i)
		}
	}
}

func TestPreviewPipeline_NotLoaded(t *testing.T) {
	p := &previewPipeline{opts: DefaultOptions()}

	_, err := p.TextToImage(previewRequest())
	if !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got: %v", err)
	}
}

func TestPreviewPipeline_LoadMissingModelPath(t *testing.T) {
	opts := DefaultOptions()
	opts.ModelPath = "/nonexistent/path/model.safetensors"
	p := &previewPipeline{opts: opts}

	err := p.Load(context.Background())
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got: %v", err)
	}
}

func TestPreviewPipeline_NoSolverConfigured(t *testing.T) {
	p := &previewPipeline{opts: DefaultOptions()}
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	_, err := p.TextToImage(previewRequest())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got: %v", err)
	}
}

func TestTextField_EmptyPromptIsZero(t *testing.T) {
	field := textField("", 8, 8)
	for i, v := range field {
		if v != 0 {
			t.Fatalf("expected zero field for empty prompt, got %f at %d", v, i)
		}
	}
}

// newPreviewGenerator builds a loaded Generator backed by the preview
// pipeline, the way the server runs in a default build.
func newPreviewGenerator(t *testing.T) *Generator {
	t.Helper()

	opts := DefaultOptions()
	opts.Device = "cpu"
	gen, err := NewGenerator(opts)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	if err := gen.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	t.Cleanup(func() { gen.Close() })
	return gen
}

func TestGenerator_DeterministicPNG(t *testing.T) {
	gen := newPreviewGenerator(t)

	params := GenerateParams{
		Prompt:    "a cat on a mat",
		Width:     512,
		Height:    512,
		Steps:     28,
		Guidance:  7.0,
		Seed:      42,
		Scheduler: SchedulerDPMSolverPP,
	}

	first, err := gen.Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("first generate failed: %v", err)
	}
	second, err := gen.Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("second generate failed: %v", err)
	}

	if !bytes.Equal(first.PNG, second.PNG) {
		t.Error("same seed and params must produce byte-identical PNGs")
	}
	if first.Seed != 42 || second.Seed != 42 {
		t.Errorf("expected reported seed 42, got %d and %d", first.Seed, second.Seed)
	}
	if first.Steps != 28 {
		t.Errorf("expected reported steps 28, got %d", first.Steps)
	}
	if first.Scheduler != SchedulerDPMSolverPP {
		t.Errorf("expected scheduler %q, got %q", SchedulerDPMSolverPP, first.Scheduler)
	}
	if !IsPNG(first.PNG) {
		t.Error("result must be a valid PNG")
	}
}

func TestGenerator_RandomSeedResolved(t *testing.T) {
	gen := newPreviewGenerator(t)

	params := GenerateParams{
		Prompt:    "a cat on a mat",
		Width:     256,
		Height:    256,
		Steps:     8,
		Guidance:  7.0,
		Seed:      -1,
		Scheduler: SchedulerDPMSolverPP,
	}

	first, err := gen.Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("first generate failed: %v", err)
	}
	second, err := gen.Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("second generate failed: %v", err)
	}

	for _, r := range []*GenerateResult{first, second} {
		if r.Seed < 0 || r.Seed > MaxSeed {
			t.Errorf("resolved seed out of range: %d", r.Seed)
		}
	}
	if first.Seed == second.Seed {
		t.Error("two random generations picked the same seed")
	}
	if bytes.Equal(first.PNG, second.PNG) {
		t.Error("different random seeds should give different images")
	}
}

func TestGenerator_ConcurrentGenerationsSerialized(t *testing.T) {
	gen := newPreviewGenerator(t)

	params := GenerateParams{
		Prompt:    "a cat on a mat",
		Width:     256,
		Height:    256,
		Steps:     5,
		Guidance:  7.0,
		Seed:      -1,
		Scheduler: SchedulerDPMSolverPP,
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gen.Generate(context.Background(), params); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent generate failed: %v", err)
	}
	if peak := gen.PeakInFlight(); peak != 1 {
		t.Errorf("inference overlapped: peak in-flight %d, want 1", peak)
	}
	if gen.InFlight() != 0 {
		t.Errorf("in-flight gauge not drained: %d", gen.InFlight())
	}
}
