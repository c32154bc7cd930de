//go:build sd && cgo && !stub

// Native backend: cgo bindings for stable-diffusion.cpp, selected with
// -tags sd. The build needs the library checked out and compiled:
//
//	CGO_CFLAGS="-I${SD_CPP_PATH}" \
//	CGO_LDFLAGS="-L${SD_CPP_PATH}/build -lstable-diffusion -Wl,-rpath,${SD_CPP_PATH}/build" \
//	go build -tags sd
//
// Without the tag the preview backend in pipeline_preview.go is used.

package sdruntime

/*
#cgo CFLAGS: -I${SRCDIR}/../vendor/stable-diffusion.cpp
#cgo LDFLAGS: -L${SRCDIR}/../vendor/stable-diffusion.cpp/build -lstable-diffusion

#include <stdlib.h>
#include <stdint.h>

// stable-diffusion.h is not vendored yet, so the context handle below
// stands in for the real one and keeps this file compiling. The calls
// this backend will make, commented at their call sites:
//
//	sd_ctx_t* new_sd_ctx(const char* model_path, int n_threads, int wtype);
//	void free_sd_ctx(sd_ctx_t* ctx);
//	uint8_t* txt2img(sd_ctx_t* ctx, const char* prompt, const char* negative_prompt,
//	                 float cfg_scale, int width, int height, int sample_method,
//	                 int sample_steps, int64_t seed);
//	void sd_free_image(uint8_t* img);
//	const char* sd_get_system_info();
//
// TODO: vendor stable-diffusion.cpp, include its header here, and drop
// the stand-in typedef.
typedef void* sd_ctx_t;
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"unsafe"
)

// Sample method indices matching the stable-diffusion.cpp sample_method_t
// enum for the solvers this package exposes.
const (
	sampleMethodEulerAncestral = 1
	sampleMethodDPMPP2M        = 6
)

// nativePipeline wraps a stable-diffusion.cpp context.
type nativePipeline struct {
	opts Options
	spec SolverSpec
	cCtx *C.sd_ctx_t
}

func newPipelineImpl(opts Options) Pipeline {
	return &nativePipeline{opts: opts}
}

// Load creates the C context for the configured model.
func (p *nativePipeline) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}
	if p.opts.ModelPath == "" {
		return fmt.Errorf("%w: native backend requires SD_MODEL_PATH", ErrModelLoadFailed)
	}
	if _, err := os.Stat(p.opts.ModelPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, p.opts.ModelPath)
	} else if err != nil {
		return fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, p.opts.ModelPath, err)
	}

	cModelPath := C.CString(p.opts.ModelPath)
	defer C.free(unsafe.Pointer(cModelPath))

	// Once the header lands:
	//
	//	cCtx := C.new_sd_ctx(cModelPath, C.int(runtime.NumCPU()), wtypeFor(p.opts.Dtype))
	//	if cCtx == nil {
	//		return fmt.Errorf("%w: null context from new_sd_ctx", ErrModelLoadFailed)
	//	}
	//	p.cCtx = cCtx
	//	return nil

	return fmt.Errorf("%w: native backend is awaiting stable-diffusion.cpp integration", ErrModelLoadFailed)
}

// Configure records the solver; the native backend passes it per call as the
// sample method.
func (p *nativePipeline) Configure(spec SolverSpec) error {
	switch spec.Scheduler {
	case SchedulerDPMSolverPP, SchedulerEulerAncestral:
		p.spec = spec
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScheduler, string(spec.Scheduler))
	}
}

// sampleMethod maps the configured solver to the C enum value.
func (p *nativePipeline) sampleMethod() C.int {
	if p.spec.Ancestral {
		return C.int(sampleMethodEulerAncestral)
	}
	return C.int(sampleMethodDPMPP2M)
}

// TextToImage runs txt2img through the C library.
func (p *nativePipeline) TextToImage(req PipelineRequest) (*PipelineImage, error) {
	if p.cCtx == nil {
		return nil, ErrNotLoaded
	}

	cPrompt := C.CString(req.Prompt)
	defer C.free(unsafe.Pointer(cPrompt))
	cNegPrompt := C.CString(req.NegativePrompt)
	defer C.free(unsafe.Pointer(cNegPrompt))

	// Once the header lands:
	//
	//	imgPtr := C.txt2img(p.cCtx, cPrompt, cNegPrompt,
	//		C.float(req.Guidance), C.int(req.Width), C.int(req.Height),
	//		p.sampleMethod(), C.int(req.Steps), C.int64_t(req.Seed))
	//	if imgPtr == nil {
	//		return nil, fmt.Errorf("%w: null frame from txt2img", ErrGenerationFailed)
	//	}
	//	defer C.sd_free_image(imgPtr)
	//
	// txt2img hands back RGB; the frame contract wants RGBA:
	//
	//	rgb := C.GoBytes(unsafe.Pointer(imgPtr), C.int(req.Width*req.Height*3))
	//	pixels := make([]byte, req.Width*req.Height*4)
	//	for i := 0; i < req.Width*req.Height; i++ {
	//		copy(pixels[i*4:], rgb[i*3:i*3+3])
	//		pixels[i*4+3] = 0xFF
	//	}
	//	return &PipelineImage{Pixels: pixels, Width: req.Width, Height: req.Height}, nil

	return nil, fmt.Errorf("%w: native backend is awaiting stable-diffusion.cpp integration", ErrGenerationFailed)
}

// Info reports the native backend identity. The version field picks up
// sd_get_system_info once the binding is live.
func (p *nativePipeline) Info() BackendInfo {
	return BackendInfo{
		Name:    "stable-diffusion.cpp",
		Device:  p.opts.Device,
		Version: "integration pending",
	}
}

// Close frees the C context. Safe to call more than once.
func (p *nativePipeline) Close() error {
	if p.cCtx == nil {
		return nil
	}
	// Once the header lands: C.free_sd_ctx(p.cCtx)
	p.cCtx = nil
	return nil
}
