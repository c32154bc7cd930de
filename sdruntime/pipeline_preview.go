//go:build !sd || stub

// Preview backend: a deterministic pure-Go diffusion sampler used when the
// stable-diffusion.cpp library is not linked. Build with: go build
// (or explicitly: go build -tags stub)
//
// The preview backend runs the real solver math (DPMSolver++ 2M and Euler
// Ancestral over the configured sigma schedule) against a procedural
// conditioning field derived from the prompt, so seeds, schedulers, steps
// and guidance all change the output exactly as they would with a model,
// and identical requests produce byte-identical images.

package sdruntime

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"math"
	"os"

	"golang.org/x/image/draw"
)

const (
	previewVersion = "1"

	// fieldHarmonics is the number of sinusoidal components per channel in
	// the conditioning field.
	fieldHarmonics = 4
	// fieldAmplitude is the base amplitude of the first harmonic; higher
	// harmonics fall off as 1/n.
	fieldAmplitude = 0.18
	// predictSoftness controls how much of the current sample the denoiser
	// prediction retains at a given sigma. Predictions are noisy early in
	// the schedule and sharpen as sigma falls, so solver order matters.
	predictSoftness = 1.0
)

// previewPipeline implements Pipeline without external weights. Device is
// reported as configured so that response metadata matches the deployment
// the preview stands in for; the renderer itself is pure Go.
type previewPipeline struct {
	opts   Options
	spec   SolverSpec
	loaded bool
}

func newPipelineImpl(opts Options) Pipeline {
	return &previewPipeline{opts: opts}
}

// Load validates the model path when one is configured. The preview backend
// has no weights to read, so this is near-instant.
func (p *previewPipeline) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}
	if p.opts.ModelPath != "" {
		if _, err := os.Stat(p.opts.ModelPath); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, p.opts.ModelPath)
		} else if err != nil {
			return fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, p.opts.ModelPath, err)
		}
	}
	p.loaded = true
	return nil
}

// Configure installs the solver for subsequent TextToImage calls.
func (p *previewPipeline) Configure(spec SolverSpec) error {
	p.spec = spec
	return nil
}

// TextToImage runs the denoising loop at latent resolution (1/8 of the
// output in each dimension) and upscales the result.
func (p *previewPipeline) TextToImage(req PipelineRequest) (*PipelineImage, error) {
	if !p.loaded {
		return nil, ErrNotLoaded
	}
	if p.spec.Scheduler == "" {
		return nil, fmt.Errorf("%w: no solver configured", ErrGenerationFailed)
	}

	latentW := req.Width / ImageSizeMultiple
	latentH := req.Height / ImageSizeMultiple
	if latentW < 1 || latentH < 1 {
		return nil, fmt.Errorf("%w: dimensions %dx%d below latent resolution",
			ErrGenerationFailed, req.Width, req.Height)
	}

	// Step 1: Conditioning. The negative prompt takes the place of the
	// unconditional field, per classifier-free guidance.
	cond := textField(req.Prompt, latentW, latentH)
	uncond := textField(req.NegativePrompt, latentW, latentH)
	target := make([]float64, len(cond))
	for i := range target {
		target[i] = uncond[i] + req.Guidance*(cond[i]-uncond[i])
	}

	// Step 2: Seeded initial noise at the top of the schedule.
	sigmas := p.spec.Sigmas(req.Steps)
	rng := newNoiseSource(req.Seed)
	latent := make([]float64, len(target))
	for i := range latent {
		latent[i] = sigmas[0] * rng.normal()
	}

	// Step 3: Solve. The schedule ends at sigmaMin rather than zero, so the
	// seed's residual grain always survives into the output.
	if p.spec.Ancestral {
		eulerAncestralLoop(latent, target, sigmas, rng)
	} else {
		dpmSolverLoop(latent, target, sigmas, p.spec.Order)
	}

	// Step 4: Quantize and upscale to the requested resolution.
	frame := image.NewRGBA(image.Rect(0, 0, latentW, latentH))
	for y := 0; y < latentH; y++ {
		for x := 0; x < latentW; x++ {
			base := (y*latentW + x) * 3
			off := frame.PixOffset(x, y)
			frame.Pix[off+0] = quantizePixel(latent[base+0])
			frame.Pix[off+1] = quantizePixel(latent[base+1])
			frame.Pix[off+2] = quantizePixel(latent[base+2])
			frame.Pix[off+3] = 0xFF
		}
	}
	full := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	draw.CatmullRom.Scale(full, full.Bounds(), frame, frame.Bounds(), draw.Src, nil)

	return &PipelineImage{
		Pixels: full.Pix,
		Width:  req.Width,
		Height: req.Height,
	}, nil
}

// Info reports the preview backend identity.
func (p *previewPipeline) Info() BackendInfo {
	return BackendInfo{
		Name:    "preview",
		Device:  p.opts.Device,
		Version: previewVersion,
	}
}

// Close marks the backend unloaded.
func (p *previewPipeline) Close() error {
	p.loaded = false
	return nil
}

// textField builds the procedural conditioning field for a prompt: a sum of
// low-frequency sinusoids per channel whose frequencies, phases and
// amplitudes derive from the prompt hash. The empty prompt yields the zero
// field.
// This is a pure function with no side effects.
func textField(text string, width, height int) []float64 {
	field := make([]float64, width*height*3)
	if text == "" {
		return field
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	base := h.Sum64()

	for c := 0; c < 3; c++ {
		for n := 0; n < fieldHarmonics; n++ {
			bits := hash64(base + uint64(c*fieldHarmonics+n+1))
			freqX := float64(1 + bits&3)
			freqY := float64(1 + (bits>>2)&3)
			phase := 2 * math.Pi * float64((bits>>4)&0xFFFF) / 65536
			amp := fieldAmplitude / float64(n+1)
			for y := 0; y < height; y++ {
				fy := freqY * float64(y) / float64(height)
				for x := 0; x < width; x++ {
					fx := freqX * float64(x) / float64(width)
					field[(y*width+x)*3+c] += amp * math.Sin(2*math.Pi*(fx+fy)+phase)
				}
			}
		}
	}
	return field
}

// predictDenoised is the preview stand-in for a denoising model: it predicts
// the clean value as a sigma-dependent blend of the current sample and the
// conditioning target. At high sigma the prediction stays close to the
// sample; near sigmaMin it converges on the target.
// This is a pure function with no side effects.
func predictDenoised(sample, target, sigma float64) float64 {
	blend := sigma / (sigma + predictSoftness)
	return target + (sample-target)*blend
}

// dpmSolverLoop advances the latent through the schedule with DPMSolver++.
// Order 2 applies the multistep correction from the previous model output;
// the first step (and order 1) uses the single-step update.
func dpmSolverLoop(latent, target, sigmas []float64, order int) {
	denoised := make([]float64, len(latent))
	oldDenoised := make([]float64, len(latent))
	havePrev := false
	prevSigma := 0.0

	for i := 0; i < len(sigmas)-1; i++ {
		sigmaCur, sigmaNext := sigmas[i], sigmas[i+1]
		for j := range latent {
			denoised[j] = predictDenoised(latent[j], target[j], sigmaCur)
		}

		t := -math.Log(sigmaCur)
		tNext := -math.Log(sigmaNext)
		h := tNext - t
		ratio := sigmaNext / sigmaCur
		em := math.Expm1(-h)

		if !havePrev || order < 2 {
			for j := range latent {
				latent[j] = ratio*latent[j] - em*denoised[j]
			}
		} else {
			hLast := t - (-math.Log(prevSigma))
			r := hLast / h
			c1 := 1 + 1/(2*r)
			c2 := 1 / (2 * r)
			for j := range latent {
				corrected := c1*denoised[j] - c2*oldDenoised[j]
				latent[j] = ratio*latent[j] - em*corrected
			}
		}

		denoised, oldDenoised = oldDenoised, denoised
		havePrev = true
		prevSigma = sigmaCur
	}
}

// eulerAncestralLoop advances the latent with first-order Euler steps,
// injecting sigmaUp of fresh seeded noise after each step per the ancestral
// formulation. The noise draws extend the same stream that produced the
// initial latent, so the whole trajectory is a function of the seed.
func eulerAncestralLoop(latent, target, sigmas []float64, rng *noiseSource) {
	for i := 0; i < len(sigmas)-1; i++ {
		sigmaCur, sigmaNext := sigmas[i], sigmas[i+1]
		sigmaUp, sigmaDown := ancestralStep(sigmaCur, sigmaNext)
		for j := range latent {
			denoised := predictDenoised(latent[j], target[j], sigmaCur)
			d := (latent[j] - denoised) / sigmaCur
			latent[j] += d * (sigmaDown - sigmaCur)
			if sigmaUp > 0 {
				latent[j] += sigmaUp * rng.normal()
			}
		}
	}
}

// quantizePixel maps a latent value to an 8-bit channel through a tanh
// curve centered on mid-gray.
// This is a pure function with no side effects.
func quantizePixel(v float64) uint8 {
	scaled := 128 + 110*math.Tanh(0.55*v)
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}
