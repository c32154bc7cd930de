package validation

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"sdserve/core"
	"sdserve/sdruntime"
)

// CUDAChecker probes the NVIDIA driver when the configured device is cuda.
// This is a molecule that shells out to nvidia-smi the same way the GPU
// metrics collector does, so a passing probe means the collector will work
// too.
//
// An operator who sets SD_DEVICE=cuda on a box without a driver gets a
// startup failure here, not a silent fall back to a CPU render that takes
// minutes per image.
type CUDAChecker struct {
	timeout time.Duration
}

// NewCUDAChecker creates a new CUDAChecker with default settings.
// Default timeout is 5 seconds.
func NewCUDAChecker() *CUDAChecker {
	return &CUDAChecker{
		timeout: 5 * time.Second,
	}
}

// WithTimeout sets the timeout for the driver probe.
func (c *CUDAChecker) WithTimeout(timeout time.Duration) *CUDAChecker {
	c.timeout = timeout
	return c
}

// Wanted reports whether the configured device is cuda.
func (c *CUDAChecker) Wanted() bool {
	return core.GetEnvOrDefault("SD_DEVICE", sdruntime.DefaultDevice) == "cuda"
}

// CheckDevice verifies that nvidia-smi is on PATH and can enumerate at least
// one GPU.
func (c *CUDAChecker) CheckDevice() ValidationResult {
	smi, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return ValidationResult{
			Message: "nvidia-smi not found in PATH",
			Error:   core.ErrCUDAUnavailable("nvidia-smi not found"),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, smi, "--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ValidationResult{
				Message: fmt.Sprintf("nvidia-smi did not answer within %v", c.timeout),
				Error:   core.ErrCUDAUnavailable("driver probe timed out"),
			}
		}
		return ValidationResult{
			Message: "nvidia-smi failed",
			Error:   core.ErrCUDAUnavailable(err.Error()),
		}
	}

	names := parseGPUNames(string(out))
	if len(names) == 0 {
		return ValidationResult{
			Message: "nvidia-smi reported no GPUs",
			Error:   core.ErrCUDAUnavailable("no GPUs enumerated"),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: strings.Join(names, ", "),
	}
}

// parseGPUNames extracts non-empty GPU names from nvidia-smi csv output.
func parseGPUNames(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names
}
