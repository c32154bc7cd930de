package core

import "go.uber.org/zap/zapcore"

// Alert thresholds for GPU samples. Sustained 100% compute load is
// normal while the solver runs, so only temperature and VRAM pressure
// warrant warnings.
const (
	hotTempC        = 80.0
	vramFullPercent = 90.0
)

// GPUMetrics is one sample of accelerator state, sized in MiB. The
// zero value reads as an idle device whose capacity is unknown, which
// VRAMPercent treats as empty rather than dividing by zero.
type GPUMetrics struct {
	// VRAMUsedMB is the VRAM currently allocated, in MiB.
	VRAMUsedMB int64 `json:"vram_used_mb"`

	// VRAMTotalMB is the device's total VRAM, in MiB.
	VRAMTotalMB int64 `json:"vram_total_mb"`

	// GPUUtilization is the compute load percentage (0-100).
	GPUUtilization float64 `json:"gpu_utilization"`

	// Temperature is the die temperature in Celsius.
	Temperature float64 `json:"temperature"`
}

// VRAMPercent reports how full the VRAM is, from 0 to 100.
func (g GPUMetrics) VRAMPercent() float64 {
	if g.VRAMTotalMB <= 0 {
		return 0
	}
	return float64(g.VRAMUsedMB) / float64(g.VRAMTotalMB) * 100
}

// RunningHot reports whether the die temperature is above 80°C.
func (g GPUMetrics) RunningHot() bool {
	return g.Temperature > hotTempC
}

// VRAMNearlyFull reports whether more than 90% of VRAM is allocated.
// High-resolution generation is the usual cause.
func (g GPUMetrics) VRAMNearlyFull() bool {
	return g.VRAMPercent() > vramFullPercent
}

// MarshalLogObject implements zapcore.ObjectMarshaler. The derived
// vram_percent rides along so threshold warnings show the value that
// tripped them.
func (g GPUMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("vram_used_mb", g.VRAMUsedMB)
	enc.AddInt64("vram_total_mb", g.VRAMTotalMB)
	enc.AddFloat64("vram_percent", g.VRAMPercent())
	enc.AddFloat64("gpu_utilization", g.GPUUtilization)
	enc.AddFloat64("temperature", g.Temperature)
	return nil
}
