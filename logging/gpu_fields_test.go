package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"sdserve/core"
)

func TestGPUFields(t *testing.T) {
	logger, logs := observedLogger(zapcore.InfoLevel)

	logger.Warn("VRAM nearly full", GPUFields(core.GPUMetrics{
		VRAMUsedMB:     7680,
		VRAMTotalMB:    8192,
		GPUUtilization: 99.0,
		Temperature:    66.0,
	}))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("captured %d entries, want 1", len(entries))
	}
	gpu, ok := entries[0].ContextMap()["gpu"].(map[string]interface{})
	if !ok {
		t.Fatalf("gpu field is %T, want a nested object", entries[0].ContextMap()["gpu"])
	}

	want := map[string]interface{}{
		"vram_used_mb":    int64(7680),
		"vram_total_mb":   int64(8192),
		"vram_percent":    93.75,
		"gpu_utilization": 99.0,
		"temperature":     66.0,
	}
	for key, wantVal := range want {
		if got := gpu[key]; got != wantVal {
			t.Errorf("gpu[%q] = %v (%T), want %v (%T)", key, got, got, wantVal, wantVal)
		}
	}
}
