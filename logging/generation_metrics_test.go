package logging

import (
	"testing"
	"time"
)

func TestStepsPerSecond(t *testing.T) {
	tests := []struct {
		name     string
		steps    int
		duration time.Duration
		expected float64
	}{
		{"typical run", 28, 3500 * time.Millisecond, 8.0},
		{"one second", 20, time.Second, 20.0},
		{"zero duration", 28, 0, 0},
		{"negative duration", 28, -time.Second, 0},
		{"zero steps", 0, time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StepsPerSecond(tt.steps, tt.duration)
			if result != tt.expected {
				t.Errorf("StepsPerSecond(%d, %v) = %v, want %v",
					tt.steps, tt.duration, result, tt.expected)
			}
		})
	}
}

func TestGenerationFields_Key(t *testing.T) {
	field := GenerationFields(GenerationMetrics{Seed: 1})
	if field.Key != "generation" {
		t.Errorf("GenerationFields key = %q, want %q", field.Key, "generation")
	}
}
