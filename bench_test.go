package main

import (
	"os"
	"path/filepath"
	"testing"
)

// writePlan writes a plan file into a temp dir and returns its path.
func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write plan: %v", err)
	}
	return path
}

func TestDefaultBenchPlan(t *testing.T) {
	plan := DefaultBenchPlan()

	if len(plan.Prompts) != 3 {
		t.Errorf("Prompts = %d, want 3", len(plan.Prompts))
	}
	wantSteps := []int{20, 24, 28, 32}
	if len(plan.Steps) != len(wantSteps) {
		t.Fatalf("Steps = %v, want %v", plan.Steps, wantSteps)
	}
	for i, steps := range wantSteps {
		if plan.Steps[i] != steps {
			t.Errorf("Steps[%d] = %d, want %d", i, plan.Steps[i], steps)
		}
	}
	if len(plan.Schedulers) != 2 {
		t.Errorf("Schedulers = %v, want both solvers", plan.Schedulers)
	}
	if plan.Guidance != 7.0 {
		t.Errorf("Guidance = %v, want 7.0", plan.Guidance)
	}
	if plan.Width != 512 || plan.Height != 512 {
		t.Errorf("size = %dx%d, want 512x512", plan.Width, plan.Height)
	}
}

func TestLoadBenchPlan(t *testing.T) {
	t.Run("empty file runs the default matrix", func(t *testing.T) {
		plan, err := LoadBenchPlan(writePlan(t, ""))
		if err != nil {
			t.Fatalf("LoadBenchPlan() error = %v", err)
		}

		defaults := DefaultBenchPlan()
		if len(plan.Prompts) != len(defaults.Prompts) {
			t.Errorf("Prompts = %d, want %d", len(plan.Prompts), len(defaults.Prompts))
		}
		if len(plan.Steps) != len(defaults.Steps) {
			t.Errorf("Steps = %v, want %v", plan.Steps, defaults.Steps)
		}
		if len(plan.Schedulers) != 2 {
			t.Errorf("Schedulers = %v, want both solvers", plan.Schedulers)
		}
	})

	t.Run("file values win over defaults", func(t *testing.T) {
		content := `
prompts:
  - a red bicycle leaning on a brick wall
steps: [10, 40]
guidance_scale: 5.5
width: 640
height: 448
`
		plan, err := LoadBenchPlan(writePlan(t, content))
		if err != nil {
			t.Fatalf("LoadBenchPlan() error = %v", err)
		}

		if len(plan.Prompts) != 1 {
			t.Errorf("Prompts = %d, want 1", len(plan.Prompts))
		}
		if len(plan.Steps) != 2 || plan.Steps[0] != 10 || plan.Steps[1] != 40 {
			t.Errorf("Steps = %v, want [10 40]", plan.Steps)
		}
		if plan.Guidance != 5.5 {
			t.Errorf("Guidance = %v, want 5.5", plan.Guidance)
		}
		if plan.Width != 640 || plan.Height != 448 {
			t.Errorf("size = %dx%d, want 640x448", plan.Width, plan.Height)
		}
		// Unset schedulers still default to the full set
		if len(plan.Schedulers) != 2 {
			t.Errorf("Schedulers = %v, want both solvers", plan.Schedulers)
		}
	})

	t.Run("scheduler spellings are canonicalized", func(t *testing.T) {
		content := `
schedulers:
  - EULER_ANCESTRAL
  - DPMSolver++
`
		plan, err := LoadBenchPlan(writePlan(t, content))
		if err != nil {
			t.Fatalf("LoadBenchPlan() error = %v", err)
		}
		if plan.Schedulers[0] != "euler_ancestral" {
			t.Errorf("Schedulers[0] = %q, want %q", plan.Schedulers[0], "euler_ancestral")
		}
		if plan.Schedulers[1] != "dpmsolver++" {
			t.Errorf("Schedulers[1] = %q, want %q", plan.Schedulers[1], "dpmsolver++")
		}
	})

	t.Run("unknown scheduler is rejected", func(t *testing.T) {
		_, err := LoadBenchPlan(writePlan(t, "schedulers: [ddim]"))
		if err == nil {
			t.Fatal("LoadBenchPlan() accepted unknown scheduler")
		}
	})

	t.Run("out of range steps are rejected", func(t *testing.T) {
		_, err := LoadBenchPlan(writePlan(t, "steps: [2]"))
		if err == nil {
			t.Fatal("LoadBenchPlan() accepted out-of-range steps")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadBenchPlan(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil {
			t.Fatal("LoadBenchPlan() succeeded on missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadBenchPlan(writePlan(t, "steps: [20,"))
		if err == nil {
			t.Fatal("LoadBenchPlan() succeeded on malformed yaml")
		}
	})
}
