// bench.go implements the -bench mode: a timing run over a matrix of
// schedulers and step counts, used to validate the default generation
// configuration on the operator's hardware.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"sdserve/core"
	"sdserve/sdruntime"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BenchPlan describes one benchmark run. Fields left empty in the plan
// file fall back to the defaults, so an empty file runs the standard
// matrix.
type BenchPlan struct {
	// Prompts are generated once per cell each; the cell time is their
	// average.
	Prompts []string `yaml:"prompts"`

	// Steps are the step counts to test per scheduler.
	Steps []int `yaml:"steps"`

	// Schedulers lists the solvers to test, in any accepted spelling.
	Schedulers []string `yaml:"schedulers"`

	Guidance float64 `yaml:"guidance_scale"`
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
}

// DefaultBenchPlan returns the standard matrix: both solvers at the step
// counts bracketing the server default, on varied prompts so the average
// is not dominated by one subject.
func DefaultBenchPlan() BenchPlan {
	return BenchPlan{
		Prompts: []string{
			"a cat sitting on a mat, digital art style, detailed",
			"a dog running in a yard, watercolor style",
			"a mountain landscape, photorealistic",
		},
		Steps:      []int{20, 24, 28, 32},
		Schedulers: sdruntime.SchedulerNames(),
		Guidance:   sdruntime.DefaultGuidance,
		Width:      sdruntime.DefaultWidth,
		Height:     sdruntime.DefaultHeight,
	}
}

// LoadBenchPlan reads a plan file, fills unset fields from the default
// plan, and canonicalizes the scheduler names.
func LoadBenchPlan(path string) (BenchPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BenchPlan{}, fmt.Errorf("read plan: %w", err)
	}

	var plan BenchPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return BenchPlan{}, fmt.Errorf("parse plan: %w", err)
	}

	defaults := DefaultBenchPlan()
	if len(plan.Prompts) == 0 {
		plan.Prompts = defaults.Prompts
	}
	if len(plan.Steps) == 0 {
		plan.Steps = defaults.Steps
	}
	if len(plan.Schedulers) == 0 {
		plan.Schedulers = defaults.Schedulers
	}
	if plan.Guidance == 0 {
		plan.Guidance = defaults.Guidance
	}
	if plan.Width == 0 {
		plan.Width = defaults.Width
	}
	if plan.Height == 0 {
		plan.Height = defaults.Height
	}

	for i, name := range plan.Schedulers {
		scheduler, ok := sdruntime.NormalizeScheduler(name)
		if !ok {
			return BenchPlan{}, fmt.Errorf("unknown scheduler %q (valid: %s)",
				name, strings.Join(sdruntime.SchedulerNames(), ", "))
		}
		plan.Schedulers[i] = string(scheduler)
	}
	for _, steps := range plan.Steps {
		if steps < sdruntime.MinSteps || steps > sdruntime.MaxSteps {
			return BenchPlan{}, fmt.Errorf("steps %d out of range [%d, %d]",
				steps, sdruntime.MinSteps, sdruntime.MaxSteps)
		}
	}

	return plan, nil
}

// runBenchmark executes the plan and prints the timing table. Returns the
// process exit code.
func runBenchmark(planPath string) int {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	plan, err := LoadBenchPlan(planPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid benchmark plan: %v\n", err)
		return core.ExitCodeConfigError
	}

	config, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return core.ExitCodeConfigError
	}

	opts := config.RuntimeOptions()
	// The bench measures the cached model; it never downloads.
	opts.OfflineMode = true

	gen, err := sdruntime.NewGenerator(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create generator: %v\n", err)
		return core.ExitCodeConfigError
	}
	defer gen.Close()

	rule := strings.Repeat("=", 70)
	fmt.Println(rule)
	fmt.Println("Scheduler Benchmark")
	fmt.Println(rule)
	fmt.Printf("Model: %s\n", config.ModelID)
	fmt.Printf("Device: %s\n", config.Device)
	fmt.Printf("Test prompts: %d\n", len(plan.Prompts))
	fmt.Printf("Schedulers: %s\n", strings.Join(plan.Schedulers, ", "))
	fmt.Printf("Step counts: %v\n", plan.Steps)
	fmt.Println()

	fmt.Println("Loading model...")
	if err := gen.EnsureLoaded(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Model load failed: %v\n", err)
		return core.ExitCodeLoadFailed
	}
	fmt.Printf("Model loaded on %s\n\n", gen.Device())

	// results[scheduler][steps] = average seconds per image
	results := make(map[string]map[int]float64)
	for _, scheduler := range plan.Schedulers {
		fmt.Printf("Testing %s:\n", scheduler)
		results[scheduler] = make(map[int]float64)

		for _, steps := range plan.Steps {
			avg, err := benchCell(gen, plan, scheduler, steps)
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nGeneration failed: %v\n", err)
				return core.ExitCodeError
			}
			results[scheduler][steps] = avg
		}
		fmt.Println()
	}

	printBenchResults(plan, results)
	return core.ExitCodeSuccess
}

// benchCell times one scheduler at one step count, averaged over the
// plan's prompts.
func benchCell(gen *sdruntime.Generator, plan BenchPlan, scheduler string, steps int) (float64, error) {
	fmt.Printf("  Testing %d steps... ", steps)

	var total time.Duration
	for _, prompt := range plan.Prompts {
		result, err := gen.Generate(context.Background(), sdruntime.GenerateParams{
			Prompt:    prompt,
			Steps:     steps,
			Guidance:  plan.Guidance,
			Width:     plan.Width,
			Height:    plan.Height,
			Seed:      -1,
			Scheduler: sdruntime.Scheduler(scheduler),
		})
		if err != nil {
			return 0, err
		}
		total += result.Duration
	}

	avg := total.Seconds() / float64(len(plan.Prompts))
	fmt.Printf("%.2fs avg\n", avg)
	return avg, nil
}

// printBenchResults renders the results table and the recommendation
// against the server default configuration.
func printBenchResults(plan BenchPlan, results map[string]map[int]float64) {
	rule := strings.Repeat("=", 70)
	thin := strings.Repeat("-", 70)

	fmt.Println(rule)
	fmt.Println("RESULTS SUMMARY")
	fmt.Println(rule)

	header := make([]string, len(plan.Steps))
	for i, steps := range plan.Steps {
		header[i] = fmt.Sprintf("%6d steps", steps)
	}
	fmt.Printf("%-20s %s\n", "Scheduler", strings.Join(header, " | "))
	fmt.Println(thin)

	for _, scheduler := range plan.Schedulers {
		cells := make([]string, len(plan.Steps))
		for i, steps := range plan.Steps {
			cells[i] = fmt.Sprintf("%11.2fs", results[scheduler][steps])
		}
		fmt.Printf("%-20s %s\n", scheduler, strings.Join(cells, " | "))
	}
	fmt.Println(rule)

	// Fastest cell, scanning in plan order so ties resolve predictably
	fastestScheduler := ""
	fastestSteps := 0
	fastestTime := 0.0
	for _, scheduler := range plan.Schedulers {
		for _, steps := range plan.Steps {
			t := results[scheduler][steps]
			if fastestScheduler == "" || t < fastestTime {
				fastestScheduler, fastestSteps, fastestTime = scheduler, steps, t
			}
		}
	}

	fmt.Println()
	fmt.Println("RECOMMENDATIONS:")
	fmt.Println(thin)
	fmt.Printf("Fastest: %s @ %d steps = %.2fs\n", fastestScheduler, fastestSteps, fastestTime)

	defaultScheduler := string(sdruntime.SchedulerDPMSolverPP)
	if byStep, ok := results[defaultScheduler]; ok {
		if defaultTime, ok := byStep[sdruntime.DefaultSteps]; ok {
			fmt.Printf("Server default: %s @ %d steps = %.2fs", defaultScheduler, sdruntime.DefaultSteps, defaultTime)
			if fastestScheduler == defaultScheduler && fastestSteps == sdruntime.DefaultSteps {
				fmt.Println(" (fastest)")
			} else {
				diff := (defaultTime - fastestTime) / fastestTime * 100
				fmt.Printf(" (%+.1f%% vs fastest)\n", diff)
			}
		}
	}

	fmt.Println()
	fmt.Println("Quality vs speed:")
	fmt.Println("  20-24 steps: faster, may lose fine detail")
	fmt.Println("  28 steps:    balanced default")
	fmt.Println("  32 steps:    better detail, slower")
}
