package validation

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// ValidationStep is the recorded outcome of one pre-flight check.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus is the lifecycle state of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

var stepStatusNames = [...]string{
	StepPending: "pending",
	StepRunning: "running",
	StepPassed:  "passed",
	StepFailed:  "failed",
	StepWarning: "warning",
	StepSkipped: "skipped",
}

// String names the status for logs and test output.
func (s StepStatus) String() string {
	if s >= 0 && int(s) < len(stepStatusNames) {
		return stepStatusNames[s]
	}
	return "unknown"
}

// SuiteResult is the tallied outcome of a full validation run.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// ValidationSuite runs every pre-flight check before the server takes
// traffic. It is the organism composing the ConfigChecker,
// ModelCacheChecker, and CUDAChecker molecules.
//
// Warnings (a missing .env, low disk, disabled auth) are printed and do
// not fail the suite; failures name the setting to fix.
type ValidationSuite struct {
	output       io.Writer
	config       *ConfigChecker
	cache        *ModelCacheChecker
	cuda         *CUDAChecker
	showProgress bool
	failFast     bool
}

// NewValidationSuite builds a suite with stdout progress and every
// checker enabled.
func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{
		output:       os.Stdout,
		config:       NewConfigChecker(),
		cache:        NewModelCacheChecker(),
		cuda:         NewCUDAChecker(),
		showProgress: true,
	}
}

// WithOutput redirects progress output.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithShowProgress toggles the step-by-step progress printer.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on the first failure.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// WithEnvPath points the environment check at a different .env file.
func (s *ValidationSuite) WithEnvPath(path string) *ValidationSuite {
	s.config.WithEnvPath(path)
	return s
}

// WithProbeTimeout sets the timeout for the device probe.
func (s *ValidationSuite) WithProbeTimeout(timeout time.Duration) *ValidationSuite {
	s.cuda.WithTimeout(timeout)
	return s
}

// Validate runs every pre-flight check in order and returns the tallied
// result.
func (s *ValidationSuite) Validate() SuiteResult {
	startTime := time.Now()
	steps := make([]ValidationStep, 0, 11)

	if s.showProgress {
		s.printHeader("Stable Diffusion API Pre-flight")
	}

	checks := []struct {
		name string
		fn   func() ValidationResult
	}{
		{"Environment File", s.config.CheckEnvFile},
		{"Model Configuration", s.config.CheckModelConfig},
		{"Generation Defaults", s.config.CheckDefaults},
		{"Scheduler", s.config.CheckScheduler},
		{"Listen Address", s.config.CheckListenAddress},
		{"Authentication", s.config.CheckAuthKey},
		{"Model Weights", s.cache.CheckWeights},
		{"History Database", s.config.CheckDatabasePath},
		{"Log File", s.config.CheckLogPath},
	}

	for _, check := range checks {
		step := s.runStep(check.name, check.fn)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			return s.finish(steps, startTime)
		}
	}

	// A CPU deployment has nothing to verify against the driver.
	if s.cuda.Wanted() {
		step := s.runStep("CUDA Device", s.cuda.CheckDevice)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			return s.finish(steps, startTime)
		}
	} else {
		steps = append(steps, s.skipStep("CUDA Device", "Device is cpu"))
	}

	steps = append(steps, s.runStep("Disk Space", s.config.CheckDiskSpace))

	return s.finish(steps, startTime)
}

// runStep executes one check with timing and progress output.
func (s *ValidationSuite) runStep(name string, fn func() ValidationResult) ValidationStep {
	step := ValidationStep{Name: name, Status: StepRunning}

	if s.showProgress {
		s.printStepStart(name)
	}

	startTime := time.Now()
	result := fn()
	step.Latency = time.Since(startTime)
	step.Message = result.Message
	step.Error = result.Error

	switch {
	case result.Valid:
		step.Status = StepPassed
	case result.Warning:
		step.Status = StepWarning
	default:
		step.Status = StepFailed
	}

	if s.showProgress {
		s.printStep(step)
	}

	return step
}

// skipStep records a check that does not apply to this configuration.
func (s *ValidationSuite) skipStep(name, reason string) ValidationStep {
	step := ValidationStep{Name: name, Status: StepSkipped, Message: reason}
	if s.showProgress {
		s.printStep(step)
	}
	return step
}

// finish tallies the steps and prints the summary.
func (s *ValidationSuite) finish(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{Steps: steps, Duration: time.Since(startTime)}
	result.tally()

	if s.showProgress {
		s.printSummary(result)
	}

	return result
}

// tally counts outcomes; any failed step fails the whole run.
func (r *SuiteResult) tally() {
	r.TotalSteps = len(r.Steps)
	r.Success = true
	for _, step := range r.Steps {
		switch step.Status {
		case StepPassed:
			r.PassedSteps++
		case StepFailed:
			r.FailedSteps++
			r.Success = false
		case StepWarning:
			r.Warnings++
		}
	}
}

// Color styles shared by the progress printer.
var (
	styleHeader   = color.New(color.FgCyan, color.Bold)
	stylePass     = color.New(color.FgGreen)
	styleFail     = color.New(color.FgRed)
	styleWarn     = color.New(color.FgYellow)
	styleMuted    = color.New(color.FgHiBlack)
	stylePassBold = color.New(color.FgGreen, color.Bold)
	styleFailBold = color.New(color.FgRed, color.Bold)
)

// stepBadge picks the icon and style for a finished step.
func stepBadge(status StepStatus) (string, *color.Color) {
	switch status {
	case StepPassed:
		return "✓", stylePass
	case StepFailed:
		return "✗", styleFail
	case StepWarning:
		return "!", styleWarn
	case StepSkipped:
		return "○", styleMuted
	}
	return "?", color.New(color.FgWhite)
}

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	styleHeader.Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

func (s *ValidationSuite) printStep(step ValidationStep) {
	icon, clr := stepBadge(step.Status)

	// Overwrite the running line.
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		styleMuted.Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		styleFail.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		stylePassBold.Fprintf(s.output, "━━━ Pre-flight Passed ")
		styleMuted.Fprintf(s.output, "(%d/%d checks passed in %v)",
			result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		stylePassBold.Fprintln(s.output, " ━━━")
	} else {
		styleFailBold.Fprintf(s.output, "━━━ Pre-flight Failed ")
		styleMuted.Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		styleFailBold.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// Summary returns a one-line description of the run for log output.
func (r SuiteResult) Summary() string {
	if r.Success {
		return fmt.Sprintf("Pre-flight Passed: %d/%d checks in %v, %d warnings",
			r.PassedSteps, r.TotalSteps, r.Duration.Round(time.Millisecond), r.Warnings)
	}
	return fmt.Sprintf("Pre-flight Failed: %d/%d passed, %d failed, %d warnings",
		r.PassedSteps, r.TotalSteps, r.FailedSteps, r.Warnings)
}

// GetErrors returns the errors attached to any step.
func (r SuiteResult) GetErrors() []error {
	var errs []error
	for _, step := range r.Steps {
		if step.Error != nil {
			errs = append(errs, step.Error)
		}
	}
	return errs
}

// GetFirstError returns the error of the first failed step, or nil when
// everything passed.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}
