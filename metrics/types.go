// Package metrics: this file contains the atom-level data types.
// Plain structs and constants only; aggregation lives in store.go.
package metrics

import (
	"time"

	"sdserve/core"
)

// GenerationSample represents a single generation attempt as seen by the
// metrics system. This is a pure data structure; the durable record lives
// in the db package.
type GenerationSample struct {
	// RequestID correlates the sample with logs and history rows
	RequestID string `json:"request_id"`

	// Scheduler is the solver that ran the attempt
	Scheduler string `json:"scheduler"`

	// Steps is the number of inference steps
	Steps int `json:"steps"`

	// Status indicates the outcome: "completed" or "failed"
	Status string `json:"status"`

	// StartTime is when the attempt began
	StartTime time.Time `json:"start_time"`

	// Duration is the total generation time
	Duration time.Duration `json:"duration"`

	// ErrorMsg contains error details if Status is "failed"
	ErrorMsg string `json:"error_msg,omitempty"`
}

// GPUMetrics is one nvidia-smi sample as the collector parses it:
// byte-denominated, with the free-memory figure the snapshot payload
// reports. The MiB-based alerting view is core.GPUMetrics.
type GPUMetrics struct {
	// Utilization is percent of compute in use (0-100)
	Utilization float64 `json:"utilization"`

	// Temperature is degrees Celsius
	Temperature float64 `json:"temperature"`

	// MemoryTotal is the card's VRAM in bytes
	MemoryTotal int64 `json:"memory_total"`

	// MemoryUsed is allocated VRAM in bytes
	MemoryUsed int64 `json:"memory_used"`

	// MemoryFree is unallocated VRAM in bytes
	MemoryFree int64 `json:"memory_free"`
}

// ToCore converts the byte-based sample to the MiB-based core.GPUMetrics,
// which carries the alert thresholds and the log marshaler.
func (g GPUMetrics) ToCore() core.GPUMetrics {
	const bytesPerMiB = 1024 * 1024
	return core.GPUMetrics{
		VRAMUsedMB:     g.MemoryUsed / bytesPerMiB,
		VRAMTotalMB:    g.MemoryTotal / bytesPerMiB,
		GPUUtilization: g.Utilization,
		Temperature:    g.Temperature,
	}
}

// RequestMetrics represents HTTP request counts grouped by outcome.
type RequestMetrics struct {
	// Total is the number of requests handled
	Total int64 `json:"total"`

	// Success is the count of 2xx responses
	Success int64 `json:"success"`

	// ClientError is the count of 4xx responses
	ClientError int64 `json:"client_error"`

	// Cancelled is the count of 499 responses (client gone before work)
	Cancelled int64 `json:"cancelled"`

	// ServerError is the count of 5xx responses
	ServerError int64 `json:"server_error"`
}

// SystemStatus is the health summary the status endpoint returns.
type SystemStatus struct {
	// Health indicates the system state: "running", "degraded", "stopped"
	Health string `json:"health"`

	// Version is the build's version label
	Version string `json:"version"`

	// Uptime is time elapsed since process start
	Uptime time.Duration `json:"uptime"`

	// LastCheck is when the snapshot was assembled
	LastCheck time.Time `json:"last_check"`
}

// GenerationMetrics represents aggregated generation statistics.
type GenerationMetrics struct {
	// Completed is the count of successful generations
	Completed int64 `json:"completed"`

	// Failed is the count of failed generations
	Failed int64 `json:"failed"`

	// TotalTimeMS is the cumulative generation time in milliseconds
	TotalTimeMS int64 `json:"total_time_ms"`

	// AverageTimeMS is the mean generation time in milliseconds
	AverageTimeMS int64 `json:"average_time_ms"`

	// ByScheduler contains per-solver statistics
	ByScheduler map[string]*SchedulerMetrics `json:"by_scheduler"`
}

// SchedulerMetrics represents statistics for a specific solver.
type SchedulerMetrics struct {
	// Count is the total number of attempts with this solver
	Count int64 `json:"count"`

	// SuccessRate is the percentage of completed attempts (0-100)
	SuccessRate float64 `json:"success_rate"`

	// AvgDurationMS is the average generation time in milliseconds
	AvgDurationMS int64 `json:"avg_duration_ms"`
}

// Status constants for GenerationSample. The values match the history
// table's status vocabulary so the two surfaces read the same.
const (
	GenerationCompleted = "completed"
	GenerationFailed    = "failed"
)

// Health states SystemStatus reports
const (
	SystemHealthRunning  = "running"
	SystemHealthDegraded = "degraded"
	SystemHealthStopped  = "stopped"
)

// Request outcome constants
const (
	OutcomeSuccess     = "success"
	OutcomeClientError = "client_error"
	OutcomeCancelled   = "cancelled"
	OutcomeServerError = "server_error"
)

// OutcomeForStatus classifies an HTTP status code into a request outcome.
// This is a pure function.
func OutcomeForStatus(code int) string {
	switch {
	case code >= 500:
		return OutcomeServerError
	case code == 499:
		return OutcomeCancelled
	case code >= 400:
		return OutcomeClientError
	default:
		return OutcomeSuccess
	}
}
