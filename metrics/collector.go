// Package metrics provides in-memory aggregation of request, generation,
// and GPU metrics for the snapshot endpoints.
// This file contains the MetricsCollector interface the transport layer
// consumes.
package metrics

// MetricsCollector is the aggregation surface the HTTP layer talks to.
// The MetricsStore organism implements it; handler tests substitute
// lighter fakes.
//
// Implementations must be safe for concurrent use and return zero
// values for anything not collected yet.
type MetricsCollector interface {
	// RecordRequest counts one handled HTTP request by outcome.
	// Outcomes come from OutcomeForStatus.
	RecordRequest(outcome string)

	// GetRequestMetrics returns request counts grouped by outcome.
	GetRequestMetrics() RequestMetrics

	// RecordGeneration folds a finished generation attempt into the
	// aggregates.
	RecordGeneration(sample GenerationSample)

	// GetGenerationMetrics returns the aggregated generation stats.
	GetGenerationMetrics() GenerationMetrics

	// GetRecentGenerations returns up to limit of the newest samples,
	// ordered oldest-first.
	GetRecentGenerations(limit int) []GenerationSample

	// UpdateGPUMetrics replaces the current GPU snapshot.
	UpdateGPUMetrics(gpu GPUMetrics)

	// GetGPUMetrics returns the most recent GPU snapshot.
	GetGPUMetrics() GPUMetrics

	// SetHealth records the current system health state.
	SetHealth(health string)

	// GetSystemStatus returns health, uptime, and version together.
	GetSystemStatus() SystemStatus
}
