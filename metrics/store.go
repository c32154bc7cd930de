// Package metrics: this file contains the MetricsStore organism, the
// canonical MetricsCollector implementation backing /metrics and the
// health snapshot.
package metrics

import (
	"sync"
	"time"
)

// MetricsStore holds every runtime metric in memory: request outcome
// counters, generation aggregates with a per-scheduler breakdown, a
// circular buffer of recent samples, and the latest GPU snapshot. One
// RWMutex guards it all; snapshot reads take the shared lock and never
// contend with each other.
//
// Usage:
//
//	store := NewMetricsStore(DefaultStoreConfig(), time.Now())
//	store.RecordGeneration(sample)
//	stats := store.GetGenerationMetrics()
type MetricsStore struct {
	mu sync.RWMutex

	// Request outcome counters
	reqTotal       int64
	reqSuccess     int64
	reqClientError int64
	reqCancelled   int64
	reqServerError int64

	// Generation aggregation
	genCompleted     int64
	genFailed        int64
	genTotalDuration time.Duration
	bySolver         map[string]*solverStats

	// Recent samples (circular buffer)
	samples    []GenerationSample
	sampleCap  int
	sampleHead int
	sampleSize int

	// Latest GPU sample, replaced wholesale on update
	gpuMetrics GPUMetrics

	// System metadata
	health    string
	startTime time.Time
	version   string
}

// solverStats holds per-scheduler aggregation data
type solverStats struct {
	count         int64
	completed     int64
	totalDuration time.Duration
}

// StoreConfig sizes and labels the MetricsStore.
type StoreConfig struct {
	// SampleCapacity is the max number of generation samples to retain
	SampleCapacity int
	// Version is reported in every status snapshot
	Version string
}

// DefaultStoreConfig retains 100 samples and reports version 0.0.0.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		SampleCapacity: 100,
		Version:        "0.0.0",
	}
}

// NewMetricsStore builds an empty store. Uptime in status snapshots
// is measured from startTime.
func NewMetricsStore(config StoreConfig, startTime time.Time) *MetricsStore {
	cap := config.SampleCapacity
	if cap < 1 {
		cap = 100
	}

	return &MetricsStore{
		bySolver:   make(map[string]*solverStats),
		samples:    make([]GenerationSample, cap),
		sampleCap:  cap,
		sampleHead: 0,
		sampleSize: 0,
		health:     SystemHealthRunning,
		startTime:  startTime,
		version:    config.Version,
	}
}

// RecordRequest counts one handled HTTP request by outcome. Unknown
// outcomes still advance the total.
func (s *MetricsStore) RecordRequest(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reqTotal++
	switch outcome {
	case OutcomeSuccess:
		s.reqSuccess++
	case OutcomeClientError:
		s.reqClientError++
	case OutcomeCancelled:
		s.reqCancelled++
	case OutcomeServerError:
		s.reqServerError++
	}
}

// GetRequestMetrics returns request counts grouped by outcome.
func (s *MetricsStore) GetRequestMetrics() RequestMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return RequestMetrics{
		Total:       s.reqTotal,
		Success:     s.reqSuccess,
		ClientError: s.reqClientError,
		Cancelled:   s.reqCancelled,
		ServerError: s.reqServerError,
	}
}

// RecordGeneration folds one finished attempt into the aggregates,
// the per-scheduler breakdown, and the recent-sample ring.
func (s *MetricsStore) RecordGeneration(sample GenerationSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Add to circular buffer
	s.samples[s.sampleHead] = sample
	s.sampleHead = (s.sampleHead + 1) % s.sampleCap
	if s.sampleSize < s.sampleCap {
		s.sampleSize++
	}

	// Update aggregations
	if sample.Status == GenerationCompleted {
		s.genCompleted++
	} else if sample.Status == GenerationFailed {
		s.genFailed++
	}
	s.genTotalDuration += sample.Duration

	// Update per-solver stats
	stats, ok := s.bySolver[sample.Scheduler]
	if !ok {
		stats = &solverStats{}
		s.bySolver[sample.Scheduler] = stats
	}
	stats.count++
	if sample.Status == GenerationCompleted {
		stats.completed++
	}
	stats.totalDuration += sample.Duration
}

// GetGenerationMetrics assembles the aggregate view, computing the
// average and per-scheduler success rates on the way out.
func (s *MetricsStore) GetGenerationMetrics() GenerationMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := GenerationMetrics{
		Completed:   s.genCompleted,
		Failed:      s.genFailed,
		TotalTimeMS: s.genTotalDuration.Milliseconds(),
		ByScheduler: make(map[string]*SchedulerMetrics),
	}

	total := s.genCompleted + s.genFailed
	if total > 0 {
		metrics.AverageTimeMS = (s.genTotalDuration / time.Duration(total)).Milliseconds()
	}

	for solver, stats := range s.bySolver {
		var successRate float64
		if stats.count > 0 {
			successRate = float64(stats.completed) / float64(stats.count) * 100
		}

		var avgDuration time.Duration
		if stats.count > 0 {
			avgDuration = stats.totalDuration / time.Duration(stats.count)
		}

		metrics.ByScheduler[solver] = &SchedulerMetrics{
			Count:         stats.count,
			SuccessRate:   successRate,
			AvgDurationMS: avgDuration.Milliseconds(),
		}
	}

	return metrics
}

// GetRecentGenerations returns up to limit of the newest samples,
// ordered oldest-first. Asking for more than is retained returns
// everything retained.
func (s *MetricsStore) GetRecentGenerations(limit int) []GenerationSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.sampleSize == 0 {
		return []GenerationSample{}
	}

	if limit > s.sampleSize {
		limit = s.sampleSize
	}

	result := make([]GenerationSample, limit)
	for i := 0; i < limit; i++ {
		idx := (s.sampleHead - limit + i + s.sampleCap) % s.sampleCap
		result[i] = s.samples[idx]
	}

	return result
}

// UpdateGPUMetrics replaces the GPU snapshot with a fresh sample.
func (s *MetricsStore) UpdateGPUMetrics(gpu GPUMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gpuMetrics = gpu
}

// GetGPUMetrics returns the last sample the GPU collector pushed.
func (s *MetricsStore) GetGPUMetrics() GPUMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gpuMetrics
}

// SetHealth records the current system health state.
func (s *MetricsStore) SetHealth(health string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = health
}

// GetSystemStatus assembles the health snapshot: state, version,
// uptime since construction.
func (s *MetricsStore) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SystemStatus{
		Health:    s.health,
		Version:   s.version,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
	}
}

var _ MetricsCollector = (*MetricsStore)(nil)
