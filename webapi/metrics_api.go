package webapi

import (
	"net/http"
	"strconv"
	"time"

	"sdserve/metrics"
)

// SystemSection is the system portion of the metrics snapshot.
type SystemSection struct {
	Health     string    `json:"health"`
	Version    string    `json:"version"`
	Uptime     string    `json:"uptime"`
	UptimeSecs float64   `json:"uptime_secs"`
	LastCheck  time.Time `json:"last_check"`
}

// GPUSection is the GPU portion of the metrics snapshot.
type GPUSection struct {
	Available   bool                 `json:"available"`
	Current     *metrics.GPUMetrics  `json:"current,omitempty"`
	History     []metrics.GPUMetrics `json:"history,omitempty"`
	HistorySize int                  `json:"history_size,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// MetricsResponse represents the JSON response for /metrics.
type MetricsResponse struct {
	System       SystemSection              `json:"system"`
	Requests     metrics.RequestMetrics     `json:"requests"`
	Generations  metrics.GenerationMetrics  `json:"generations"`
	InFlight     int64                      `json:"in_flight"`
	PeakInFlight int64                      `json:"peak_in_flight"`
	Recent       []metrics.GenerationSample `json:"recent"`
	GPU          GPUSection                 `json:"gpu"`
}

// handleMetrics handles GET /metrics requests.
// Query parameters:
// - history: number of GPU history samples to include (default: 0)
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	status := s.collector.GetSystemStatus()

	writeJSON(w, http.StatusOK, MetricsResponse{
		System: SystemSection{
			Health:     status.Health,
			Version:    status.Version,
			Uptime:     FormatUptime(status.Uptime),
			UptimeSecs: status.Uptime.Seconds(),
			LastCheck:  status.LastCheck,
		},
		Requests:     s.collector.GetRequestMetrics(),
		Generations:  s.collector.GetGenerationMetrics(),
		InFlight:     s.runtime.InFlight(),
		PeakInFlight: s.runtime.PeakInFlight(),
		Recent:       s.collector.GetRecentGenerations(s.config.MetricsRecentLimit),
		GPU:          s.gpuSection(r),
	})
}

// gpuSection builds the GPU portion of the snapshot. When no collector is
// configured (CPU deployments) the section reports that explicitly rather
// than pretending the GPU is merely unavailable.
func (s *Server) gpuSection(r *http.Request) GPUSection {
	if s.gpuCollector == nil {
		return GPUSection{
			Available: false,
			Error:     "no GPU collector configured",
		}
	}

	section := GPUSection{
		Available: s.gpuCollector.IsAvailable(),
	}

	if !section.Available {
		if err := s.gpuCollector.GetLastError(); err != nil {
			section.Error = err.Error()
		}
		return section
	}

	current := s.gpuCollector.GetCurrentMetrics()
	section.Current = &current

	if n, err := strconv.Atoi(r.URL.Query().Get("history")); err == nil && n > 0 {
		section.History = s.gpuCollector.GetHistory(n)
		section.HistorySize = len(section.History)
	}

	return section
}
