// Package webapi provides the HTTP transport for the generation service.
// This file contains the identity and health check handlers.
package webapi

import (
	"net/http"

	"sdserve/imagegen"
	"sdserve/metrics"
	"sdserve/sdruntime"
)

// IdentityResponse is the JSON body for the root endpoint.
type IdentityResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// handleIdentity handles GET / requests with the service identity and
// endpoint catalog.
func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	// The "/" pattern matches every otherwise-unrouted path
	if r.URL.Path != "/" {
		writeEnvelope(w, imagegen.Envelope{
			Error:  "not_found",
			Code:   http.StatusNotFound,
			Detail: "Not found",
		})
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	endpoints := map[string]string{
		"/generate": "POST - Generate image from prompt",
		"/health":   "GET - Health check and system info",
	}
	if s.history != nil {
		endpoints["/history"] = "GET - Recent generation records"
	}
	if s.collector != nil {
		endpoints["/metrics"] = "GET - Runtime metrics snapshot"
	}

	writeJSON(w, http.StatusOK, IdentityResponse{
		Service:   s.config.ServiceName,
		Version:   s.config.Version,
		Endpoints: endpoints,
	})
}

// HealthResponse is the JSON body for the health endpoint.
type HealthResponse struct {
	Status        string         `json:"status"`
	ModelLoaded   bool           `json:"model_loaded"`
	GeneratorInfo sdruntime.Info `json:"generator_info"`
}

// Health status values.
const (
	HealthStatusHealthy  = "healthy"
	HealthStatusDegraded = "degraded"
)

// handleHealth handles GET /health requests.
// The service reports degraded with a 503 until the model is loaded, so
// orchestrators hold traffic during warmup instead of eating 503s on
// generate.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	info := s.runtime.Info()

	status := HealthStatusHealthy
	code := http.StatusOK
	if !info.Loaded {
		status = HealthStatusDegraded
		code = http.StatusServiceUnavailable
	}

	if s.collector != nil {
		if info.Loaded {
			s.collector.SetHealth(metrics.SystemHealthRunning)
		} else {
			s.collector.SetHealth(metrics.SystemHealthDegraded)
		}
	}

	writeJSON(w, code, HealthResponse{
		Status:        status,
		ModelLoaded:   info.Loaded,
		GeneratorInfo: info,
	})
}
