// Package webapi provides the HTTP transport for the generation service.
// This file contains the request ID and request logging middleware molecules.
package webapi

import (
	"net/http"
	"strings"
	"time"

	"sdserve/imagegen"
	"sdserve/logging"
	"sdserve/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader is the header carrying the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns a correlation ID to every request. An
// inbound X-Request-ID is honored so upstream proxies can correlate;
// otherwise a fresh UUID is generated. The ID is echoed on the response
// and carried in the request context for logs and history rows.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := imagegen.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogEntry is one handled request as the access log saw it.
type RequestLogEntry struct {
	// Timestamp is when the handler chain started on the request.
	Timestamp time.Time

	// RequestID is the correlation ID assigned by RequestIDMiddleware.
	RequestID string

	// Method and Path identify the route.
	Method string
	Path   string

	// StatusCode and BytesWritten describe the response.
	StatusCode   int
	BytesWritten int64

	// Duration is wall time from entry to handler return.
	Duration time.Duration

	// RemoteAddr is the client address, proxy headers resolved.
	RemoteAddr string
}

// RequestLogger receives one entry per handled request.
type RequestLogger interface {
	LogRequest(entry RequestLogEntry)
}

// ZapRequestLogger logs request entries through the structured logger.
type ZapRequestLogger struct {
	Logger *logging.Logger
}

// LogRequest logs a request entry as structured fields.
func (z *ZapRequestLogger) LogRequest(entry RequestLogEntry) {
	z.Logger.Info("http request",
		zap.String("request_id", entry.RequestID),
		zap.String("method", entry.Method),
		zap.String("path", entry.Path),
		zap.Int("status", entry.StatusCode),
		zap.Duration("duration", entry.Duration),
		zap.String("remote_addr", entry.RemoteAddr),
		zap.Int64("bytes", entry.BytesWritten),
	)
}

// NoopRequestLogger discards all log entries.
type NoopRequestLogger struct{}

// LogRequest does nothing.
func (n *NoopRequestLogger) LogRequest(entry RequestLogEntry) {}

// LoggingMiddleware is a molecule that observes every HTTP request:
// it logs method, path, status, duration, and bytes, and counts the
// request outcome in the metrics store.
//
// It composes:
//   - statusRecorder, so the response status and size are visible
//   - RequestLogger for output
//   - metrics.MetricsCollector for outcome counters (optional)
//
// Safe for use from concurrent handler goroutines.
type LoggingMiddleware struct {
	logger RequestLogger

	// collector counts request outcomes; nil disables counting
	collector metrics.MetricsCollector

	// skipPaths are excluded from logging and outcome counting
	// (e.g. health probes)
	skipPaths map[string]bool
}

// LoggingMiddlewareConfig holds configuration for the LoggingMiddleware.
type LoggingMiddlewareConfig struct {
	// Logger for request logging (required)
	Logger RequestLogger

	// Collector for request outcome counters (optional)
	Collector metrics.MetricsCollector

	// SkipPaths are paths to exclude from logging and counting
	SkipPaths []string
}

// NewLoggingMiddleware creates a LoggingMiddleware from the config.
// A nil Logger falls back to discarding entries.
func NewLoggingMiddleware(config LoggingMiddlewareConfig) *LoggingMiddleware {
	if config.Logger == nil {
		config.Logger = &NoopRequestLogger{}
	}

	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return &LoggingMiddleware{
		logger:    config.Logger,
		collector: config.Collector,
		skipPaths: skip,
	}
}

// Handler wraps an http.Handler with request observation.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		// A handler that never calls WriteHeader means an implicit 200.
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if m.collector != nil {
			m.collector.RecordRequest(metrics.OutcomeForStatus(rec.status))
		}
		m.logger.LogRequest(RequestLogEntry{
			Timestamp:    start,
			RequestID:    imagegen.RequestIDFromContext(r.Context()),
			Method:       r.Method,
			Path:         r.URL.Path,
			StatusCode:   rec.status,
			Duration:     time.Since(start),
			RemoteAddr:   getClientIP(r),
			BytesWritten: rec.bytes,
		})
	})
}

// statusRecorder wraps http.ResponseWriter so the access log can see
// the status code and body size after the handler returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
	wrote  bool
}

// WriteHeader records the first status code; later calls pass through
// unrecorded, matching net/http's first-write-wins behavior.
func (w *statusRecorder) WriteHeader(status int) {
	if !w.wrote {
		w.status = status
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Flush passes through so PNG streaming keeps working behind the
// recorder.
func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// getClientIP resolves the client address, trusting proxy headers when
// present. X-Forwarded-For may carry a hop chain; the first entry is
// the originating client.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
