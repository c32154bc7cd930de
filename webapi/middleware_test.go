package webapi

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sdserve/imagegen"
	"sdserve/metrics"
)

// testRequestLogger captures log entries for inspection.
type testRequestLogger struct {
	mu      sync.Mutex
	entries []RequestLogEntry
}

func (t *testRequestLogger) LogRequest(entry RequestLogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
}

func (t *testRequestLogger) getEntries() []RequestLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RequestLogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func TestRequestIDMiddleware(t *testing.T) {
	echo := func(seen *string) http.Handler {
		return RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*seen = imagegen.RequestIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))
	}

	t.Run("assigns a fresh ID", func(t *testing.T) {
		var seen string
		rec := httptest.NewRecorder()
		echo(&seen).ServeHTTP(rec, httptest.NewRequest("GET", "/generate", nil))

		if seen == "" {
			t.Fatal("handler saw no request ID in context")
		}
		if got := rec.Header().Get(RequestIDHeader); got != seen {
			t.Errorf("response header = %q, want context value %q", got, seen)
		}
	})

	t.Run("honors the inbound header", func(t *testing.T) {
		var seen string
		req := httptest.NewRequest("GET", "/generate", nil)
		req.Header.Set(RequestIDHeader, "upstream-123")
		rec := httptest.NewRecorder()
		echo(&seen).ServeHTTP(rec, req)

		if seen != "upstream-123" {
			t.Errorf("context request ID = %q, want upstream-123", seen)
		}
		if got := rec.Header().Get(RequestIDHeader); got != "upstream-123" {
			t.Errorf("response header = %q, want upstream-123", got)
		}
	})

	t.Run("IDs differ across requests", func(t *testing.T) {
		ids := make(map[string]bool)
		handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ids[imagegen.RequestIDFromContext(r.Context())] = true
		}))

		for i := 0; i < 10; i++ {
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		}
		if len(ids) != 10 {
			t.Errorf("distinct IDs across 10 requests = %d, want 10", len(ids))
		}
	})
}

func TestLoggingMiddleware(t *testing.T) {
	t.Run("captures one entry per request", func(t *testing.T) {
		logger := &testRequestLogger{}
		m := NewLoggingMiddleware(LoggingMiddlewareConfig{Logger: logger})

		wrapped := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}))

		req := httptest.NewRequest("GET", "/test/path", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}

		entries := logger.getEntries()
		if len(entries) != 1 {
			t.Fatalf("entries = %d, want 1", len(entries))
		}
		entry := entries[0]
		if entry.Method != "GET" || entry.Path != "/test/path" {
			t.Errorf("logged %s %s, want GET /test/path", entry.Method, entry.Path)
		}
		if entry.StatusCode != 200 {
			t.Errorf("StatusCode = %d, want 200", entry.StatusCode)
		}
		if entry.BytesWritten != 2 {
			t.Errorf("BytesWritten = %d, want 2", entry.BytesWritten)
		}
		if entry.RemoteAddr != "192.168.1.1:12345" {
			t.Errorf("RemoteAddr = %q, want the raw socket address", entry.RemoteAddr)
		}
	})

	t.Run("request ID flows from context", func(t *testing.T) {
		logger := &testRequestLogger{}
		m := NewLoggingMiddleware(LoggingMiddlewareConfig{Logger: logger})

		// Request ID middleware outermost, as the server wires it
		wrapped := RequestIDMiddleware(m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))

		req := httptest.NewRequest("POST", "/generate", nil)
		req.Header.Set(RequestIDHeader, "req-abc")
		wrapped.ServeHTTP(httptest.NewRecorder(), req)

		entries := logger.getEntries()
		if len(entries) != 1 {
			t.Fatalf("entries = %d, want 1", len(entries))
		}
		if entries[0].RequestID != "req-abc" {
			t.Errorf("RequestID = %q, want req-abc", entries[0].RequestID)
		}
	})

	t.Run("skip paths bypass log and counters", func(t *testing.T) {
		logger := &testRequestLogger{}
		store := metrics.NewMetricsStore(metrics.StoreConfig{}, time.Now())
		m := NewLoggingMiddleware(LoggingMiddlewareConfig{
			Logger:    logger,
			Collector: store,
			SkipPaths: []string{"/health"},
		})

		wrapped := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/generate", nil))

		entries := logger.getEntries()
		if len(entries) != 1 {
			t.Fatalf("entries = %d, want only the unskipped request", len(entries))
		}
		if entries[0].Path != "/generate" {
			t.Errorf("logged path = %q, want /generate", entries[0].Path)
		}
		if total := store.GetRequestMetrics().Total; total != 1 {
			t.Errorf("request total = %d, want 1", total)
		}
	})

	t.Run("body without WriteHeader logs 200", func(t *testing.T) {
		logger := &testRequestLogger{}
		m := NewLoggingMiddleware(LoggingMiddlewareConfig{Logger: logger})

		wrapped := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("implicit 200"))
		}))
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))

		entries := logger.getEntries()
		if len(entries) != 1 {
			t.Fatalf("entries = %d, want 1", len(entries))
		}
		if entries[0].StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want 200", entries[0].StatusCode)
		}
	})

	t.Run("nil logger discards without panicking", func(t *testing.T) {
		m := NewLoggingMiddleware(LoggingMiddlewareConfig{})

		wrapped := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestLoggingMiddlewareRecordsOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(m metrics.RequestMetrics) (int64, string)
	}{
		{"success", 200, func(m metrics.RequestMetrics) (int64, string) { return m.Success, "Success" }},
		{"client error", 422, func(m metrics.RequestMetrics) (int64, string) { return m.ClientError, "ClientError" }},
		{"cancelled", 499, func(m metrics.RequestMetrics) (int64, string) { return m.Cancelled, "Cancelled" }},
		{"server error", 503, func(m metrics.RequestMetrics) (int64, string) { return m.ServerError, "ServerError" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := metrics.NewMetricsStore(metrics.StoreConfig{}, time.Now())
			m := NewLoggingMiddleware(LoggingMiddlewareConfig{
				Logger:    &testRequestLogger{},
				Collector: store,
			})

			status := tt.status
			wrapped := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))

			rm := store.GetRequestMetrics()
			if rm.Total != 1 {
				t.Fatalf("Total = %d, want 1", rm.Total)
			}
			if count, field := tt.check(rm); count != 1 {
				t.Errorf("%s = %d, want 1", field, count)
			}
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	t.Run("sums multiple writes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

		sr.Write([]byte("First "))
		sr.Write([]byte("Second "))
		sr.Write([]byte("Third"))

		if sr.bytes != 18 {
			t.Errorf("bytes = %d, want 18", sr.bytes)
		}
		if got := rec.Body.String(); got != "First Second Third" {
			t.Errorf("body = %q, want %q", got, "First Second Third")
		}
	})

	t.Run("first WriteHeader wins", func(t *testing.T) {
		sr := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}

		sr.WriteHeader(http.StatusCreated)
		sr.WriteHeader(http.StatusBadRequest)

		if sr.status != http.StatusCreated {
			t.Errorf("status = %d, want 201", sr.status)
		}
	})
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "10.0.0.1:54321",
			want:       "10.0.0.1:54321",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:54321",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			want:       "203.0.113.5",
		},
		{
			name:       "x-forwarded-for chain uses first hop",
			remoteAddr: "10.0.0.1:54321",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 70.41.3.18, 150.172.238.178"},
			want:       "203.0.113.5",
		},
		{
			name:       "padded first hop is trimmed",
			remoteAddr: "10.0.0.1:54321",
			headers:    map[string]string{"X-Forwarded-For": " 203.0.113.5 , 70.41.3.18"},
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:54321",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "x-forwarded-for wins over x-real-ip",
			remoteAddr: "10.0.0.1:54321",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.5",
				"X-Real-IP":       "203.0.113.9",
			},
			want: "203.0.113.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
