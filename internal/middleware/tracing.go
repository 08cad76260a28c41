package middleware

import (
	"net/http"
	"time"

	"github.com/R3E-Network/vault_portal/internal/logging"
)

const (
	traceHeader    = "X-Trace-ID"
	maxTraceIDSize = 64
)

// TracingMiddleware assigns a trace ID to every request and logs its completion.
// Probe paths are traced but not logged.
type TracingMiddleware struct {
	logger *logging.Logger
	quiet  map[string]struct{}
}

// NewTracingMiddleware creates a tracing middleware. quietPaths are exempt from
// request logging.
func NewTracingMiddleware(logger *logging.Logger, quietPaths ...string) *TracingMiddleware {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}
	return &TracingMiddleware{logger: logger, quiet: quiet}
}

// Handler returns the tracing middleware handler.
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if !validTraceID(traceID) {
			traceID = logging.NewTraceID()
		}

		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set(traceHeader, traceID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))

		if _, ok := m.quiet[r.URL.Path]; ok && rw.statusCode < 500 {
			return
		}
		m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// validTraceID accepts caller-supplied IDs made of printable ASCII without spaces.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDSize {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
