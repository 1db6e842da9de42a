package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/callbridge/internal/observability"
)

// responseWriter captures the status code for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// instrument attaches request correlation, tracing, logging and metrics
// to webhook requests.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := context.WithValue(r.Context(), observability.RequestIDKey, uuid.NewString())

		if s.tracer != nil {
			spanCtx, sp := s.tracer.Start(ctx, "webhook "+r.URL.Path,
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			)
			ctx = spanCtx
			defer sp.End()
		}

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		elapsed := time.Since(start)
		status := fmt.Sprintf("%d", wrapped.status)

		if s.metrics != nil {
			s.metrics.HTTPRequestCounter.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(elapsed.Seconds())
		}
		if s.logger != nil {
			s.logger.Debug(ctx, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration", elapsed.String(),
				"remote_addr", r.RemoteAddr,
			)
		}
	})
}
