package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/metrics"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// RequestID returns a middleware that attaches a request ID to every
// request. An incoming X-Request-ID header is honored; otherwise one is
// generated. The ID is echoed back on the response.
func RequestID() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", requestID)
			ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext returns the request ID attached by RequestID, or
// an empty string when none is present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// Logging returns a middleware that logs HTTP requests.
func Logging(logger log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Capture the status code for the log line.
			wrapper := &responseWrapper{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			duration := time.Since(start)
			logger.Info("HTTP Request",
				log.Str("method", r.Method),
				log.Str("path", r.URL.Path),
				log.Int("status", wrapper.status),
				log.Duration("duration", duration),
				log.Str("remote_addr", r.RemoteAddr),
				log.Str(log.RequestIDKey, RequestIDFromContext(r.Context())),
			)
		})
	}
}

// Instrument returns a middleware that records request counts and
// latencies.
func Instrument(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &responseWrapper{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			m.RecordHTTPRequest(r.Method, path, wrapper.status, time.Since(start))
		})
	}
}

// responseWrapper captures the status code written by a handler.
type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (rw *responseWrapper) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
