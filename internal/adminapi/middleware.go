// Package adminapi serves the bridge's read-only operator surface -- peer
// sessions and route occupancy -- as plain JSON over HTTP, logged and
// panic-recovered the way the teacher's server.go wraps its own /health and
// /ws handlers with structured zerolog logging and RecoverPanic.
package adminapi

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// ErrPanicRecovered indicates a handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in admin handler")

// ErrPeerNotFound indicates no live session exists for a requested peer id.
var ErrPeerNotFound = errors.New("peer not found")

// Middleware wraps an http.Handler with another layer of behavior.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares to h in the order given, so the first
// middleware in the list runs outermost.
func Chain(h http.Handler, mw ...Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// statusWriter captures the status code written so LoggingMiddleware can
// log it; http.ResponseWriter has no getter for it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs every request with method, path, status, and
// duration, one zerolog event per request the way the teacher logs each
// WebSocket upgrade and health check.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			event := logger.Info()
			if sw.status >= http.StatusBadRequest {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("duration", time.Since(start)).
				Msg("admin request completed")
		})
	}
}

// RecoveryMiddleware recovers from panics in downstream handlers, logging
// the panic value and stack trace at Error level and responding with a
// 500, the HTTP-handler analog of the teacher's monitoring.RecoverPanic.
func RecoveryMiddleware(logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("path", r.URL.Path).
						Interface("panic", rec).
						Str("stack", string(debug.Stack())).
						Msg("panic recovered in admin handler")

					writeError(w, http.StatusInternalServerError,
						fmt.Errorf("%s: %w", r.URL.Path, ErrPanicRecovered))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
