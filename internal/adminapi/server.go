package adminapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pubsub-bridge/bridged/internal/bridge"
)

// NewServer builds an *http.Server for the admin surface: a plain mux with
// read-header and idle timeouts set, the same shape as the teacher's
// Server.Start http.Server for its /ws and /health mux.
func NewServer(addr string, br *bridge.Bridge, logger zerolog.Logger) *http.Server {
	path, handler := New(br, logger)

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
