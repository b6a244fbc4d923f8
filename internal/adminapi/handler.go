package adminapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pubsub-bridge/bridged/internal/bridge"
)

// PeerSnapshot is the JSON view of one bridge.Session, exposing
// observability fields (fragment accounting, next-ping rotation) alongside
// the core session state.
type PeerSnapshot struct {
	ID                uint32 `json:"id"`
	Stamp             uint64 `json:"stamp"`
	LastActive        time.Time `json:"last_active"`
	LastSeqno         uint64 `json:"last_seqno"`
	SubCount          uint32 `json:"sub_count"`
	PsubCount         uint32 `json:"psub_count"`
	State             string `json:"state"`
	FragmentsInFlight int    `json:"fragments_in_flight"`
	IsNextPing        bool   `json:"is_next_ping"`
}

// RoutesSnapshot summarizes SubjectRouteMap/PatternRouteMap occupancy.
type RoutesSnapshot struct {
	SubjectRoutes int `json:"subject_routes"`
	PatternRoutes int `json:"pattern_routes"`
}

// Handler serves the bridge's read-only admin surface: peer session
// listing, route occupancy, and a liveness probe. Handler is a thin
// adapter over *bridge.Bridge, the same role the teacher's Server plays
// over its connection pool and subscription index.
type Handler struct {
	bridge *bridge.Bridge
	logger zerolog.Logger
	mux    *http.ServeMux
}

// New builds a Handler over br and returns the mount path ("/") and the
// fully wrapped http.Handler (logging + recovery), mirroring the way the
// teacher's Server.Start mounts /health and /ws on one mux.
func New(br *bridge.Bridge, logger zerolog.Logger) (string, http.Handler) {
	h := &Handler{
		bridge: br,
		logger: logger.With().Str("component", "adminapi").Logger(),
		mux:    http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux.HandleFunc("GET /v1/peers", h.handlePeers)
	h.mux.HandleFunc("GET /v1/peers/{id}", h.handlePeerByID)
	h.mux.HandleFunc("GET /v1/routes", h.handleRoutes)

	wrapped := Chain(h.mux,
		LoggingMiddleware(h.logger),
		RecoveryMiddleware(h.logger),
	)

	return "/", wrapped
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handlePeers(w http.ResponseWriter, r *http.Request) {
	h.logger.Info().Msg("ListPeers called")

	nextPingStamp, hasNext := h.bridge.Peers.NextPing()

	snapshots := make([]PeerSnapshot, 0, h.bridge.Peers.Count())
	h.bridge.Peers.Each(func(s *bridge.Session) {
		snapshots = append(snapshots, toPeerSnapshot(s, hasNext && s.Stamp == nextPingStamp))
	})

	writeJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) handlePeerByID(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse peer id %q: %w", idStr, err))
		return
	}

	h.logger.Info().Uint64("id", id).Msg("GetPeer called")

	sess, ok := h.bridge.Peers.Get(uint32(id))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("peer id %d: %w", id, ErrPeerNotFound))
		return
	}

	nextPingStamp, hasNext := h.bridge.Peers.NextPing()
	writeJSON(w, http.StatusOK, toPeerSnapshot(sess, hasNext && sess.Stamp == nextPingStamp))
}

func (h *Handler) handleRoutes(w http.ResponseWriter, r *http.Request) {
	h.logger.Info().Msg("GetRoutes called")

	writeJSON(w, http.StatusOK, RoutesSnapshot{
		SubjectRoutes: h.bridge.Subjects.Count(),
		PatternRoutes: h.bridge.Patterns.Count(),
	})
}

func toPeerSnapshot(s *bridge.Session, isNextPing bool) PeerSnapshot {
	return PeerSnapshot{
		ID:                s.ID,
		Stamp:             s.Stamp,
		LastActive:        s.LastActive,
		LastSeqno:         s.LastSeqno,
		SubCount:          s.SubCount,
		PsubCount:         s.PsubCount,
		State:             s.State.String(),
		FragmentsInFlight: s.FragmentsInFlight,
		IsNextPing:        isNextPing,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
