package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redsafetw/edge-core/internal/edge"
)

// handleRegisterHeartbeat begins liveness tracking for an edge device.
//
// POST /api/v1/edges/{edgeID}/heartbeat
//
// The caller must be bound to the device. Registration is idempotent: a
// device already under watch is left as is.
func (s *Server) handleRegisterHeartbeat(w http.ResponseWriter, r *http.Request) {
	edgeID := chi.URLParam(r, "edgeID")
	if err := edge.ValidateEdgeID(edgeID); err != nil {
		writeBadRequest(w, "invalid edge id")
		return
	}

	if !s.requireBinding(w, r, edgeID) {
		return
	}

	if err := s.tracker.Register(edgeID); err != nil {
		switch {
		case errors.Is(err, edge.ErrInvalidEdgeID):
			writeBadRequest(w, "invalid edge id")
		case errors.Is(err, edge.ErrBrokerUnavailable):
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "broker unavailable")
		default:
			s.logger.Error("edge registration failed", "edge_id", edgeID, "error", err)
			writeInternalError(w, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"edge_id": edgeID,
		"status":  "registered",
	})
}

// handleEdgeStatus returns the liveness view of an edge device.
//
// GET /api/v1/edges/{edgeID}/status
//
// A device is online when a heartbeat is present in the TTL-bounded cache;
// "tracked" additionally reports whether a watchdog is currently armed.
func (s *Server) handleEdgeStatus(w http.ResponseWriter, r *http.Request) {
	edgeID := chi.URLParam(r, "edgeID")
	if err := edge.ValidateEdgeID(edgeID); err != nil {
		writeBadRequest(w, "invalid edge id")
		return
	}

	if !s.requireBinding(w, r, edgeID) {
		return
	}

	rec, online, err := s.tracker.Status(edgeID)
	if err != nil {
		s.logger.Error("reading edge status failed", "edge_id", edgeID, "error", err)
		writeInternalError(w, "status lookup failed")
		return
	}

	resp := map[string]any{
		"edge_id": edgeID,
		"online":  online,
		"tracked": s.tracker.Tracked(edgeID),
	}
	if online {
		resp["heartbeat"] = rec.Payload
		resp["received_at"] = rec.ReceivedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireBinding checks that the authenticated caller is bound to the edge
// device, writing the error response itself when not. Returns true when the
// request may proceed.
func (s *Server) requireBinding(w http.ResponseWriter, r *http.Request, edgeID string) bool {
	bound, err := s.bindings.Exists(r.Context(), userID(r), edgeID)
	if err != nil {
		s.logger.Error("binding lookup failed", "edge_id", edgeID, "error", err)
		writeInternalError(w, "binding lookup failed")
		return false
	}
	if !bound {
		writeForbidden(w, "not bound to this edge")
		return false
	}
	return true
}
