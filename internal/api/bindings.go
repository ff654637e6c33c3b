package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redsafetw/edge-core/internal/audit"
	"github.com/redsafetw/edge-core/internal/binding"
	"github.com/redsafetw/edge-core/internal/edge"
)

// createBindingRequest is the body of POST /api/v1/bindings.
type createBindingRequest struct {
	EdgeID string `json:"edge_id"`
}

// handleListBindings returns the caller's edge bindings.
//
// GET /api/v1/bindings
func (s *Server) handleListBindings(w http.ResponseWriter, r *http.Request) {
	bindings, err := s.bindings.ListByUser(r.Context(), userID(r))
	if err != nil {
		s.logger.Error("listing bindings failed", "error", err)
		writeInternalError(w, "binding lookup failed")
		return
	}

	items := make([]map[string]any, 0, len(bindings))
	for _, b := range bindings {
		items = append(items, map[string]any{
			"edge_id":  b.EdgeID,
			"bound_at": b.BoundAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"bindings": items})
}

// handleCreateBinding binds the caller to an edge device.
//
// POST /api/v1/bindings
func (s *Server) handleCreateBinding(w http.ResponseWriter, r *http.Request) {
	var req createBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := edge.ValidateEdgeID(req.EdgeID); err != nil {
		writeBadRequest(w, "invalid edge id")
		return
	}

	if err := s.bindings.Bind(r.Context(), userID(r), req.EdgeID); err != nil {
		if errors.Is(err, binding.ErrAlreadyBound) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "already bound")
			return
		}
		s.logger.Error("creating binding failed", "edge_id", req.EdgeID, "error", err)
		writeInternalError(w, "binding failed")
		return
	}

	s.recordAudit(r, &audit.Entry{
		Action: audit.ActionEdgeBound,
		EdgeID: req.EdgeID,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"edge_id": req.EdgeID,
		"status":  "bound",
	})
}

// handleDeleteBinding removes the caller's binding to an edge device.
//
// DELETE /api/v1/bindings/{edgeID}
func (s *Server) handleDeleteBinding(w http.ResponseWriter, r *http.Request) {
	edgeID := chi.URLParam(r, "edgeID")
	if err := edge.ValidateEdgeID(edgeID); err != nil {
		writeBadRequest(w, "invalid edge id")
		return
	}

	if err := s.bindings.Unbind(r.Context(), userID(r), edgeID); err != nil {
		if errors.Is(err, binding.ErrNotBound) {
			writeNotFound(w, "not bound")
			return
		}
		s.logger.Error("deleting binding failed", "edge_id", edgeID, "error", err)
		writeInternalError(w, "unbinding failed")
		return
	}

	s.recordAudit(r, &audit.Entry{
		Action: audit.ActionEdgeUnbound,
		EdgeID: edgeID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"edge_id": edgeID,
		"status":  "unbound",
	})
}
