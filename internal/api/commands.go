package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redsafetw/edge-core/internal/audit"
	"github.com/redsafetw/edge-core/internal/cache"
	"github.com/redsafetw/edge-core/internal/edge"
)

// Stream retrieval timing. The window is one second past the default
// command timeout, so a stream opened right after dispatch always sees the
// terminal value before giving up.
const (
	streamPollInterval = 500 * time.Millisecond
	streamWindow       = 31 * time.Second
)

// sendCommandRequest is the body of POST /api/v1/commands.
type sendCommandRequest struct {
	EdgeID  string          `json:"edge_id"`
	Code    string          `json:"code"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// handleSendCommand dispatches a command to an edge device.
//
// POST /api/v1/commands
//
// Returns the trace id immediately; the result is retrieved later via the
// poll or stream endpoints.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := edge.ValidateEdgeID(req.EdgeID); err != nil {
		writeBadRequest(w, "invalid edge id")
		return
	}
	if req.Code == "" {
		writeBadRequest(w, "code is required")
		return
	}

	if !s.requireBinding(w, r, req.EdgeID) {
		return
	}

	traceID, err := s.dispatcher.Send(req.EdgeID, req.Code, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, edge.ErrInvalidEdgeID):
			writeBadRequest(w, "invalid edge id")
		case errors.Is(err, edge.ErrBrokerUnavailable):
			// The trace id, when present, already resolved to "notfound"
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":   ErrCodeUnavailable,
				"message":  "broker unavailable",
				"trace_id": traceID,
			})
		default:
			s.logger.Error("command dispatch failed", "edge_id", req.EdgeID, "error", err)
			writeInternalError(w, "dispatch failed")
		}
		return
	}

	s.recordAudit(r, &audit.Entry{
		Action:  audit.ActionCommandSent,
		EdgeID:  req.EdgeID,
		TraceID: traceID,
		Details: map[string]any{"code": req.Code},
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"trace_id": traceID,
	})
}

// handleCommandResult polls for a command's result.
//
// GET /api/v1/commands/{traceID}
//
// Three outcomes: 200 with the payload (or the literal "notfound" once the
// wait expired), 202 while the correlation is still open, 404 for trace ids
// this cache has never seen (or whose entries expired).
func (s *Server) handleCommandResult(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	req, ok := s.requireOwnedCommand(w, r, traceID)
	if !ok {
		return
	}

	payload, resolved, err := s.commands.GetResponse(traceID)
	if err != nil {
		s.logger.Error("reading command response failed", "trace_id", traceID, "error", err)
		writeInternalError(w, "response lookup failed")
		return
	}
	if !resolved {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"trace_id": traceID,
			"status":   "pending",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trace_id": traceID,
		"edge_id":  req.EdgeID,
		"payload":  payload,
	})
}

// handleCommandStream streams a command's result as server-sent events.
//
// GET /api/v1/commands/{traceID}/stream
//
// Emits exactly one "result" event (the payload, or "notfound") and
// completes. The cache is polled rather than hooked, so the stream behaves
// the same whether it is opened before, during, or after resolution.
func (s *Server) handleCommandStream(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	if _, ok := s.requireOwnedCommand(w, r, traceID); !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternalError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	deadline := time.NewTimer(streamWindow)
	defer deadline.Stop()
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		if payload, resolved, err := s.commands.GetResponse(traceID); err == nil && resolved {
			s.writeStreamEvent(w, flusher, traceID, payload)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-deadline.C:
			// The correlator should have recorded "notfound" long before
			// this fires; emit the terminal value regardless
			s.writeStreamEvent(w, flusher, traceID, json.RawMessage(`"`+cache.NotFound+`"`))
			return
		case <-ticker.C:
		}
	}
}

// writeStreamEvent emits the stream's single event. No event: line is
// written, so clients receive it under the default "message" type.
func (s *Server) writeStreamEvent(w http.ResponseWriter, flusher http.Flusher, traceID string, payload json.RawMessage) {
	event := map[string]any{
		"trace_id": traceID,
		"payload":  payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("encoding stream event failed", "trace_id", traceID, "error", err)
		return
	}
	//nolint:errcheck // Best-effort write; client may have gone away
	w.Write([]byte("data: " + string(data) + "\n\n"))
	flusher.Flush()
}

// requireOwnedCommand loads the cached request for a trace id and checks
// the caller is bound to the edge it was sent to, writing the error
// response itself otherwise.
func (s *Server) requireOwnedCommand(w http.ResponseWriter, r *http.Request, traceID string) (*cache.RequestRecord, bool) {
	req, found, err := s.commands.GetRequest(traceID)
	if err != nil {
		s.logger.Error("reading command request failed", "trace_id", traceID, "error", err)
		writeInternalError(w, "request lookup failed")
		return nil, false
	}
	if !found {
		writeNotFound(w, "unknown trace id")
		return nil, false
	}
	if !s.requireBinding(w, r, req.EdgeID) {
		return nil, false
	}
	return req, true
}
