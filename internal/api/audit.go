package api

import (
	"net/http"
	"strconv"

	"github.com/redsafetw/edge-core/internal/audit"
)

// handleAuditLog returns the caller's audit trail.
//
// GET /api/v1/audit?action=&edge_id=&limit=&offset=
//
// Entries are scoped to the authenticated user, most recent first.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{
		Action: r.URL.Query().Get("action"),
		EdgeID: r.URL.Query().Get("edge_id"),
		UserID: userID(r),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "invalid offset")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "audit lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// recordAudit appends an entry to the audit trail. Failures are logged,
// never returned; the action being recorded has already happened.
func (s *Server) recordAudit(r *http.Request, entry *audit.Entry) {
	entry.UserID = userID(r)
	if err := s.audit.Record(r.Context(), entry); err != nil {
		s.logger.Error("recording audit entry failed", "action", entry.Action, "error", err)
	}
}
