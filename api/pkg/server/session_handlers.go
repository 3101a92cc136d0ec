package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

const (
	defaultSessionListLimit = 50
	maxSessionListLimit     = 500
)

// handleListSessions returns sessions, most recent first, optionally
// filtered to one robot, per spec.md §6's /sessions query params.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	robotID := q.Get("robot_id")

	limit := defaultSessionListLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, r, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxSessionListLimit {
		limit = maxSessionListLimit
	}

	offset := 0
	if raw := q.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, r, http.StatusBadRequest, "bad_offset", "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	sessions, err := s.store.ListSessions(r.Context(), robotID, limit, offset)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_session_id", err.Error())
		return
	}

	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func parseSessionID(raw string) (uint, error) {
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}
