package api

import (
	"net/http"
)

// handleGetSession returns the owner's current wizard session, creating an
// empty one on first access.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	session, err := s.sessionService.GetCurrent(r.Context(), owner)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// handleSaveSession replaces the wizard session with the submitted
// snapshot. The body is accepted as-is and normalized; malformed sections
// degrade to defaults rather than rejecting the save.
func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var body any
	if err := parseRawJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "request body must be valid JSON", nil)
		return
	}

	session, err := s.sessionService.SaveCurrent(r.Context(), owner, body)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}
