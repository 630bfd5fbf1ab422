package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// handleListClientNotifications returns a client's send history
func (s *Server) handleListClientNotifications(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	clientID := mux.Vars(r)["id"]

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be 1-500", nil)
			return
		}
		limit = parsed
	}

	notifications, err := s.notifications.ListByClient(r.Context(), owner, clientID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}

// handleProcessNotifications runs one dispatch pass over due
// notifications. The cron scheduler calls this; running it twice
// concurrently is safe because each record is claimed exactly once.
func (s *Server) handleProcessNotifications(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dispatchService.ProcessDue(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
