package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/payplan-sync/internal/types"
)

// parseQuarterParams reads and validates the taxYear and quarter query or
// body values shared by the instruction endpoints.
func parseQuarterParams(w http.ResponseWriter, taxYearRaw, quarterRaw string) (taxYear, quarter int, ok bool) {
	taxYear, err := strconv.Atoi(taxYearRaw)
	if err != nil || taxYear < 1900 || taxYear > 2200 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "taxYear must be a four-digit year", nil)
		return 0, 0, false
	}

	quarter, err = strconv.Atoi(quarterRaw)
	if err != nil || quarter < 1 || quarter > 4 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "quarter must be 1-4", nil)
		return 0, 0, false
	}

	return taxYear, quarter, true
}

// handlePreviewInstructions renders the instruction email for one quarter
// without sending anything.
func (s *Server) handlePreviewInstructions(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	clientID := mux.Vars(r)["id"]

	q := r.URL.Query()
	taxYear, quarter, ok := parseQuarterParams(w, q.Get("taxYear"), q.Get("quarter"))
	if !ok {
		return
	}

	msg, err := s.scheduleService.PreviewInstructions(r.Context(), owner, clientID, taxYear, quarter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
		"text":    msg.Text,
	})
}

type sendInstructionsRequest struct {
	TaxYear int        `json:"taxYear"`
	Quarter int        `json:"quarter"`
	SendAt  *time.Time `json:"sendAt,omitempty"`
}

// handleSendInstructions sends or schedules the quarterly instruction email
// for a client. Without a future sendAt the email goes out inline and the
// response carries the delivery outcome; scheduled sends return 202 and wait
// for the dispatcher.
func (s *Server) handleSendInstructions(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	clientID := mux.Vars(r)["id"]

	var req sendInstructionsRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body: "+err.Error(), nil)
		return
	}

	taxYear, quarter, ok := parseQuarterParams(w, strconv.Itoa(req.TaxYear), strconv.Itoa(req.Quarter))
	if !ok {
		return
	}

	sendAt := time.Time{}
	if req.SendAt != nil {
		sendAt = *req.SendAt
	}

	notification, err := s.scheduleService.SendInstructions(r.Context(), owner, clientID, taxYear, quarter, sendAt)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if notification.Status == types.NotificationQueued {
		status = http.StatusAccepted
	}
	respondJSON(w, status, notification)
}
