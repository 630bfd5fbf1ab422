package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/payplan-sync/internal/models"
	"github.com/shopspring/decimal"
)

// handlePortalView returns the client's payment checklist for a portal
// token. Opening the page marks SENT payments as VIEWED.
func (s *Server) handlePortalView(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	view, err := s.portalService.ViewPlan(r.Context(), token)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

type portalConfirmRequest struct {
	Email              string           `json:"email"`
	ConfirmedDate      *time.Time       `json:"confirmedDate,omitempty"`
	ConfirmedAmount    *decimal.Decimal `json:"confirmedAmount,omitempty"`
	ConfirmationNumber *string          `json:"confirmationNumber,omitempty"`
	Note               *string          `json:"note,omitempty"`
}

// handlePortalConfirm records a client confirmation for one payment
func (s *Server) handlePortalConfirm(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token := vars["token"]
	paymentID := vars["id"]

	var req portalConfirmRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body: "+err.Error(), nil)
		return
	}

	input := &models.ConfirmationInput{
		Email:  req.Email,
		Date:   req.ConfirmedDate,
		Amount: req.ConfirmedAmount,
		Number: req.ConfirmationNumber,
		Note:   req.Note,
	}

	payment, err := s.portalService.ConfirmPayment(r.Context(), token, paymentID, input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, payment)
}
