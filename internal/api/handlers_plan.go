package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/service"
)

// handlePublishPlan syncs the owner's current wizard session into the plan
// batch: clients and work units are upserted and every client's payments
// are reconciled.
func (s *Server) handlePublishPlan(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	session, err := s.sessionService.GetCurrent(r.Context(), owner)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	results, err := s.syncService.PublishPlan(r.Context(), owner, session)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"clients": len(results),
		"results": results,
	})
}

// paymentView is the operator-facing payment payload. The status field is
// the derived display status; the stored status rides alongside so the UI
// can distinguish a derived OVERDUE from persisted state.
type paymentView struct {
	*models.Payment
	DisplayStatus string `json:"displayStatus"`
}

func toPaymentViews(payments []*models.Payment) []paymentView {
	now := time.Now()
	views := make([]paymentView, len(payments))
	for i, p := range payments {
		views[i] = paymentView{
			Payment:       p,
			DisplayStatus: string(service.DisplayStatus(p, now)),
		}
	}
	return views
}

// handleListClientPayments returns a client's plan payments
func (s *Server) handleListClientPayments(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	clientID := mux.Vars(r)["id"]

	payments, err := s.paymentService.ListClientPayments(r.Context(), owner, clientID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"payments": toPaymentViews(payments),
	})
}

// handleUpdatePayment applies an operator edit to one payment
func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	paymentID := mux.Vars(r)["id"]

	var patch service.PaymentPatch
	if err := parseJSONBody(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body: "+err.Error(), nil)
		return
	}

	payment, err := s.paymentService.UpdatePayment(r.Context(), owner, paymentID, r.Header.Get("X-User-Email"), &patch)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	views := toPaymentViews([]*models.Payment{payment})
	respondJSON(w, http.StatusOK, views[0])
}

// handlePaymentHistory returns a payment's confirmation audit trail
func (s *Server) handlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	paymentID := mux.Vars(r)["id"]

	events, err := s.paymentService.PaymentHistory(r.Context(), owner, paymentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
