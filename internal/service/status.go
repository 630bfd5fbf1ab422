// Package service implements the payment plan pipeline: document sync,
// portal link issuance, notification scheduling and dispatch, and the
// client confirmation flow.
package service

import (
	"time"

	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
)

// validTransitions enumerates the allowed status moves. CANCELLED may be
// reinstated to DRAFT when an obligation reappears in the document;
// CONFIRMED and VERIFIED never move backwards.
var validTransitions = map[types.PaymentStatus][]types.PaymentStatus{
	types.StatusDraft:     {types.StatusSent, types.StatusViewed, types.StatusConfirmed, types.StatusCancelled},
	types.StatusSent:      {types.StatusViewed, types.StatusConfirmed, types.StatusCancelled},
	types.StatusViewed:    {types.StatusConfirmed, types.StatusCancelled},
	types.StatusConfirmed: {types.StatusVerified},
	types.StatusVerified:  {},
	types.StatusCancelled: {types.StatusDraft},
}

// CanTransition reports whether a payment may move from one persisted
// status to another.
func CanTransition(from, to types.PaymentStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DisplayStatus derives the presentation status for a payment. OVERDUE is
// computed here from the due date and never written to storage: an overdue
// DRAFT stays DRAFT in the database.
func DisplayStatus(p *models.Payment, now time.Time) types.PaymentStatus {
	switch p.Status {
	case types.StatusDraft, types.StatusSent, types.StatusViewed:
		if p.DueDate != nil {
			today := now.UTC().Truncate(24 * time.Hour)
			if p.DueDate.Before(today) {
				return types.StatusOverdue
			}
		}
	}
	return p.Status
}
