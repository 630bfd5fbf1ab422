package service

import (
	"context"
	"time"

	"github.com/payplan-sync/internal/errors"
	"github.com/payplan-sync/internal/logging"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
	"github.com/shopspring/decimal"
)

// PaymentService handles operator-side payment reads and edits
type PaymentService struct {
	workUnitRepo WorkUnitRepository
	paymentRepo  PaymentRepository
	eventRepo    ConfirmationEventRepository
	logger       *logging.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	workUnitRepo WorkUnitRepository,
	paymentRepo PaymentRepository,
	eventRepo ConfirmationEventRepository,
	logger *logging.Logger,
) *PaymentService {
	return &PaymentService{
		workUnitRepo: workUnitRepo,
		paymentRepo:  paymentRepo,
		eventRepo:    eventRepo,
		logger:       logger,
	}
}

// ListClientPayments returns a client's plan payments in document order
func (s *PaymentService) ListClientPayments(ctx context.Context, ownerID, clientID string) ([]*models.Payment, error) {
	wu, err := s.workUnitRepo.FindForClient(ctx, ownerID, clientID, types.BatchPlan)
	if err != nil {
		return nil, errors.NewDatabaseError("find work unit", err)
	}
	if wu == nil {
		return nil, errors.NewNotFoundError("work unit", clientID)
	}

	payments, err := s.paymentRepo.ListByWorkUnit(ctx, ownerID, wu.ID)
	if err != nil {
		return nil, errors.NewDatabaseError("list payments", err)
	}

	return payments, nil
}

// PaymentPatch carries an operator edit. Nil fields are left unchanged.
type PaymentPatch struct {
	PaymentType *string              `json:"paymentType,omitempty"`
	Quarter     *int                 `json:"quarter,omitempty"`
	DueDate     *time.Time           `json:"dueDate,omitempty"`
	Amount      *decimal.Decimal     `json:"amount,omitempty"`
	TaxYear     *int                 `json:"taxYear,omitempty"`
	Notes       *string              `json:"notes,omitempty"`
	Method      *string              `json:"method,omitempty"`
	Status      *types.PaymentStatus `json:"status,omitempty"`
}

// UpdatePayment applies an operator edit. Status changes go through the
// transition table; moving a CONFIRMED payment to VERIFIED appends the
// verification audit event.
func (s *PaymentService) UpdatePayment(ctx context.Context, ownerID, paymentID, actorEmail string, patch *PaymentPatch) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, ownerID, paymentID)
	if err != nil {
		return nil, errors.NewNotFoundError("payment", paymentID)
	}

	verifying := false
	if patch.Status != nil && *patch.Status != payment.Status {
		if *patch.Status == types.StatusOverdue {
			return nil, errors.NewInvalidParameterError("status", "OVERDUE is derived and cannot be assigned")
		}
		if !CanTransition(payment.Status, *patch.Status) {
			return nil, errors.NewConflictError("invalid status transition")
		}
		verifying = payment.Status == types.StatusConfirmed && *patch.Status == types.StatusVerified
		payment.Status = *patch.Status
	}

	if patch.PaymentType != nil {
		payment.PaymentType = *patch.PaymentType
	}
	if patch.Quarter != nil {
		payment.Quarter = patch.Quarter
	}
	if patch.DueDate != nil {
		payment.DueDate = patch.DueDate
	}
	if patch.Amount != nil {
		payment.Amount = patch.Amount
	}
	if patch.TaxYear != nil {
		payment.TaxYear = patch.TaxYear
	}
	if patch.Notes != nil {
		payment.Notes = patch.Notes
	}
	if patch.Method != nil {
		payment.Method = patch.Method
	}

	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return nil, errors.NewDatabaseError("update payment", err)
	}

	if verifying {
		event := &models.ConfirmationEvent{
			OwnerID:    ownerID,
			PaymentID:  paymentID,
			EventType:  types.EventVerified,
			ActorType:  types.ActorOperator,
			ActorEmail: actorEmail,
		}
		if err := s.eventRepo.Append(ctx, event); err != nil {
			s.logger.WithError(err).WithField("payment_id", paymentID).Error("Failed to record verification event")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"payment_id": paymentID,
		"status":     payment.Status,
	}).Info("Payment updated")

	return payment, nil
}

// PaymentHistory returns a payment's audit events
func (s *PaymentService) PaymentHistory(ctx context.Context, ownerID, paymentID string) ([]*models.ConfirmationEvent, error) {
	if _, err := s.paymentRepo.GetByID(ctx, ownerID, paymentID); err != nil {
		return nil, errors.NewNotFoundError("payment", paymentID)
	}

	events, err := s.eventRepo.ListByPayment(ctx, ownerID, paymentID)
	if err != nil {
		return nil, errors.NewDatabaseError("list payment history", err)
	}

	return events, nil
}
