package service

import (
	"context"
	stderrors "errors"
	"net/mail"
	"time"

	"github.com/payplan-sync/internal/errors"
	"github.com/payplan-sync/internal/logging"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
)

// PortalService serves the unauthenticated client portal. Every operation
// is keyed by an opaque token; any token that does not resolve to a valid
// link yields the same uniform not-found error.
type PortalService struct {
	linkRepo    PortalLinkRepository
	clientRepo  ClientRepository
	paymentRepo PaymentRepository
	logger      *logging.Logger
}

// NewPortalService creates a new portal service
func NewPortalService(
	linkRepo PortalLinkRepository,
	clientRepo ClientRepository,
	paymentRepo PaymentRepository,
	logger *logging.Logger,
) *PortalService {
	return &PortalService{
		linkRepo:    linkRepo,
		clientRepo:  clientRepo,
		paymentRepo: paymentRepo,
		logger:      logger,
	}
}

// PortalPayment is one checklist row as shown to the client. Status is the
// derived display status, so overdue obligations appear OVERDUE here while
// staying DRAFT, SENT, or VIEWED in storage.
type PortalPayment struct {
	ID                 string              `json:"id"`
	Scope              types.PaymentScope  `json:"scope"`
	StateCode          *string             `json:"stateCode,omitempty"`
	PaymentType        string              `json:"paymentType"`
	Quarter            *int                `json:"quarter,omitempty"`
	DueDate            *time.Time          `json:"dueDate,omitempty"`
	Amount             *string             `json:"amount,omitempty"`
	TaxYear            *int                `json:"taxYear,omitempty"`
	Notes              *string             `json:"notes,omitempty"`
	Method             *string             `json:"method,omitempty"`
	Status             types.PaymentStatus `json:"status"`
	ConfirmedAt        *time.Time          `json:"confirmedAt,omitempty"`
	ConfirmationNumber *string             `json:"confirmationNumber,omitempty"`
}

// PortalPlanView is the full portal page payload
type PortalPlanView struct {
	ClientName string          `json:"clientName"`
	Payments   []PortalPayment `json:"payments"`
	ExpiresAt  *time.Time      `json:"expiresAt,omitempty"`
}

func (s *PortalService) resolve(ctx context.Context, token string) (*models.PortalLink, error) {
	link, err := s.linkRepo.ResolveByHash(ctx, HashToken(token), types.PortalScopePlan, time.Now())
	if err != nil {
		if stderrors.Is(err, models.ErrLinkNotFound) {
			return nil, errors.NewLinkNotFoundError()
		}
		return nil, errors.NewDatabaseError("resolve portal link", err)
	}
	return link, nil
}

// ViewPlan resolves a token and returns the client's checklist. Opening the
// page records the visit and flips SENT payments to VIEWED.
func (s *PortalService) ViewPlan(ctx context.Context, token string) (*PortalPlanView, error) {
	link, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.linkRepo.Touch(ctx, link.ID, now); err != nil {
		s.logger.WithError(err).WithField("link_id", link.ID).Warn("Failed to record portal visit")
	}

	if _, err := s.paymentRepo.FlipSentToViewed(ctx, link.WorkUnitID); err != nil {
		return nil, errors.NewDatabaseError("mark payments viewed", err)
	}

	client, err := s.clientRepo.GetByID(ctx, link.OwnerID, link.ClientID)
	if err != nil {
		return nil, errors.NewDatabaseError("get client", err)
	}

	payments, err := s.paymentRepo.ListByWorkUnit(ctx, link.OwnerID, link.WorkUnitID)
	if err != nil {
		return nil, errors.NewDatabaseError("list payments", err)
	}

	view := &PortalPlanView{
		ClientName: client.RecipientName(),
		ExpiresAt:  link.ExpiresAt,
	}
	for _, p := range payments {
		if p.Status == types.StatusCancelled {
			continue
		}
		view.Payments = append(view.Payments, portalPayment(p, now))
	}

	return view, nil
}

// ConfirmPayment records a client confirmation for one payment reachable
// through the token's work unit.
func (s *PortalService) ConfirmPayment(ctx context.Context, token, paymentID string, input *models.ConfirmationInput) (*PortalPayment, error) {
	link, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if input == nil || input.Email == "" {
		return nil, errors.NewInvalidParameterError("email", "confirmation email is required")
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return nil, errors.NewInvalidParameterError("email", "invalid email address")
	}

	payment, err := s.paymentRepo.GetByID(ctx, link.OwnerID, paymentID)
	if err != nil || payment.WorkUnitID != link.WorkUnitID {
		return nil, errors.NewNotFoundError("payment", paymentID)
	}

	confirmed, err := s.paymentRepo.Confirm(ctx, link.OwnerID, paymentID, input, types.ActorClient)
	if err != nil {
		if stderrors.Is(err, models.ErrNotConfirmable) {
			switch payment.Status {
			case types.StatusConfirmed, types.StatusVerified:
				return nil, errors.NewConflictError("payment is already confirmed")
			default:
				return nil, errors.NewConflictError("payment can no longer be confirmed")
			}
		}
		return nil, errors.NewDatabaseError("confirm payment", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"payment_id": paymentID,
		"link_id":    link.ID,
	}).Info("Payment confirmed through portal")

	view := portalPayment(confirmed, time.Now())
	return &view, nil
}

func portalPayment(p *models.Payment, now time.Time) PortalPayment {
	var amount *string
	if p.Amount != nil {
		v := p.Amount.StringFixed(2)
		amount = &v
	}

	return PortalPayment{
		ID:                 p.ID,
		Scope:              p.Scope,
		StateCode:          p.StateCode,
		PaymentType:        p.PaymentType,
		Quarter:            p.Quarter,
		DueDate:            p.DueDate,
		Amount:             amount,
		TaxYear:            p.TaxYear,
		Notes:              p.Notes,
		Method:             p.Method,
		Status:             DisplayStatus(p, now),
		ConfirmedAt:        p.ConfirmedAt,
		ConfirmationNumber: p.ConfirmationNumber,
	}
}
