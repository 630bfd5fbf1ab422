package service

import (
	"context"
	"strings"
	"time"

	"github.com/payplan-sync/internal/errors"
	"github.com/payplan-sync/internal/intake"
	"github.com/payplan-sync/internal/logging"
	"github.com/payplan-sync/internal/mail"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
	"github.com/shopspring/decimal"
)

// instructionDeliverer delivers one just-queued notification inline and
// returns the refreshed record.
type instructionDeliverer interface {
	DeliverNow(ctx context.Context, n *models.Notification) (*models.Notification, error)
}

// ScheduleService creates quarterly instruction notifications. A QUEUED
// record only names the quarter it covers; the payment set and portal link
// are resolved at delivery time. Immediate sends run the dispatch path
// inline, future sends wait for the dispatcher.
type ScheduleService struct {
	clientRepo       ClientRepository
	workUnitRepo     WorkUnitRepository
	paymentRepo      PaymentRepository
	notificationRepo NotificationRepository
	dispatcher       instructionDeliverer
	logger           *logging.Logger
}

// NewScheduleService creates a new schedule service
func NewScheduleService(
	clientRepo ClientRepository,
	workUnitRepo WorkUnitRepository,
	paymentRepo PaymentRepository,
	notificationRepo NotificationRepository,
	dispatcher instructionDeliverer,
	logger *logging.Logger,
) *ScheduleService {
	return &ScheduleService{
		clientRepo:       clientRepo,
		workUnitRepo:     workUnitRepo,
		paymentRepo:      paymentRepo,
		notificationRepo: notificationRepo,
		dispatcher:       dispatcher,
		logger:           logger,
	}
}

// quarterPayments loads the client's plan work unit and the sendable
// payments for one quarter.
func (s *ScheduleService) quarterPayments(ctx context.Context, ownerID, clientID string, taxYear, quarter int) (*models.WorkUnit, []*models.Payment, error) {
	wu, err := s.workUnitRepo.FindForClient(ctx, ownerID, clientID, types.BatchPlan)
	if err != nil {
		return nil, nil, errors.NewDatabaseError("find work unit", err)
	}
	if wu == nil {
		return nil, nil, errors.NewNotFoundError("work unit", clientID)
	}

	payments, err := s.paymentRepo.ListQuarter(ctx, ownerID, wu.ID, taxYear, quarter)
	if err != nil {
		return nil, nil, errors.NewDatabaseError("list quarter payments", err)
	}
	if len(payments) == 0 {
		return nil, nil, errors.NewInvalidParameterError("quarter", "no payments for the requested quarter")
	}

	return wu, payments, nil
}

// PreviewInstructions renders the quarterly instruction email without
// queueing anything or issuing a link.
func (s *ScheduleService) PreviewInstructions(ctx context.Context, ownerID, clientID string, taxYear, quarter int) (*mail.Message, error) {
	client, err := s.clientRepo.GetByID(ctx, ownerID, clientID)
	if err != nil {
		return nil, errors.NewNotFoundError("client", clientID)
	}

	_, payments, err := s.quarterPayments(ctx, ownerID, clientID, taxYear, quarter)
	if err != nil {
		return nil, err
	}

	msg, err := mail.BuildQuarterlyInstructions(instructionData(client, payments, taxYear, quarter, ""))
	if err != nil {
		return nil, errors.NewInternalError("failed to render instruction email", err)
	}
	msg.To = client.PrimaryEmail

	return msg, nil
}

// SendInstructions creates the notification for one client quarter. With a
// future sendAt it stays QUEUED for the dispatcher; otherwise it is delivered
// inline and the returned record carries the outcome. Validation happens
// here so the operator hears about an empty quarter or a missing email at
// request time, even though the dispatcher re-resolves both before sending.
func (s *ScheduleService) SendInstructions(ctx context.Context, ownerID, clientID string, taxYear, quarter int, sendAt time.Time) (*models.Notification, error) {
	client, err := s.clientRepo.GetByID(ctx, ownerID, clientID)
	if err != nil {
		return nil, errors.NewNotFoundError("client", clientID)
	}
	if client.PrimaryEmail == "" {
		return nil, errors.NewInvalidParameterError("client", "client has no email address")
	}

	if _, _, err := s.quarterPayments(ctx, ownerID, clientID, taxYear, quarter); err != nil {
		return nil, err
	}

	now := time.Now()
	if sendAt.IsZero() {
		sendAt = now
	}

	notification := &models.Notification{
		OwnerID:     ownerID,
		ClientID:    clientID,
		Channel:     types.ChannelEmail,
		MessageType: types.MessageTypeQuarterlyInstructions,
		Recipient:   client.PrimaryEmail,
		Status:      types.NotificationQueued,
		SendAt:      sendAt,
		Metadata: models.NotificationMetadata{
			TaxYear: taxYear,
			Quarter: quarter,
		},
	}

	if err := s.notificationRepo.Create(ctx, notification); err != nil {
		return nil, errors.NewDatabaseError("create notification", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"notification_id": notification.ID,
		"client_id":       clientID,
		"tax_year":        taxYear,
		"quarter":         quarter,
	}).Info("Instruction notification created")

	if sendAt.After(now) {
		return notification, nil
	}

	delivered, err := s.dispatcher.DeliverNow(ctx, notification)
	if err != nil {
		return nil, errors.NewDatabaseError("deliver notification", err)
	}
	return delivered, nil
}

// instructionData assembles the template input for an instruction email
func instructionData(client *models.Client, payments []*models.Payment, taxYear, quarter int, portalURL string) *mail.InstructionData {
	items := make([]mail.InstructionItem, 0, len(payments))
	for _, p := range payments {
		items = append(items, mail.InstructionItem{
			Label:   paymentLabel(p),
			DueDate: formatDueDate(p.DueDate),
			Amount:  formatAmount(p.Amount),
		})
	}

	return &mail.InstructionData{
		RecipientName: client.RecipientName(),
		TaxYear:       taxYear,
		Quarter:       quarter,
		Items:         items,
		PortalURL:     portalURL,
	}
}

func paymentLabel(p *models.Payment) string {
	if p.Scope == types.ScopeState && p.StateCode != nil {
		name := intake.StateName(*p.StateCode)
		if name == "" {
			name = *p.StateCode
		}
		if strings.EqualFold(p.PaymentType, "State") {
			return name + " Estimated Tax"
		}
		return name + " " + p.PaymentType
	}
	if strings.EqualFold(p.PaymentType, "Federal") {
		return "Federal Estimated Tax"
	}
	return p.PaymentType
}

func formatDueDate(t *time.Time) string {
	if t == nil {
		return "TBD"
	}
	return t.Format("Jan 2, 2006")
}

func formatAmount(d *decimal.Decimal) string {
	if d == nil {
		return "TBD"
	}

	fixed := d.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	parts := strings.SplitN(fixed, ".", 2)
	whole := parts[0]

	var b strings.Builder
	for i, ch := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}

	out := "$" + b.String() + "." + parts[1]
	if neg {
		out = "-" + out
	}
	return out
}
