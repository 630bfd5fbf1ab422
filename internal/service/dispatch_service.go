package service

import (
	"context"
	"fmt"
	"time"

	"github.com/payplan-sync/internal/logging"
	"github.com/payplan-sync/internal/mail"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
)

// DispatchService delivers due notifications. Every record reaches SENT or
// FAILED exactly once: the guarded status flip in the repository is the
// claim point, so concurrent dispatcher processes cannot double-send, and
// failed records are never retried automatically.
//
// The payment set and portal link are resolved here, at send time. Only one
// link per work unit is valid at once, so minting it any earlier would let a
// later issuance invalidate a queued email's link before it ever went out.
type DispatchService struct {
	notificationRepo NotificationRepository
	paymentRepo      PaymentRepository
	workUnitRepo     WorkUnitRepository
	clientRepo       ClientRepository
	tokens           *TokenService
	mailer           mail.Mailer
	batchSize        int
	logger           *logging.Logger
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(
	notificationRepo NotificationRepository,
	paymentRepo PaymentRepository,
	workUnitRepo WorkUnitRepository,
	clientRepo ClientRepository,
	tokens *TokenService,
	mailer mail.Mailer,
	batchSize int,
	logger *logging.Logger,
) *DispatchService {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &DispatchService{
		notificationRepo: notificationRepo,
		paymentRepo:      paymentRepo,
		workUnitRepo:     workUnitRepo,
		clientRepo:       clientRepo,
		tokens:           tokens,
		mailer:           mailer,
		batchSize:        batchSize,
		logger:           logger,
	}
}

// DispatchSummary reports one processing pass
type DispatchSummary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ProcessDue delivers one batch of due notifications. A failure on one
// record is recorded on that record and does not stop the pass.
func (s *DispatchService) ProcessDue(ctx context.Context) (*DispatchSummary, error) {
	due, err := s.notificationRepo.ListDue(ctx, time.Now(), s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list due notifications: %w", err)
	}

	summary := &DispatchSummary{}
	for _, n := range due {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Processed++

		sent, failReason := s.deliver(ctx, n)
		switch {
		case failReason != "":
			claimed, err := s.notificationRepo.MarkFailed(ctx, n.ID, failReason)
			if err != nil {
				s.logger.WithError(err).WithField("notification_id", n.ID).Error("Failed to record delivery failure")
				continue
			}
			if claimed {
				summary.Failed++
			} else {
				summary.Skipped++
			}
		case sent:
			summary.Sent++
		default:
			summary.Skipped++
		}
	}

	if summary.Processed > 0 {
		s.logger.WithFields(map[string]interface{}{
			"processed": summary.Processed,
			"sent":      summary.Sent,
			"failed":    summary.Failed,
			"skipped":   summary.Skipped,
		}).Info("Dispatch pass complete")
	}

	return summary, nil
}

// deliver attempts one notification. It returns sent=true when this process
// won the claim and the message went out, or a failure reason for a
// permanent per-record failure.
//
// The quarter's payments are re-listed and a fresh portal link is minted
// right before the send, so the email always reflects the plan as it stands
// now and always carries the one currently valid link.
func (s *DispatchService) deliver(ctx context.Context, n *models.Notification) (sent bool, failReason string) {
	client, err := s.clientRepo.GetByID(ctx, n.OwnerID, n.ClientID)
	if err != nil {
		return false, fmt.Sprintf("client lookup failed: %v", err)
	}

	recipient := n.Recipient
	if recipient == "" {
		recipient = client.PrimaryEmail
	}
	if recipient == "" {
		return false, "client has no email address"
	}

	wu, err := s.workUnitRepo.FindForClient(ctx, n.OwnerID, n.ClientID, types.BatchPlan)
	if err != nil {
		return false, fmt.Sprintf("work unit lookup failed: %v", err)
	}
	if wu == nil {
		return false, "client has no published payment plan"
	}

	payments, err := s.paymentRepo.ListQuarter(ctx, n.OwnerID, wu.ID, n.Metadata.TaxYear, n.Metadata.Quarter)
	if err != nil {
		return false, fmt.Sprintf("payment lookup failed: %v", err)
	}
	if len(payments) == 0 {
		return false, "all payments for the quarter were cancelled"
	}

	link, token, err := s.tokens.IssueLink(ctx, n.OwnerID, n.ClientID, wu.ID)
	if err != nil {
		return false, fmt.Sprintf("failed to issue portal link: %v", err)
	}

	data := instructionData(client, payments, n.Metadata.TaxYear, n.Metadata.Quarter, s.tokens.PortalURL(token))
	msg, err := mail.BuildQuarterlyInstructions(data)
	if err != nil {
		return false, fmt.Sprintf("failed to render email: %v", err)
	}
	msg.To = recipient

	providerID, err := s.mailer.Send(ctx, msg)
	if err != nil {
		return false, fmt.Sprintf("delivery failed: %v", err)
	}

	paymentIDs := make([]string, len(payments))
	for i, p := range payments {
		paymentIDs[i] = p.ID
	}

	claimed, err := s.notificationRepo.MarkSent(ctx, n.ID, providerID, &link.ID, paymentIDs)
	if err != nil {
		s.logger.WithError(err).WithField("notification_id", n.ID).Error("Delivered but failed to record SENT")
		return false, ""
	}
	if !claimed {
		s.logger.WithField("notification_id", n.ID).Warn("Notification already claimed by another dispatcher")
		return false, ""
	}

	s.logger.WithFields(map[string]interface{}{
		"notification_id":     n.ID,
		"recipient":           recipient,
		"provider_message_id": providerID,
	}).Info("Notification sent")

	return true, ""
}

// DeliverNow delivers one just-queued notification inline, recording the
// outcome the same way a dispatcher pass would, and returns the refreshed
// record so the caller sees SENT or FAILED rather than QUEUED.
func (s *DispatchService) DeliverNow(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	_, failReason := s.deliver(ctx, n)
	if failReason != "" {
		if _, err := s.notificationRepo.MarkFailed(ctx, n.ID, failReason); err != nil {
			return nil, fmt.Errorf("failed to record delivery failure: %w", err)
		}
	}

	refreshed, err := s.notificationRepo.GetByID(ctx, n.OwnerID, n.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload notification: %w", err)
	}
	return refreshed, nil
}
