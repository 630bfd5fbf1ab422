package service

import (
	"context"
	"time"

	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
)

// ClientRepository interface for client data operations
type ClientRepository interface {
	Upsert(ctx context.Context, client *models.Client) error
	GetByID(ctx context.Context, ownerID, id string) (*models.Client, error)
}

// BatchRepository interface for batch data operations
type BatchRepository interface {
	Create(ctx context.Context, batch *models.Batch) error
	GetByID(ctx context.Context, ownerID, id string) (*models.Batch, error)
	GetLatestByKind(ctx context.Context, ownerID string, kind types.BatchKind) (*models.Batch, error)
	UpdateSnapshot(ctx context.Context, ownerID, id, name string, snapshot []byte) error
}

// WorkUnitRepository interface for work unit data operations
type WorkUnitRepository interface {
	Upsert(ctx context.Context, wu *models.WorkUnit) error
	GetByID(ctx context.Context, ownerID, id string) (*models.WorkUnit, error)
	FindForClient(ctx context.Context, ownerID, clientID string, kind types.BatchKind) (*models.WorkUnit, error)
}

// PaymentRepository interface for payment data operations
type PaymentRepository interface {
	ListByWorkUnit(ctx context.Context, ownerID, workUnitID string) ([]*models.Payment, error)
	ListQuarter(ctx context.Context, ownerID, workUnitID string, taxYear, quarter int) ([]*models.Payment, error)
	GetByID(ctx context.Context, ownerID, id string) (*models.Payment, error)
	ApplySync(ctx context.Context, creates, updates []*models.Payment, cancelIDs []string) error
	Confirm(ctx context.Context, ownerID, paymentID string, input *models.ConfirmationInput, actorType types.ActorType) (*models.Payment, error)
	Update(ctx context.Context, p *models.Payment) error
	FlipSentToViewed(ctx context.Context, workUnitID string) (int64, error)
}

// PortalLinkRepository interface for portal link operations
type PortalLinkRepository interface {
	Issue(ctx context.Context, link *models.PortalLink) error
	ResolveByHash(ctx context.Context, tokenHash string, scope types.PortalScope, now time.Time) (*models.PortalLink, error)
	Touch(ctx context.Context, id string, now time.Time) error
}

// NotificationRepository interface for notification operations
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, ownerID, id string) (*models.Notification, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error)
	MarkSent(ctx context.Context, id, providerMessageID string, portalLinkID *string, paymentIDs []string) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
	ListByClient(ctx context.Context, ownerID, clientID string, limit int) ([]*models.Notification, error)
}

// ConfirmationEventRepository interface for audit event operations
type ConfirmationEventRepository interface {
	Append(ctx context.Context, event *models.ConfirmationEvent) error
	ListByPayment(ctx context.Context, ownerID, paymentID string) ([]*models.ConfirmationEvent, error)
}
