package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/payplan-sync/internal/models"
)

// NotificationRepository handles notification persistence. The guarded
// status update in MarkSent is the dispatcher's claim point: with multiple
// dispatcher processes only one wins each record.
type NotificationRepository struct {
	db *PostgresDB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *PostgresDB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, owner_id, client_id, portal_link_id, channel, message_type,
	recipient, status, send_at, sent_at, provider_message_id, error_message, metadata,
	created_at, updated_at`

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	var metadata []byte

	err := row.Scan(
		&n.ID,
		&n.OwnerID,
		&n.ClientID,
		&n.PortalLinkID,
		&n.Channel,
		&n.MessageType,
		&n.Recipient,
		&n.Status,
		&n.SendAt,
		&n.SentAt,
		&n.ProviderMessageID,
		&n.ErrorMessage,
		&metadata,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("invalid notification metadata: %w", err)
		}
	}

	return &n, nil
}

// Create inserts a new QUEUED notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode notification metadata: %w", err)
	}

	now := time.Now()
	n.CreatedAt = now
	n.UpdatedAt = now

	query := `
		INSERT INTO notifications (id, owner_id, client_id, portal_link_id, channel, message_type,
			recipient, status, send_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	_, err = r.db.Pool().Exec(ctx, query,
		n.ID, n.OwnerID, n.ClientID, n.PortalLinkID, n.Channel, n.MessageType,
		n.Recipient, n.Status, n.SendAt, metadata, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// GetByID retrieves a notification by ID within an owner scope
func (r *NotificationRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE owner_id = $1 AND id = $2`

	n, err := scanNotification(r.db.Pool().QueryRow(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("notification not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// ListDue retrieves QUEUED notifications whose send time has arrived,
// oldest first, capped at limit.
func (r *NotificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = 'QUEUED' AND send_at <= $1
		ORDER BY send_at
		LIMIT $2`

	rows, err := r.db.Pool().Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	return notifications, nil
}

// MarkSent records a successful delivery, attaches the portal link the email
// carried, and flips the covered DRAFT payments to SENT in the same
// transaction. It returns false without error when another dispatcher already
// claimed the record.
func (r *NotificationRepository) MarkSent(ctx context.Context, id, providerMessageID string, portalLinkID *string, paymentIDs []string) (bool, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin mark-sent transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	now := time.Now()

	query := `
		UPDATE notifications
		SET status = 'SENT', sent_at = $2, provider_message_id = $3,
			portal_link_id = COALESCE($4, portal_link_id), updated_at = $2
		WHERE id = $1 AND status = 'QUEUED'`

	tag, err := tx.Exec(ctx, query, id, now, providerMessageID, portalLinkID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if len(paymentIDs) > 0 {
		flipQuery := `
			UPDATE payments
			SET status = 'SENT', updated_at = $2
			WHERE id = ANY($1) AND status = 'DRAFT'`

		if _, err := tx.Exec(ctx, flipQuery, paymentIDs, now); err != nil {
			return false, fmt.Errorf("failed to mark payments sent: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit mark-sent transaction: %w", err)
	}

	return true, nil
}

// MarkFailed records a delivery failure with its reason. The guarded
// predicate keeps a late failure from overwriting a SENT record.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	query := `
		UPDATE notifications
		SET status = 'FAILED', error_message = $2, updated_at = $3
		WHERE id = $1 AND status = 'QUEUED'`

	tag, err := r.db.Pool().Exec(ctx, query, id, reason, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to mark notification failed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListByClient retrieves a client's notification history, newest first
func (r *NotificationRepository) ListByClient(ctx context.Context, ownerID, clientID string, limit int) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE owner_id = $1 AND client_id = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.db.Pool().Query(ctx, query, ownerID, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	return notifications, nil
}
