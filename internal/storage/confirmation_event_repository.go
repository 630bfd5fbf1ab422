package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payplan-sync/internal/models"
)

// ConfirmationEventRepository handles the append-only confirmation audit log
type ConfirmationEventRepository struct {
	db *PostgresDB
}

// NewConfirmationEventRepository creates a new confirmation event repository
func NewConfirmationEventRepository(db *PostgresDB) *ConfirmationEventRepository {
	return &ConfirmationEventRepository{db: db}
}

// Append inserts a new audit event. Events are never updated or deleted.
func (r *ConfirmationEventRepository) Append(ctx context.Context, event *models.ConfirmationEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	metadata := []byte("{}")
	if event.Metadata != nil {
		encoded, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode event metadata: %w", err)
		}
		metadata = encoded
	}

	query := `
		INSERT INTO confirmation_events (id, owner_id, payment_id, event_type, actor_type, actor_email, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Pool().Exec(ctx, query,
		event.ID, event.OwnerID, event.PaymentID, event.EventType,
		event.ActorType, event.ActorEmail, metadata, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append confirmation event: %w", err)
	}

	return nil
}

// ListByPayment retrieves a payment's audit events in insertion order
func (r *ConfirmationEventRepository) ListByPayment(ctx context.Context, ownerID, paymentID string) ([]*models.ConfirmationEvent, error) {
	query := `
		SELECT id, owner_id, payment_id, event_type, actor_type, actor_email, metadata, created_at
		FROM confirmation_events
		WHERE owner_id = $1 AND payment_id = $2
		ORDER BY created_at`

	rows, err := r.db.Pool().Query(ctx, query, ownerID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmation events: %w", err)
	}
	defer rows.Close()

	var events []*models.ConfirmationEvent
	for rows.Next() {
		var e models.ConfirmationEvent
		var metadata []byte
		err := rows.Scan(
			&e.ID, &e.OwnerID, &e.PaymentID, &e.EventType,
			&e.ActorType, &e.ActorEmail, &metadata, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan confirmation event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("invalid event metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate confirmation events: %w", err)
	}

	return events, nil
}
