package models

import (
	"time"

	"github.com/payplan-sync/internal/types"
)

// ConfirmationEvent is an immutable audit row appended whenever an obligation
// transitions via client or operator action. Events are never updated or
// deleted.
type ConfirmationEvent struct {
	ID         string          `json:"id" db:"id"`
	OwnerID    string          `json:"ownerId" db:"owner_id"`
	PaymentID  string          `json:"paymentId" db:"payment_id"`
	EventType  string          `json:"eventType" db:"event_type"`
	ActorType  types.ActorType `json:"actorType" db:"actor_type"`
	ActorEmail string          `json:"actorEmail,omitempty" db:"actor_email"`
	Metadata   map[string]any  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}
