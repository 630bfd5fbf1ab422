package models

import (
	"time"

	"github.com/payplan-sync/internal/types"
)

// NotificationMetadata names the quarter a notification covers. The payment
// set and portal link are resolved at dispatch time, not frozen here, so a
// sync or a later link issuance between queue and send cannot leave the email
// pointing at stale data.
type NotificationMetadata struct {
	TaxYear int `json:"taxYear"`
	Quarter int `json:"quarter"`
}

// Notification represents one instruction-send attempt. It is created QUEUED
// and transitions exactly once to SENT or FAILED; it is never re-queued
// automatically.
type Notification struct {
	ID                string                    `json:"id" db:"id"`
	OwnerID           string                    `json:"ownerId" db:"owner_id"`
	ClientID          string                    `json:"clientId" db:"client_id"`
	PortalLinkID      *string                   `json:"portalLinkId,omitempty" db:"portal_link_id"`
	Channel           types.NotificationChannel `json:"channel" db:"channel"`
	MessageType       string                    `json:"messageType" db:"message_type"`
	Recipient         string                    `json:"recipient" db:"recipient"`
	Status            types.NotificationStatus  `json:"status" db:"status"`
	SendAt            time.Time                 `json:"sendAt" db:"send_at"`
	SentAt            *time.Time                `json:"sentAt,omitempty" db:"sent_at"`
	ProviderMessageID *string                   `json:"providerMessageId,omitempty" db:"provider_message_id"`
	ErrorMessage      *string                   `json:"errorMessage,omitempty" db:"error_message"`
	Metadata          NotificationMetadata      `json:"metadata" db:"metadata"`
	CreatedAt         time.Time                 `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time                 `json:"updatedAt" db:"updated_at"`
}
