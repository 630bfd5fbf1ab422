package models

import (
	"time"

	"github.com/payplan-sync/internal/types"
)

// PortalLink is an access grant for the unauthenticated client portal.
// The opaque token is never persisted; only its SHA-256 hash is stored.
type PortalLink struct {
	ID         string            `json:"id" db:"id"`
	OwnerID    string            `json:"ownerId" db:"owner_id"`
	ClientID   string            `json:"clientId" db:"client_id"`
	WorkUnitID string            `json:"workUnitId" db:"work_unit_id"`
	Scope      types.PortalScope `json:"scope" db:"scope"`
	TokenHash  string            `json:"-" db:"token_hash"`
	IssuedAt   time.Time         `json:"issuedAt" db:"issued_at"`
	ExpiresAt  *time.Time        `json:"expiresAt,omitempty" db:"expires_at"`
	LastUsedAt *time.Time        `json:"lastUsedAt,omitempty" db:"last_used_at"`
}

// Valid reports whether the link is usable at the given instant.
// A nil expiry means the link never expires.
func (l *PortalLink) Valid(now time.Time) bool {
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}
