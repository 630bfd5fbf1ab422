package models

import (
	"time"

	"github.com/payplan-sync/internal/types"
)

// Batch holds one intake document snapshot owned by an operator
type Batch struct {
	ID        string          `json:"id" db:"id"`
	OwnerID   string          `json:"ownerId" db:"owner_id"`
	Name      string          `json:"name" db:"name"`
	Kind      types.BatchKind `json:"kind" db:"kind"`
	Snapshot  []byte          `json:"-" db:"snapshot_json"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// WorkUnit is the reconciliation scope: one (batch, client) pairing holding
// the client's document snapshot and the payment records derived from it.
// Work units are never hard-deleted.
type WorkUnit struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"ownerId" db:"owner_id"`
	BatchID   string    `json:"batchId" db:"batch_id"`
	ClientID  string    `json:"clientId" db:"client_id"`
	Snapshot  []byte    `json:"-" db:"snapshot_json"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
