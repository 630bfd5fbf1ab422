// Package models defines the persistence models for the payment plan pipeline.
package models

import (
	"time"

	"github.com/payplan-sync/internal/types"
)

// Client represents a client whose payment plan is managed by an operator
type Client struct {
	ID           string           `json:"id" db:"id"`
	OwnerID      string           `json:"ownerId" db:"owner_id"`
	ClientCode   string           `json:"clientCode" db:"client_code"`
	Name         string           `json:"name" db:"name"`
	AddresseeName string          `json:"addresseeName,omitempty" db:"addressee_name"`
	EntityType   types.EntityType `json:"entityType" db:"entity_type"`
	PrimaryEmail string           `json:"primaryEmail,omitempty" db:"primary_email"`
	CreatedAt    time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time        `json:"updatedAt" db:"updated_at"`
}

// RecipientName returns the name used to address the client in emails
func (c *Client) RecipientName() string {
	if c.AddresseeName != "" {
		return c.AddresseeName
	}
	if c.Name != "" {
		return c.Name
	}
	return "there"
}
