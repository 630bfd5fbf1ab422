package models

import (
	"fmt"
	"time"

	"github.com/payplan-sync/internal/types"
	"github.com/shopspring/decimal"
)

// Payment represents one payable amount derived from the intake document.
// The identity key (scope, jurisdiction, ordinal position) is recomputed from
// document position on every sync, so it is stable only while the document
// layout is stable.
type Payment struct {
	ID          string              `json:"id" db:"id"`
	OwnerID     string              `json:"ownerId" db:"owner_id"`
	WorkUnitID  string              `json:"workUnitId" db:"work_unit_id"`
	Scope       types.PaymentScope  `json:"scope" db:"scope"`
	StateCode   *string             `json:"stateCode,omitempty" db:"state_code"`
	PaymentType string              `json:"paymentType" db:"payment_type"`
	Quarter     *int                `json:"quarter,omitempty" db:"quarter"`
	DueDate     *time.Time          `json:"dueDate,omitempty" db:"due_date"`
	Amount      *decimal.Decimal    `json:"amount,omitempty" db:"amount"`
	TaxYear     *int                `json:"taxYear,omitempty" db:"tax_year"`
	Notes       *string             `json:"notes,omitempty" db:"notes"`
	Method      *string             `json:"method,omitempty" db:"method"`
	SortOrder   int                 `json:"sortOrder" db:"sort_order"`
	IdentityKey string              `json:"identityKey" db:"identity_key"`
	Status      types.PaymentStatus `json:"status" db:"status"`

	// Confirmation fields are written only by the confirmation intake handler
	// (and by the operator verification path).
	ConfirmedAt        *time.Time       `json:"confirmedAt,omitempty" db:"confirmed_at"`
	ConfirmedByEmail   *string          `json:"confirmedByEmail,omitempty" db:"confirmed_by_email"`
	ConfirmedDate      *time.Time       `json:"confirmedDate,omitempty" db:"confirmed_date"`
	ConfirmedAmount    *decimal.Decimal `json:"confirmedAmount,omitempty" db:"confirmed_amount"`
	ConfirmationNumber *string          `json:"confirmationNumber,omitempty" db:"confirmation_number"`
	ConfirmationNote   *string          `json:"confirmationNote,omitempty" db:"confirmation_note"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// IdentityKey builds the stable identity key for a (scope, state, ordinal)
// position in the source document.
func IdentityKey(scope types.PaymentScope, stateCode *string, sortOrder int) string {
	code := ""
	if stateCode != nil {
		code = *stateCode
	}
	return fmt.Sprintf("%s|%s|%d", scope, code, sortOrder)
}

// ConfirmationInput carries the client-entered details recorded when a
// payment is confirmed through the portal.
type ConfirmationInput struct {
	Email  string           `json:"email"`
	Date   *time.Time       `json:"date,omitempty"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Number *string          `json:"number,omitempty"`
	Note   *string          `json:"note,omitempty"`
}

// IsTerminal reports whether the status can no longer change through the
// sync or portal paths.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case types.StatusConfirmed, types.StatusVerified, types.StatusCancelled:
		return true
	}
	return false
}
