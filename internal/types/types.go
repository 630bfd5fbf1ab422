// Package types provides common type definitions for the payment plan pipeline.
package types

// PaymentScope distinguishes federal from state obligations
type PaymentScope string

const (
	// ScopeFederal represents a federal payment obligation
	ScopeFederal PaymentScope = "federal"
	// ScopeState represents a state payment obligation
	ScopeState PaymentScope = "state"
)

// PaymentStatus represents the lifecycle status of a payment obligation
type PaymentStatus string

const (
	// StatusDraft represents an obligation created by sync, not yet sent
	StatusDraft PaymentStatus = "DRAFT"
	// StatusSent represents an obligation covered by a delivered instruction email
	StatusSent PaymentStatus = "SENT"
	// StatusViewed represents an obligation whose portal page was opened by the client
	StatusViewed PaymentStatus = "VIEWED"
	// StatusConfirmed represents an obligation the client confirmed through the portal
	StatusConfirmed PaymentStatus = "CONFIRMED"
	// StatusVerified represents an operator-verified confirmation
	StatusVerified PaymentStatus = "VERIFIED"
	// StatusCancelled represents an obligation removed from the source document
	StatusCancelled PaymentStatus = "CANCELLED"
	// StatusOverdue is a derived display status. It is computed from the due
	// date at read time and never persisted.
	StatusOverdue PaymentStatus = "OVERDUE"
)

// NotificationStatus represents the delivery status of a notification record
type NotificationStatus string

const (
	// NotificationQueued represents a notification waiting for dispatch
	NotificationQueued NotificationStatus = "QUEUED"
	// NotificationSent represents a successfully delivered notification
	NotificationSent NotificationStatus = "SENT"
	// NotificationFailed represents a notification whose delivery failed
	NotificationFailed NotificationStatus = "FAILED"
)

// NotificationChannel represents the delivery channel for a notification
type NotificationChannel string

const (
	// ChannelEmail is the only channel currently supported
	ChannelEmail NotificationChannel = "EMAIL"
)

// MessageTypeQuarterlyInstructions identifies the quarterly payment instruction email
const MessageTypeQuarterlyInstructions = "QUARTERLY_PAYMENT_INSTRUCTIONS"

// PortalScope identifies what a portal link grants access to
type PortalScope string

const (
	// PortalScopePlan grants access to the payment plan checklist
	PortalScopePlan PortalScope = "PLAN"
)

// ActorType identifies who triggered a confirmation event
type ActorType string

const (
	// ActorClient is the unauthenticated end-client acting through a portal link
	ActorClient ActorType = "CLIENT"
	// ActorOperator is an authenticated operator
	ActorOperator ActorType = "OPERATOR"
)

// EventConfirmed is recorded when an obligation is confirmed through the portal
const EventConfirmed = "CONFIRMED"

// EventVerified is recorded when an operator upgrades a confirmation
const EventVerified = "VERIFIED"

// EntityType represents the legal entity type of a client
type EntityType string

const (
	// EntityIndividual is the default entity type
	EntityIndividual EntityType = "individual"
	// EntityBusiness represents a business client
	EntityBusiness EntityType = "business"
)

// BatchKind distinguishes the editable wizard snapshot from the published plan
type BatchKind string

const (
	// BatchWizard holds the editable intake document
	BatchWizard BatchKind = "WIZARD"
	// BatchPlan holds the published plan work units
	BatchPlan BatchKind = "PLAN"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
