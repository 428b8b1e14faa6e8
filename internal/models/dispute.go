package models

import "time"

// Dispute statuses
const (
	DisputeStatusPending  = "pending"
	DisputeStatusInReview = "in_review"
	DisputeStatusAccepted = "accepted"
	DisputeStatusRejected = "rejected"
	DisputeStatusCanceled = "canceled"
)

// Dispute event trigger sources
const (
	DisputeEventSourceWebhook = "webhook"
)

// Dispute event kinds
const (
	DisputeEventCreated       = "created"
	DisputeEventStatusChanged = "status_changed"
)

// CardTransactionDispute tracks a provider dispute against a card
// transaction. ProviderDisputeRef is unique; a second created webhook
// for the same ref is a no-op.
type CardTransactionDispute struct {
	ID                uint   `gorm:"primarykey"`
	CardTransactionID uint   `gorm:"not null;index"`
	ProviderDisputeRef string `gorm:"uniqueIndex;not null"`
	Status            string `gorm:"not null;default:'pending'"`
	Evidence          string
	ResolvedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CardTransactionDisputeEvent is the append-only audit trail of dispute
// status changes.
type CardTransactionDisputeEvent struct {
	ID             uint   `gorm:"primarykey"`
	DisputeID      uint   `gorm:"not null;index"`
	Kind           string `gorm:"not null"`
	PreviousStatus string
	NewStatus      string `gorm:"not null"`
	Source         string `gorm:"not null;default:'webhook'"`

	CreatedAt time.Time
}
