package models

import "time"

// Card statuses
const (
	CardStatusPending  = "pending"
	CardStatusActive   = "active"
	CardStatusInactive = "inactive"
	CardStatusBlocked  = "blocked"
	CardStatusCanceled = "canceled"
)

// Spend limit frequencies
const (
	LimitFrequencyDaily   = "daily"
	LimitFrequencyWeekly  = "weekly"
	LimitFrequencyMonthly = "monthly"
)

// Card is an issued card tracked against the provider. Balance is in
// integer minor units and is only mutated inside a locked reconciliation
// transaction.
type Card struct {
	ID          uint   `gorm:"primarykey"`
	CardUserID  uint   `gorm:"not null;index"`
	ProviderRef string `gorm:"uniqueIndex;not null"`
	Balance     int64  `gorm:"not null;default:0"`
	Status      string `gorm:"not null;default:'pending'"`

	SpendLimit     int64  `gorm:"default:0"`
	LimitFrequency string `gorm:"default:'monthly'"`
	ExpiryMonth    string
	ExpiryYear     string
	Frozen         bool `gorm:"default:false"`

	// Consecutive insufficient-funds declines; reset by any
	// non-declined outcome.
	InsufficientFundsDeclineCount int `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Card user application statuses as reported by the provider.
const (
	CardUserStatusPending  = "pending"
	CardUserStatusApproved = "approved"
	CardUserStatusDenied   = "denied"
)

// CardUser is the card-holder account at the provider. Balance mirrors
// the aggregate balance of the user's cards.
type CardUser struct {
	ID                uint   `gorm:"primarykey"`
	UserID            uint   `gorm:"not null;index"`
	ProviderRef       string `gorm:"uniqueIndex;not null"`
	Balance           int64  `gorm:"not null;default:0"`
	ApplicationStatus string `gorm:"default:'pending'"`
	ContractRef       string
	IssuanceFeeSettled bool `gorm:"default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
