package models

import "time"

// Main ledger transaction statuses
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Main ledger categories
const (
	TransactionCategoryFunding = "card_funding"
	TransactionCategorySpend   = "card_spend"
	TransactionCategoryFee     = "card_fee"
)

// Transaction mirrors a CardTransaction at the platform-wide ledger
// level. Reference is the provider transaction id and is unique: the
// engine checks it before applying any balance effect, which is what
// makes replayed webhook deliveries safe.
type Transaction struct {
	ID         uint   `gorm:"primarykey"`
	Reference  string `gorm:"uniqueIndex;not null"`
	UserID     uint   `gorm:"not null;index"`
	CardUserID uint   `gorm:"not null;index"`

	Amount   int64  `gorm:"not null"`
	Currency string `gorm:"default:'USD'"`
	Status   string `gorm:"not null;default:'pending'"`

	Category    string `gorm:"not null"`
	Scope       string `gorm:"default:'card'"`
	Description string

	BalanceBefore int64 `gorm:"default:0"`
	BalanceAfter  int64 `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
