package models

import "time"

// Card transaction types
const (
	CardTransactionTypeDeposit = "deposit"
	CardTransactionTypeSpend   = "spend"
	CardTransactionTypeFee     = "fee"
)

// Entry direction
const (
	EntryTypeDebit  = "debit"
	EntryTypeCredit = "credit"
)

// Card transaction statuses
const (
	CardTransactionStatusPending    = "pending"
	CardTransactionStatusSuccessful = "successful"
	CardTransactionStatusDeclined   = "declined"
)

// CardTransaction records one provider-side financial event on a card.
// ProviderReference is the provider's id for the event and acts as the
// idempotency key: at most one row exists per reference. Rows are never
// deleted; status and balance snapshots are updated as later webhooks
// for the same reference arrive.
type CardTransaction struct {
	ID         uint `gorm:"primarykey"`
	CardID     uint `gorm:"not null;index"`
	CardUserID uint `gorm:"not null;index"`

	TransactionType string `gorm:"not null"`
	Type            string `gorm:"not null"`
	Amount          int64  `gorm:"not null"`
	Fee             int64  `gorm:"default:0"`
	Currency        string `gorm:"default:'USD'"`
	Status          string `gorm:"not null;default:'pending'"`

	ProviderReference string `gorm:"uniqueIndex;not null"`
	TransactionHash   string

	BalanceBefore int64 `gorm:"default:0"`
	BalanceAfter  int64 `gorm:"default:0"`

	MerchantMetadata JSON `gorm:"type:jsonb"`
	DeclineReason    string
	IsFeeSettled     bool `gorm:"default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
