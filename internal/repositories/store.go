// Package repositories provides the data access layer for the card
// ledger. All balance-bearing writes go through Store.ExecuteInTransaction
// so the reconciliation engine can treat a webhook's ledger effect as a
// single all-or-nothing unit.
package repositories

import (
	"errors"

	"cardledger/internal/models"
)

var (
	ErrCardNotFound            = errors.New("card not found")
	ErrCardUserNotFound        = errors.New("card user not found")
	ErrCardTransactionNotFound = errors.New("card transaction not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrDisputeNotFound         = errors.New("dispute not found")
	ErrDuplicateReference      = errors.New("duplicate provider reference")
)

// Store aggregates the per-entity repositories. ExecuteInTransaction
// runs fn against a transactional Store: commits when fn returns nil,
// rolls back when it returns an error.
type Store interface {
	Cards() CardRepository
	CardUsers() CardUserRepository
	CardTransactions() CardTransactionRepository
	Transactions() TransactionRepository
	Disputes() DisputeRepository

	ExecuteInTransaction(fn func(Store) error) error
}

type CardRepository interface {
	Create(card *models.Card) error
	GetByID(id uint) (*models.Card, error)
	GetByProviderRef(ref string) (*models.Card, error)
	Update(card *models.Card) error
}

type CardUserRepository interface {
	Create(user *models.CardUser) error
	GetByID(id uint) (*models.CardUser, error)
	GetByProviderRef(ref string) (*models.CardUser, error)
	Update(user *models.CardUser) error
}

type CardTransactionRepository interface {
	Create(tx *models.CardTransaction) error
	GetByID(id uint) (*models.CardTransaction, error)
	GetByProviderReference(ref string) (*models.CardTransaction, error)
	// GetLatestPendingDeposit returns the most recently created pending
	// deposit-type card transaction for the user.
	GetLatestPendingDeposit(cardUserID uint) (*models.CardTransaction, error)
	Update(tx *models.CardTransaction) error
}

type TransactionRepository interface {
	Create(tx *models.Transaction) error
	GetByReference(ref string) (*models.Transaction, error)
	Update(tx *models.Transaction) error
}

type DisputeRepository interface {
	Create(dispute *models.CardTransactionDispute) error
	GetByID(id uint) (*models.CardTransactionDispute, error)
	GetByProviderRef(ref string) (*models.CardTransactionDispute, error)
	Update(dispute *models.CardTransactionDispute) error
	AppendEvent(event *models.CardTransactionDisputeEvent) error
}
