package repositories

import (
	"errors"
	"fmt"
	"strings"

	"cardledger/internal/models"

	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a gorm-backed Store.
func NewStore(db *gorm.DB) Store {
	if db == nil {
		panic("db is required")
	}
	return &gormStore{db: db}
}

func (s *gormStore) Cards() CardRepository                       { return &cardRepository{db: s.db} }
func (s *gormStore) CardUsers() CardUserRepository               { return &cardUserRepository{db: s.db} }
func (s *gormStore) CardTransactions() CardTransactionRepository { return &cardTransactionRepository{db: s.db} }
func (s *gormStore) Transactions() TransactionRepository         { return &transactionRepository{db: s.db} }
func (s *gormStore) Disputes() DisputeRepository                 { return &disputeRepository{db: s.db} }

func (s *gormStore) ExecuteInTransaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}

type cardRepository struct {
	db *gorm.DB
}

func (r *cardRepository) Create(card *models.Card) error {
	if err := r.db.Create(card).Error; err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

func (r *cardRepository) GetByID(id uint) (*models.Card, error) {
	var card models.Card
	if err := r.db.First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return &card, nil
}

func (r *cardRepository) GetByProviderRef(ref string) (*models.Card, error) {
	var card models.Card
	if err := r.db.Where("provider_ref = ?", ref).First(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return &card, nil
}

func (r *cardRepository) Update(card *models.Card) error {
	if err := r.db.Save(card).Error; err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	return nil
}

type cardUserRepository struct {
	db *gorm.DB
}

func (r *cardUserRepository) Create(user *models.CardUser) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create card user: %w", err)
	}
	return nil
}

func (r *cardUserRepository) GetByID(id uint) (*models.CardUser, error) {
	var user models.CardUser
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardUserNotFound
		}
		return nil, fmt.Errorf("failed to get card user: %w", err)
	}
	return &user, nil
}

func (r *cardUserRepository) GetByProviderRef(ref string) (*models.CardUser, error) {
	var user models.CardUser
	if err := r.db.Where("provider_ref = ?", ref).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardUserNotFound
		}
		return nil, fmt.Errorf("failed to get card user: %w", err)
	}
	return &user, nil
}

func (r *cardUserRepository) Update(user *models.CardUser) error {
	if err := r.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update card user: %w", err)
	}
	return nil
}

type cardTransactionRepository struct {
	db *gorm.DB
}

func (r *cardTransactionRepository) Create(tx *models.CardTransaction) error {
	if err := r.db.Create(tx).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create card transaction: %w", err)
	}
	return nil
}

func (r *cardTransactionRepository) GetByID(id uint) (*models.CardTransaction, error) {
	var tx models.CardTransaction
	if err := r.db.First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get card transaction: %w", err)
	}
	return &tx, nil
}

func (r *cardTransactionRepository) GetByProviderReference(ref string) (*models.CardTransaction, error) {
	var tx models.CardTransaction
	if err := r.db.Where("provider_reference = ?", ref).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get card transaction: %w", err)
	}
	return &tx, nil
}

func (r *cardTransactionRepository) GetLatestPendingDeposit(cardUserID uint) (*models.CardTransaction, error) {
	var tx models.CardTransaction
	err := r.db.
		Where("card_user_id = ? AND transaction_type = ? AND status = ?",
			cardUserID, models.CardTransactionTypeDeposit, models.CardTransactionStatusPending).
		Order("created_at DESC, id DESC").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get pending deposit: %w", err)
	}
	return &tx, nil
}

func (r *cardTransactionRepository) Update(tx *models.CardTransaction) error {
	if err := r.db.Save(tx).Error; err != nil {
		return fmt.Errorf("failed to update card transaction: %w", err)
	}
	return nil
}

type transactionRepository struct {
	db *gorm.DB
}

func (r *transactionRepository) Create(tx *models.Transaction) error {
	if err := r.db.Create(tx).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) GetByReference(ref string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.Where("reference = ?", ref).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) Update(tx *models.Transaction) error {
	if err := r.db.Save(tx).Error; err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

type disputeRepository struct {
	db *gorm.DB
}

func (r *disputeRepository) Create(dispute *models.CardTransactionDispute) error {
	if err := r.db.Create(dispute).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create dispute: %w", err)
	}
	return nil
}

func (r *disputeRepository) GetByID(id uint) (*models.CardTransactionDispute, error) {
	var dispute models.CardTransactionDispute
	if err := r.db.First(&dispute, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return &dispute, nil
}

func (r *disputeRepository) GetByProviderRef(ref string) (*models.CardTransactionDispute, error) {
	var dispute models.CardTransactionDispute
	if err := r.db.Where("provider_dispute_ref = ?", ref).First(&dispute).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return &dispute, nil
}

func (r *disputeRepository) Update(dispute *models.CardTransactionDispute) error {
	if err := r.db.Save(dispute).Error; err != nil {
		return fmt.Errorf("failed to update dispute: %w", err)
	}
	return nil
}

func (r *disputeRepository) AppendEvent(event *models.CardTransactionDisputeEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("failed to append dispute event: %w", err)
	}
	return nil
}
