package repositories

import (
	"sync"
	"time"

	"cardledger/internal/models"
)

// MemoryStore is a concurrency-safe in-memory Store useful for unit
// tests. Reads return copies, so a value fetched before a transaction
// never observes writes made inside it; ExecuteInTransaction works on a
// snapshot and publishes it only on success.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

type memData struct {
	cards         map[uint]models.Card
	cardUsers     map[uint]models.CardUser
	cardTxs       map[uint]models.CardTransaction
	transactions  map[uint]models.Transaction
	disputes      map[uint]models.CardTransactionDispute
	disputeEvents []models.CardTransactionDisputeEvent
	nextID        uint
}

func newMemData() *memData {
	return &memData{
		cards:        make(map[uint]models.Card),
		cardUsers:    make(map[uint]models.CardUser),
		cardTxs:      make(map[uint]models.CardTransaction),
		transactions: make(map[uint]models.Transaction),
		disputes:     make(map[uint]models.CardTransactionDispute),
		nextID:       1,
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	c.nextID = d.nextID
	for k, v := range d.cards {
		c.cards[k] = v
	}
	for k, v := range d.cardUsers {
		c.cardUsers[k] = v
	}
	for k, v := range d.cardTxs {
		c.cardTxs[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	for k, v := range d.disputes {
		c.disputes[k] = v
	}
	c.disputeEvents = append(c.disputeEvents, d.disputeEvents...)
	return c
}

func (d *memData) id() uint {
	id := d.nextID
	d.nextID++
	return id
}

func (s *MemoryStore) Cards() CardRepository                       { return memCardRepo{s} }
func (s *MemoryStore) CardUsers() CardUserRepository               { return memCardUserRepo{s} }
func (s *MemoryStore) CardTransactions() CardTransactionRepository { return memCardTxRepo{s} }
func (s *MemoryStore) Transactions() TransactionRepository         { return memTransactionRepo{s} }
func (s *MemoryStore) Disputes() DisputeRepository                 { return memDisputeRepo{s} }

func (s *MemoryStore) ExecuteInTransaction(fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &memTxStore{data: snapshot}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

// DisputeEvents returns the recorded audit trail for one dispute, in
// append order, for tests.
func (s *MemoryStore) DisputeEvents(disputeID uint) []models.CardTransactionDisputeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CardTransactionDisputeEvent
	for _, ev := range s.data.disputeEvents {
		if ev.DisputeID == disputeID {
			out = append(out, ev)
		}
	}
	return out
}

// CountTransactions returns the number of main ledger rows, for tests.
func (s *MemoryStore) CountTransactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.transactions)
}

// CountCardTransactions returns the number of card transaction rows,
// for tests.
func (s *MemoryStore) CountCardTransactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.cardTxs)
}

// memTxStore operates directly on a snapshot; the parent holds the
// mutex for the whole transaction.
type memTxStore struct {
	data *memData
}

func (s *memTxStore) Cards() CardRepository                       { return memDataCardRepo{s.data} }
func (s *memTxStore) CardUsers() CardUserRepository               { return memDataCardUserRepo{s.data} }
func (s *memTxStore) CardTransactions() CardTransactionRepository { return memDataCardTxRepo{s.data} }
func (s *memTxStore) Transactions() TransactionRepository         { return memDataTransactionRepo{s.data} }
func (s *memTxStore) Disputes() DisputeRepository                 { return memDataDisputeRepo{s.data} }

func (s *memTxStore) ExecuteInTransaction(fn func(Store) error) error {
	// Already transactional; run in place.
	return fn(s)
}

// Data-level operations shared by the locked and transactional views.

type memDataCardRepo struct{ d *memData }

func (r memDataCardRepo) Create(card *models.Card) error {
	card.ID = r.d.id()
	card.CreatedAt = time.Now()
	card.UpdatedAt = card.CreatedAt
	r.d.cards[card.ID] = *card
	return nil
}

func (r memDataCardRepo) GetByID(id uint) (*models.Card, error) {
	card, ok := r.d.cards[id]
	if !ok {
		return nil, ErrCardNotFound
	}
	return &card, nil
}

func (r memDataCardRepo) GetByProviderRef(ref string) (*models.Card, error) {
	for _, card := range r.d.cards {
		if card.ProviderRef == ref {
			c := card
			return &c, nil
		}
	}
	return nil, ErrCardNotFound
}

func (r memDataCardRepo) Update(card *models.Card) error {
	if _, ok := r.d.cards[card.ID]; !ok {
		return ErrCardNotFound
	}
	card.UpdatedAt = time.Now()
	r.d.cards[card.ID] = *card
	return nil
}

type memDataCardUserRepo struct{ d *memData }

func (r memDataCardUserRepo) Create(user *models.CardUser) error {
	user.ID = r.d.id()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.d.cardUsers[user.ID] = *user
	return nil
}

func (r memDataCardUserRepo) GetByID(id uint) (*models.CardUser, error) {
	user, ok := r.d.cardUsers[id]
	if !ok {
		return nil, ErrCardUserNotFound
	}
	return &user, nil
}

func (r memDataCardUserRepo) GetByProviderRef(ref string) (*models.CardUser, error) {
	for _, user := range r.d.cardUsers {
		if user.ProviderRef == ref {
			u := user
			return &u, nil
		}
	}
	return nil, ErrCardUserNotFound
}

func (r memDataCardUserRepo) Update(user *models.CardUser) error {
	if _, ok := r.d.cardUsers[user.ID]; !ok {
		return ErrCardUserNotFound
	}
	user.UpdatedAt = time.Now()
	r.d.cardUsers[user.ID] = *user
	return nil
}

type memDataCardTxRepo struct{ d *memData }

func (r memDataCardTxRepo) Create(tx *models.CardTransaction) error {
	for _, existing := range r.d.cardTxs {
		if existing.ProviderReference == tx.ProviderReference {
			return ErrDuplicateReference
		}
	}
	tx.ID = r.d.id()
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = tx.CreatedAt
	r.d.cardTxs[tx.ID] = *tx
	return nil
}

func (r memDataCardTxRepo) GetByID(id uint) (*models.CardTransaction, error) {
	tx, ok := r.d.cardTxs[id]
	if !ok {
		return nil, ErrCardTransactionNotFound
	}
	return &tx, nil
}

func (r memDataCardTxRepo) GetByProviderReference(ref string) (*models.CardTransaction, error) {
	for _, tx := range r.d.cardTxs {
		if tx.ProviderReference == ref {
			t := tx
			return &t, nil
		}
	}
	return nil, ErrCardTransactionNotFound
}

func (r memDataCardTxRepo) GetLatestPendingDeposit(cardUserID uint) (*models.CardTransaction, error) {
	var latest *models.CardTransaction
	for _, tx := range r.d.cardTxs {
		if tx.CardUserID != cardUserID ||
			tx.TransactionType != models.CardTransactionTypeDeposit ||
			tx.Status != models.CardTransactionStatusPending {
			continue
		}
		t := tx
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) ||
			(t.CreatedAt.Equal(latest.CreatedAt) && t.ID > latest.ID) {
			latest = &t
		}
	}
	if latest == nil {
		return nil, ErrCardTransactionNotFound
	}
	return latest, nil
}

func (r memDataCardTxRepo) Update(tx *models.CardTransaction) error {
	if _, ok := r.d.cardTxs[tx.ID]; !ok {
		return ErrCardTransactionNotFound
	}
	tx.UpdatedAt = time.Now()
	r.d.cardTxs[tx.ID] = *tx
	return nil
}

type memDataTransactionRepo struct{ d *memData }

func (r memDataTransactionRepo) Create(tx *models.Transaction) error {
	for _, existing := range r.d.transactions {
		if existing.Reference == tx.Reference {
			return ErrDuplicateReference
		}
	}
	tx.ID = r.d.id()
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = tx.CreatedAt
	r.d.transactions[tx.ID] = *tx
	return nil
}

func (r memDataTransactionRepo) GetByReference(ref string) (*models.Transaction, error) {
	for _, tx := range r.d.transactions {
		if tx.Reference == ref {
			t := tx
			return &t, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (r memDataTransactionRepo) Update(tx *models.Transaction) error {
	if _, ok := r.d.transactions[tx.ID]; !ok {
		return ErrTransactionNotFound
	}
	tx.UpdatedAt = time.Now()
	r.d.transactions[tx.ID] = *tx
	return nil
}

type memDataDisputeRepo struct{ d *memData }

func (r memDataDisputeRepo) Create(dispute *models.CardTransactionDispute) error {
	for _, existing := range r.d.disputes {
		if existing.ProviderDisputeRef == dispute.ProviderDisputeRef {
			return ErrDuplicateReference
		}
	}
	dispute.ID = r.d.id()
	dispute.CreatedAt = time.Now()
	dispute.UpdatedAt = dispute.CreatedAt
	r.d.disputes[dispute.ID] = *dispute
	return nil
}

func (r memDataDisputeRepo) GetByID(id uint) (*models.CardTransactionDispute, error) {
	dispute, ok := r.d.disputes[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	return &dispute, nil
}

func (r memDataDisputeRepo) GetByProviderRef(ref string) (*models.CardTransactionDispute, error) {
	for _, dispute := range r.d.disputes {
		if dispute.ProviderDisputeRef == ref {
			d := dispute
			return &d, nil
		}
	}
	return nil, ErrDisputeNotFound
}

func (r memDataDisputeRepo) Update(dispute *models.CardTransactionDispute) error {
	if _, ok := r.d.disputes[dispute.ID]; !ok {
		return ErrDisputeNotFound
	}
	dispute.UpdatedAt = time.Now()
	r.d.disputes[dispute.ID] = *dispute
	return nil
}

func (r memDataDisputeRepo) AppendEvent(event *models.CardTransactionDisputeEvent) error {
	event.ID = r.d.id()
	event.CreatedAt = time.Now()
	r.d.disputeEvents = append(r.d.disputeEvents, *event)
	return nil
}

// Locked wrappers for use outside of ExecuteInTransaction.

type memCardRepo struct{ s *MemoryStore }

func (r memCardRepo) Create(card *models.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardRepo{r.s.data}.Create(card)
}

func (r memCardRepo) GetByID(id uint) (*models.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardRepo{r.s.data}.GetByID(id)
}

func (r memCardRepo) GetByProviderRef(ref string) (*models.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardRepo{r.s.data}.GetByProviderRef(ref)
}

func (r memCardRepo) Update(card *models.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardRepo{r.s.data}.Update(card)
}

type memCardUserRepo struct{ s *MemoryStore }

func (r memCardUserRepo) Create(user *models.CardUser) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardUserRepo{r.s.data}.Create(user)
}

func (r memCardUserRepo) GetByID(id uint) (*models.CardUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardUserRepo{r.s.data}.GetByID(id)
}

func (r memCardUserRepo) GetByProviderRef(ref string) (*models.CardUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardUserRepo{r.s.data}.GetByProviderRef(ref)
}

func (r memCardUserRepo) Update(user *models.CardUser) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardUserRepo{r.s.data}.Update(user)
}

type memCardTxRepo struct{ s *MemoryStore }

func (r memCardTxRepo) Create(tx *models.CardTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardTxRepo{r.s.data}.Create(tx)
}

func (r memCardTxRepo) GetByID(id uint) (*models.CardTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardTxRepo{r.s.data}.GetByID(id)
}

func (r memCardTxRepo) GetByProviderReference(ref string) (*models.CardTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardTxRepo{r.s.data}.GetByProviderReference(ref)
}

func (r memCardTxRepo) GetLatestPendingDeposit(cardUserID uint) (*models.CardTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardTxRepo{r.s.data}.GetLatestPendingDeposit(cardUserID)
}

func (r memCardTxRepo) Update(tx *models.CardTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataCardTxRepo{r.s.data}.Update(tx)
}

type memTransactionRepo struct{ s *MemoryStore }

func (r memTransactionRepo) Create(tx *models.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataTransactionRepo{r.s.data}.Create(tx)
}

func (r memTransactionRepo) GetByReference(ref string) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataTransactionRepo{r.s.data}.GetByReference(ref)
}

func (r memTransactionRepo) Update(tx *models.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataTransactionRepo{r.s.data}.Update(tx)
}

type memDisputeRepo struct{ s *MemoryStore }

func (r memDisputeRepo) Create(dispute *models.CardTransactionDispute) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataDisputeRepo{r.s.data}.Create(dispute)
}

func (r memDisputeRepo) GetByID(id uint) (*models.CardTransactionDispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataDisputeRepo{r.s.data}.GetByID(id)
}

func (r memDisputeRepo) GetByProviderRef(ref string) (*models.CardTransactionDispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataDisputeRepo{r.s.data}.GetByProviderRef(ref)
}

func (r memDisputeRepo) Update(dispute *models.CardTransactionDispute) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataDisputeRepo{r.s.data}.Update(dispute)
}

func (r memDisputeRepo) AppendEvent(event *models.CardTransactionDisputeEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memDataDisputeRepo{r.s.data}.AppendEvent(event)
}
