package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"cardledger/internal/config"
	"cardledger/internal/lock"
	"cardledger/internal/logging"
	"cardledger/internal/models"
	"cardledger/internal/repositories"
	"cardledger/internal/services/fees"
	"cardledger/internal/services/notification"

	"github.com/stretchr/testify/require"
)

type chargeCall struct {
	UserRef     string
	Amount      int64
	Description string
}

type cardUpdateCall struct {
	CardRef string
	Status  string
}

type fakeIssuer struct {
	mu          sync.Mutex
	charges     []chargeCall
	cardUpdates []cardUpdateCall
	failCharges bool
}

func (f *fakeIssuer) CreateCharge(_ context.Context, userRef string, amount int64, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCharges {
		return "", errors.New("provider unavailable")
	}
	f.charges = append(f.charges, chargeCall{UserRef: userRef, Amount: amount, Description: description})
	return "ch_test", nil
}

func (f *fakeIssuer) UpdateCard(_ context.Context, cardRef string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cardUpdates = append(f.cardUpdates, cardUpdateCall{CardRef: cardRef, Status: status})
	return nil
}

type sentNotification struct {
	Channels []notification.Channel
	Payload  notification.CardNotification
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) SendCardNotification(_ context.Context, channels []notification.Channel, n notification.CardNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{Channels: channels, Payload: n})
	return nil
}

func testFeeTable() fees.Table {
	return fees.Table{
		fees.CategoryFunding:           {Kind: fees.RulePercentage, PercentBps: 250, RequiresCharge: true},
		fees.CategoryCardIssuance:      {Kind: fees.RuleFixed, Fixed: 100, RequiresCharge: true},
		fees.CategoryInsufficientFunds: {Kind: fees.RuleFixed, Fixed: 50},
		fees.CategoryCardMaintenance:   {Kind: fees.RuleNone},
	}
}

type testEnv struct {
	engine   *Engine
	store    *repositories.MemoryStore
	issuer   *fakeIssuer
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repositories.NewMemoryStore()
	iss := &fakeIssuer{}
	not := &fakeNotifier{}
	engine := NewEngine(
		store,
		lock.NewLocal(),
		iss,
		not,
		testFeeTable(),
		config.Reconciliation{DeclineThreshold: 3, DefaultCurrency: "USD"},
		logging.Discard(),
	)
	return &testEnv{engine: engine, store: store, issuer: iss, notifier: not}
}

func (env *testEnv) seedUser(t *testing.T, providerRef string, balance int64) *models.CardUser {
	t.Helper()
	user := &models.CardUser{
		UserID:             42,
		ProviderRef:        providerRef,
		Balance:            balance,
		ApplicationStatus:  models.CardUserStatusApproved,
		IssuanceFeeSettled: true,
	}
	require.NoError(t, env.store.CardUsers().Create(user))
	return user
}

func (env *testEnv) seedCard(t *testing.T, user *models.CardUser, providerRef string, balance int64) *models.Card {
	t.Helper()
	card := &models.Card{
		CardUserID:  user.ID,
		ProviderRef: providerRef,
		Balance:     balance,
		Status:      models.CardStatusActive,
	}
	require.NoError(t, env.store.Cards().Create(card))
	return card
}

func (env *testEnv) seedPendingDeposit(t *testing.T, user *models.CardUser, card *models.Card, ref string, amount, fee int64) *models.CardTransaction {
	t.Helper()
	ct := &models.CardTransaction{
		CardID:            card.ID,
		CardUserID:        user.ID,
		TransactionType:   models.CardTransactionTypeDeposit,
		Type:              models.EntryTypeCredit,
		Amount:            amount,
		Fee:               fee,
		Currency:          "USD",
		Status:            models.CardTransactionStatusPending,
		ProviderReference: ref,
	}
	require.NoError(t, env.store.CardTransactions().Create(ct))
	return ct
}

func (env *testEnv) process(t *testing.T, resource, action string, data interface{}) Result {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"resource": resource,
		"action":   action,
		"data":     json.RawMessage(payload),
	})
	require.NoError(t, err)

	result, err := env.engine.ProcessWebhook(context.Background(), body)
	require.NoError(t, err)
	return result
}

func (env *testEnv) cardBalance(t *testing.T, id uint) int64 {
	t.Helper()
	card, err := env.store.Cards().GetByID(id)
	require.NoError(t, err)
	return card.Balance
}

func (env *testEnv) userBalance(t *testing.T, id uint) int64 {
	t.Helper()
	user, err := env.store.CardUsers().GetByID(id)
	require.NoError(t, err)
	return user.Balance
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	require.Panics(t, func() {
		NewEngine(nil, lock.NewLocal(), &fakeIssuer{}, &fakeNotifier{}, testFeeTable(), config.Reconciliation{}, logging.Discard())
	})
	require.Panics(t, func() {
		NewEngine(repositories.NewMemoryStore(), nil, &fakeIssuer{}, &fakeNotifier{}, testFeeTable(), config.Reconciliation{}, logging.Discard())
	})
}
