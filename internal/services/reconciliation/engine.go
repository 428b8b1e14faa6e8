// Package reconciliation applies card-issuing provider webhook events
// to the internal ledger with exactly-once economic effect. Every
// balance mutation runs inside a named lock and a database transaction,
// re-reads its entities fresh, and verifies the persisted balances
// after writing.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"cardledger/internal/config"
	"cardledger/internal/issuer"
	"cardledger/internal/lock"
	"cardledger/internal/models"
	"cardledger/internal/repositories"
	"cardledger/internal/services/fees"
	"cardledger/internal/services/notification"
)

// insufficientFundsPattern matches the provider's decline reason
// wording for balance shortfalls.
var insufficientFundsPattern = regexp.MustCompile(`(?i)insufficient[ _]funds|insufficient[ _]balance|\bnsf\b`)

// Engine is the balance reconciliation engine.
type Engine struct {
	store    repositories.Store
	locks    lock.Service
	issuer   issuer.Client
	notifier notification.Dispatcher
	fees     fees.Table
	cfg      config.Reconciliation
	logger   *slog.Logger
}

// NewEngine wires the reconciliation engine. All collaborators are
// required.
func NewEngine(
	store repositories.Store,
	locks lock.Service,
	issuerClient issuer.Client,
	notifier notification.Dispatcher,
	feeTable fees.Table,
	cfg config.Reconciliation,
	logger *slog.Logger,
) *Engine {
	if store == nil {
		panic("store is required")
	}
	if locks == nil {
		panic("lock service is required")
	}
	if issuerClient == nil {
		panic("issuer client is required")
	}
	if notifier == nil {
		panic("notifier is required")
	}
	if feeTable == nil {
		panic("fee table is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if cfg.DeclineThreshold <= 0 {
		cfg.DeclineThreshold = 3
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}

	return &Engine{
		store:    store,
		locks:    locks,
		issuer:   issuerClient,
		notifier: notifier,
		fees:     feeTable,
		cfg:      cfg,
		logger:   logger,
	}
}

// lockKey scopes mutual exclusion to one provider transaction on one
// card. Unrelated transactions on the same card stay parallel; replays
// and closely-timed created/updated/completed events for the same
// transaction serialize.
func lockKey(cardUserID uint, providerRef string, cardID uint) string {
	return fmt.Sprintf("card-webhook:%d:%s:%d", cardUserID, providerRef, cardID)
}

// withExclusiveTransaction is the acquire → re-read-fresh → mutate →
// verify combinator every balance-mutating handler composes. fn runs
// inside both the named lock and a database transaction and must
// re-read its entities from the transactional store.
func (e *Engine) withExclusiveTransaction(ctx context.Context, key string, fn func(repositories.Store) error) error {
	return e.locks.WithLock(ctx, key, func() error {
		return e.store.ExecuteInTransaction(fn)
	})
}

// verifyBalances re-reads the card and card user after the writes and
// confirms the persisted balances equal the computed ones. A mismatch
// is corruption-class and aborts the transaction.
func verifyBalances(s repositories.Store, cardID uint, wantCard int64, cardUserID uint, wantUser int64) error {
	card, err := s.Cards().GetByID(cardID)
	if err != nil {
		return fmt.Errorf("verification read: %w", err)
	}
	if card.Balance != wantCard {
		return fmt.Errorf("%w: card %d balance %d, want %d", ErrBalanceVerification, cardID, card.Balance, wantCard)
	}

	user, err := s.CardUsers().GetByID(cardUserID)
	if err != nil {
		return fmt.Errorf("verification read: %w", err)
	}
	if user.Balance != wantUser {
		return fmt.Errorf("%w: card user %d balance %d, want %d", ErrBalanceVerification, cardUserID, user.Balance, wantUser)
	}
	return nil
}

// notify dispatches best-effort; failures never reach the caller.
func (e *Engine) notify(ctx context.Context, channels []notification.Channel, n notification.CardNotification) {
	if err := e.notifier.SendCardNotification(ctx, channels, n); err != nil {
		e.logger.ErrorContext(ctx, "notification dispatch failed",
			"user_id", n.UserID, "type", n.NotificationType, "error", err)
	}
}

// chargeFee calls the provider's charge API after the ledger mutation
// has committed. A failure leaves the fee for manual follow-up; it
// never unwinds the ledger.
func (e *Engine) chargeFee(ctx context.Context, providerUserRef string, amount int64, description string) (string, bool) {
	ref, err := e.issuer.CreateCharge(ctx, providerUserRef, amount, description)
	if err != nil {
		e.logger.ErrorContext(ctx, "fee charge failed",
			"provider_user_ref", providerUserRef, "amount", amount,
			"description", description, "error", err)
		return "", false
	}
	return ref, true
}

// lookupCardTransaction returns (nil, nil) when the reference is
// unknown, reserving errors for infrastructure failures.
func (e *Engine) lookupCardTransaction(s repositories.Store, ref string) (*models.CardTransaction, error) {
	ct, err := s.CardTransactions().GetByProviderReference(ref)
	if err != nil {
		if errors.Is(err, repositories.ErrCardTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ct, nil
}

func (e *Engine) lookupTransaction(s repositories.Store, ref string) (*models.Transaction, error) {
	tx, err := s.Transactions().GetByReference(ref)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return tx, nil
}
